package audio

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"vop/internal/model"
	"vop/pkg/clockx"
	"vop/pkg/errorx"
	"vop/pkg/logger"
)

// Stage 单次录音处理的阶段
type Stage string

const (
	StageIdle         Stage = "idle"
	StageRecording    Stage = "recording"
	StageRecorded     Stage = "recorded"
	StageValidating   Stage = "validating"
	StageUploading    Stage = "uploading"
	StageTranscribing Stage = "transcribing"
	StageSuccess      Stage = "success"
	StageError        Stage = "error"
)

// Recording 一段录好的音频
type Recording struct {
	Data     []byte
	Duration time.Duration
}

// Uploader 音频上传协作方
type Uploader interface {
	UploadAudio(ctx context.Context, data []byte) (string, error)
}

// Transcriber 语音转写协作方
// 配额拒绝必须与一般故障区分上报
type Transcriber interface {
	Transcribe(ctx context.Context, data []byte) (*model.Transcription, error)
}

// Config 管线限额配置
type Config struct {
	MaxDuration time.Duration // 录音时长上限
	MaxSize     int64         // 录音体积上限（字节）
	RateLimit   int           // 滚动窗口内的录音条数上限
	RateWindow  time.Duration // 滚动窗口时长
}

// DefaultConfig 默认限额：5 分钟 / 25MB / 每小时 10 条
func DefaultConfig() Config {
	return Config{
		MaxDuration: 5 * time.Minute,
		MaxSize:     25 * 1024 * 1024,
		RateLimit:   10,
		RateWindow:  time.Hour,
	}
}

// Result 处理结果
type Result struct {
	Stage         Stage
	ContentHash   string
	AudioRef      string
	Transcription model.Transcription
	Cached        bool // 命中幂等缓存，未重新上传
}

// Pipeline 录音处理管线
// 顺序：指纹 → 幂等缓存 → 限额校验 → 频率限额 → 上传 → 转写 → 记账
type Pipeline struct {
	cfg         Config
	clock       clockx.Clock
	log         logger.Logger
	uploader    Uploader
	transcriber Transcriber
	history     *recordLog
	inFlight    *atomic.Bool // 同一会话同时只允许一次处理
}

// NewPipeline 创建管线
func NewPipeline(cfg Config, clock clockx.Clock, uploader Uploader, transcriber Transcriber, log logger.Logger) *Pipeline {
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 5 * time.Minute
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 25 * 1024 * 1024
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Hour
	}

	return &Pipeline{
		cfg:         cfg,
		clock:       clock,
		log:         log,
		uploader:    uploader,
		transcriber: transcriber,
		history:     newRecordLog(clock, cfg.RateWindow),
		inFlight:    atomic.NewBool(false),
	}
}

// Process 处理一段录音
// 校验与限额错误不可重试；上传/转写的网络故障可由调用方重试
func (p *Pipeline) Process(ctx context.Context, rec Recording) (*Result, error) {
	// 双击保护：进行中的处理未结束前拒绝新录音
	if !p.inFlight.CAS(false, true) {
		return nil, errorx.Validation("another recording is already being processed")
	}
	defer p.inFlight.Store(false)

	// 1. 先算内容指纹
	sum := sha256.Sum256(rec.Data)
	hash := hex.EncodeToString(sum[:])

	// 2. 幂等重提交：命中缓存则直接成功，不再上传、不再转写
	if entry, ok := p.history.Lookup(hash); ok && entry.Transcription != "" {
		p.log.Infof(ctx, "[Audio] cache hit for %s, skipping upload", hash[:12])
		return &Result{
			Stage:       StageSuccess,
			ContentHash: hash,
			Cached:      true,
			Transcription: model.Transcription{
				Text:     entry.Transcription,
				Duration: entry.Duration,
			},
		}, nil
	}

	// 3. 限额校验（报错需带上被超出的数值）
	if rec.Duration > p.cfg.MaxDuration {
		return nil, errorx.Validation("recording duration %.0fs exceeds limit of %.0fs",
			rec.Duration.Seconds(), p.cfg.MaxDuration.Seconds())
	}
	if int64(len(rec.Data)) > p.cfg.MaxSize {
		return nil, errorx.Validation("recording size %d bytes exceeds limit of %d bytes",
			len(rec.Data), p.cfg.MaxSize)
	}

	// 4. 频率限额：窗口内已满则拒绝，并告知重置时间
	if count, oldest := p.history.CountAndOldest(); count >= p.cfg.RateLimit {
		resetAt := oldest.Add(p.cfg.RateWindow)
		return nil, errorx.RateLimit(fmt.Sprintf(
			"recording rate limit exceeded: %d recordings per hour", p.cfg.RateLimit), resetAt)
	}

	// 5. 上传
	ref, err := p.uploader.UploadAudio(ctx, rec.Data)
	if err != nil {
		return nil, err
	}
	if err := model.ValidateAudioRef(ref); err != nil {
		// 引用格式非法：丢弃而不是带着脏数据继续
		return nil, errorx.Transient("upload returned malformed ref: %v", err)
	}

	// 6. 转写
	tr, err := p.transcriber.Transcribe(ctx, rec.Data)
	if err != nil {
		return nil, err
	}

	// 7. 记账并修剪窗口外条目
	p.history.Append(ProcessedRecording{
		ContentHash:   hash,
		Timestamp:     p.clock.Now(),
		Duration:      rec.Duration,
		Size:          len(rec.Data),
		Transcription: tr.Text,
	})

	return &Result{
		Stage:         StageSuccess,
		ContentHash:   hash,
		AudioRef:      ref,
		Transcription: *tr,
	}, nil
}
