package audio

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vop/internal/model"
	"vop/pkg/clockx"
	"vop/pkg/errorx"
	"vop/pkg/logger"
)

// fakeUploader 记录上传次数
type fakeUploader struct {
	mu    sync.Mutex
	count int
	ref   string
	err   error
}

func (u *fakeUploader) UploadAudio(ctx context.Context, data []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.count++
	if u.err != nil {
		return "", u.err
	}
	if u.ref != "" {
		return u.ref, nil
	}
	return model.NewAudioRef(), nil
}

func (u *fakeUploader) calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.count
}

// fakeTranscriber 固定转写结果
type fakeTranscriber struct {
	text  string
	err   error
	block chan struct{} // 非 nil 时阻塞到关闭
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, data []byte) (*model.Transcription, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.Transcription{Text: f.text, Confidence: 0.95, Duration: time.Second}, nil
}

func newTestPipeline(clock clockx.Clock, up Uploader, tr Transcriber) *Pipeline {
	return NewPipeline(DefaultConfig(), clock, up, tr, logger.NewNopLogger())
}

func rec(data string, d time.Duration) Recording {
	return Recording{Data: []byte(data), Duration: d}
}

func TestProcessSuccess(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	up := &fakeUploader{}
	p := newTestPipeline(clock, up, &fakeTranscriber{text: "ten kilos of tomatoes"})

	result, err := p.Process(context.Background(), rec("audio-bytes", 30*time.Second))
	require.NoError(t, err)

	assert.Equal(t, StageSuccess, result.Stage)
	assert.Equal(t, "ten kilos of tomatoes", result.Transcription.Text)
	assert.NotEmpty(t, result.AudioRef)
	assert.False(t, result.Cached)
	assert.Equal(t, 1, up.calls())
}

func TestIdempotentResubmission(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	up := &fakeUploader{}
	p := newTestPipeline(clock, up, &fakeTranscriber{text: "same audio"})

	first, err := p.Process(context.Background(), rec("identical-bytes", 10*time.Second))
	require.NoError(t, err)

	// 同一内容重新提交：直接命中缓存，不再上传
	second, err := p.Process(context.Background(), rec("identical-bytes", 10*time.Second))
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.Equal(t, "same audio", second.Transcription.Text)
	assert.Equal(t, 1, up.calls())
}

func TestDurationLimitExceeded(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	p := newTestPipeline(clock, &fakeUploader{}, &fakeTranscriber{})

	_, err := p.Process(context.Background(), rec("x", 6*time.Minute))
	require.Error(t, err)

	assert.Equal(t, errorx.KindValidation, errorx.KindOf(err))
	assert.False(t, errorx.IsRetryable(err))
	// 报错带上被超出的数值
	assert.Contains(t, err.Error(), "360s")
	assert.Contains(t, err.Error(), "300s")
}

func TestSizeLimitExceeded(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	p := NewPipeline(Config{MaxSize: 16}, clock, &fakeUploader{}, &fakeTranscriber{}, logger.NewNopLogger())

	_, err := p.Process(context.Background(), rec("way more than sixteen bytes", time.Second))
	require.Error(t, err)

	assert.Equal(t, errorx.KindValidation, errorx.KindOf(err))
	assert.Contains(t, err.Error(), "16 bytes")
}

func TestRateLimitWithResetAt(t *testing.T) {
	start := time.Unix(1000, 0)
	clock := clockx.NewFake(start)
	p := newTestPipeline(clock, &fakeUploader{}, &fakeTranscriber{text: "ok"})

	// 填满窗口：10 条各不相同的录音
	for i := 0; i < 10; i++ {
		_, err := p.Process(context.Background(), rec(fmt.Sprintf("audio-%d", i), time.Second))
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	_, err := p.Process(context.Background(), rec("one-too-many", time.Second))
	require.Error(t, err)
	assert.Equal(t, errorx.KindRateLimit, errorx.KindOf(err))

	// resetAt = 最早一条的时间 + 1 小时
	resetAt, ok := errorx.ResetAtOf(err)
	require.True(t, ok)
	assert.Equal(t, start.Add(time.Hour), resetAt)

	// 最早一条滑出窗口后恢复
	clock.Advance(51 * time.Minute)
	_, err = p.Process(context.Background(), rec("after-reset", time.Second))
	assert.NoError(t, err)
}

func TestTransientFailureNotRecorded(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	up := &fakeUploader{err: errorx.Transient("network down")}
	p := newTestPipeline(clock, up, &fakeTranscriber{text: "ok"})

	_, err := p.Process(context.Background(), rec("audio", time.Second))
	require.Error(t, err)
	assert.True(t, errorx.IsRetryable(err))

	// 失败不计入窗口：重试仍会真正上传
	up.err = nil
	result, err := p.Process(context.Background(), rec("audio", time.Second))
	require.NoError(t, err)
	assert.False(t, result.Cached)
	assert.Equal(t, 2, up.calls())
}

func TestMalformedRefRejected(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	up := &fakeUploader{ref: "garbage-ref"}
	p := newTestPipeline(clock, up, &fakeTranscriber{text: "ok"})

	_, err := p.Process(context.Background(), rec("audio", time.Second))
	require.Error(t, err)
	assert.True(t, errorx.IsRetryable(err))
}

func TestInFlightGuardRejectsConcurrent(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	block := make(chan struct{})
	up := &fakeUploader{}
	p := newTestPipeline(clock, up, &fakeTranscriber{text: "ok", block: block})

	done := make(chan error, 1)
	go func() {
		_, err := p.Process(context.Background(), rec("first", time.Second))
		done <- err
	}()

	// 等第一次进入转写阶段（上传已完成、转写阻塞中）
	require.Eventually(t, func() bool {
		return up.calls() == 1
	}, time.Second, time.Millisecond)

	// 在途处理未结束前，第二次提交被拒绝
	_, err := p.Process(context.Background(), rec("second", time.Second))
	require.Error(t, err)
	assert.Equal(t, errorx.KindValidation, errorx.KindOf(err))

	close(block)
	require.NoError(t, <-done)
}
