package jobqueue

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"vop/pkg/logger"
)

// Handler 类型特定的任务处理函数
type Handler func(ctx context.Context, job *Job) error

// BatchResult 单批次处理结果
type BatchResult struct {
	Selected  int
	Completed int
	Failed    int
	Skipped   int // 被并发的处理器抢走的任务
}

// Processor 批处理器
// 由外部调度器按固定间隔触发；自身不做轮询
type Processor struct {
	db          *gorm.DB
	handlers    map[string]Handler
	maxAttempts int
	log         logger.Logger
}

// NewProcessor 创建批处理器
func NewProcessor(db *gorm.DB, maxAttempts int, log logger.Logger) *Processor {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Processor{
		db:          db,
		handlers:    make(map[string]Handler),
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// Register 注册任务类型的处理函数
func (p *Processor) Register(jobType string, h Handler) {
	p.handlers[jobType] = h
}

// ProcessBatch 处理一批任务
// 选取条件：pending 或 failed 且尝试次数未达上限，最旧优先
// attempts 达到上限的 failed 任务不再被选中，行本身永不删除
func (p *Processor) ProcessBatch(ctx context.Context, limit int) (*BatchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	var jobs []Job
	err := p.db.WithContext(ctx).
		Where("status IN ? AND attempts < ?", []string{StatusPending, StatusFailed}, p.maxAttempts).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("select jobs failed: %w", err)
	}

	result := &BatchResult{Selected: len(jobs)}
	for i := range jobs {
		p.processOne(ctx, &jobs[i], result)
	}

	p.log.Infof(ctx, "[Processor] batch done: selected=%d completed=%d failed=%d skipped=%d",
		result.Selected, result.Completed, result.Failed, result.Skipped)
	return result, nil
}

// processOne 处理单个任务
func (p *Processor) processOne(ctx context.Context, job *Job, result *BatchResult) {
	// 条件更新抢占任务：状态已被他人改走则跳过
	claim := p.db.WithContext(ctx).
		Model(&Job{}).
		Where("id = ? AND status = ?", job.ID, job.Status).
		Updates(map[string]interface{}{
			"status":     StatusProcessing,
			"updated_at": time.Now(),
		})
	if claim.Error != nil {
		p.log.Errorf(ctx, "[Processor] claim job %d failed: %v", job.ID, claim.Error)
		return
	}
	if claim.RowsAffected == 0 {
		result.Skipped++
		return
	}

	err := p.run(ctx, job)
	if err == nil {
		if uerr := p.markCompleted(ctx, job.ID); uerr != nil {
			p.log.Errorf(ctx, "[Processor] mark job %d completed failed: %v", job.ID, uerr)
			return
		}
		result.Completed++
		return
	}

	if uerr := p.markFailed(ctx, job.ID, job.Attempts+1, err); uerr != nil {
		p.log.Errorf(ctx, "[Processor] mark job %d failed failed: %v", job.ID, uerr)
		return
	}
	result.Failed++
	p.log.Warnf(ctx, "[Processor] job %d (%s) attempt %d failed: %v", job.ID, job.Type, job.Attempts+1, err)
}

// run 执行处理函数；未注册的类型按处理异常对待，不静默丢弃
func (p *Processor) run(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	h, ok := p.handlers[job.Type]
	if !ok {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	return h(ctx, job)
}

func (p *Processor) markCompleted(ctx context.Context, jobID int64) error {
	return p.db.WithContext(ctx).
		Model(&Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     StatusCompleted,
			"updated_at": time.Now(),
		}).Error
}

func (p *Processor) markFailed(ctx context.Context, jobID int64, attempts int, cause error) error {
	msg := cause.Error()
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return p.db.WithContext(ctx).
		Model(&Job{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":     StatusFailed,
			"attempts":   attempts,
			"last_error": msg,
			"updated_at": time.Now(),
		}).Error
}
