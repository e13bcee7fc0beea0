package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"vop/pkg/idgen"
)

// Queue 任务入队器
// Enqueue 只插入 pending 行并立即返回，不在请求路径上执行任务
// 定稿请求的延迟因此与通知投递的延迟解耦
type Queue struct {
	db    *gorm.DB
	idGen *idgen.Generator
}

// NewQueue 创建入队器
func NewQueue(db *gorm.DB, idGen *idgen.Generator) *Queue {
	return &Queue{db: db, idGen: idGen}
}

// Enqueue 插入一条待执行任务，返回任务 ID
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload interface{}) (int64, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal job payload failed: %w", err)
	}

	now := time.Now()
	job := &Job{
		ID:        q.idGen.NextID(),
		Type:      jobType,
		Payload:   raw,
		Status:    StatusPending,
		Attempts:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := q.db.WithContext(ctx).Create(job).Error; err != nil {
		return 0, fmt.Errorf("insert job failed: %w", err)
	}
	return job.ID, nil
}
