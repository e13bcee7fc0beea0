package jobqueue

import (
	"time"

	"gorm.io/datatypes"
)

// 任务状态常量
// failed 且 attempts 未达上限的任务仍会被下一批次选中（failed 是待重试态）
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job 任务记录
// 只插入、只更新，从不删除：表同时是审计日志
type Job struct {
	ID        int64          `gorm:"column:id;primaryKey"`
	Type      string         `gorm:"column:type;type:varchar(64);not null;index:idx_type"`
	Payload   datatypes.JSON `gorm:"column:payload;not null"`
	Status    string         `gorm:"column:status;type:varchar(16);not null;default:'pending';index:idx_status_attempts,priority:1"`
	Attempts  int            `gorm:"column:attempts;not null;default:0;index:idx_status_attempts,priority:2"`
	LastError string         `gorm:"column:last_error;type:varchar(512)"`
	CreatedAt time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (Job) TableName() string {
	return "jobs"
}
