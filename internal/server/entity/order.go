package entity

import (
	"time"
)

// Order 服务端订单记录
// ID 由客户端生成并在同步中保持稳定，upsert 以它为键
type Order struct {
	ID        string    `gorm:"column:id;primaryKey;type:varchar(64)"`
	OrgID     string    `gorm:"column:org_id;type:varchar(64);not null;index:idx_org"`
	Status    string    `gorm:"column:status;type:varchar(16);not null;default:'DRAFT'"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
