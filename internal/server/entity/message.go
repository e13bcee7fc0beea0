package entity

import (
	"time"
)

// Message 服务端消息记录
// (order_id, sequence_number) 唯一：客户端重试插入同一条消息不会产生重复行
type Message struct {
	ID             string    `gorm:"column:id;primaryKey;type:varchar(64)"`
	OrderID        string    `gorm:"column:order_id;type:varchar(64);not null;uniqueIndex:uk_order_seq"`
	Role           string    `gorm:"column:role;type:varchar(16);not null"`
	Type           string    `gorm:"column:type;type:varchar(16);not null"`
	Content        string    `gorm:"column:content;type:text"`
	AudioRef       string    `gorm:"column:audio_ref;type:varchar(128)"`
	SequenceNumber int       `gorm:"column:sequence_number;not null;uniqueIndex:uk_order_seq"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "messages"
}
