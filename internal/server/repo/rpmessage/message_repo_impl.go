package rpmessage

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vop/internal/server/entity"
)

// MessageRepositoryImpl 消息仓储实现（MySQL）
type MessageRepositoryImpl struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息仓储实例
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &MessageRepositoryImpl{db: db}
}

// Insert 幂等写入消息
// 唯一键冲突静默跳过：客户端重试或对账器重推不会产生重复行
func (r *MessageRepositoryImpl) Insert(ctx context.Context, msg *entity.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(msg).Error
}

// ListByOrder 按序列号升序查询订单的全部消息
func (r *MessageRepositoryImpl) ListByOrder(ctx context.Context, orderID string) ([]entity.Message, error) {
	var msgs []entity.Message
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("sequence_number ASC").
		Find(&msgs).Error
	return msgs, err
}
