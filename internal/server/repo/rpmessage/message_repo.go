package rpmessage

import (
	"context"

	"vop/internal/server/entity"
)

// MessageRepository 消息仓储接口
type MessageRepository interface {
	// Insert 幂等写入消息（order_id + sequence_number 去重）
	Insert(ctx context.Context, msg *entity.Message) error

	// ListByOrder 按序列号升序查询订单的全部消息
	ListByOrder(ctx context.Context, orderID string) ([]entity.Message, error)
}
