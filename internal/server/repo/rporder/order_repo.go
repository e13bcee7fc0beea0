package rporder

import (
	"context"

	"vop/internal/server/entity"
)

// OrderRepository 订单仓储接口
type OrderRepository interface {
	// Upsert 幂等写入订单（存在则更新状态）
	Upsert(ctx context.Context, order *entity.Order) error

	// GetByID 根据ID查询订单
	GetByID(ctx context.Context, orderID string) (*entity.Order, error)

	// UpdateStatus 更新订单状态
	UpdateStatus(ctx context.Context, orderID, status string) error
}
