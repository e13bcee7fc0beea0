package order

import (
	"context"
	"time"

	"vop/internal/server/services/svorder"
	redisx "vop/pkg/infra/redis"
	"vop/pkg/logger"
)

// CompletionWaiter 任务完成通知等待方（Smart-Wait 消费侧）
type CompletionWaiter interface {
	WaitForNotification(ctx context.Context, orderID string, timeout time.Duration) (*redisx.JobNotification, error)
}

// OrderHandler 订单 HTTP 处理器
// waiter 可为 nil（Redis 不可用时降级为纯异步返回）
type OrderHandler struct {
	orderService *svorder.OrderService
	waiter       CompletionWaiter
	log          logger.Logger
}

// NewOrderHandler 创建订单处理器实例
func NewOrderHandler(orderService *svorder.OrderService, waiter CompletionWaiter, log logger.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		waiter:       waiter,
		log:          log,
	}
}
