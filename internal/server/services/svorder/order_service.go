package svorder

import (
	"context"
	"errors"
	"fmt"

	"vop/internal/jobqueue"
	"vop/internal/model"
	"vop/internal/server/entity"
	"vop/internal/server/repo/rpmessage"
	"vop/internal/server/repo/rporder"
	"vop/pkg/logger"
)

// ErrNoSuppliers 定稿请求未携带供应商
// 空集合定稿会把订单翻成 SUBMITTED 却一条通知都不发，之后的幂等保护
// 又会拦下所有重试，通知就永久丢了，所以直接拒绝
var ErrNoSuppliers = errors.New("order has no supplier targets")

// OrderService 订单服务
type OrderService struct {
	orderRepo rporder.OrderRepository
	msgRepo   rpmessage.MessageRepository
	queue     *jobqueue.Queue
	log       logger.Logger
}

// NewOrderService 创建订单服务实例
func NewOrderService(
	orderRepo rporder.OrderRepository,
	msgRepo rpmessage.MessageRepository,
	queue *jobqueue.Queue,
	log logger.Logger,
) *OrderService {
	return &OrderService{
		orderRepo: orderRepo,
		msgRepo:   msgRepo,
		queue:     queue,
		log:       log,
	}
}

// UpsertOrder 幂等写入订单行
func (s *OrderService) UpsertOrder(ctx context.Context, payload model.OrderPayload) error {
	return s.orderRepo.Upsert(ctx, &entity.Order{
		ID:     payload.ID,
		OrgID:  payload.OrgID,
		Status: payload.Status,
	})
}

// InsertMessage 幂等写入消息行
func (s *OrderService) InsertMessage(ctx context.Context, payload model.MessagePayload) error {
	return s.msgRepo.Insert(ctx, &entity.Message{
		ID:             payload.ID,
		OrderID:        payload.OrderID,
		Role:           payload.Role,
		Type:           payload.Type,
		Content:        payload.Content,
		AudioRef:       payload.AudioRef,
		SequenceNumber: payload.SequenceNumber,
	})
}

// ProcessOrder 订单定稿：每个涉及的供应商入队一条通知任务
// 入队即返回，任务由外部调度器触发的批处理器执行
// 已定稿的订单重复触发不再入队（幂等）
func (s *OrderService) ProcessOrder(ctx context.Context, orderID string, suppliers []model.SupplierTarget) ([]int64, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order failed: %w", err)
	}

	if order.Status == model.OrderStatusSubmitted {
		s.log.Infof(ctx, "[OrderService] order %s already submitted, skip enqueue", orderID)
		return nil, nil
	}

	// 没有供应商就不定稿，订单留在原状态等下次携带完整集合的请求
	if len(suppliers) == 0 {
		return nil, fmt.Errorf("process order %s rejected: %w", orderID, ErrNoSuppliers)
	}

	jobIDs := make([]int64, 0, len(suppliers))
	for _, sup := range suppliers {
		payload := model.SendSupplierOrderPayload{
			OrderID:         orderID,
			SupplierID:      sup.SupplierID,
			SupplierOrderID: sup.SupplierOrderID,
		}
		jobID, err := s.queue.Enqueue(ctx, model.JobTypeSendSupplierOrder, payload)
		if err != nil {
			return jobIDs, fmt.Errorf("enqueue supplier job failed: %w", err)
		}
		jobIDs = append(jobIDs, jobID)
	}

	if err := s.orderRepo.UpdateStatus(ctx, orderID, model.OrderStatusSubmitted); err != nil {
		return jobIDs, fmt.Errorf("update order status failed: %w", err)
	}

	s.log.Infof(ctx, "[OrderService] order %s submitted, %d supplier jobs enqueued", orderID, len(jobIDs))
	return jobIDs, nil
}

// ListMessages 查询订单消息（调试/回放用）
func (s *OrderService) ListMessages(ctx context.Context, orderID string) ([]entity.Message, error) {
	return s.msgRepo.ListByOrder(ctx, orderID)
}
