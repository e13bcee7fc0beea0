package syncer

import (
	"context"

	"vop/internal/agent/localstore"
	"vop/internal/agent/remote"
	"vop/internal/model"
	"vop/pkg/logger"
)

// SupplierSource 订单定稿涉及的供应商来源
// 由上层（会话引擎）根据解析结果提供
type SupplierSource func(ctx context.Context, orderID string) ([]model.SupplierTarget, error)

// Stats 单次对账统计
type Stats struct {
	OrdersSynced    int
	OrdersFailed    int
	MessagesSynced  int
	MessagesFailed  int
	AudioResolved   int
	OrdersProcessed int
}

// Reconciler 同步对账器
// 重连或用户显式触发时运行，把全部待同步记录推到远端
// 单条失败只记日志并留待下次，不回滚其他记录
type Reconciler struct {
	store     *localstore.Store
	remote    remote.Store
	suppliers SupplierSource
	log       logger.Logger
}

// New 创建对账器
func New(store *localstore.Store, rs remote.Store, suppliers SupplierSource, log logger.Logger) *Reconciler {
	return &Reconciler{
		store:     store,
		remote:    rs,
		suppliers: suppliers,
		log:       log,
	}
}

// Run 执行一轮对账
// 顺序：先订单、后消息（按订单+序列号升序）、最后触发定稿处理
func (r *Reconciler) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	// 本轮已触发定稿处理的订单集合，同一订单只触发一次
	processed := make(map[string]struct{})

	// 1. 推送待同步订单（逐条独立，失败不影响其他）
	orders, err := r.store.PendingOrders(ctx)
	if err != nil {
		return stats, err
	}
	for _, o := range orders {
		payload := model.OrderPayload{
			ID:     o.ID,
			OrgID:  o.OrgID,
			Status: o.Status,
		}
		if err := r.remote.UpsertOrder(ctx, payload); err != nil {
			stats.OrdersFailed++
			r.log.Warnf(ctx, "[Syncer] upsert order %s failed, will retry next run: %v", o.ID, err)
			continue
		}
		if err := r.store.MarkOrderSynced(ctx, o.ID); err != nil {
			stats.OrdersFailed++
			r.log.Warnf(ctx, "[Syncer] mark order %s synced failed: %v", o.ID, err)
			continue
		}
		stats.OrdersSynced++

		// 本轮把 REVIEW 状态的订单刷到了远端，记下来等消息刷完后触发处理
		if o.Status == model.OrderStatusReview {
			processed[o.ID] = struct{}{}
		}
	}

	// 2. 推送待同步消息，升序保证远端看到的顺序与组稿顺序一致
	msgs, err := r.store.PendingMessages(ctx)
	if err != nil {
		return stats, err
	}
	for i := range msgs {
		msg := &msgs[i]
		if err := r.flushMessage(ctx, msg, stats); err != nil {
			stats.MessagesFailed++
			r.log.Warnf(ctx, "[Syncer] sync message %s (order=%s seq=%d) failed, will retry next run: %v",
				msg.ID, msg.OrderID, msg.SequenceNumber, err)
			continue
		}
		stats.MessagesSynced++
	}

	// 3. 触发定稿处理，每个订单一次
	for orderID := range processed {
		if err := r.processOrder(ctx, orderID); err != nil {
			r.log.Warnf(ctx, "[Syncer] trigger processing for order %s failed: %v", orderID, err)
			continue
		}
		stats.OrdersProcessed++
	}

	r.log.Infof(ctx, "[Syncer] run done: orders=%d/%d messages=%d/%d audio=%d processed=%d",
		stats.OrdersSynced, stats.OrdersSynced+stats.OrdersFailed,
		stats.MessagesSynced, stats.MessagesSynced+stats.MessagesFailed,
		stats.AudioResolved, stats.OrdersProcessed)
	return stats, nil
}

// flushMessage 推送单条消息：先解决音频引用，再走与命令队列相同的写入路径
func (r *Reconciler) flushMessage(ctx context.Context, msg *localstore.Message, stats *Stats) error {
	// 携带未上传音频的消息：先上传、校验引用、释放本地 blob
	if len(msg.AudioBlob) > 0 && msg.AudioRef == "" {
		ref, err := r.remote.UploadAudio(ctx, msg.AudioBlob)
		if err != nil {
			return err
		}
		if err := model.ValidateAudioRef(ref); err != nil {
			// 引用格式非法：丢弃引用，消息保持待同步，不把脏数据写进记录
			r.log.Errorf(ctx, "[Syncer] discard malformed audio ref for message %s: %v", msg.ID, err)
			return err
		}
		if err := r.store.ResolveAudio(ctx, msg.ID, ref); err != nil {
			return err
		}
		msg.AudioRef = ref
		stats.AudioResolved++
	}

	payload := model.MessagePayload{
		ID:             msg.ID,
		OrderID:        msg.OrderID,
		Role:           msg.Role,
		Type:           msg.Type,
		Content:        msg.Content,
		AudioRef:       msg.AudioRef,
		SequenceNumber: msg.SequenceNumber,
	}
	if err := r.remote.InsertMessage(ctx, payload); err != nil {
		return err
	}

	return r.store.MarkMessageSynced(ctx, msg.ID)
}

// processOrder 触发远端的订单处理用例
func (r *Reconciler) processOrder(ctx context.Context, orderID string) error {
	var targets []model.SupplierTarget
	if r.suppliers != nil {
		var err error
		targets, err = r.suppliers(ctx, orderID)
		if err != nil {
			return err
		}
	}
	return r.remote.ProcessOrder(ctx, orderID, targets)
}
