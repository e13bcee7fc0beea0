package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vop/internal/model"
	"vop/internal/notifier"
	"vop/pkg/infra/redis"
	"vop/pkg/logger"
)

// SendSupplierOrderHandler 供应商通知任务处理函数
// 投递成功后尽力广播完成事件，订阅方（等待中的客户端）即时感知
func SendSupplierOrderHandler(sender notifier.Sender, pubsub *redis.PubSub, log logger.Logger) Handler {
	return func(ctx context.Context, job *Job) error {
		var payload model.SendSupplierOrderPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode job payload failed: %w", err)
		}
		if payload.SupplierOrderID == "" {
			return fmt.Errorf("job %d payload missing supplier_order_id", job.ID)
		}

		if err := sender.SendSupplierOrder(ctx, payload.SupplierOrderID); err != nil {
			return err
		}

		// 广播失败不算任务失败：投递已完成，事件只是加速感知
		if pubsub != nil {
			n := &redis.JobNotification{
				JobID:           job.ID,
				JobType:         job.Type,
				OrderID:         payload.OrderID,
				SupplierOrderID: payload.SupplierOrderID,
				Status:          "COMPLETED",
				Timestamp:       time.Now().Unix(),
			}
			if err := pubsub.PublishJobComplete(ctx, n); err != nil {
				log.Warnf(ctx, "[Job] publish completion for order %s failed: %v", payload.OrderID, err)
			}
		}
		return nil
	}
}
