package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PubSub Redis 发布/订阅客户端
type PubSub struct {
	client *redis.Client
}

// NewPubSub 创建 PubSub 实例
func NewPubSub(addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &PubSub{client: client}, nil
}

// JobNotification 任务完成通知消息
type JobNotification struct {
	JobID           int64  `json:"job_id"`
	JobType         string `json:"job_type"`
	OrderID         string `json:"order_id,omitempty"`
	SupplierOrderID string `json:"supplier_order_id,omitempty"`
	Status          string `json:"status"` // COMPLETED/FAILED
	Timestamp       int64  `json:"timestamp"`
}

// PublishJobComplete 发布任务完成通知
// 频道命名约定：order:notify:{orderID}
func (p *PubSub) PublishJobComplete(ctx context.Context, n *JobNotification) error {
	msgJSON, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	channel := fmt.Sprintf("order:notify:%s", n.OrderID)
	if err := p.client.Publish(ctx, channel, msgJSON).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	return nil
}

// WaitForNotification 订阅指定订单的通知频道并等待一条消息，带超时
func (p *PubSub) WaitForNotification(ctx context.Context, orderID string, timeout time.Duration) (*JobNotification, error) {
	channel := fmt.Sprintf("order:notify:%s", orderID)
	sub := p.client.Subscribe(ctx, channel)
	defer sub.Close()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case msg := <-sub.Channel():
		var n JobNotification
		if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
			return nil, fmt.Errorf("unmarshal notification failed: %w", err)
		}
		return &n, nil
	case <-timeoutCtx.Done():
		return nil, timeoutCtx.Err()
	}
}

// Close 关闭 Redis 连接
func (p *PubSub) Close() error {
	return p.client.Close()
}
