package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"vop/internal/model"
)

// Store 本地持久化存储（SQLite）
// 写入在调用返回前落盘，不存在仅内存态
type Store struct {
	db *gorm.DB
}

// Open 打开本地存储并执行迁移
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open local store failed: %w", err)
	}

	// SQLite 单连接即可，避免写锁竞争
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	// WAL + FULL：保证写入返回即持久
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		return nil, fmt.Errorf("enable WAL failed: %w", err)
	}
	if err := db.Exec("PRAGMA synchronous=FULL").Error; err != nil {
		return nil, fmt.Errorf("set synchronous failed: %w", err)
	}

	if err := db.AutoMigrate(&Order{}, &Message{}); err != nil {
		return nil, fmt.Errorf("migrate local store failed: %w", err)
	}

	return &Store{db: db}, nil
}

// EnsureOrder 确保本地订单存在；不存在则创建 DRAFT/PENDING 记录
func (s *Store) EnsureOrder(ctx context.Context, orderID, orgID string) (*Order, error) {
	var order Order
	err := s.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error
	if err == nil {
		return &order, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now()
	order = Order{
		ID:         orderID,
		OrgID:      orgID,
		Status:     model.OrderStatusDraft,
		SyncStatus: model.SyncStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(&order).Error; err != nil {
		return nil, fmt.Errorf("create local order failed: %w", err)
	}
	return &order, nil
}

// GetOrder 查询本地订单
func (s *Store) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := s.db.WithContext(ctx).Where("id = ?", orderID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus 更新订单状态，同时回落为待同步
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID, status string) error {
	return s.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":      status,
			"sync_status": model.SyncStatusPending,
			"updated_at":  time.Now(),
		}).Error
}

// SetOrderReview 解析完成：落盘供应商集合并把订单置为 REVIEW
// 定稿时的供应商来源是这里写入的记录，不是会话内存，重启后依然可用
func (s *Store) SetOrderReview(ctx context.Context, orderID string, supplierIDs []string) error {
	raw, err := json.Marshal(supplierIDs)
	if err != nil {
		return fmt.Errorf("marshal supplier ids failed: %w", err)
	}
	return s.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":       model.OrderStatusReview,
			"supplier_ids": datatypes.JSON(raw),
			"sync_status":  model.SyncStatusPending,
			"updated_at":   time.Now(),
		}).Error
}

// MarkOrderSynced 将订单标记为已同步
// 对已同步记录重复标记是无害的（幂等）
func (s *Store) MarkOrderSynced(ctx context.Context, orderID string) error {
	return s.db.WithContext(ctx).
		Model(&Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"sync_status": model.SyncStatusSynced,
			"updated_at":  time.Now(),
		}).Error
}

// CancelOrder 显式取消：删除订单及其消息（本地删除的唯一路径）
func (s *Store) CancelOrder(ctx context.Context, orderID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", orderID).Delete(&Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", orderID).Delete(&Order{}).Error
	})
}

// PendingOrders 查询全部待同步订单
func (s *Store) PendingOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	err := s.db.WithContext(ctx).
		Where("sync_status = ?", model.SyncStatusPending).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

// AppendMessage 追加消息：在事务内分配下一个序列号并立即落盘
// 序列号取自存储内当前最大值，不依赖调用方加载的内存快照
func (s *Store) AppendMessage(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message id is required")
	}
	if msg.OrderID == "" {
		return fmt.Errorf("message order_id is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxSeq int
		row := tx.Model(&Message{}).
			Where("order_id = ?", msg.OrderID).
			Select("COALESCE(MAX(sequence_number), 0)").
			Row()
		if err := row.Scan(&maxSeq); err != nil {
			return fmt.Errorf("scan max sequence failed: %w", err)
		}

		now := time.Now()
		msg.SequenceNumber = maxSeq + 1
		if msg.SyncStatus == "" {
			msg.SyncStatus = model.SyncStatusPending
		}
		msg.CreatedAt = now
		msg.UpdatedAt = now

		return tx.Create(msg).Error
	})
}

// UpdateMessage 按主键打补丁
func (s *Store) UpdateMessage(ctx context.Context, messageID string, patch map[string]interface{}) error {
	patch["updated_at"] = time.Now()
	return s.db.WithContext(ctx).
		Model(&Message{}).
		Where("id = ?", messageID).
		Updates(patch).Error
}

// GetMessage 查询单条消息
func (s *Store) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var msg Message
	if err := s.db.WithContext(ctx).Where("id = ?", messageID).First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// MessagesByOrder 按序列号升序返回订单的全部消息
// 插入竞争不影响读出顺序
func (s *Store) MessagesByOrder(ctx context.Context, orderID string) ([]Message, error) {
	var msgs []Message
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("sequence_number ASC").
		Find(&msgs).Error
	return msgs, err
}

// PendingMessages 返回全部待同步消息，按订单、序列号升序
func (s *Store) PendingMessages(ctx context.Context) ([]Message, error) {
	var msgs []Message
	err := s.db.WithContext(ctx).
		Where("sync_status = ?", model.SyncStatusPending).
		Order("order_id ASC, sequence_number ASC").
		Find(&msgs).Error
	return msgs, err
}

// MarkMessageSynced 将消息标记为已同步
func (s *Store) MarkMessageSynced(ctx context.Context, messageID string) error {
	return s.db.WithContext(ctx).
		Model(&Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"sync_status": model.SyncStatusSynced,
			"updated_at":  time.Now(),
		}).Error
}

// ResolveAudio 记录音频上传结果：写入远端引用并释放本地 blob
func (s *Store) ResolveAudio(ctx context.Context, messageID, audioRef string) error {
	return s.db.WithContext(ctx).
		Model(&Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"audio_ref":  audioRef,
			"audio_blob": nil,
			"updated_at": time.Now(),
		}).Error
}

// Close 关闭底层连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
