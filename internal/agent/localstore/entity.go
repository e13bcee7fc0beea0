package localstore

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Order 本地订单记录
// 远端未确认前，本地记录即为事实来源
// SupplierIDs 在解析完成时落盘，定稿时的供应商集合不依赖会话内存
type Order struct {
	ID          string         `gorm:"column:id;primaryKey;type:varchar(64)"`
	OrgID       string         `gorm:"column:org_id;type:varchar(64);not null;index:idx_org"`
	Status      string         `gorm:"column:status;type:varchar(16);not null;default:'DRAFT'"`
	SupplierIDs datatypes.JSON `gorm:"column:supplier_ids"`
	SyncStatus  string         `gorm:"column:sync_status;type:varchar(16);not null;default:'PENDING';index:idx_sync"`
	CreatedAt   time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;not null"`
}

// Suppliers 返回解析出的供应商 ID 集合
func (o *Order) Suppliers() ([]string, error) {
	if len(o.SupplierIDs) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(o.SupplierIDs, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// TableName 指定表名
func (Order) TableName() string {
	return "local_orders"
}

// Message 本地消息记录
// SequenceNumber 在追加时分配，单调递增，重试期间不会重新分配
// AudioBlob 在上传成功前归本地所有，之后由 AudioRef 取代
type Message struct {
	ID             string    `gorm:"column:id;primaryKey;type:varchar(64)"`
	OrderID        string    `gorm:"column:order_id;type:varchar(64);not null;uniqueIndex:uk_order_seq;index:idx_order"`
	Role           string    `gorm:"column:role;type:varchar(16);not null"`
	Type           string    `gorm:"column:type;type:varchar(16);not null"`
	Content        string    `gorm:"column:content;type:text"`
	AudioBlob      []byte    `gorm:"column:audio_blob"`
	AudioRef       string    `gorm:"column:audio_ref;type:varchar(128)"`
	SequenceNumber int       `gorm:"column:sequence_number;not null;uniqueIndex:uk_order_seq"`
	SyncStatus     string    `gorm:"column:sync_status;type:varchar(16);not null;default:'PENDING';index:idx_msg_sync"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "local_messages"
}
