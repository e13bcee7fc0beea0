package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// 同步状态常量
const (
	SyncStatusPending = "PENDING"
	SyncStatusSynced  = "SYNCED"
)

// 订单状态常量
const (
	OrderStatusDraft      = "DRAFT"
	OrderStatusReview     = "REVIEW"
	OrderStatusProcessing = "PROCESSING"
	OrderStatusSubmitted  = "SUBMITTED"
	OrderStatusCancelled  = "CANCELLED"
)

// 消息角色 / 类型常量
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	MessageTypeText  = "text"
	MessageTypeAudio = "audio"
)

// OrderPayload 订单上行载荷（agent → apiserver upsert）
type OrderPayload struct {
	ID     string `json:"id" binding:"required"`
	OrgID  string `json:"org_id" binding:"required"`
	Status string `json:"status" binding:"required"`
}

// MessagePayload 消息上行载荷（agent → apiserver insert）
// SequenceNumber 在本地追加时分配，重试不会改变
type MessagePayload struct {
	ID             string `json:"id" binding:"required"`
	OrderID        string `json:"order_id"`
	Role           string `json:"role" binding:"required,oneof=user assistant"`
	Type           string `json:"type" binding:"required,oneof=text audio"`
	Content        string `json:"content"`
	AudioRef       string `json:"audio_ref,omitempty"`
	SequenceNumber int    `json:"sequence_number" binding:"required,min=1"`
}

// Transcription 语音转写结果
type Transcription struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Duration   time.Duration `json:"duration"`
}

// SupplierContext 解析服务所需的供应商上下文
type SupplierContext struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ParsedItem 解析服务返回的单个订单项
type ParsedItem struct {
	Product    string  `json:"product"`
	Quantity   float64 `json:"quantity"`
	Unit       string  `json:"unit"`
	Confidence float64 `json:"confidence"`
	SupplierID string  `json:"supplier_id,omitempty"`
}

// ParseResult 解析服务返回的完整结果
type ParseResult struct {
	Items []ParsedItem `json:"items"`
	Reply string       `json:"reply"`
}

// SupplierTarget 订单定稿涉及的供应商
type SupplierTarget struct {
	SupplierID      string `json:"supplier_id" binding:"required"`
	SupplierOrderID string `json:"supplier_order_id" binding:"required"`
}

// SendSupplierOrderPayload 供应商通知任务载荷
type SendSupplierOrderPayload struct {
	OrderID         string `json:"order_id"`
	SupplierID      string `json:"supplier_id"`
	SupplierOrderID string `json:"supplier_order_id"`
}

// 任务类型常量
const (
	JobTypeSendSupplierOrder = "send_supplier_order"
)

const audioRefPrefix = "audio/"

// NewAudioRef 生成远端音频文件引用
func NewAudioRef() string {
	return audioRefPrefix + uuid.New().String()
}

// ValidateAudioRef 校验音频引用格式（audio/<uuid>）
// 格式非法的引用必须丢弃，不能写入消息记录
func ValidateAudioRef(ref string) error {
	if !strings.HasPrefix(ref, audioRefPrefix) {
		return fmt.Errorf("invalid audio ref %q: missing %q prefix", ref, audioRefPrefix)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(ref, audioRefPrefix)); err != nil {
		return fmt.Errorf("invalid audio ref %q: %w", ref, err)
	}
	return nil
}
