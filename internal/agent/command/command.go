package command

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"vop/internal/agent/conversation"
	"vop/internal/agent/localstore"
	"vop/internal/agent/parsing"
	"vop/internal/agent/remote"
	"vop/internal/model"
	"vop/pkg/eventbus"
	"vop/pkg/logger"
)

// PersistMessage 持久化消息命令：把一条用户消息写入远端存储
// 提交时立即入队，与连通性无关；离线时留在队列里等待触发
type PersistMessage struct {
	Store      *localstore.Store
	Remote     remote.Store
	MessageID  string
	Log        logger.Logger
	OnComplete func(msg *localstore.Message)
}

func (c *PersistMessage) Name() string { return "persist_message" }

// Execute 读取本地消息并写入远端，成功后翻转同步标记
// 已同步的消息直接返回（重试不产生重复行）
func (c *PersistMessage) Execute(ctx context.Context) error {
	msg, err := c.Store.GetMessage(ctx, c.MessageID)
	if err != nil {
		return err
	}

	if msg.SyncStatus == model.SyncStatusSynced {
		return nil
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
	if err := c.Remote.InsertMessage(ctx, payload); err != nil {
		return err
	}

	if err := c.Store.MarkMessageSynced(ctx, msg.ID); err != nil {
		return err
	}

	if c.OnComplete != nil {
		c.OnComplete(msg)
	}
	return nil
}

// InvokeParsing 解析命令：携带完整待处理口述文本调用解析服务
// 防抖触发后入队；流式输出增量写入同一条 assistant 消息
type InvokeParsing struct {
	Store     *localstore.Store
	Parser    parsing.Parser
	Machine   *conversation.Machine
	Bus       *eventbus.Bus
	Log       logger.Logger
	OrderID   string
	Suppliers []model.SupplierContext

	// OnComplete 解析成功后回调（清洗后的订单项）
	OnComplete func(items []model.ParsedItem)

	// assistantID 固定在命令构造时，重试复用同一条 assistant 消息
	assistantID string
}

// NewInvokeParsing 构造解析命令
func NewInvokeParsing(base InvokeParsing) *InvokeParsing {
	base.assistantID = uuid.New().String()
	return &base
}

func (c *InvokeParsing) Name() string { return "invoke_parsing" }

// Execute 执行解析调用
func (c *InvokeParsing) Execute(ctx context.Context) error {
	c.applyEvent(ctx, conversation.EventAICallStarted)
	// 无论成败都要让状态机回到 idle
	defer c.applyEvent(ctx, conversation.EventAIResponseComplete)

	transcript, err := c.buildTranscript(ctx)
	if err != nil {
		return err
	}
	if transcript == "" {
		return nil
	}

	content := ""
	streaming := false
	onChunk := func(delta string) {
		if !streaming {
			streaming = true
			c.applyEvent(ctx, conversation.EventAIResponseStreaming)
		}
		content += delta
		if err := c.upsertAssistant(ctx, content); err != nil {
			c.Log.Warnf(ctx, "[InvokeParsing] update assistant message failed: %v", err)
		}
	}

	result, err := c.Parser.ParseStream(ctx, transcript, c.Suppliers, onChunk)
	if err != nil {
		return err
	}

	if result.Reply != "" && result.Reply != content {
		content = result.Reply
		if err := c.upsertAssistant(ctx, content); err != nil {
			c.Log.Warnf(ctx, "[InvokeParsing] finalize assistant message failed: %v", err)
		}
	}

	// 流结束：assistant 消息标记为已同步
	if content != "" {
		if err := c.Store.MarkMessageSynced(ctx, c.assistantID); err != nil {
			return err
		}
	}

	items := parsing.SanitizeItems(result.Items)

	if c.Bus != nil {
		c.Bus.Publish("parse_completed", map[string]interface{}{
			"order_id":   c.OrderID,
			"item_count": len(items),
		})
	}

	if c.OnComplete != nil {
		c.OnComplete(items)
	}
	return nil
}

// buildTranscript 按序列号升序拼接全部用户消息
// 序列号在本地追加时已固定，网络乱序与重试不影响拼接顺序
func (c *InvokeParsing) buildTranscript(ctx context.Context) (string, error) {
	msgs, err := c.Store.MessagesByOrder(ctx, c.OrderID)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != model.RoleUser || m.Content == "" {
			continue
		}
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n"), nil
}

// upsertAssistant 创建或更新本次解析的 assistant 消息
func (c *InvokeParsing) upsertAssistant(ctx context.Context, content string) error {
	_, err := c.Store.GetMessage(ctx, c.assistantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		msg := &localstore.Message{
			ID:         c.assistantID,
			OrderID:    c.OrderID,
			Role:       model.RoleAssistant,
			Type:       model.MessageTypeText,
			Content:    content,
			SyncStatus: model.SyncStatusPending,
		}
		return c.Store.AppendMessage(ctx, msg)
	}
	if err != nil {
		return err
	}

	return c.Store.UpdateMessage(ctx, c.assistantID, map[string]interface{}{
		"content": content,
	})
}

// applyEvent 状态机事件，非法转换仅记日志
func (c *InvokeParsing) applyEvent(ctx context.Context, ev conversation.Event) {
	if c.Machine == nil {
		return
	}
	if _, err := c.Machine.Apply(ev); err != nil {
		c.Log.Debugf(ctx, "[InvokeParsing] state event %s ignored: %v", ev, err)
	}
}
