package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"vop/internal/agent/audio"
	"vop/internal/agent/command"
	"vop/internal/agent/conversation"
	"vop/internal/agent/localstore"
	"vop/internal/agent/parsing"
	"vop/internal/agent/remote"
	"vop/internal/agent/syncer"
	"vop/internal/model"
	"vop/pkg/clockx"
	"vop/pkg/config"
	"vop/pkg/errorx"
	"vop/pkg/eventbus"
	"vop/pkg/logger"
	"vop/pkg/retry"
)

// Engine 本地同步引擎
// 每个打开的订单一个会话：独立的状态机、命令队列与录音管线
// 订单之间互不协调，各自的在途操作可以并发
type Engine struct {
	cfg    config.AgentConfig
	policy retry.Policy
	buffer int

	clock       clockx.Clock
	log         logger.Logger
	store       *localstore.Store
	remote      remote.Store
	parser      parsing.Parser
	transcriber audio.Transcriber
	bus         *eventbus.Bus
	reconci     *syncer.Reconciler

	mu       sync.Mutex
	sessions map[string]*session
	closing  *atomic.Bool

	// OnCommandFailed 命令重试耗尽后向用户呈现（可为 nil）
	OnCommandFailed func(orderID string, cmd command.Command, err error)
}

// session 单个打开订单的运行态
type session struct {
	orderID  string
	machine  *conversation.Machine
	queue    *command.Queue
	pipeline *audio.Pipeline
}

// NewEngine 创建引擎
func NewEngine(
	cfg config.AgentConfig,
	queueCfg config.QueueConfig,
	clock clockx.Clock,
	store *localstore.Store,
	rs remote.Store,
	parser parsing.Parser,
	transcriber audio.Transcriber,
	bus *eventbus.Bus,
	log logger.Logger,
) *Engine {
	e := &Engine{
		cfg: cfg,
		policy: retry.Policy{
			MaxAttempts: queueCfg.MaxAttempts,
			BaseDelay:   queueCfg.BaseDelay,
		},
		buffer:      queueCfg.BufferSize,
		clock:       clock,
		log:         log,
		store:       store,
		remote:      rs,
		parser:      parser,
		transcriber: transcriber,
		bus:         bus,
		sessions:    make(map[string]*session),
		closing:     atomic.NewBool(false),
	}
	e.reconci = syncer.New(store, rs, e.supplierTargets, log)
	return e
}

// OpenOrder 打开（或创建）一个订单会话
// 状态机总是从 idle 开始，不从历史消息重建
func (e *Engine) OpenOrder(ctx context.Context, orderID string) error {
	if e.closing.Load() {
		return fmt.Errorf("engine is closed")
	}

	if _, err := e.store.EnsureOrder(ctx, orderID, e.cfg.OrgID); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.sessions[orderID]; ok {
		return nil
	}

	sess := &session{orderID: orderID}
	sess.machine = conversation.NewMachine(e.clock, e.cfg.TypingDecay, nil)
	sess.pipeline = audio.NewPipeline(audio.Config{
		MaxDuration: e.cfg.MaxRecordingDuration,
		MaxSize:     e.cfg.MaxRecordingSize,
		RateLimit:   e.cfg.RecordingRateLimit,
	}, e.clock, e.remote, e.transcriber, e.log)

	sess.queue = command.NewQueue(&command.Config{
		Name:          orderID,
		Clock:         e.clock,
		Policy:        e.policy,
		BufferSize:    e.buffer,
		DebounceDelay: e.cfg.DebounceDelay,
		ParseFactory: func() command.Command {
			return e.buildParseCommand(sess)
		},
		OnCommandFailed: func(cmd command.Command, err error) {
			e.log.Errorf(context.Background(), "[Engine] order %s command %s dropped: %v", orderID, cmd.Name(), err)
			if e.OnCommandFailed != nil {
				e.OnCommandFailed(orderID, cmd, err)
			}
		},
	}, e.log)
	sess.queue.Start(ctx)

	e.sessions[orderID] = sess
	return nil
}

// TypingStarted 用户开始输入
// 输入期间不允许解析触发：取消未到期的防抖计时
func (e *Engine) TypingStarted(orderID string) error {
	sess, err := e.session(orderID)
	if err != nil {
		return err
	}
	if _, err := sess.machine.Apply(conversation.EventUserStartedTyping); err != nil {
		return err
	}
	sess.queue.CancelParse()
	return nil
}

// TypingStopped 用户停止输入
func (e *Engine) TypingStopped(orderID string) error {
	sess, err := e.session(orderID)
	if err != nil {
		return err
	}
	_, err = sess.machine.Apply(conversation.EventUserStoppedTyping)
	return err
}

// SubmitText 提交一条文本消息
// 本地先落盘（乐观），持久化命令立即入队，解析防抖计时重置
func (e *Engine) SubmitText(ctx context.Context, orderID, content string) (string, error) {
	sess, err := e.session(orderID)
	if err != nil {
		return "", err
	}
	if content == "" {
		return "", errorx.Validation("message content is empty")
	}

	if _, err := sess.machine.Apply(conversation.EventMessageQueued); err != nil {
		return "", err
	}

	msg := &localstore.Message{
		ID:      uuid.New().String(),
		OrderID: orderID,
		Role:    model.RoleUser,
		Type:    model.MessageTypeText,
		Content: content,
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return "", err
	}

	persist := &command.PersistMessage{
		Store:     e.store,
		Remote:    e.remote,
		MessageID: msg.ID,
		Log:       e.log,
	}
	if err := sess.queue.EnqueuePersist(persist); err != nil {
		// 入队失败不回滚本地写入，消息留待对账器推送
		e.log.Warnf(ctx, "[Engine] enqueue persist for message %s failed: %v", msg.ID, err)
	}
	return msg.ID, nil
}

// StartRecording 用户开始录音
// 状态机保证录音与输入互斥；录音期间解析计时取消
func (e *Engine) StartRecording(orderID string) error {
	sess, err := e.session(orderID)
	if err != nil {
		return err
	}
	if _, err := sess.machine.Apply(conversation.EventUserStartedRecording); err != nil {
		return err
	}
	sess.queue.CancelParse()
	return nil
}

// StopRecording 结束录音并处理
// 成功：写入带远端引用与转写文本的音频消息，入队持久化
// 可重试失败：仅携带本地 blob 落盘，留待对账器上传
// 校验/限额失败：直接返回错误，不落盘
func (e *Engine) StopRecording(ctx context.Context, orderID string, rec audio.Recording) (string, error) {
	sess, err := e.session(orderID)
	if err != nil {
		return "", err
	}
	if _, err := sess.machine.Apply(conversation.EventUserStoppedRecording); err != nil {
		return "", err
	}

	result, procErr := sess.pipeline.Process(ctx, rec)
	if procErr != nil {
		if !errorx.IsRetryable(procErr) {
			return "", procErr
		}

		// 网络类失败：先把原始字节保住，引用和转写交给对账器补
		msg := &localstore.Message{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			Role:      model.RoleUser,
			Type:      model.MessageTypeAudio,
			AudioBlob: rec.Data,
		}
		if err := e.store.AppendMessage(ctx, msg); err != nil {
			return "", err
		}
		e.log.Warnf(ctx, "[Engine] audio processing failed, message %s kept pending: %v", msg.ID, procErr)
		return msg.ID, procErr
	}

	msg := &localstore.Message{
		ID:       uuid.New().String(),
		OrderID:  orderID,
		Role:     model.RoleUser,
		Type:     model.MessageTypeAudio,
		Content:  result.Transcription.Text,
		AudioRef: result.AudioRef,
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		return "", err
	}

	persist := &command.PersistMessage{
		Store:     e.store,
		Remote:    e.remote,
		MessageID: msg.ID,
		Log:       e.log,
	}
	if err := sess.queue.EnqueuePersist(persist); err != nil {
		e.log.Warnf(ctx, "[Engine] enqueue persist for message %s failed: %v", msg.ID, err)
	}
	return msg.ID, nil
}

// CancelOrder 显式取消：删除本地订单与消息
func (e *Engine) CancelOrder(ctx context.Context, orderID string) error {
	e.mu.Lock()
	sess, ok := e.sessions[orderID]
	if ok {
		delete(e.sessions, orderID)
	}
	e.mu.Unlock()

	if ok {
		sess.queue.Close()
		sess.machine.Close()
	}
	return e.store.CancelOrder(ctx, orderID)
}

// Sync 执行一轮对账（重连或用户显式触发）
func (e *Engine) Sync(ctx context.Context) (*syncer.Stats, error) {
	return e.reconci.Run(ctx)
}

// OrderState 返回会话当前交互状态
func (e *Engine) OrderState(orderID string) (conversation.State, error) {
	sess, err := e.session(orderID)
	if err != nil {
		return "", err
	}
	return sess.machine.State(), nil
}

// Close 优雅关闭：停止全部会话队列并关闭本地存储
func (e *Engine) Close() error {
	if !e.closing.CAS(false, true) {
		return nil
	}

	e.mu.Lock()
	sessions := make([]*session, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.sessions = make(map[string]*session)
	e.mu.Unlock()

	for _, s := range sessions {
		s.queue.Close()
		s.machine.Close()
	}
	return e.store.Close()
}

// buildParseCommand 防抖到期时构造解析命令
func (e *Engine) buildParseCommand(sess *session) command.Command {
	return command.NewInvokeParsing(command.InvokeParsing{
		Store:   e.store,
		Parser:  e.parser,
		Machine: sess.machine,
		Bus:     e.bus,
		Log:     e.log,
		OrderID: sess.orderID,
		OnComplete: func(items []model.ParsedItem) {
			// 解析完成，订单进入复核态，供应商集合随订单一并落盘
			// 下轮对账触发定稿处理；集合在存储里，重启后不丢
			if err := e.store.SetOrderReview(context.Background(), sess.orderID, supplierIDs(items)); err != nil {
				e.log.Errorf(context.Background(), "[Engine] move order %s to review failed: %v", sess.orderID, err)
			}
		},
	})
}

// supplierTargets 从本地订单记录读取定稿涉及的供应商
// 集合在解析完成时落盘，没有打开会话（例如重启后）也能定稿
// 每个供应商分配一个新的供应商订单号
func (e *Engine) supplierTargets(ctx context.Context, orderID string) ([]model.SupplierTarget, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ids, err := order.Suppliers()
	if err != nil {
		return nil, err
	}

	targets := make([]model.SupplierTarget, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, model.SupplierTarget{
			SupplierID:      id,
			SupplierOrderID: uuid.New().String(),
		})
	}
	return targets, nil
}

// supplierIDs 提取订单项涉及的供应商 ID（去重，保持出现顺序）
func supplierIDs(items []model.ParsedItem) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, it := range items {
		if it.SupplierID == "" {
			continue
		}
		if _, dup := seen[it.SupplierID]; dup {
			continue
		}
		seen[it.SupplierID] = struct{}{}
		ids = append(ids, it.SupplierID)
	}
	return ids
}

// session 取已打开的会话
func (e *Engine) session(orderID string) (*session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess, ok := e.sessions[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s is not open", orderID)
	}
	return sess, nil
}
