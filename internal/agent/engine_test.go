package agent

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vop/internal/agent/audio"
	"vop/internal/agent/conversation"
	"vop/internal/agent/localstore"
	"vop/internal/agent/parsing"
	"vop/internal/model"
	"vop/pkg/clockx"
	"vop/pkg/config"
	"vop/pkg/errorx"
	"vop/pkg/eventbus"
	"vop/pkg/logger"
)

// fakeRemote 记录写入的远端存储
type fakeRemote struct {
	mu        sync.Mutex
	orders    []model.OrderPayload
	messages  []model.MessagePayload
	processed [][]model.SupplierTarget
	uploadErr error
}

func (r *fakeRemote) UpsertOrder(ctx context.Context, order model.OrderPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, order)
	return nil
}

func (r *fakeRemote) InsertMessage(ctx context.Context, msg model.MessagePayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

func (r *fakeRemote) UploadAudio(ctx context.Context, data []byte) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uploadErr != nil {
		return "", r.uploadErr
	}
	return model.NewAudioRef(), nil
}

func (r *fakeRemote) ProcessOrder(ctx context.Context, orderID string, suppliers []model.SupplierTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed = append(r.processed, suppliers)
	return nil
}

func (r *fakeRemote) messageCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// fakeParser 固定解析结果
type fakeParser struct {
	mu     sync.Mutex
	calls  []string
	result *model.ParseResult
}

func (p *fakeParser) ParseStream(ctx context.Context, transcript string, suppliers []model.SupplierContext, onChunk parsing.ChunkFunc) (*model.ParseResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, transcript)
	if p.result != nil {
		return p.result, nil
	}
	return &model.ParseResult{}, nil
}

func (p *fakeParser) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type fakeTranscriber struct{}

func (fakeTranscriber) Transcribe(ctx context.Context, data []byte) (*model.Transcription, error) {
	return &model.Transcription{Text: "transcribed text", Confidence: 0.9, Duration: time.Second}, nil
}

func newTestEngine(t *testing.T, remote *fakeRemote, parser *fakeParser, clock clockx.Clock) *Engine {
	t.Helper()
	return newTestEngineAt(t, filepath.Join(t.TempDir(), "agent.db"), remote, parser, clock)
}

func newTestEngineAt(t *testing.T, dbPath string, remote *fakeRemote, parser *fakeParser, clock clockx.Clock) *Engine {
	t.Helper()

	store, err := localstore.Open(dbPath)
	require.NoError(t, err)

	agentCfg := config.AgentConfig{
		OrgID:         "org-1",
		DebounceDelay: 2500 * time.Millisecond,
		TypingDecay:   time.Second,
	}
	queueCfg := config.QueueConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, BufferSize: 16}

	e := NewEngine(agentCfg, queueCfg, clock, store, remote, parser, fakeTranscriber{}, eventbus.New(), logger.NewNopLogger())
	t.Cleanup(func() { e.Close() })
	return e
}

func TestSubmitTextPersistsLocallyAndRemotely(t *testing.T) {
	remote := &fakeRemote{}
	e := newTestEngine(t, remote, &fakeParser{}, clockx.Real())
	ctx := context.Background()

	require.NoError(t, e.OpenOrder(ctx, "order-1"))

	id, err := e.SubmitText(ctx, "order-1", "ten kilos of tomatoes")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	// 本地立即可见（乐观写入）
	msg, err := e.store.GetMessage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, msg.SequenceNumber)

	// 持久化命令在后台推到远端
	require.Eventually(t, func() bool {
		return remote.messageCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncedParseMovesOrderToReview(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	remote := &fakeRemote{}
	parser := &fakeParser{result: &model.ParseResult{
		Items: []model.ParsedItem{{Product: "tomatoes", Quantity: 10, Unit: "kg", Confidence: 0.9, SupplierID: "sup-1"}},
		Reply: "Order updated.",
	}}
	e := newTestEngine(t, remote, parser, clock)
	ctx := context.Background()

	require.NoError(t, e.OpenOrder(ctx, "order-1"))

	// 两条消息相隔 1 秒：解析只触发一次，收到完整口述
	_, err := e.SubmitText(ctx, "order-1", "ten kilos of tomatoes")
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = e.SubmitText(ctx, "order-1", "and olive oil")
	require.NoError(t, err)

	clock.Advance(2500 * time.Millisecond)

	require.Eventually(t, func() bool {
		return parser.callCount() == 1
	}, time.Second, 5*time.Millisecond)

	parser.mu.Lock()
	transcript := parser.calls[0]
	parser.mu.Unlock()
	assert.Equal(t, "ten kilos of tomatoes\nand olive oil", transcript)

	// 解析完成后订单进入复核态
	require.Eventually(t, func() bool {
		order, err := e.store.GetOrder(ctx, "order-1")
		return err == nil && order.Status == model.OrderStatusReview
	}, time.Second, 5*time.Millisecond)
}

func TestTypingCancelsPendingParse(t *testing.T) {
	clock := clockx.NewFake(time.Unix(0, 0))
	parser := &fakeParser{}
	e := newTestEngine(t, &fakeRemote{}, parser, clock)
	ctx := context.Background()

	require.NoError(t, e.OpenOrder(ctx, "order-1"))

	_, err := e.SubmitText(ctx, "order-1", "ten kilos of tomatoes")
	require.NoError(t, err)

	// 用户恢复输入：解析计时取消
	require.NoError(t, e.TypingStarted("order-1"))
	clock.Advance(10 * time.Second)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, parser.callCount())
}

func TestStopRecordingSuccessAppendsAudioMessage(t *testing.T) {
	remote := &fakeRemote{}
	e := newTestEngine(t, remote, &fakeParser{}, clockx.Real())
	ctx := context.Background()

	require.NoError(t, e.OpenOrder(ctx, "order-1"))
	require.NoError(t, e.StartRecording("order-1"))

	id, err := e.StopRecording(ctx, "order-1", audio.Recording{
		Data:     []byte("audio-bytes"),
		Duration: 10 * time.Second,
	})
	require.NoError(t, err)

	msg, err := e.store.GetMessage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.MessageTypeAudio, msg.Type)
	assert.Equal(t, "transcribed text", msg.Content)
	require.NoError(t, model.ValidateAudioRef(msg.AudioRef))
	assert.Empty(t, msg.AudioBlob)

	state, err := e.OrderState("order-1")
	require.NoError(t, err)
	assert.Equal(t, conversation.StateIdle, state)
}

func TestStopRecordingTransientFailureKeepsBlobPending(t *testing.T) {
	remote := &fakeRemote{uploadErr: errorx.Transient("network down")}
	e := newTestEngine(t, remote, &fakeParser{}, clockx.Real())
	ctx := context.Background()

	require.NoError(t, e.OpenOrder(ctx, "order-1"))
	require.NoError(t, e.StartRecording("order-1"))

	id, err := e.StopRecording(ctx, "order-1", audio.Recording{
		Data:     []byte("audio-bytes"),
		Duration: 10 * time.Second,
	})
	require.Error(t, err)
	require.NotEmpty(t, id)

	// 原始字节已保住，留待对账器补上传
	msg, err := e.store.GetMessage(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusPending, msg.SyncStatus)
	assert.NotEmpty(t, msg.AudioBlob)
	assert.Empty(t, msg.AudioRef)

	// 故障恢复后对账补齐
	remote.mu.Lock()
	remote.uploadErr = nil
	remote.mu.Unlock()

	stats, err := e.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.AudioResolved)
	assert.Equal(t, 1, stats.MessagesSynced)
}

func TestRecordingWhileTypingRejected(t *testing.T) {
	e := newTestEngine(t, &fakeRemote{}, &fakeParser{}, clockx.Real())
	ctx := context.Background()

	require.NoError(t, e.OpenOrder(ctx, "order-1"))
	require.NoError(t, e.TypingStarted("order-1"))

	err := e.StartRecording("order-1")
	var invalid *conversation.ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)
}

func TestSupplierTargetsSurviveRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "agent.db")
	clock := clockx.NewFake(time.Unix(0, 0))
	parser := &fakeParser{result: &model.ParseResult{
		Items: []model.ParsedItem{
			{Product: "tomatoes", Quantity: 10, Unit: "kg", Confidence: 0.9, SupplierID: "sup-1"},
			{Product: "olive oil", Quantity: 2, Unit: "box", Confidence: 0.9, SupplierID: "sup-2"},
		},
		Reply: "Order updated.",
	}}
	ctx := context.Background()

	e1 := newTestEngineAt(t, dbPath, &fakeRemote{}, parser, clock)
	require.NoError(t, e1.OpenOrder(ctx, "order-1"))
	_, err := e1.SubmitText(ctx, "order-1", "ten kilos of tomatoes and two boxes of olive oil")
	require.NoError(t, err)
	clock.Advance(2500 * time.Millisecond)

	require.Eventually(t, func() bool {
		order, err := e1.store.GetOrder(ctx, "order-1")
		return err == nil && order.Status == model.OrderStatusReview
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, e1.Close())

	// 重启：新引擎没有该订单的会话，定稿的供应商集合取自本地存储
	remote2 := &fakeRemote{}
	e2 := newTestEngineAt(t, dbPath, remote2, &fakeParser{}, clockx.Real())

	stats, err := e2.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.OrdersProcessed)

	remote2.mu.Lock()
	defer remote2.mu.Unlock()
	require.Len(t, remote2.processed, 1)
	targets := remote2.processed[0]
	require.Len(t, targets, 2)
	assert.Equal(t, "sup-1", targets[0].SupplierID)
	assert.Equal(t, "sup-2", targets[1].SupplierID)
	for _, target := range targets {
		assert.NotEmpty(t, target.SupplierOrderID)
	}
}
