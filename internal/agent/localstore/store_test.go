package localstore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vop/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "agent.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func userMessage(orderID, content string) *Message {
	return &Message{
		ID:      uuid.New().String(),
		OrderID: orderID,
		Role:    model.RoleUser,
		Type:    model.MessageTypeText,
		Content: content,
	}
}

func TestEnsureOrderIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.EnsureOrder(ctx, "order-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusDraft, first.Status)
	assert.Equal(t, model.SyncStatusPending, first.SyncStatus)

	again, err := store.EnsureOrder(ctx, "order-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, first.CreatedAt.Unix(), again.CreatedAt.Unix())
}

func TestAppendAssignsSequentialNumbers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureOrder(ctx, "order-1", "org-1")
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		msg := userMessage("order-1", fmt.Sprintf("msg %d", i))
		require.NoError(t, store.AppendMessage(ctx, msg))
		assert.Equal(t, i, msg.SequenceNumber)
	}
}

func TestConcurrentAppendsNoGapsNoDuplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureOrder(ctx, "order-1", "org-1")
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := userMessage("order-1", fmt.Sprintf("msg %d", i))
			assert.NoError(t, store.AppendMessage(ctx, msg))
		}(i)
	}
	wg.Wait()

	msgs, err := store.MessagesByOrder(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, msgs, n)

	// 序列号恰好是 1..N，无间隙无重复
	for i, m := range msgs {
		assert.Equal(t, i+1, m.SequenceNumber)
	}
}

func TestSequenceIndependentPerOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendMessage(ctx, userMessage("order-a", "a1")))
	require.NoError(t, store.AppendMessage(ctx, userMessage("order-b", "b1")))

	msgB := userMessage("order-b", "b2")
	require.NoError(t, store.AppendMessage(ctx, msgB))
	assert.Equal(t, 2, msgB.SequenceNumber)
}

func TestPendingAndMarkSynced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m1 := userMessage("order-1", "first")
	m2 := userMessage("order-1", "second")
	require.NoError(t, store.AppendMessage(ctx, m1))
	require.NoError(t, store.AppendMessage(ctx, m2))

	pending, err := store.PendingMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, store.MarkMessageSynced(ctx, m1.ID))

	pending, err = store.PendingMessages(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, m2.ID, pending[0].ID)

	// 重复标记无副作用
	require.NoError(t, store.MarkMessageSynced(ctx, m1.ID))
}

func TestUpdateOrderStatusResetsSyncStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureOrder(ctx, "order-1", "org-1")
	require.NoError(t, err)
	require.NoError(t, store.MarkOrderSynced(ctx, "order-1"))

	require.NoError(t, store.UpdateOrderStatus(ctx, "order-1", model.OrderStatusReview))

	order, err := store.GetOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusReview, order.Status)
	assert.Equal(t, model.SyncStatusPending, order.SyncStatus)
}

func TestResolveAudioReleasesBlob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	msg := &Message{
		ID:        uuid.New().String(),
		OrderID:   "order-1",
		Role:      model.RoleUser,
		Type:      model.MessageTypeAudio,
		AudioBlob: []byte{0x01, 0x02, 0x03},
	}
	require.NoError(t, store.AppendMessage(ctx, msg))

	ref := model.NewAudioRef()
	require.NoError(t, store.ResolveAudio(ctx, msg.ID, ref))

	got, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, ref, got.AudioRef)
	assert.Empty(t, got.AudioBlob)
}

func TestCancelOrderDeletesMessages(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureOrder(ctx, "order-1", "org-1")
	require.NoError(t, err)
	require.NoError(t, store.AppendMessage(ctx, userMessage("order-1", "hello")))

	require.NoError(t, store.CancelOrder(ctx, "order-1"))

	_, err = store.GetOrder(ctx, "order-1")
	assert.Error(t, err)

	msgs, err := store.MessagesByOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSetOrderReviewPersistsSuppliers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.EnsureOrder(ctx, "order-1", "org-1")
	require.NoError(t, err)
	require.NoError(t, store.MarkOrderSynced(ctx, "order-1"))

	require.NoError(t, store.SetOrderReview(ctx, "order-1", []string{"sup-1", "sup-2"}))

	// 供应商集合随订单落盘，复核态回到待同步
	order, err := store.GetOrder(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusReview, order.Status)
	assert.Equal(t, model.SyncStatusPending, order.SyncStatus)

	ids, err := order.Suppliers()
	require.NoError(t, err)
	assert.Equal(t, []string{"sup-1", "sup-2"}, ids)
}
