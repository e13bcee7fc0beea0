package svorder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"vop/internal/jobqueue"
	"vop/internal/model"
	"vop/internal/server/entity"
	"vop/internal/server/repo/rpmessage"
	"vop/internal/server/repo/rporder"
	"vop/pkg/idgen"
	"vop/pkg/logger"
)

func newTestService(t *testing.T) (*OrderService, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "server.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&entity.Order{}, &entity.Message{}, &jobqueue.Job{}))

	svc := NewOrderService(
		rporder.NewOrderRepository(db),
		rpmessage.NewMessageRepository(db),
		jobqueue.NewQueue(db, idgen.NewGenerator(1)),
		logger.NewNopLogger(),
	)
	return svc, db
}

func TestUpsertOrderIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	payload := model.OrderPayload{ID: "order-1", OrgID: "org-1", Status: model.OrderStatusDraft}
	require.NoError(t, svc.UpsertOrder(ctx, payload))

	payload.Status = model.OrderStatusReview
	require.NoError(t, svc.UpsertOrder(ctx, payload))

	var count int64
	require.NoError(t, db.Model(&entity.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var order entity.Order
	require.NoError(t, db.Where("id = ?", "order-1").First(&order).Error)
	assert.Equal(t, model.OrderStatusReview, order.Status)
}

func TestProcessOrderEnqueuesPerSupplier(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpsertOrder(ctx, model.OrderPayload{
		ID: "order-1", OrgID: "org-1", Status: model.OrderStatusReview,
	}))

	suppliers := []model.SupplierTarget{
		{SupplierID: "sup-1", SupplierOrderID: "so-1"},
		{SupplierID: "sup-2", SupplierOrderID: "so-2"},
	}
	jobIDs, err := svc.ProcessOrder(ctx, "order-1", suppliers)
	require.NoError(t, err)
	assert.Len(t, jobIDs, 2)

	// 入队即返回：任务处于 pending，尚未执行
	var jobs []jobqueue.Job
	require.NoError(t, db.Find(&jobs).Error)
	require.Len(t, jobs, 2)
	for _, j := range jobs {
		assert.Equal(t, jobqueue.StatusPending, j.Status)
		assert.Equal(t, model.JobTypeSendSupplierOrder, j.Type)
	}

	// 订单已定稿
	var order entity.Order
	require.NoError(t, db.Where("id = ?", "order-1").First(&order).Error)
	assert.Equal(t, model.OrderStatusSubmitted, order.Status)
}

func TestProcessOrderIdempotentWhenSubmitted(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpsertOrder(ctx, model.OrderPayload{
		ID: "order-1", OrgID: "org-1", Status: model.OrderStatusReview,
	}))

	suppliers := []model.SupplierTarget{{SupplierID: "sup-1", SupplierOrderID: "so-1"}}
	_, err := svc.ProcessOrder(ctx, "order-1", suppliers)
	require.NoError(t, err)

	// 重复触发不再入队
	jobIDs, err := svc.ProcessOrder(ctx, "order-1", suppliers)
	require.NoError(t, err)
	assert.Empty(t, jobIDs)

	var count int64
	require.NoError(t, db.Model(&jobqueue.Job{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestProcessOrderMissing(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ProcessOrder(context.Background(), "no-such-order", nil)
	assert.Error(t, err)
}

func TestProcessOrderRejectsEmptySuppliers(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpsertOrder(ctx, model.OrderPayload{
		ID: "order-1", OrgID: "org-1", Status: model.OrderStatusReview,
	}))

	// 空集合定稿被拒绝：不入队，订单不翻 SUBMITTED
	_, err := svc.ProcessOrder(ctx, "order-1", nil)
	require.ErrorIs(t, err, ErrNoSuppliers)

	var count int64
	require.NoError(t, db.Model(&jobqueue.Job{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	var order entity.Order
	require.NoError(t, db.Where("id = ?", "order-1").First(&order).Error)
	assert.Equal(t, model.OrderStatusReview, order.Status)

	// 带上真实供应商重试仍然可以定稿，通知没有丢
	jobIDs, err := svc.ProcessOrder(ctx, "order-1", []model.SupplierTarget{
		{SupplierID: "sup-1", SupplierOrderID: "so-1"},
	})
	require.NoError(t, err)
	assert.Len(t, jobIDs, 1)

	require.NoError(t, db.Model(&jobqueue.Job{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	require.NoError(t, db.Where("id = ?", "order-1").First(&order).Error)
	assert.Equal(t, model.OrderStatusSubmitted, order.Status)
}
