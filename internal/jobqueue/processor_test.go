package jobqueue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"vop/internal/model"
	"vop/pkg/idgen"
	"vop/pkg/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "jobs.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Job{}))
	return db
}

func enqueueTestJob(t *testing.T, q *Queue) int64 {
	t.Helper()
	id, err := q.Enqueue(context.Background(), model.JobTypeSendSupplierOrder, model.SendSupplierOrderPayload{
		OrderID:         "order-1",
		SupplierID:      "sup-1",
		SupplierOrderID: "so-1",
	})
	require.NoError(t, err)
	return id
}

func loadJob(t *testing.T, db *gorm.DB, id int64) *Job {
	t.Helper()
	var job Job
	require.NoError(t, db.Where("id = ?", id).First(&job).Error)
	return &job
}

func TestEnqueueInsertsPending(t *testing.T) {
	db := newTestDB(t)
	q := NewQueue(db, idgen.NewGenerator(1))

	id := enqueueTestJob(t, q)

	job := loadJob(t, db, id)
	assert.Equal(t, StatusPending, job.Status)
	assert.Equal(t, 0, job.Attempts)
	assert.Equal(t, model.JobTypeSendSupplierOrder, job.Type)
}

func TestProcessBatchCompletesJob(t *testing.T) {
	db := newTestDB(t)
	q := NewQueue(db, idgen.NewGenerator(1))
	id := enqueueTestJob(t, q)

	var handled []int64
	p := NewProcessor(db, 3, logger.NewNopLogger())
	p.Register(model.JobTypeSendSupplierOrder, func(ctx context.Context, job *Job) error {
		handled = append(handled, job.ID)
		return nil
	})

	result, err := p.ProcessBatch(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Selected)
	assert.Equal(t, 1, result.Completed)

	assert.Equal(t, []int64{id}, handled)
	assert.Equal(t, StatusCompleted, loadJob(t, db, id).Status)
}

func TestFailedJobRetriedThenExcluded(t *testing.T) {
	db := newTestDB(t)
	q := NewQueue(db, idgen.NewGenerator(1))
	id := enqueueTestJob(t, q)

	p := NewProcessor(db, 3, logger.NewNopLogger())
	p.Register(model.JobTypeSendSupplierOrder, func(ctx context.Context, job *Job) error {
		return errors.New("supplier gateway down")
	})

	// failed 且 attempts 未满仍会被后续批次选中
	for i := 1; i <= 3; i++ {
		result, err := p.ProcessBatch(context.Background(), 50)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Selected)
		assert.Equal(t, 1, result.Failed)

		job := loadJob(t, db, id)
		assert.Equal(t, StatusFailed, job.Status)
		assert.Equal(t, i, job.Attempts)
		assert.Contains(t, job.LastError, "supplier gateway down")
	}

	// attempts 达上限：不再入选，但行保留（审计）
	result, err := p.ProcessBatch(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Selected)

	var count int64
	require.NoError(t, db.Model(&Job{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUnknownJobTypeMarkedFailed(t *testing.T) {
	db := newTestDB(t)
	q := NewQueue(db, idgen.NewGenerator(1))

	id, err := q.Enqueue(context.Background(), "no_such_type", map[string]string{"k": "v"})
	require.NoError(t, err)

	p := NewProcessor(db, 3, logger.NewNopLogger())
	result, err := p.ProcessBatch(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	job := loadJob(t, db, id)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Contains(t, job.LastError, "unknown job type")
}

func TestHandlerPanicMarkedFailed(t *testing.T) {
	db := newTestDB(t)
	q := NewQueue(db, idgen.NewGenerator(1))
	id := enqueueTestJob(t, q)

	p := NewProcessor(db, 3, logger.NewNopLogger())
	p.Register(model.JobTypeSendSupplierOrder, func(ctx context.Context, job *Job) error {
		panic("boom")
	})

	result, err := p.ProcessBatch(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	job := loadJob(t, db, id)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.LastError, "handler panic")
}

func TestClaimSkipsConcurrentlyTakenJob(t *testing.T) {
	db := newTestDB(t)
	q := NewQueue(db, idgen.NewGenerator(1))
	id := enqueueTestJob(t, q)

	p := NewProcessor(db, 3, logger.NewNopLogger())
	p.Register(model.JobTypeSendSupplierOrder, func(ctx context.Context, job *Job) error {
		return nil
	})

	// 模拟另一个处理器在选取后抢先改走了状态
	job := loadJob(t, db, id)
	require.NoError(t, db.Model(&Job{}).Where("id = ?", id).
		Update("status", StatusProcessing).Error)

	result := &BatchResult{}
	p.processOne(context.Background(), job, result)
	assert.Equal(t, 1, result.Skipped)
}

func TestOldestFirstSelection(t *testing.T) {
	db := newTestDB(t)
	p := NewProcessor(db, 3, logger.NewNopLogger())

	var handled []string
	p.Register("noop", func(ctx context.Context, job *Job) error {
		handled = append(handled, string(job.Payload))
		return nil
	})

	now := time.Now()
	for i, name := range []string{"\"new\"", "\"old\""} {
		job := &Job{
			ID:        int64(i + 1),
			Type:      "noop",
			Payload:   []byte(name),
			Status:    StatusPending,
			CreatedAt: now.Add(-time.Duration(i) * time.Hour),
			UpdatedAt: now,
		}
		require.NoError(t, db.Create(job).Error)
	}

	_, err := p.ProcessBatch(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"\"old\"", "\"new\""}, handled)
}
