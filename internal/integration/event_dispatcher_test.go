package integration_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/config"
	"github.com/IdrisKulubi/HIH-sub002/internal/integration"
	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupEventRepo(t *testing.T) repository.WorkflowEventRepository {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&model.WorkflowEventModel{}))
	return repository.NewWorkflowEventRepository(db)
}

// TestEventDispatcher_NoWebhook 未配置 Webhook 时只留档
func TestEventDispatcher_NoWebhook(t *testing.T) {
	repo := setupEventRepo(t)
	d := integration.NewEventDispatcher(repo, config.WebhookConfig{}, nil)
	d.Start()
	defer d.Stop()

	evt := &integration.Event{Type: integration.EventReviewSubmitted, ApplicationID: 42, Actor: "rev-1"}
	require.NoError(t, d.Publish(context.Background(), evt))
	assert.NotEmpty(t, evt.ID)

	events, err := repo.FindByApplicationID(42)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventSuccess, events[0].Status)
	assert.Contains(t, events[0].Data, `"type":"review.submitted"`)
}

// TestEventDispatcher_RetriesThenDelivers 测试失败重试后投递成功
func TestEventDispatcher_RetriesThenDelivers(t *testing.T) {
	repo := setupEventRepo(t)
	var calls int32
	var gotSignature, wantSignature atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSignature.Store(r.Header.Get("X-Bire-Signature"))
		wantSignature.Store("sha256=" + integration.Sign("s3cret", body))
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := integration.NewEventDispatcher(repo, config.WebhookConfig{URL: srv.URL, Secret: "s3cret", Workers: 1, MaxRetries: 3}, nil)
	d.SetBackoff(10 * time.Millisecond)
	d.Start()
	defer d.Stop()

	evt := &integration.Event{Type: integration.EventDDStatusChanged, ApplicationID: 7, Data: map[string]interface{}{"to": "approved"}}
	require.NoError(t, d.Publish(context.Background(), evt))

	assert.Eventually(t, func() bool {
		stored, err := repo.FindByID(evt.ID)
		return err == nil && stored.Status == model.EventSuccess
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := repo.FindByID(evt.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.RetryCount)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))

	assert.Equal(t, wantSignature.Load(), gotSignature.Load())
}

// TestEventDispatcher_GivesUp 测试重试耗尽后标记失败
func TestEventDispatcher_GivesUp(t *testing.T) {
	repo := setupEventRepo(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := integration.NewEventDispatcher(repo, config.WebhookConfig{URL: srv.URL, MaxRetries: 2}, nil)
	d.SetBackoff(time.Millisecond)
	d.Start()
	defer d.Stop()

	evt := &integration.Event{Type: integration.EventDDReassigned, ApplicationID: 9}
	require.NoError(t, d.Publish(context.Background(), evt))

	assert.Eventually(t, func() bool {
		stored, err := repo.FindByID(evt.ID)
		return err == nil && stored.Status == model.EventFailed
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := repo.FindByID(evt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RetryCount)
	assert.Contains(t, stored.LastError, "502")
}
