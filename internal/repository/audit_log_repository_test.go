package repository_test

import (
	"testing"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAuditLogRepository_Save 测试保存审计日志
func TestAuditLogRepository_Save(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewAuditLogRepository(db)

	auditLog := &model.AuditLogModel{
		ID:           "audit-001",
		UserID:       "admin-1",
		Action:       "force_transition",
		ResourceType: model.ResourceApplication,
		ResourceID:   "42",
		RequestID:    "req-001",
		IP:           "127.0.0.1",
		Details:      `{"to":"rejected"}`,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.Save(auditLog))

	logs, err := repo.FindByResource(model.ResourceApplication, "42")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "force_transition", logs[0].Action)

	require.NoError(t, repo.Save(&model.AuditLogModel{
		ID:           "audit-003",
		UserID:       "ovs-1",
		Action:       "dd.validator_action",
		ResourceType: model.ResourceDueDiligence,
		ResourceID:   "42",
		CreatedAt:    time.Now().UTC().Add(time.Second),
	}))

	logs, err = repo.Find(repository.AuditLogFilter{UserID: "admin-1"})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	// 申请与尽调记录合并, 最新的在前
	logs, err = repo.Find(repository.AuditLogFilter{
		ResourceTypes: []string{model.ResourceApplication, model.ResourceDueDiligence},
		ResourceID:    "42",
	})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "audit-003", logs[0].ID)

	logs, err = repo.Find(repository.AuditLogFilter{ResourceID: "42", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	assert.Error(t, repo.Save(&model.AuditLogModel{ID: "audit-002"}))
}

// TestStateHistoryRepository_FindByResource 测试状态历史按时间正序
func TestStateHistoryRepository_FindByResource(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewStateHistoryRepository(db)
	base := time.Now().UTC()

	require.NoError(t, repo.Save(&model.StateHistoryModel{ID: "h2", ResourceType: model.ResourceApplication, ResourceID: "1", FromState: "submitted", ToState: "under_review", Operator: "rev-a", CreatedAt: base.Add(time.Second)}))
	require.NoError(t, repo.Save(&model.StateHistoryModel{ID: "h1", ResourceType: model.ResourceApplication, ResourceID: "1", FromState: "draft", ToState: "submitted", Operator: "user-1", CreatedAt: base}))
	require.NoError(t, repo.Save(&model.StateHistoryModel{ID: "h3", ResourceType: model.ResourceDueDiligence, ResourceID: "1", ToState: "pending", Operator: "rev-b", CreatedAt: base}))
	assert.Error(t, repo.Save(&model.StateHistoryModel{ID: "h4", ResourceType: model.ResourceApplication, ResourceID: "1"}))

	histories, err := repo.FindByResource(model.ResourceApplication, "1")
	require.NoError(t, err)
	require.Len(t, histories, 2)
	assert.Equal(t, "h1", histories[0].ID)
	assert.Equal(t, "h2", histories[1].ID)
}

// TestWorkflowEventRepository 测试事件发件箱
func TestWorkflowEventRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewWorkflowEventRepository(db)

	event := &model.WorkflowEventModel{ID: "evt-1", ApplicationID: 7, Type: "application.status_changed", Data: `{}`}
	require.NoError(t, repo.Save(event))
	assert.Equal(t, model.EventPending, event.Status)

	pending, err := repo.FindPending(10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, repo.MarkAttempt("evt-1", model.EventPending, "timeout"))
	require.NoError(t, repo.MarkAttempt("evt-1", model.EventFailed, "timeout"))

	found, err := repo.FindByID("evt-1")
	require.NoError(t, err)
	assert.Equal(t, 2, found.RetryCount)
	assert.Equal(t, model.EventFailed, found.Status)

	require.NoError(t, repo.MarkDelivered("evt-1"))
	events, err := repo.FindByApplicationID(7)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventSuccess, events[0].Status)
	assert.Empty(t, events[0].LastError)
}
