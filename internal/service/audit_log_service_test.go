package service_test

import (
	"testing"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogService_Trails(t *testing.T) {
	env := newTestEnv(t)
	repo := repository.NewAuditLogRepository(env.db)
	svc := service.NewAuditLogService(repo)

	base := env.clock.Now()
	entries := []*model.AuditLogModel{
		{ID: "a1", UserID: "admin-1", Action: "application.transition", ResourceType: model.ResourceApplication, ResourceID: "7", CreatedAt: base},
		{ID: "a2", UserID: "tech-1", Action: "dd.submit_scores", ResourceType: model.ResourceDueDiligence, ResourceID: "7", CreatedAt: base.Add(time.Minute)},
		{ID: "a3", UserID: "admin-1", Action: "application.transition", ResourceType: model.ResourceApplication, ResourceID: "8", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, repo.Save(e))
	}

	logs, err := svc.ApplicationTrail(asAdmin(), 7, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "a2", logs[0].ID)

	logs, err = svc.ApplicationTrail(as("ovs-1", workflow.RoleOversight), 7, 1)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	logs, err = svc.ActorTrail(asAdmin(), "admin-1", 1000)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "a3", logs[0].ID)

	_, err = svc.ActorTrail(asAdmin(), "", 10)
	assert.Equal(t, workflow.KindValidation, workflow.KindOf(err))

	_, err = svc.ApplicationTrail(as("r1-a", workflow.RoleReviewer1), 7, 10)
	assert.Equal(t, workflow.KindAuthorization, workflow.KindOf(err))
}
