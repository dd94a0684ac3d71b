package service_test

import (
	"fmt"
	"testing"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedReviewers 创建评审人档案并初始化队列
func seedReviewers(t *testing.T, env *testEnv, svc service.AssignmentService, role workflow.Role, ids ...string) {
	for _, id := range ids {
		env.profile(t, id, role, "Rev", id, id+"@bire.org")
	}
	_, err := svc.InitializeQueue(asAdmin())
	require.NoError(t, err)
}

func loadsOf(t *testing.T, env *testEnv, tier int) map[string]int {
	counts, err := env.apps.CountAssignments(tier)
	require.NoError(t, err)
	return counts
}

func spread(counts map[string]int, ids ...string) int {
	loads := make([]workflow.ReviewerLoad, len(ids))
	for i, id := range ids {
		loads[i] = workflow.ReviewerLoad{ReviewerID: id, Count: counts[id]}
	}
	return workflow.Spread(loads)
}

// TestAssignmentService_InitializeQueue 测试初始化队列是幂等的
func TestAssignmentService_InitializeQueue(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewAssignmentService(env.deps)
	env.profile(t, "r1-a", workflow.RoleReviewer1, "Jane", "Doe", "jane@bire.org")
	env.profile(t, "r1-b", workflow.RoleReviewer1, "John", "Mwangi", "john@bire.org")
	env.profile(t, "r2-a", workflow.RoleReviewer2, "Ken", "Otieno", "ken@bire.org")
	env.profile(t, "ovs-1", workflow.RoleOversight, "Olive", "Wanjiru", "olive@bire.org")

	added, err := svc.InitializeQueue(asAdmin())
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	queue := repository.NewReviewerRepository(env.db)
	before, err := queue.AllQueueEntries()
	require.NoError(t, err)

	added, err = svc.InitializeQueue(asAdmin())
	require.NoError(t, err)
	assert.Zero(t, added)

	after, err := queue.AllQueueEntries()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	for _, e := range after {
		assert.True(t, e.IsActive)
		assert.Zero(t, e.AssignmentCount)
	}

	_, err = svc.InitializeQueue(as("r1-a", workflow.RoleReviewer1))
	assert.Equal(t, workflow.KindAuthorization, workflow.KindOf(err))
}

// TestAssignmentService_BulkAssign 测试批量分配均衡且不会重复分配
func TestAssignmentService_BulkAssign(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewAssignmentService(env.deps)
	seedReviewers(t, env, svc, workflow.RoleReviewer1, "r1-a", "r1-b", "r1-c")

	var apps []*model.ApplicationModel
	for i := 0; i < 7; i++ {
		apps = append(apps, env.application(t, workflow.StatusSubmitted, fmt.Sprintf("biz-%d", i)))
	}
	draft := env.application(t, workflow.StatusDraft, "draft")

	n, err := svc.BulkAssign(asAdmin(), workflow.RoleReviewer1)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	counts := loadsOf(t, env, 1)
	assert.Equal(t, map[string]int{"r1-a": 3, "r1-b": 2, "r1-c": 2}, counts)
	assert.Equal(t, "r1-a", *env.reload(t, apps[0].ID).Reviewer1ID)
	assert.Equal(t, "r1-b", *env.reload(t, apps[1].ID).Reviewer1ID)
	for _, app := range apps {
		assert.Equal(t, string(workflow.StatusUnderReview), env.reload(t, app.ID).Status)
	}
	assert.Nil(t, env.reload(t, draft.ID).Reviewer1ID)

	// 再次执行不会重新分配
	n, err = svc.BulkAssign(asAdmin(), workflow.RoleReviewer1)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, counts, loadsOf(t, env, 1))

	entry, err := repository.NewReviewerRepository(env.db).FindQueueEntry("r1-a")
	require.NoError(t, err)
	assert.Equal(t, 3, entry.AssignmentCount)
	assert.NotNil(t, entry.LastAssignedAt)
}

func TestAssignmentService_BulkAssign_NoActiveReviewers(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewAssignmentService(env.deps)
	env.application(t, workflow.StatusSubmitted, "alpha")

	n, err := svc.BulkAssign(asAdmin(), workflow.RoleReviewer1)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = svc.BulkAssign(asAdmin(), workflow.RoleAdmin)
	assert.Equal(t, "INVALID_REVIEWER_ROLE", workflow.CodeOf(err))
}

// TestAssignmentService_SecondReviewers 测试第二轮只分配 R1 已评分的申请
func TestAssignmentService_SecondReviewers(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewAssignmentService(env.deps)
	seedReviewers(t, env, svc, workflow.RoleReviewer2, "r2-a", "r2-b")

	ready := env.application(t, workflow.StatusPendingSeniorReview, "ready")
	early := env.application(t, workflow.StatusUnderReview, "early")

	n, err := svc.BulkAssign(asAdmin(), workflow.RoleReviewer2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := env.reload(t, ready.ID)
	require.NotNil(t, got.Reviewer2ID)
	assert.Equal(t, "r2-a", *got.Reviewer2ID)
	assert.Equal(t, string(workflow.StatusPendingSeniorReview), got.Status)
	assert.Nil(t, env.reload(t, early.ID).Reviewer2ID)
}

// TestAssignmentService_ToggleReviewerActive 测试停用的评审人不再参与分配但保留已有分配
func TestAssignmentService_ToggleReviewerActive(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewAssignmentService(env.deps)
	seedReviewers(t, env, svc, workflow.RoleReviewer1, "r1-a", "r1-b")

	first := env.application(t, workflow.StatusSubmitted, "first")
	_, err := svc.BulkAssign(asAdmin(), workflow.RoleReviewer1)
	require.NoError(t, err)
	require.Equal(t, "r1-a", *env.reload(t, first.ID).Reviewer1ID)

	require.NoError(t, svc.ToggleReviewerActive(asAdmin(), "r1-a", false))
	for i := 0; i < 3; i++ {
		env.application(t, workflow.StatusSubmitted, fmt.Sprintf("later-%d", i))
	}
	n, err := svc.BulkAssign(asAdmin(), workflow.RoleReviewer1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, map[string]int{"r1-a": 1, "r1-b": 3}, loadsOf(t, env, 1))
	assert.Equal(t, "r1-a", *env.reload(t, first.ID).Reviewer1ID)

	history, err := repository.NewStateHistoryRepository(env.db).FindByResource(model.ResourceReviewer, "r1-a")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "active", history[0].FromState)
	assert.Equal(t, "inactive", history[0].ToState)

	err = svc.ToggleReviewerActive(asAdmin(), "nobody", true)
	assert.Equal(t, workflow.KindNotFound, workflow.KindOf(err))
	assert.Equal(t, "REVIEWER_NOT_FOUND", workflow.CodeOf(err))
}

// TestAssignmentService_Redistribute 测试重新分配后负载差不超过 1
func TestAssignmentService_Redistribute(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewAssignmentService(env.deps)
	seedReviewers(t, env, svc, workflow.RoleReviewer1, "r1-a", "r1-b", "r1-c", "r1-d")

	for i := 0; i < 11; i++ {
		app := env.application(t, workflow.StatusUnderReview, fmt.Sprintf("biz-%d", i))
		env.assign(t, app.ID, 1, "r1-a")
	}
	// 已完成第一轮的申请不受影响
	scored := env.application(t, workflow.StatusPendingSeniorReview, "scored")
	env.assign(t, scored.ID, 1, "r1-a")
	require.NoError(t, svc.ToggleReviewerActive(asAdmin(), "r1-d", false))

	result, err := svc.Redistribute(asAdmin(), workflow.RoleReviewer1)
	require.NoError(t, err)
	assert.EqualValues(t, 11, result.Cleared)
	assert.Equal(t, 11, result.Assigned)

	// 11 份按 4/4/3 均分, 保留的已评分申请另计
	counts := loadsOf(t, env, 1)
	assert.Equal(t, map[string]int{"r1-a": 5, "r1-b": 4, "r1-c": 3}, counts)
	assert.Equal(t, "r1-a", *env.reload(t, scored.ID).Reviewer1ID)
}

// TestAssignmentService_Redistribute_IgnoresRetainedLoad 已评分的保留分配不影响重新均分
func TestAssignmentService_Redistribute_IgnoresRetainedLoad(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewAssignmentService(env.deps)
	seedReviewers(t, env, svc, workflow.RoleReviewer1, "r1-a", "r1-b")

	for i := 0; i < 4; i++ {
		app := env.application(t, workflow.StatusPendingSeniorReview, fmt.Sprintf("scored-%d", i))
		env.assign(t, app.ID, 1, "r1-a")
	}
	var pending []uint
	for i := 0; i < 4; i++ {
		pending = append(pending, env.application(t, workflow.StatusSubmitted, fmt.Sprintf("new-%d", i)).ID)
	}

	result, err := svc.Redistribute(asAdmin(), workflow.RoleReviewer1)
	require.NoError(t, err)
	assert.Zero(t, result.Cleared)
	assert.Equal(t, 4, result.Assigned)

	split := make(map[string]int)
	for _, id := range pending {
		app := env.reload(t, id)
		require.NotNil(t, app.Reviewer1ID)
		split[*app.Reviewer1ID]++
	}
	assert.Equal(t, map[string]int{"r1-a": 2, "r1-b": 2}, split)
	assert.Zero(t, spread(split, "r1-a", "r1-b"))
	assert.Equal(t, map[string]int{"r1-a": 6, "r1-b": 2}, loadsOf(t, env, 1))
}

// TestAssignmentService_Reassign 测试管理员手动改派
func TestAssignmentService_Reassign(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewAssignmentService(env.deps)
	seedReviewers(t, env, svc, workflow.RoleReviewer1, "r1-a", "r1-b")
	env.profile(t, "r2-a", workflow.RoleReviewer2, "Ken", "Otieno", "ken@bire.org")

	app := env.application(t, workflow.StatusSubmitted, "alpha")
	require.NoError(t, svc.Reassign(asAdmin(), app.ID, workflow.RoleReviewer1, "r1-b"))
	got := env.reload(t, app.ID)
	assert.Equal(t, "r1-b", *got.Reviewer1ID)
	assert.Equal(t, string(workflow.StatusUnderReview), got.Status)

	err := svc.Reassign(asAdmin(), app.ID, workflow.RoleReviewer1, "r2-a")
	assert.Equal(t, "ROLE_MISMATCH", workflow.CodeOf(err))

	err = svc.Reassign(asAdmin(), app.ID, workflow.RoleReviewer1, "ghost")
	assert.Equal(t, "REVIEWER_NOT_FOUND", workflow.CodeOf(err))

	err = svc.Reassign(asAdmin(), app.ID, workflow.RoleReviewer2, "r2-a")
	assert.Equal(t, "INVALID_STATE", workflow.CodeOf(err))

	err = svc.Reassign(asAdmin(), 404, workflow.RoleReviewer1, "r1-a")
	assert.Equal(t, "APPLICATION_NOT_FOUND", workflow.CodeOf(err))
}

func TestAssignmentService_Stats(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewAssignmentService(env.deps)
	seedReviewers(t, env, svc, workflow.RoleReviewer1, "r1-a", "r1-b")
	for i := 0; i < 3; i++ {
		env.application(t, workflow.StatusSubmitted, fmt.Sprintf("biz-%d", i))
	}
	_, err := svc.BulkAssign(asAdmin(), workflow.RoleReviewer1)
	require.NoError(t, err)
	env.application(t, workflow.StatusSubmitted, "late")

	stats, err := svc.Stats(as("ovs-1", workflow.RoleOversight))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FirstReview.Reviewers)
	assert.Equal(t, 2, stats.FirstReview.ActiveReviewers)
	assert.Equal(t, 3, stats.FirstReview.Assigned)
	assert.Equal(t, 1, stats.FirstReview.AwaitingReviewer)
	require.Len(t, stats.FirstReview.PerReviewer, 2)
	assert.Equal(t, "Rev r1-a", stats.FirstReview.PerReviewer[0].Name)
	assert.Equal(t, 2, stats.FirstReview.PerReviewer[0].Assigned)
	assert.Zero(t, stats.SecondReview.Reviewers)
}
