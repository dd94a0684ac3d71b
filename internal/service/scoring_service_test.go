package service_test

import (
	"testing"

	"github.com/IdrisKulubi/HIH-sub002/internal/integration"
	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reviewed 创建一个已分配 R1 与 R2 的申请并依次提交两轮评分
func reviewed(t *testing.T, env *testEnv, svc service.ScoringService, name string, r1, r2 float64) *model.ApplicationModel {
	app := env.application(t, workflow.StatusUnderReview, name)
	env.assign(t, app.ID, 1, "r1-a")
	_, err := svc.SubmitReview(as("r1-a", workflow.RoleReviewer1), &service.ReviewRequest{
		ApplicationID: app.ID, Role: workflow.RoleReviewer1, Score: r1, Notes: "solid plan",
	})
	require.NoError(t, err)
	env.assign(t, app.ID, 2, "r2-a")
	_, err = svc.SubmitReview(as("r2-a", workflow.RoleReviewer2), &service.ReviewRequest{
		ApplicationID: app.ID, Role: workflow.RoleReviewer2, Score: r2, Notes: "agree",
	})
	require.NoError(t, err)
	return app
}

// TestScoringService_TwoTier 测试两轮评分后计算总分并进入评分阶段
func TestScoringService_TwoTier(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewScoringService(env.deps)
	env.profile(t, "r1-a", workflow.RoleReviewer1, "Jane", "Doe", "jane@bire.org")
	env.profile(t, "r2-a", workflow.RoleReviewer2, "Ken", "Otieno", "ken@bire.org")

	app := env.application(t, workflow.StatusSubmitted, "alpha")
	env.assign(t, app.ID, 1, "r1-a")

	result, err := svc.SubmitReview(as("r1-a", workflow.RoleReviewer1), &service.ReviewRequest{
		ApplicationID: app.ID, Role: workflow.RoleReviewer1, Score: 80, Notes: "strong traction",
	})
	require.NoError(t, err)
	assert.Equal(t, 80.0, *result.Reviewer1Score)
	assert.Nil(t, result.TotalScore)
	assert.Equal(t, string(workflow.StatusPendingSeniorReview), env.reload(t, app.ID).Status)

	// 第二轮需要分配
	_, err = svc.SubmitReview(as("r2-a", workflow.RoleReviewer2), &service.ReviewRequest{
		ApplicationID: app.ID, Role: workflow.RoleReviewer2, Score: 64,
	})
	assert.Equal(t, "NOT_ASSIGNED_REVIEWER", workflow.CodeOf(err))

	env.assign(t, app.ID, 2, "r2-a")
	result, err = svc.SubmitReview(as("r2-a", workflow.RoleReviewer2), &service.ReviewRequest{
		ApplicationID: app.ID, Role: workflow.RoleReviewer2, Score: 64, Notes: "some gaps",
	})
	require.NoError(t, err)
	assert.Equal(t, 72.0, *result.TotalScore)
	assert.Equal(t, 16.0, *result.ScoreDisparity)
	assert.True(t, result.DisparityFlagged)
	assert.True(t, result.IsEligible)
	assert.Equal(t, "r2-a", result.Reviewer2By)
	assert.Equal(t, string(workflow.StatusScoringPhase), env.reload(t, app.ID).Status)

	dd := env.dd(t, app.ID)
	assert.Equal(t, string(workflow.DDPending), dd.DDStatus)
	assert.Equal(t, 72.0, *dd.AggregateScore)

	_, err = svc.SubmitReview(as("r2-a", workflow.RoleReviewer2), &service.ReviewRequest{
		ApplicationID: app.ID, Role: workflow.RoleReviewer2, Score: 70,
	})
	assert.Equal(t, workflow.KindConflict, workflow.KindOf(err))

	assert.Contains(t, env.events.types(), integration.EventReviewSubmitted)
	assert.Contains(t, env.events.types(), integration.EventDDCreated)
}

// TestScoringService_BelowThreshold 测试总分低于分数线时申请被拒绝且不创建尽调
func TestScoringService_BelowThreshold(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewScoringService(env.deps)

	app := reviewed(t, env, svc, "beta", 50, 55)
	result := env.result(t, app.ID)
	assert.Equal(t, 52.5, *result.TotalScore)
	assert.False(t, result.IsEligible)
	assert.False(t, result.DisparityFlagged)
	assert.Equal(t, string(workflow.StatusRejected), env.reload(t, app.ID).Status)

	_, err := service.NewDueDiligenceService(env.deps).Get(asAdmin(), app.ID)
	assert.Equal(t, "DD_NOT_FOUND", workflow.CodeOf(err))
}

// TestScoringService_Validation 测试评分校验与角色限制
func TestScoringService_Validation(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewScoringService(env.deps)
	app := env.application(t, workflow.StatusUnderReview, "gamma")
	env.assign(t, app.ID, 1, "r1-a")
	r1 := as("r1-a", workflow.RoleReviewer1)

	_, err := svc.SubmitReview(r1, &service.ReviewRequest{ApplicationID: app.ID, Role: workflow.RoleReviewer1, Score: 101})
	assert.Equal(t, workflow.KindValidation, workflow.KindOf(err))

	_, err = svc.SubmitReview(r1, &service.ReviewRequest{ApplicationID: app.ID, Role: workflow.RoleReviewer2, Score: 70})
	assert.Equal(t, workflow.KindAuthorization, workflow.KindOf(err))

	approved := workflow.DecisionApproved
	_, err = svc.SubmitReview(r1, &service.ReviewRequest{ApplicationID: app.ID, Role: workflow.RoleReviewer1, Score: 70, Decision: &approved})
	assert.Equal(t, "OVERRIDE_ADMIN_ONLY", workflow.CodeOf(err))

	_, err = svc.SubmitReview(asAdmin(), &service.ReviewRequest{ApplicationID: app.ID, Role: workflow.RoleReviewer1, Score: 70, Decision: &approved})
	assert.Equal(t, "DECISION_NOT_ALLOWED", workflow.CodeOf(err))

	_, err = svc.SubmitReview(as("r1-b", workflow.RoleReviewer1), &service.ReviewRequest{ApplicationID: app.ID, Role: workflow.RoleReviewer1, Score: 70})
	assert.Equal(t, "NOT_ASSIGNED_REVIEWER", workflow.CodeOf(err))

	_, err = svc.SubmitReview(asAdmin(), &service.ReviewRequest{ApplicationID: app.ID, Role: workflow.RoleReviewer2, Score: 70})
	assert.Equal(t, "INVALID_STATE", workflow.CodeOf(err))

	draft := env.application(t, workflow.StatusDraft, "draft")
	_, err = svc.SubmitReview(asAdmin(), &service.ReviewRequest{ApplicationID: draft.ID, Role: workflow.RoleReviewer1, Score: 70})
	assert.Equal(t, "INVALID_STATE", workflow.CodeOf(err))
}

// TestScoringService_AdminDecisionOnSecondReview 测试管理员提交第二轮时附带覆盖决定
func TestScoringService_AdminDecisionOnSecondReview(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewScoringService(env.deps)
	app := env.application(t, workflow.StatusUnderReview, "delta")
	env.assign(t, app.ID, 1, "r1-a")
	_, err := svc.SubmitReview(as("r1-a", workflow.RoleReviewer1), &service.ReviewRequest{
		ApplicationID: app.ID, Role: workflow.RoleReviewer1, Score: 40,
	})
	require.NoError(t, err)

	approved := workflow.DecisionApproved
	result, err := svc.SubmitReview(asAdmin(), &service.ReviewRequest{
		ApplicationID: app.ID, Role: workflow.RoleReviewer2, Score: 50, Decision: &approved,
	})
	require.NoError(t, err)
	assert.True(t, result.IsEligible)
	assert.True(t, result.OverrodeReviewer1)
	assert.Equal(t, "approved", result.OverrideDecision)
	assert.Equal(t, string(workflow.StatusScoringPhase), env.reload(t, app.ID).Status)

	// 覆盖决定不会提升分数, 不进入尽调
	_, err = service.NewDueDiligenceService(env.deps).Get(asAdmin(), app.ID)
	assert.Equal(t, workflow.KindNotFound, workflow.KindOf(err))
}

// TestScoringService_OverrideDecision 测试管理员在评分完成后覆盖结果
func TestScoringService_OverrideDecision(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewScoringService(env.deps)
	app := reviewed(t, env, svc, "epsilon", 30, 40)
	require.Equal(t, string(workflow.StatusRejected), env.reload(t, app.ID).Status)

	_, err := svc.OverrideDecision(as("r2-a", workflow.RoleReviewer2), app.ID, workflow.DecisionApproved, "")
	assert.Equal(t, workflow.KindAuthorization, workflow.KindOf(err))

	result, err := svc.OverrideDecision(asAdmin(), app.ID, workflow.DecisionApproved, "community impact")
	require.NoError(t, err)
	assert.True(t, result.IsEligible)
	assert.Equal(t, "admin-1", result.OverrideBy)
	assert.Equal(t, 35.0, *result.TotalScore)
	assert.Equal(t, string(workflow.StatusScoringPhase), env.reload(t, app.ID).Status)

	pending := env.application(t, workflow.StatusPendingSeniorReview, "zeta")
	_, err = svc.OverrideDecision(asAdmin(), pending.ID, workflow.DecisionRejected, "")
	assert.Equal(t, "NOT_FINAL", workflow.CodeOf(err))

	_, err = svc.OverrideDecision(asAdmin(), app.ID, workflow.Decision("maybe"), "")
	assert.Equal(t, "INVALID_DECISION", workflow.CodeOf(err))
}

// TestScoringService_Lock 测试终态申请的评分锁定与解锁
func TestScoringService_Lock(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewScoringService(env.deps)
	app := reviewed(t, env, svc, "eta", 20, 30)

	open := reviewed(t, env, svc, "theta", 80, 80)
	assert.Equal(t, "NOT_TERMINAL", workflow.CodeOf(svc.Lock(asAdmin(), open.ID, "final")))

	assert.Equal(t, workflow.KindAuthorization, workflow.KindOf(svc.Lock(as("r2-a", workflow.RoleReviewer2), app.ID, "final")))
	require.NoError(t, svc.Lock(asAdmin(), app.ID, "board decision"))
	assert.Equal(t, "ALREADY_LOCKED", workflow.CodeOf(svc.Lock(asAdmin(), app.ID, "again")))

	result := env.result(t, app.ID)
	assert.True(t, result.IsLocked)
	assert.Equal(t, "board decision", result.LockReason)

	_, err := svc.SubmitReview(asAdmin(), &service.ReviewRequest{ApplicationID: app.ID, Role: workflow.RoleReviewer1, Score: 90})
	assert.ErrorIs(t, err, workflow.ErrLocked)
	_, err = svc.OverrideDecision(asAdmin(), app.ID, workflow.DecisionApproved, "")
	assert.ErrorIs(t, err, workflow.ErrLocked)

	require.NoError(t, svc.Unlock(asAdmin(), app.ID))
	assert.Equal(t, "NOT_LOCKED", workflow.CodeOf(svc.Unlock(asAdmin(), app.ID)))
	result = env.result(t, app.ID)
	assert.False(t, result.IsLocked)
	assert.Nil(t, result.LockedAt)
	assert.Contains(t, env.events.types(), integration.EventScoresLocked)
}

// TestScoringService_Views 测试盲评视图与对比视图的可见性
func TestScoringService_Views(t *testing.T) {
	env := newTestEnv(t)
	svc := service.NewScoringService(env.deps)
	env.profile(t, "r1-a", workflow.RoleReviewer1, "Jane", "Doe", "jane@bire.org")
	env.profile(t, "r2-a", workflow.RoleReviewer2, "Ken", "Otieno", "ken@bire.org")

	app := env.application(t, workflow.StatusUnderReview, "iota")
	env.assign(t, app.ID, 1, "r1-a")
	_, err := svc.SubmitReview(as("r1-a", workflow.RoleReviewer1), &service.ReviewRequest{
		ApplicationID: app.ID, Role: workflow.RoleReviewer1, Score: 90, Notes: "excellent",
	})
	require.NoError(t, err)
	env.assign(t, app.ID, 2, "r2-a")

	r2 := as("r2-a", workflow.RoleReviewer2)
	blind, err := svc.BlindView(r2, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "iota", blind.Business.Name)
	assert.Nil(t, blind.Reviewer2Score)

	_, err = svc.BlindView(as("r2-b", workflow.RoleReviewer2), app.ID)
	assert.Equal(t, "NOT_ASSIGNED_REVIEWER", workflow.CodeOf(err))
	_, err = svc.BlindView(as("r1-a", workflow.RoleReviewer1), app.ID)
	assert.Equal(t, workflow.KindAuthorization, workflow.KindOf(err))

	_, err = svc.ComparisonView(r2, app.ID)
	assert.Equal(t, "NOT_FINAL", workflow.CodeOf(err))
	partial, err := svc.ComparisonView(asAdmin(), app.ID)
	require.NoError(t, err)
	assert.Nil(t, partial.Reviewer2.Score)

	_, err = svc.SubmitReview(r2, &service.ReviewRequest{
		ApplicationID: app.ID, Role: workflow.RoleReviewer2, Score: 70, Notes: "fine",
	})
	require.NoError(t, err)

	cmp, err := svc.ComparisonView(r2, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", cmp.Reviewer1.Name)
	assert.Equal(t, 90.0, *cmp.Reviewer1.Score)
	assert.Equal(t, "excellent", cmp.Reviewer1.Notes)
	assert.Equal(t, "Ken Otieno", cmp.Reviewer2.Name)
	assert.Equal(t, 80.0, *cmp.TotalScore)
	assert.True(t, cmp.DisparityFlagged)

	// 评分完成后其他第二轮评审人仍不可见, 监督人员可见
	_, err = svc.ComparisonView(as("r2-b", workflow.RoleReviewer2), app.ID)
	assert.Equal(t, "NOT_ASSIGNED_REVIEWER", workflow.CodeOf(err))
	_, err = svc.ComparisonView(as("ovs-1", workflow.RoleOversight), app.ID)
	assert.NoError(t, err)

	_, err = svc.ComparisonView(as("r1-a", workflow.RoleReviewer1), app.ID)
	assert.Equal(t, workflow.KindAuthorization, workflow.KindOf(err))
}
