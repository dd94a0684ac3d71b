package service

import (
	"context"
	"errors"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/integration"
	"github.com/IdrisKulubi/HIH-sub002/internal/metrics"
	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReviewRequest 评审提交请求
// Decision 仅管理员可在第二轮提交时给出
type ReviewRequest struct {
	ApplicationID uint               `json:"application_id"`
	Role          workflow.Role      `json:"role" binding:"required"`
	Score         float64            `json:"score"`
	Notes         string             `json:"notes"`
	Decision      *workflow.Decision `json:"decision,omitempty"`
}

// BlindReview 第二轮评审录入视图, 不包含第一轮的分数和意见
type BlindReview struct {
	ApplicationID  uint                 `json:"application_id"`
	Status         string               `json:"status"`
	Track          string               `json:"track"`
	Business       *model.BusinessModel `json:"business,omitempty"`
	Reviewer2ID    *string              `json:"reviewer2_id,omitempty"`
	Reviewer2Score *float64             `json:"reviewer2_score,omitempty"`
	Reviewer2Notes string               `json:"reviewer2_notes,omitempty"`
	IsLocked       bool                 `json:"is_locked"`
}

// ReviewScore 单轮评审
type ReviewScore struct {
	ReviewerID  string     `json:"reviewer_id"`
	Name        string     `json:"name,omitempty"`
	Score       *float64   `json:"score,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// ScoreComparison 两轮评分对比
type ScoreComparison struct {
	ApplicationID    uint         `json:"application_id"`
	Status           string       `json:"status"`
	Reviewer1        *ReviewScore `json:"reviewer1"`
	Reviewer2        *ReviewScore `json:"reviewer2"`
	TotalScore       *float64     `json:"total_score,omitempty"`
	IsEligible       bool         `json:"is_eligible"`
	ScoreDisparity   *float64     `json:"score_disparity,omitempty"`
	DisparityFlagged bool         `json:"disparity_flagged"`
	Overridden       bool         `json:"overridden"`
	OverrideDecision string       `json:"override_decision,omitempty"`
	IsLocked         bool         `json:"is_locked"`
}

// ScoringService 两级评分服务
type ScoringService interface {
	SubmitReview(ctx context.Context, req *ReviewRequest) (*model.EligibilityResultModel, error)
	OverrideDecision(ctx context.Context, applicationID uint, decision workflow.Decision, notes string) (*model.EligibilityResultModel, error)
	Lock(ctx context.Context, applicationID uint, reason string) error
	Unlock(ctx context.Context, applicationID uint) error
	BlindView(ctx context.Context, applicationID uint) (*BlindReview, error)
	ComparisonView(ctx context.Context, applicationID uint) (*ScoreComparison, error)
}

type scoringService struct {
	base
	apps      repository.ApplicationRepository
	results   repository.EligibilityRepository
	reviewers repository.ReviewerRepository
}

// NewScoringService 创建评分服务
func NewScoringService(deps Deps) ScoringService {
	return &scoringService{
		base:      newBase(deps),
		apps:      repository.NewApplicationRepository(deps.DB),
		results:   repository.NewEligibilityRepository(deps.DB),
		reviewers: repository.NewReviewerRepository(deps.DB),
	}
}

// findResult 评分记录不存在时返回 nil
func findResult(repo repository.EligibilityRepository, applicationID uint) (*model.EligibilityResultModel, error) {
	result, err := repo.FindByApplicationID(applicationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return result, err
}

func assignedTo(reviewerID *string, actor *workflow.Actor) bool {
	return reviewerID != nil && *reviewerID == actor.ID
}

// SubmitReview 提交 R1 或 R2 评分
func (s *scoringService) SubmitReview(ctx context.Context, req *ReviewRequest) (*model.EligibilityResultModel, error) {
	tier, err := tierOf(req.Role)
	if err != nil {
		return nil, err
	}
	op := workflow.OpSubmitFirstReview
	if tier == workflow.TierSecond {
		op = workflow.OpSubmitSecondReview
	}
	actor, err := s.authorize(ctx, op)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && actor.Role != req.Role {
		return nil, workflow.Unauthorized("ROLE_MISMATCH", "role %s may not submit a %s review", actor.Role, req.Role)
	}
	if req.Decision != nil {
		if !actor.IsAdmin() {
			return nil, workflow.Unauthorized("OVERRIDE_ADMIN_ONLY", "only an administrator may provide a decision")
		}
		if tier != workflow.TierSecond {
			return nil, workflow.Invalid("DECISION_NOT_ALLOWED", "a decision can only accompany the second review")
		}
		if !req.Decision.Valid() {
			return nil, workflow.Invalid("INVALID_DECISION", "decision must be approved or rejected")
		}
	}
	settings := s.policy.Settings()
	if err := workflow.ValidateScore(req.Score, settings.MaxScore); err != nil {
		return nil, err
	}

	var result *model.EligibilityResultModel
	err = s.run(ctx, op, actor, func(cs *changeSet) error {
		app, err := cs.loadActiveApplication(req.ApplicationID)
		if err != nil {
			return err
		}
		existing, err := findResult(cs.results, app.ID)
		if err != nil {
			return err
		}
		if existing != nil && existing.IsLocked {
			return workflow.ErrLocked
		}

		if tier == workflow.TierFirst {
			err = s.scoreFirst(cs, app, existing, req)
		} else {
			err = s.scoreSecond(cs, app, existing, req)
		}
		if err != nil {
			return err
		}

		if result, err = cs.results.FindByApplicationID(app.ID); err != nil {
			return err
		}
		cs.emit(integration.EventReviewSubmitted, app.ID, map[string]interface{}{"role": req.Role})
		cs.onCommit(func() { metrics.RecordReview(string(req.Role)) })
		return cs.audit(op, model.ResourceApplication, resourceID(app.ID), map[string]interface{}{
			"role":     req.Role,
			"score":    req.Score,
			"decision": req.Decision,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"application_id": req.ApplicationID,
		"role":           req.Role,
		"reviewer":       actor.ID,
	}).Info("review submitted")
	return result, nil
}

// scoreFirst 写入第一轮评分, 申请进入 pending_senior_review
func (s *scoringService) scoreFirst(cs *changeSet, app *model.ApplicationModel, existing *model.EligibilityResultModel, req *ReviewRequest) error {
	if !workflow.CanScoreFirstReview(workflow.ApplicationStatus(app.Status)) {
		return workflow.Conflict("INVALID_STATE", "application %d in status %s is not open for first review", app.ID, app.Status)
	}
	if !cs.actor.IsAdmin() && !assignedTo(app.Reviewer1ID, cs.actor) {
		return workflow.Unauthorized("NOT_ASSIGNED_REVIEWER", "application %d is not assigned to you", app.ID)
	}

	score, at := req.Score, cs.now
	if existing == nil {
		result := &model.EligibilityResultModel{
			ApplicationID:  app.ID,
			Reviewer1Score: &score,
			Reviewer1Notes: req.Notes,
			Reviewer1At:    &at,
			Reviewer1By:    cs.actorID(),
			CreatedAt:      cs.now,
			UpdatedAt:      cs.now,
		}
		if err := cs.results.Create(result); err != nil {
			return err
		}
	} else {
		ok, err := cs.results.UpdateWhereLocked(existing.ID, false, map[string]interface{}{
			"reviewer1_score": score,
			"reviewer1_notes": req.Notes,
			"reviewer1_at":    cs.now,
			"reviewer1_by":    cs.actorID(),
			"updated_at":      cs.now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return workflow.ErrLocked
		}
	}

	if app.Status == string(workflow.StatusSubmitted) {
		if err := cs.moveApplication(app, workflow.StatusUnderReview, "first review started", false); err != nil {
			return err
		}
	}
	return cs.moveApplication(app, workflow.StatusPendingSeniorReview, "first review submitted", false)
}

// scoreSecond 写入第二轮评分并计算总分与资格
func (s *scoringService) scoreSecond(cs *changeSet, app *model.ApplicationModel, existing *model.EligibilityResultModel, req *ReviewRequest) error {
	if !workflow.CanScoreSecondReview(workflow.ApplicationStatus(app.Status)) {
		return workflow.Conflict("INVALID_STATE", "application %d in status %s is not open for second review", app.ID, app.Status)
	}
	if existing == nil || existing.Reviewer1Score == nil {
		return workflow.Conflict("FIRST_REVIEW_MISSING", "application %d has no first review score", app.ID)
	}
	if existing.Reviewer2Score != nil {
		return workflow.Conflict("ALREADY_SCORED", "application %d already has a second review score", app.ID)
	}
	if !cs.actor.IsAdmin() && !assignedTo(app.Reviewer2ID, cs.actor) {
		return workflow.Unauthorized("NOT_ASSIGNED_REVIEWER", "application %d is not assigned to you", app.ID)
	}

	out := workflow.Evaluate(*existing.Reviewer1Score, req.Score, req.Decision, cs.settings)
	updates := map[string]interface{}{
		"reviewer2_score":   req.Score,
		"reviewer2_notes":   req.Notes,
		"reviewer2_at":      cs.now,
		"reviewer2_by":      cs.actorID(),
		"total_score":       out.TotalScore,
		"is_eligible":       out.IsEligible,
		"score_disparity":   out.Disparity,
		"disparity_flagged": out.DisparityFlagged,
		"updated_at":        cs.now,
	}
	if req.Decision != nil {
		updates["overrode_reviewer1"] = true
		updates["override_decision"] = string(*req.Decision)
		updates["override_by"] = cs.actorID()
	}
	ok, err := cs.results.UpdateWhereLocked(existing.ID, false, updates)
	if err != nil {
		return err
	}
	if !ok {
		return workflow.ErrLocked
	}

	if out.DisparityFlagged {
		s.logger.WithFields(logrus.Fields{
			"application_id": app.ID,
			"disparity":      out.Disparity,
		}).Warn("score disparity above threshold")
	}

	if out.IsEligible {
		if err := cs.moveApplication(app, workflow.StatusScoringPhase, "second review passed", false); err != nil {
			return err
		}
	} else if err := cs.moveApplication(app, workflow.StatusRejected, "second review below threshold", false); err != nil {
		return err
	}

	if out.QualifiesForDD {
		total := out.TotalScore
		if _, err := cs.openDueDiligence(app.ID, &total, "aggregate score reached due diligence threshold"); err != nil {
			return err
		}
	}
	return nil
}

// OverrideDecision 管理员对已完成两轮评分的申请给出覆盖决定
func (s *scoringService) OverrideDecision(ctx context.Context, applicationID uint, decision workflow.Decision, notes string) (*model.EligibilityResultModel, error) {
	actor, err := s.authorize(ctx, workflow.OpOverrideDecision)
	if err != nil {
		return nil, err
	}
	if !decision.Valid() {
		return nil, workflow.Invalid("INVALID_DECISION", "decision must be approved or rejected")
	}

	var result *model.EligibilityResultModel
	err = s.run(ctx, workflow.OpOverrideDecision, actor, func(cs *changeSet) error {
		app, err := cs.loadActiveApplication(applicationID)
		if err != nil {
			return err
		}
		existing, err := findResult(cs.results, app.ID)
		if err != nil {
			return err
		}
		if existing == nil || !existing.IsFinal() {
			return workflow.Conflict("NOT_FINAL", "application %d has not completed both reviews", app.ID)
		}
		if existing.IsLocked {
			return workflow.ErrLocked
		}

		out := workflow.Evaluate(*existing.Reviewer1Score, *existing.Reviewer2Score, &decision, cs.settings)
		ok, err := cs.results.UpdateWhereLocked(existing.ID, false, map[string]interface{}{
			"overrode_reviewer1": true,
			"override_decision":  string(decision),
			"override_by":        cs.actorID(),
			"is_eligible":        out.IsEligible,
			"updated_at":         cs.now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return workflow.ErrLocked
		}

		// 仅在评分结果决定的两个状态之间切换
		current := workflow.ApplicationStatus(app.Status)
		if current == workflow.StatusScoringPhase || current == workflow.StatusRejected {
			target := workflow.StatusRejected
			if out.IsEligible {
				target = workflow.StatusScoringPhase
			}
			if target != current {
				reason := notes
				if reason == "" {
					reason = "administrator override: " + string(decision)
				}
				if err := cs.moveApplication(app, target, reason, !workflow.CanTransition(current, target)); err != nil {
					return err
				}
			}
		}

		if out.QualifiesForDD {
			total := out.TotalScore
			if _, err := cs.openDueDiligence(app.ID, &total, "administrator override"); err != nil {
				return err
			}
		}

		if result, err = cs.results.FindByApplicationID(app.ID); err != nil {
			return err
		}
		return cs.audit(workflow.OpOverrideDecision, model.ResourceApplication, resourceID(app.ID), map[string]interface{}{
			"decision": decision,
			"notes":    notes,
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Lock 锁定终态申请的评分
func (s *scoringService) Lock(ctx context.Context, applicationID uint, reason string) error {
	actor, err := s.authorize(ctx, workflow.OpLockScores)
	if err != nil {
		return err
	}
	return s.run(ctx, workflow.OpLockScores, actor, func(cs *changeSet) error {
		app, err := cs.loadApplication(applicationID)
		if err != nil {
			return err
		}
		status := workflow.ApplicationStatus(app.Status)
		if status != workflow.StatusApproved && status != workflow.StatusRejected {
			return workflow.Conflict("NOT_TERMINAL", "application %d must be approved or rejected before locking", app.ID)
		}
		existing, err := findResult(cs.results, app.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return workflow.NotFound("RESULT_NOT_FOUND", "application %d has no review scores", app.ID)
		}
		ok, err := cs.results.UpdateWhereLocked(existing.ID, false, map[string]interface{}{
			"is_locked":   true,
			"locked_by":   cs.actorID(),
			"locked_at":   cs.now,
			"lock_reason": reason,
			"updated_at":  cs.now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return workflow.Conflict("ALREADY_LOCKED", "application %d scores are already locked", app.ID)
		}
		cs.emit(integration.EventScoresLocked, app.ID, map[string]interface{}{"locked": true, "reason": reason})
		return cs.audit(workflow.OpLockScores, model.ResourceApplication, resourceID(app.ID), map[string]interface{}{"reason": reason})
	})
}

// Unlock 解除评分锁定
func (s *scoringService) Unlock(ctx context.Context, applicationID uint) error {
	actor, err := s.authorize(ctx, workflow.OpUnlockScores)
	if err != nil {
		return err
	}
	return s.run(ctx, workflow.OpUnlockScores, actor, func(cs *changeSet) error {
		app, err := cs.loadApplication(applicationID)
		if err != nil {
			return err
		}
		existing, err := findResult(cs.results, app.ID)
		if err != nil {
			return err
		}
		if existing == nil {
			return workflow.NotFound("RESULT_NOT_FOUND", "application %d has no review scores", app.ID)
		}
		ok, err := cs.results.UpdateWhereLocked(existing.ID, true, map[string]interface{}{
			"is_locked":   false,
			"locked_by":   "",
			"locked_at":   nil,
			"lock_reason": "",
			"updated_at":  cs.now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return workflow.Conflict("NOT_LOCKED", "application %d scores are not locked", app.ID)
		}
		cs.emit(integration.EventScoresLocked, app.ID, map[string]interface{}{"locked": false})
		return cs.audit(workflow.OpUnlockScores, model.ResourceApplication, resourceID(app.ID), nil)
	})
}

// BlindView 第二轮评审录入视图
func (s *scoringService) BlindView(ctx context.Context, applicationID uint) (*BlindReview, error) {
	actor, err := s.authorize(ctx, workflow.OpSubmitSecondReview)
	if err != nil {
		return nil, err
	}
	detail, err := s.apps.FindDetail(applicationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.NotFound("APPLICATION_NOT_FOUND", "application %d not found", applicationID)
	}
	if err != nil {
		return nil, s.internal(ctx, workflow.OpSubmitSecondReview, err)
	}
	app := detail.Application
	if !actor.IsAdmin() && !assignedTo(app.Reviewer2ID, actor) {
		return nil, workflow.Unauthorized("NOT_ASSIGNED_REVIEWER", "application %d is not assigned to you", applicationID)
	}

	view := &BlindReview{
		ApplicationID: app.ID,
		Status:        app.Status,
		Track:         app.Track,
		Business:      detail.Business,
		Reviewer2ID:   app.Reviewer2ID,
	}
	result, err := findResult(s.results, app.ID)
	if err != nil {
		return nil, s.internal(ctx, workflow.OpSubmitSecondReview, err)
	}
	if result != nil {
		view.Reviewer2Score = result.Reviewer2Score
		view.Reviewer2Notes = result.Reviewer2Notes
		view.IsLocked = result.IsLocked
	}
	return view, nil
}

// ComparisonView 两轮评分对比, 评分完成前只有管理员可见
func (s *scoringService) ComparisonView(ctx context.Context, applicationID uint) (*ScoreComparison, error) {
	actor, err := s.authorize(ctx, workflow.OpViewScoreComparison)
	if err != nil {
		return nil, err
	}
	app, err := s.apps.FindByID(applicationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.NotFound("APPLICATION_NOT_FOUND", "application %d not found", applicationID)
	}
	if err != nil {
		return nil, s.internal(ctx, workflow.OpViewScoreComparison, err)
	}
	// 第二轮评审人只能查看分配给自己的申请
	if actor.Role == workflow.RoleReviewer2 && !assignedTo(app.Reviewer2ID, actor) {
		return nil, workflow.Unauthorized("NOT_ASSIGNED_REVIEWER", "application %d is not assigned to you", applicationID)
	}
	result, err := findResult(s.results, applicationID)
	if err != nil {
		return nil, s.internal(ctx, workflow.OpViewScoreComparison, err)
	}
	if result == nil {
		return nil, workflow.NotFound("RESULT_NOT_FOUND", "application %d has no review scores", applicationID)
	}
	if !result.IsFinal() && !actor.IsAdmin() {
		return nil, workflow.Conflict("NOT_FINAL", "scores are shown once both reviews are complete")
	}

	profiles, err := s.reviewers.FindProfiles([]string{result.Reviewer1By, result.Reviewer2By})
	if err != nil {
		return nil, s.internal(ctx, workflow.OpViewScoreComparison, err)
	}
	name := func(id string) string {
		if p, ok := profiles[id]; ok {
			return p.FullName()
		}
		return ""
	}

	return &ScoreComparison{
		ApplicationID: app.ID,
		Status:        app.Status,
		Reviewer1: &ReviewScore{
			ReviewerID:  result.Reviewer1By,
			Name:        name(result.Reviewer1By),
			Score:       result.Reviewer1Score,
			Notes:       result.Reviewer1Notes,
			SubmittedAt: result.Reviewer1At,
		},
		Reviewer2: &ReviewScore{
			ReviewerID:  result.Reviewer2By,
			Name:        name(result.Reviewer2By),
			Score:       result.Reviewer2Score,
			Notes:       result.Reviewer2Notes,
			SubmittedAt: result.Reviewer2At,
		},
		TotalScore:       result.TotalScore,
		IsEligible:       result.IsEligible,
		ScoreDisparity:   result.ScoreDisparity,
		DisparityFlagged: result.DisparityFlagged,
		Overridden:       result.OverrodeReviewer1,
		OverrideDecision: result.OverrideDecision,
		IsLocked:         result.IsLocked,
	}, nil
}
