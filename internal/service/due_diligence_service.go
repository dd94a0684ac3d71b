package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/IdrisKulubi/HIH-sub002/internal/export"
	"github.com/IdrisKulubi/HIH-sub002/internal/integration"
	"github.com/IdrisKulubi/HIH-sub002/internal/metrics"
	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PhaseScoresRequest 尽调阶段评分请求
// Scores 按评分项合并, 未提交的评分项保持原值
type PhaseScoresRequest struct {
	ApplicationID uint               `json:"application_id"`
	Phase         workflow.DDPhase   `json:"phase" binding:"required"`
	Scores        map[string]float64 `json:"scores" binding:"required"`
	Notes         string             `json:"notes"`
}

// SweepSkip 截止检查中未能转交的记录
type SweepSkip struct {
	ApplicationID uint   `json:"application_id"`
	Reason        string `json:"reason"`
}

// SweepResult 截止检查结果
type SweepResult struct {
	Checked    int          `json:"checked"`
	Reassigned int          `json:"reassigned"`
	Skipped    []*SweepSkip `json:"skipped,omitempty"`
}

// DDQueueItem 尽调队列条目
type DDQueueItem struct {
	*repository.DDRow
	ApplicantName string `json:"applicant_name"`
}

// editableDDStatuses 可以调整主评审和验证人的尽调状态
var editableDDStatuses = []string{
	string(workflow.DDPending),
	string(workflow.DDInProgress),
	string(workflow.DDQueried),
}

// validatorDDStatuses 验证人可以操作的尽调状态
var validatorDDStatuses = []string{
	string(workflow.DDAwaitingApproval),
	string(workflow.DDAutoReassigned),
}

// primaryReviewerRoles 可以担任主评审的角色
var primaryReviewerRoles = []string{
	string(workflow.RoleTechnicalReviewer),
	string(workflow.RoleReviewer1),
	string(workflow.RoleReviewer2),
}

// DueDiligenceService 尽职调查服务
type DueDiligenceService interface {
	Get(ctx context.Context, applicationID uint) (*model.DueDiligenceModel, error)
	InitiateOversightReview(ctx context.Context, applicationID uint, justification string) (*model.DueDiligenceModel, error)
	AssignPrimaryReviewer(ctx context.Context, applicationID uint, reviewerID string) error
	AssignValidator(ctx context.Context, applicationID uint, validatorID string) error
	SubmitPhaseScores(ctx context.Context, req *PhaseScoresRequest) (*model.DueDiligenceModel, error)
	SubmitValidatorAction(ctx context.Context, applicationID uint, action workflow.ValidatorAction, comments string) (*model.DueDiligenceModel, error)
	CheckApprovalDeadlines(ctx context.Context) (*SweepResult, error)
	Queue(ctx context.Context, filter repository.DDFilter) ([]*DDQueueItem, error)
	Qualified(ctx context.Context, filter repository.DDFilter) ([]*export.QualifiedRow, error)
	Recipients(ctx context.Context, statuses []string) ([]*repository.RecipientRow, error)
}

type dueDiligenceService struct {
	base
	apps      repository.ApplicationRepository
	dd        repository.DueDiligenceRepository
	reviewers repository.ReviewerRepository
}

// NewDueDiligenceService 创建尽调服务
func NewDueDiligenceService(deps Deps) DueDiligenceService {
	return &dueDiligenceService{
		base:      newBase(deps),
		apps:      repository.NewApplicationRepository(deps.DB),
		dd:        repository.NewDueDiligenceRepository(deps.DB),
		reviewers: repository.NewReviewerRepository(deps.DB),
	}
}

func newDueDiligence(applicationID uint, aggregate *float64, cs *changeSet) *model.DueDiligenceModel {
	return &model.DueDiligenceModel{
		ApplicationID:  applicationID,
		AggregateScore: aggregate,
		Phase1Status:   string(workflow.PhaseNotStarted),
		Phase2Status:   string(workflow.PhaseNotStarted),
		DDStatus:       string(workflow.DDPending),
		CreatedAt:      cs.now,
		UpdatedAt:      cs.now,
	}
}

// openDueDiligence 为申请创建 pending 尽调记录, 已存在时返回已有记录
func (cs *changeSet) openDueDiligence(applicationID uint, aggregate *float64, reason string) (*model.DueDiligenceModel, error) {
	existing, err := cs.dd.FindByApplicationID(applicationID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	record := newDueDiligence(applicationID, aggregate, cs)
	if err := cs.createDueDiligence(record, reason); err != nil {
		return nil, err
	}
	return record, nil
}

func (cs *changeSet) createDueDiligence(record *model.DueDiligenceModel, reason string) error {
	if err := cs.dd.Create(record); err != nil {
		return err
	}
	if err := cs.recordDD(record.ApplicationID, "", workflow.DDPending, reason); err != nil {
		return err
	}
	cs.emit(integration.EventDDCreated, record.ApplicationID, map[string]interface{}{
		"aggregate_score":        record.AggregateScore,
		"is_oversight_initiated": record.IsOversightInitiated,
	})
	return nil
}

// Get 获取尽调记录, 技术评审只能查看自己负责的记录
func (s *dueDiligenceService) Get(ctx context.Context, applicationID uint) (*model.DueDiligenceModel, error) {
	actor, err := s.authorize(ctx, workflow.OpViewDDQueue)
	if err != nil {
		return nil, err
	}
	record, err := s.dd.FindByApplicationID(applicationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.NotFound("DD_NOT_FOUND", "no due diligence record for application %d", applicationID)
	}
	if err != nil {
		return nil, s.internal(ctx, workflow.OpViewDDQueue, err)
	}
	if actor.Role == workflow.RoleTechnicalReviewer &&
		record.PrimaryReviewerID != actor.ID && record.ValidatorReviewerID != actor.ID {
		return nil, workflow.Unauthorized("NOT_ASSIGNED_REVIEWER", "due diligence for application %d is not assigned to you", applicationID)
	}
	return record, nil
}

// InitiateOversightReview 监督人员直接发起尽调, 不受评分线限制
func (s *dueDiligenceService) InitiateOversightReview(ctx context.Context, applicationID uint, justification string) (*model.DueDiligenceModel, error) {
	actor, err := s.authorize(ctx, workflow.OpInitiateOversight)
	if err != nil {
		return nil, err
	}
	justification = strings.TrimSpace(justification)
	if minLen := s.policy.Settings().MinCommentLength; len(justification) < minLen {
		return nil, workflow.Invalid("JUSTIFICATION_TOO_SHORT", "justification must be at least %d characters", minLen)
	}

	var record *model.DueDiligenceModel
	err = s.run(ctx, workflow.OpInitiateOversight, actor, func(cs *changeSet) error {
		app, err := cs.loadActiveApplication(applicationID)
		if err != nil {
			return err
		}
		if app.Status == string(workflow.StatusDraft) {
			return workflow.Conflict("INVALID_STATE", "application %d has not been submitted", app.ID)
		}
		_, err = cs.dd.FindByApplicationID(app.ID)
		if err == nil {
			return workflow.Conflict("DD_EXISTS", "application %d already has a due diligence record", app.ID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var aggregate *float64
		result, err := findResult(cs.results, app.ID)
		if err != nil {
			return err
		}
		if result != nil {
			aggregate = result.TotalScore
		}

		record = newDueDiligence(app.ID, aggregate, cs)
		record.IsOversightInitiated = true
		record.OversightJustification = justification
		record.OversightInitiatedBy = cs.actorID()
		if err := cs.createDueDiligence(record, "oversight review initiated"); err != nil {
			return err
		}
		return cs.audit(workflow.OpInitiateOversight, model.ResourceDueDiligence, resourceID(app.ID), map[string]interface{}{
			"justification": justification,
		})
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// AssignPrimaryReviewer 指定尽调主评审
func (s *dueDiligenceService) AssignPrimaryReviewer(ctx context.Context, applicationID uint, reviewerID string) error {
	actor, err := s.authorize(ctx, workflow.OpAssignDDReviewer)
	if err != nil {
		return err
	}
	return s.run(ctx, workflow.OpAssignDDReviewer, actor, func(cs *changeSet) error {
		if err := requireProfileRole(cs, reviewerID, primaryReviewerRoles...); err != nil {
			return err
		}
		record, err := cs.loadDD(applicationID)
		if err != nil {
			return err
		}
		if record.ValidatorReviewerID == reviewerID {
			return workflow.Invalid("SAME_REVIEWER", "the primary reviewer cannot also be the validator")
		}
		ok, err := cs.dd.UpdateInStatus(record.ID, editableDDStatuses, map[string]interface{}{
			"primary_reviewer_id": reviewerID,
			"updated_at":          cs.now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return workflow.Conflict("INVALID_STATE", "due diligence for application %d is %s", applicationID, record.DDStatus)
		}
		return cs.audit(workflow.OpAssignDDReviewer, model.ResourceDueDiligence, resourceID(applicationID), map[string]interface{}{
			"primary_reviewer": reviewerID,
			"previous":         record.PrimaryReviewerID,
		})
	})
}

// AssignValidator 指定尽调验证人
func (s *dueDiligenceService) AssignValidator(ctx context.Context, applicationID uint, validatorID string) error {
	actor, err := s.authorize(ctx, workflow.OpAssignDDReviewer)
	if err != nil {
		return err
	}
	return s.run(ctx, workflow.OpAssignDDReviewer, actor, func(cs *changeSet) error {
		if err := requireProfileRole(cs, validatorID, string(workflow.RoleOversight)); err != nil {
			return err
		}
		record, err := cs.loadDD(applicationID)
		if err != nil {
			return err
		}
		if record.PrimaryReviewerID == validatorID {
			return workflow.Invalid("SAME_REVIEWER", "the validator cannot also be the primary reviewer")
		}
		ok, err := cs.dd.UpdateInStatus(record.ID, editableDDStatuses, map[string]interface{}{
			"validator_reviewer_id": validatorID,
			"updated_at":            cs.now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return workflow.Conflict("INVALID_STATE", "due diligence for application %d is %s", applicationID, record.DDStatus)
		}
		return cs.audit(workflow.OpAssignDDReviewer, model.ResourceDueDiligence, resourceID(applicationID), map[string]interface{}{
			"validator": validatorID,
			"previous":  record.ValidatorReviewerID,
		})
	})
}

func requireProfileRole(cs *changeSet, userID string, roles ...string) error {
	profile, err := cs.reviewers.FindProfile(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return workflow.NotFound("REVIEWER_NOT_FOUND", "reviewer %s not found", userID)
	}
	if err != nil {
		return err
	}
	if !contains(roles, profile.Role) {
		return workflow.Invalid("ROLE_MISMATCH", "user %s has role %s, expected one of %s", userID, profile.Role, strings.Join(roles, ", "))
	}
	return nil
}

// SubmitPhaseScores 主评审录入阶段评分
// 第一阶段完成后有验证人则进入待审批, 否则直接以主评审结论完成
func (s *dueDiligenceService) SubmitPhaseScores(ctx context.Context, req *PhaseScoresRequest) (*model.DueDiligenceModel, error) {
	actor, err := s.authorize(ctx, workflow.OpSubmitDDScores)
	if err != nil {
		return nil, err
	}
	rubric, err := s.policy.Rubrics().For(req.Phase)
	if err != nil {
		return nil, err
	}
	if len(req.Scores) == 0 {
		return nil, workflow.Invalid("NO_SCORES", "at least one criterion score is required")
	}
	if _, err := rubric.EvaluatePhase(req.Scores); err != nil {
		return nil, err
	}

	var record *model.DueDiligenceModel
	err = s.run(ctx, workflow.OpSubmitDDScores, actor, func(cs *changeSet) error {
		app, err := cs.loadActiveApplication(req.ApplicationID)
		if err != nil {
			return err
		}
		current, err := cs.loadDD(app.ID)
		if err != nil {
			return err
		}
		from := workflow.DDStatus(current.DDStatus)
		if !workflow.AcceptsPrimaryScoring(from) {
			return workflow.Conflict("INVALID_STATE", "due diligence for application %d is %s", app.ID, from)
		}
		if current.ValidatorReviewerID == actor.ID {
			return workflow.Unauthorized("VALIDATOR_CANNOT_SCORE", "the validator cannot score due diligence phases")
		}
		primary := current.PrimaryReviewerID
		if primary == "" {
			primary = actor.ID
		} else if primary != actor.ID && !actor.IsAdmin() {
			return workflow.Unauthorized("NOT_ASSIGNED_REVIEWER", "due diligence for application %d is not assigned to you", app.ID)
		}

		merged, err := current.PhaseScores(int(req.Phase))
		if err != nil {
			return err
		}
		for k, v := range req.Scores {
			merged[k] = v
		}
		res, err := rubric.EvaluatePhase(merged)
		if err != nil {
			return err
		}
		if err := current.SetPhaseScores(int(req.Phase), merged); err != nil {
			return err
		}

		prefix := "phase1_"
		raw := current.Phase1Scores
		if req.Phase == workflow.PhaseTwo {
			prefix = "phase2_"
			raw = current.Phase2Scores
		}
		phaseStatus := workflow.PhaseInProgress
		if res.Complete {
			phaseStatus = workflow.PhaseCompleted
		}
		updates := map[string]interface{}{
			prefix + "scores":     raw,
			prefix + "status":     string(phaseStatus),
			"primary_reviewer_id": primary,
			"updated_at":          cs.now,
		}
		if res.Complete {
			updates[prefix+"score"] = res.Total
		}
		if req.Notes != "" {
			updates[prefix+"notes"] = req.Notes
		}

		to := workflow.DDInProgress
		phase1Complete := current.Phase1Status == string(workflow.PhaseCompleted) ||
			(req.Phase == workflow.PhaseOne && res.Complete)
		if phase1Complete && res.Complete {
			p1, p2 := current.Phase1Score, current.Phase2Score
			p2Complete := current.Phase2Status == string(workflow.PhaseCompleted)
			total := res.Total
			if req.Phase == workflow.PhaseOne {
				p1 = &total
			} else {
				p2, p2Complete = &total, true
			}
			score := workflow.DDScore(p1, p2, p2Complete)

			updates["primary_reviewed_at"] = cs.now
			updates["dd_score"] = *score
			if current.AggregateScore != nil {
				updates["score_disparity"] = workflow.Disparity(*current.AggregateScore, *score)
			}
			if current.ValidatorReviewerID != "" {
				to = workflow.DDAwaitingApproval
				updates["approval_deadline"] = workflow.ApprovalDeadline(cs.now, cs.settings.ApprovalWindow)
				updates["validator_action"] = ""
				updates["validator_comments"] = ""
				updates["validator_acted_at"] = nil
			} else {
				to = workflow.DDApproved
				updates["final_verdict"] = string(workflow.VerdictPass)
				updates["final_reason"] = "completed by primary reviewer without validator"
				updates["completed_at"] = cs.now
			}
		}
		updates["dd_status"] = string(to)

		ok, err := cs.dd.UpdateInStatus(current.ID, []string{string(from)}, updates)
		if err != nil {
			return err
		}
		if !ok {
			return workflow.Conflict("STALE_STATUS", "due diligence for application %d changed concurrently", app.ID)
		}

		if from != workflow.DDInProgress {
			if err := cs.recordDD(app.ID, from, workflow.DDInProgress, "primary review started"); err != nil {
				return err
			}
		}
		if to != workflow.DDInProgress {
			if err := cs.recordDD(app.ID, workflow.DDInProgress, to, "phase 1 completed"); err != nil {
				return err
			}
		}
		if to == workflow.DDApproved {
			if err := s.advanceApplication(cs, app); err != nil {
				return err
			}
		}

		if record, err = cs.dd.FindByApplicationID(app.ID); err != nil {
			return err
		}
		return cs.audit(workflow.OpSubmitDDScores, model.ResourceDueDiligence, resourceID(app.ID), map[string]interface{}{
			"phase":    req.Phase,
			"scores":   req.Scores,
			"complete": res.Complete,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"application_id": req.ApplicationID,
		"phase":          req.Phase,
		"dd_status":      record.DDStatus,
	}).Info("due diligence scores recorded")
	return record, nil
}

// advanceApplication 尽调通过后申请进入 dragons_den, 状态表不允许时保持不变
// 尽调得分偏低只体现在 score_disparity 上, 是否通过由验证人决定
func (s *dueDiligenceService) advanceApplication(cs *changeSet, app *model.ApplicationModel) error {
	current := workflow.ApplicationStatus(app.Status)
	if !workflow.CanTransition(current, workflow.StatusDragonsDen) {
		s.logger.WithFields(logrus.Fields{
			"application_id": app.ID,
			"status":         current,
		}).Info("due diligence approved, application status unchanged")
		return nil
	}
	return cs.moveApplication(app, workflow.StatusDragonsDen, "due diligence approved", false)
}

// SubmitValidatorAction 验证人审批或退回
// 只有记录当前的验证人可以操作, 写入时再次校验验证人与状态
func (s *dueDiligenceService) SubmitValidatorAction(ctx context.Context, applicationID uint, action workflow.ValidatorAction, comments string) (*model.DueDiligenceModel, error) {
	actor, err := s.authorize(ctx, workflow.OpSubmitValidatorAction)
	if err != nil {
		return nil, err
	}
	if !action.Valid() {
		return nil, workflow.Invalid("INVALID_ACTION", "action must be approved or queried")
	}
	comments = strings.TrimSpace(comments)
	if minLen := s.policy.Settings().MinCommentLength; len(comments) < minLen {
		return nil, workflow.Invalid("COMMENT_TOO_SHORT", "comments must be at least %d characters", minLen)
	}

	var record *model.DueDiligenceModel
	err = s.run(ctx, workflow.OpSubmitValidatorAction, actor, func(cs *changeSet) error {
		app, err := cs.loadActiveApplication(applicationID)
		if err != nil {
			return err
		}
		current, err := cs.loadDD(app.ID)
		if err != nil {
			return err
		}
		if current.ValidatorReviewerID != actor.ID {
			return workflow.Unauthorized("NOT_ASSIGNED_VALIDATOR", "you are not the validator for application %d", app.ID)
		}
		from := workflow.DDStatus(current.DDStatus)
		if !workflow.AcceptsValidatorAction(from) {
			return workflow.Conflict("NOT_AWAITING_APPROVAL", "due diligence for application %d is %s", app.ID, from)
		}

		updates := map[string]interface{}{
			"validator_action":   string(action),
			"validator_comments": comments,
			"validator_acted_at": cs.now,
			"updated_at":         cs.now,
		}
		to := workflow.DDQueried
		if action == workflow.ActionApproved {
			if current.DDScore == nil {
				return workflow.Conflict("NO_DD_SCORE", "due diligence for application %d has no score", app.ID)
			}
			to = workflow.DDApproved
			updates["final_verdict"] = string(workflow.VerdictPass)
			updates["final_reason"] = comments
			updates["completed_at"] = cs.now
		} else if from == workflow.DDAwaitingApproval {
			// 从 auto_reassigned 退回时保留转交设定的截止时间
			updates["approval_deadline"] = nil
		}
		updates["dd_status"] = string(to)

		ok, err := cs.dd.UpdateForValidator(current.ID, actor.ID, validatorDDStatuses, updates)
		if err != nil {
			return err
		}
		if !ok {
			return workflow.Conflict("NOT_AWAITING_APPROVAL", "due diligence for application %d is no longer awaiting your approval", app.ID)
		}
		if err := cs.recordDD(app.ID, from, to, comments); err != nil {
			return err
		}
		if to == workflow.DDApproved {
			if err := s.advanceApplication(cs, app); err != nil {
				return err
			}
		}
		cs.onCommit(func() { metrics.RecordValidatorAction(string(action)) })

		if record, err = cs.dd.FindByApplicationID(app.ID); err != nil {
			return err
		}
		return cs.audit(workflow.OpSubmitValidatorAction, model.ResourceDueDiligence, resourceID(app.ID), map[string]interface{}{
			"action":   action,
			"comments": comments,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"application_id": applicationID,
		"action":         action,
		"validator":      actor.ID,
	}).Info("validator action recorded")
	return record, nil
}

// CheckApprovalDeadlines 将审批超时的记录转交给负载最低的其他监督人员
// 每条记录单独一个事务, 写入时再次校验状态与截止时间, 重复执行不会重复转交
func (s *dueDiligenceService) CheckApprovalDeadlines(ctx context.Context) (*SweepResult, error) {
	actor, err := s.authorize(ctx, workflow.OpCheckDeadlines)
	if err != nil {
		return nil, err
	}

	expired, err := s.dd.FindExpired(s.now())
	if err != nil {
		return nil, s.internal(ctx, workflow.OpCheckDeadlines, err)
	}
	result := &SweepResult{Checked: len(expired)}
	if len(expired) == 0 {
		return result, nil
	}

	pool, err := s.validatorPool()
	if err != nil {
		return nil, s.internal(ctx, workflow.OpCheckDeadlines, err)
	}
	loads, err := s.dd.CountOpenByValidator()
	if err != nil {
		return nil, s.internal(ctx, workflow.OpCheckDeadlines, err)
	}

	for _, record := range expired {
		candidates := make([]workflow.ReviewerLoad, 0, len(pool))
		for _, id := range pool {
			if id != record.ValidatorReviewerID && id != record.PrimaryReviewerID {
				candidates = append(candidates, workflow.ReviewerLoad{ReviewerID: id, Count: loads[id]})
			}
		}
		pick := workflow.PickLeastLoaded(candidates)
		if pick < 0 {
			s.logger.WithField("application_id", record.ApplicationID).Warn("no eligible validator for expired approval")
			result.Skipped = append(result.Skipped, &SweepSkip{ApplicationID: record.ApplicationID, Reason: "no eligible validator"})
			continue
		}
		next := candidates[pick].ReviewerID

		err := s.reassignExpired(ctx, actor, record, next)
		if workflow.KindOf(err) == workflow.KindConflict {
			result.Skipped = append(result.Skipped, &SweepSkip{ApplicationID: record.ApplicationID, Reason: "already handled"})
			continue
		}
		if err != nil {
			return nil, err
		}
		loads[record.ValidatorReviewerID]--
		loads[next]++
		result.Reassigned++
	}

	s.logger.WithFields(logrus.Fields{
		"checked":    result.Checked,
		"reassigned": result.Reassigned,
		"skipped":    len(result.Skipped),
	}).Info("approval deadline sweep finished")
	return result, nil
}

func (s *dueDiligenceService) reassignExpired(ctx context.Context, actor *workflow.Actor, record *model.DueDiligenceModel, next string) error {
	return s.run(ctx, workflow.OpCheckDeadlines, actor, func(cs *changeSet) error {
		deadline := workflow.ApprovalDeadline(cs.now, cs.settings.ApprovalWindow)
		ok, err := cs.dd.ReassignExpired(record.ID, cs.now, map[string]interface{}{
			"dd_status":             string(workflow.DDAutoReassigned),
			"previous_validator_id": record.ValidatorReviewerID,
			"validator_reviewer_id": next,
			"approval_deadline":     deadline,
			"reassignment_count":    gorm.Expr("reassignment_count + ?", 1),
			"updated_at":            cs.now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return workflow.Conflict("ALREADY_HANDLED", "due diligence for application %d is no longer awaiting approval", record.ApplicationID)
		}
		if err := cs.recordDD(record.ApplicationID, workflow.DDAwaitingApproval, workflow.DDAutoReassigned, "approval deadline expired"); err != nil {
			return err
		}
		cs.emit(integration.EventDDReassigned, record.ApplicationID, map[string]interface{}{
			"previous_validator": record.ValidatorReviewerID,
			"validator":          next,
			"approval_deadline":  deadline,
		})
		cs.onCommit(metrics.RecordAutoReassignment)
		return cs.audit(workflow.OpCheckDeadlines, model.ResourceDueDiligence, resourceID(record.ApplicationID), map[string]interface{}{
			"previous_validator": record.ValidatorReviewerID,
			"validator":          next,
		})
	})
}

// validatorPool 可接收转交的监督人员, 队列中标记为停用的除外
func (s *dueDiligenceService) validatorPool() ([]string, error) {
	profiles, err := s.reviewers.FindProfilesByRole(string(workflow.RoleOversight))
	if err != nil {
		return nil, err
	}
	entries, err := s.reviewers.AllQueueEntries()
	if err != nil {
		return nil, err
	}
	inactive := make(map[string]bool)
	for _, e := range entries {
		if !e.IsActive {
			inactive[e.UserID] = true
		}
	}
	pool := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if !inactive[p.UserID] {
			pool = append(pool, p.UserID)
		}
	}
	return pool, nil
}

// Queue 尽调队列, 技术评审只能看到自己负责的记录
func (s *dueDiligenceService) Queue(ctx context.Context, filter repository.DDFilter) ([]*DDQueueItem, error) {
	actor, err := s.authorize(ctx, workflow.OpViewDDQueue)
	if err != nil {
		return nil, err
	}
	if actor.Role == workflow.RoleTechnicalReviewer {
		filter.ReviewerID = actor.ID
	}
	rows, err := s.dd.Query(filter)
	if err != nil {
		return nil, s.internal(ctx, workflow.OpViewDDQueue, err)
	}
	items := make([]*DDQueueItem, len(rows))
	for i, row := range rows {
		items[i] = &DDQueueItem{DDRow: row, ApplicantName: applicantName(row)}
	}
	return items, nil
}

func applicantName(row *repository.DDRow) string {
	return strings.TrimSpace(strings.TrimSpace(row.ApplicantFirstName) + " " + strings.TrimSpace(row.ApplicantLastName))
}

// Qualified 尽调已批准的申请
func (s *dueDiligenceService) Qualified(ctx context.Context, filter repository.DDFilter) ([]*export.QualifiedRow, error) {
	if _, err := s.authorize(ctx, workflow.OpViewQualified); err != nil {
		return nil, err
	}
	filter.Statuses = []string{string(workflow.DDApproved)}
	rows, err := s.dd.Query(filter)
	if err != nil {
		return nil, s.internal(ctx, workflow.OpViewQualified, err)
	}

	ids := make(map[string]struct{})
	for _, row := range rows {
		for _, id := range reviewerIDs(row) {
			ids[id] = struct{}{}
		}
	}
	lookup := make([]string, 0, len(ids))
	for id := range ids {
		lookup = append(lookup, id)
	}
	sort.Strings(lookup)
	profiles, err := s.reviewers.FindProfiles(lookup)
	if err != nil {
		return nil, s.internal(ctx, workflow.OpViewQualified, err)
	}

	out := make([]*export.QualifiedRow, 0, len(rows))
	for _, row := range rows {
		names := make([]string, 0, 4)
		for _, id := range reviewerIDs(row) {
			if p, ok := profiles[id]; ok && p.FullName() != "" {
				names = append(names, p.FullName())
			} else {
				names = append(names, id)
			}
		}
		out = append(out, &export.QualifiedRow{
			ApplicationID: row.ApplicationID,
			BusinessName:  row.BusinessName,
			ApplicantName: applicantName(row),
			County:        row.County,
			Sector:        row.Sector,
			Track:         row.Track,
			DDScore:       row.DDScore,
			CompletedAt:   row.CompletedAt,
			ReviewerNames: names,
		})
	}
	return out, nil
}

// reviewerIDs R1, R2, 主评审, 验证人(去重并保持顺序)
func reviewerIDs(row *repository.DDRow) []string {
	var ids []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if row.Reviewer1ID != nil {
		add(*row.Reviewer1ID)
	}
	if row.Reviewer2ID != nil {
		add(*row.Reviewer2ID)
	}
	add(row.PrimaryReviewerID)
	add(row.ValidatorReviewerID)
	return ids
}

// Recipients 通知收件人列表, 本服务不发送邮件
func (s *dueDiligenceService) Recipients(ctx context.Context, statuses []string) ([]*repository.RecipientRow, error) {
	if _, err := s.authorize(ctx, workflow.OpViewRecipients); err != nil {
		return nil, err
	}
	for _, st := range statuses {
		if !workflow.ApplicationStatus(st).Valid() {
			return nil, workflow.Invalid("INVALID_STATUS", "unknown status %q", st)
		}
	}
	rows, err := s.apps.ListRecipients(statuses)
	if err != nil {
		return nil, s.internal(ctx, workflow.OpViewRecipients, err)
	}
	return rows, nil
}
