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
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// candidateStatuses 各层级可被分配的申请状态
// R1 只分配尚未评分的申请, R2 只分配 R1 已评分的申请
var candidateStatuses = map[workflow.ReviewTier][]string{
	workflow.TierFirst:  {string(workflow.StatusSubmitted), string(workflow.StatusUnderReview)},
	workflow.TierSecond: {string(workflow.StatusPendingSeniorReview)},
}

// RedistributeResult 重新分配结果
type RedistributeResult struct {
	Cleared  int64 `json:"cleared"`
	Assigned int   `json:"assigned"`
}

// ReviewerStat 单个评审人的分配情况
type ReviewerStat struct {
	ReviewerID     string     `json:"reviewer_id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Role           string     `json:"role"`
	IsActive       bool       `json:"is_active"`
	Assigned       int        `json:"assigned"`
	SnapshotCount  int        `json:"snapshot_count"`
	LastAssignedAt *time.Time `json:"last_assigned_at,omitempty"`
}

// RoleStats 某一评审角色的汇总
type RoleStats struct {
	Role             string          `json:"role"`
	Reviewers        int             `json:"reviewers"`
	ActiveReviewers  int             `json:"active_reviewers"`
	Assigned         int             `json:"assigned"`
	AwaitingReviewer int             `json:"awaiting_reviewer"`
	PerReviewer      []*ReviewerStat `json:"per_reviewer"`
}

// AssignmentStats 分配统计
type AssignmentStats struct {
	FirstReview  *RoleStats `json:"first_review"`
	SecondReview *RoleStats `json:"second_review"`
}

// AssignmentService 评审人分配服务
type AssignmentService interface {
	InitializeQueue(ctx context.Context) (int, error)
	BulkAssign(ctx context.Context, role workflow.Role) (int, error)
	Redistribute(ctx context.Context, role workflow.Role) (*RedistributeResult, error)
	ToggleReviewerActive(ctx context.Context, reviewerID string, active bool) error
	Reassign(ctx context.Context, applicationID uint, role workflow.Role, reviewerID string) error
	Stats(ctx context.Context) (*AssignmentStats, error)
}

type assignmentService struct {
	base
	apps      repository.ApplicationRepository
	reviewers repository.ReviewerRepository
}

// NewAssignmentService 创建分配服务
func NewAssignmentService(deps Deps) AssignmentService {
	return &assignmentService{
		base:      newBase(deps),
		apps:      repository.NewApplicationRepository(deps.DB),
		reviewers: repository.NewReviewerRepository(deps.DB),
	}
}

func tierOf(role workflow.Role) (workflow.ReviewTier, error) {
	tier, ok := workflow.TierForRole(role)
	if !ok {
		return 0, workflow.Invalid("INVALID_REVIEWER_ROLE", "role must be reviewer_1 or reviewer_2, got %q", role)
	}
	return tier, nil
}

// InitializeQueue 为缺少队列条目的评审人创建条目, 已有条目不变
func (s *assignmentService) InitializeQueue(ctx context.Context) (int, error) {
	actor, err := s.authorize(ctx, workflow.OpInitializeQueue)
	if err != nil {
		return 0, err
	}

	added := 0
	err = s.run(ctx, workflow.OpInitializeQueue, actor, func(cs *changeSet) error {
		profiles, err := cs.reviewers.FindProfilesByRole(string(workflow.RoleReviewer1), string(workflow.RoleReviewer2))
		if err != nil {
			return err
		}
		for _, p := range profiles {
			_, err := cs.reviewers.FindQueueEntry(p.UserID)
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if err := cs.reviewers.CreateQueueEntry(&model.ReviewerQueueModel{
				UserID:    p.UserID,
				Role:      p.Role,
				IsActive:  true,
				CreatedAt: cs.now,
				UpdatedAt: cs.now,
			}); err != nil {
				return err
			}
			added++
		}
		if added == 0 {
			return nil
		}
		return cs.audit(workflow.OpInitializeQueue, model.ResourceReviewer, "queue", map[string]interface{}{"added": added})
	})
	if err != nil {
		return 0, err
	}
	s.logger.WithField("added", added).Info("reviewer queue initialized")
	return added, nil
}

// BulkAssign 将未分配的申请逐个分配给当前负载最低的在岗评审人
func (s *assignmentService) BulkAssign(ctx context.Context, role workflow.Role) (int, error) {
	actor, err := s.authorize(ctx, workflow.OpBulkAssign)
	if err != nil {
		return 0, err
	}
	tier, err := tierOf(role)
	if err != nil {
		return 0, err
	}

	assigned := 0
	err = s.run(ctx, workflow.OpBulkAssign, actor, func(cs *changeSet) error {
		assigned, err = s.assignUnassigned(cs, role, tier, false)
		if err != nil {
			return err
		}
		return cs.audit(workflow.OpBulkAssign, model.ResourceReviewer, string(role), map[string]interface{}{"assigned": assigned})
	})
	if err != nil {
		return 0, err
	}
	return assigned, nil
}

// Redistribute 清空候选申请在该层级的分配后从零开始重新均衡分配
func (s *assignmentService) Redistribute(ctx context.Context, role workflow.Role) (*RedistributeResult, error) {
	actor, err := s.authorize(ctx, workflow.OpRedistribute)
	if err != nil {
		return nil, err
	}
	tier, err := tierOf(role)
	if err != nil {
		return nil, err
	}

	result := &RedistributeResult{}
	err = s.run(ctx, workflow.OpRedistribute, actor, func(cs *changeSet) error {
		cleared, err := cs.apps.ClearReviewers(int(tier), candidateStatuses[tier], cs.now)
		if err != nil {
			return err
		}
		result.Cleared = cleared
		result.Assigned, err = s.assignUnassigned(cs, role, tier, true)
		if err != nil {
			return err
		}
		return cs.audit(workflow.OpRedistribute, model.ResourceReviewer, string(role), result)
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"role":     role,
		"cleared":  result.Cleared,
		"assigned": result.Assigned,
	}).Info("assignments redistributed")
	return result, nil
}

// assignUnassigned 贪心分配
// 负载取自同一事务内的实际分配数量, 每次分配后立即更新
// fromZero 时忽略已保留的分配(已评分或已结束的申请), 只均分本次清空的候选集
func (s *assignmentService) assignUnassigned(cs *changeSet, role workflow.Role, tier workflow.ReviewTier, fromZero bool) (int, error) {
	queue, err := cs.reviewers.FindQueue(string(role), true)
	if err != nil {
		return 0, err
	}
	if len(queue) == 0 {
		s.logger.WithField("role", role).Warn("no active reviewers, nothing assigned")
		return 0, nil
	}

	counts := map[string]int{}
	if !fromZero {
		counts, err = cs.apps.CountAssignments(int(tier))
		if err != nil {
			return 0, err
		}
	}
	loads := make([]workflow.ReviewerLoad, len(queue))
	for i, entry := range queue {
		loads[i] = workflow.ReviewerLoad{ReviewerID: entry.UserID, Count: counts[entry.UserID]}
	}

	ids, err := cs.apps.FindUnassigned(int(tier), candidateStatuses[tier])
	if err != nil {
		return 0, err
	}

	assigned := 0
	lastAssigned := make(map[string]time.Time)
	for _, id := range ids {
		pick := workflow.PickLeastLoaded(loads)
		reviewerID := loads[pick].ReviewerID
		ok, err := cs.apps.ClaimReviewer(id, int(tier), reviewerID, cs.now)
		if err != nil {
			return 0, err
		}
		if !ok {
			// 已被其他分配占用
			continue
		}
		loads[pick].Count++
		assigned++
		lastAssigned[reviewerID] = cs.now

		if err := s.startReview(cs, id, tier); err != nil {
			return 0, err
		}
		cs.emit(integration.EventReviewerAssigned, id, map[string]interface{}{
			"role":        role,
			"reviewer_id": reviewerID,
		})
	}

	if err := s.refreshSnapshot(cs, role, tier, lastAssigned); err != nil {
		return 0, err
	}
	cs.onCommit(func() { metrics.RecordAssignments(string(role), assigned) })
	s.logger.WithFields(logrus.Fields{
		"role":       role,
		"candidates": len(ids),
		"assigned":   assigned,
		"spread":     workflow.Spread(loads),
	}).Info("bulk assignment finished")
	return assigned, nil
}

// startReview R1 分配后申请进入 under_review
func (s *assignmentService) startReview(cs *changeSet, applicationID uint, tier workflow.ReviewTier) error {
	if tier != workflow.TierFirst {
		return nil
	}
	app, err := cs.loadApplication(applicationID)
	if err != nil {
		return err
	}
	if app.Status != string(workflow.StatusSubmitted) {
		return nil
	}
	return cs.moveApplication(app, workflow.StatusUnderReview, "first reviewer assigned", false)
}

// refreshSnapshot 在同一事务内用实际分配数量刷新队列快照
func (s *assignmentService) refreshSnapshot(cs *changeSet, role workflow.Role, tier workflow.ReviewTier, lastAssigned map[string]time.Time) error {
	counts, err := cs.apps.CountAssignments(int(tier))
	if err != nil {
		return err
	}
	return cs.reviewers.RefreshCounts(string(role), counts, lastAssigned)
}

// ToggleReviewerActive 设置评审人是否参与后续自动分配, 已有分配不变
func (s *assignmentService) ToggleReviewerActive(ctx context.Context, reviewerID string, active bool) error {
	actor, err := s.authorize(ctx, workflow.OpToggleReviewer)
	if err != nil {
		return err
	}
	return s.run(ctx, workflow.OpToggleReviewer, actor, func(cs *changeSet) error {
		entry, err := cs.reviewers.FindQueueEntry(reviewerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return workflow.NotFound("REVIEWER_NOT_FOUND", "reviewer %s is not in the queue", reviewerID)
		}
		if err != nil {
			return err
		}
		if entry.IsActive == active {
			return nil
		}
		if _, err := cs.reviewers.SetActive(reviewerID, active); err != nil {
			return err
		}
		if err := cs.history.Save(reviewerHistory(cs, reviewerID, entry.IsActive, active)); err != nil {
			return err
		}
		return cs.audit(workflow.OpToggleReviewer, model.ResourceReviewer, reviewerID, map[string]interface{}{"active": active})
	})
}

func activeLabel(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func reviewerHistory(cs *changeSet, reviewerID string, from, to bool) *model.StateHistoryModel {
	return &model.StateHistoryModel{
		ID:           uuid.New().String(),
		ResourceType: model.ResourceReviewer,
		ResourceID:   reviewerID,
		FromState:    activeLabel(from),
		ToState:      activeLabel(to),
		Operator:     cs.actorID(),
		CreatedAt:    cs.now,
	}
}

// Reassign 管理员手动指定评审人, 该层级已评分的申请不可改派
func (s *assignmentService) Reassign(ctx context.Context, applicationID uint, role workflow.Role, reviewerID string) error {
	actor, err := s.authorize(ctx, workflow.OpReassign)
	if err != nil {
		return err
	}
	tier, err := tierOf(role)
	if err != nil {
		return err
	}

	return s.run(ctx, workflow.OpReassign, actor, func(cs *changeSet) error {
		profile, err := cs.reviewers.FindProfile(reviewerID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return workflow.NotFound("REVIEWER_NOT_FOUND", "reviewer %s not found", reviewerID)
		}
		if err != nil {
			return err
		}
		if profile.Role != string(role) {
			return workflow.Invalid("ROLE_MISMATCH", "reviewer %s has role %s, not %s", reviewerID, profile.Role, role)
		}

		app, err := cs.loadActiveApplication(applicationID)
		if err != nil {
			return err
		}
		if !contains(candidateStatuses[tier], app.Status) {
			return workflow.Conflict("INVALID_STATE", "application %d in status %s cannot be reassigned for %s", applicationID, app.Status, role)
		}

		previous := app.Reviewer1ID
		if tier == workflow.TierSecond {
			previous = app.Reviewer2ID
		}
		if _, err := cs.apps.SetReviewer(applicationID, int(tier), reviewerID, cs.now); err != nil {
			return err
		}
		if err := s.startReview(cs, applicationID, tier); err != nil {
			return err
		}
		if err := s.refreshSnapshot(cs, role, tier, map[string]time.Time{reviewerID: cs.now}); err != nil {
			return err
		}
		cs.emit(integration.EventReviewerAssigned, applicationID, map[string]interface{}{
			"role":        role,
			"reviewer_id": reviewerID,
			"manual":      true,
		})
		return cs.audit(workflow.OpReassign, model.ResourceApplication, resourceID(applicationID), map[string]interface{}{
			"role":     role,
			"previous": previous,
			"reviewer": reviewerID,
		})
	})
}

// Stats 分配统计, 分配数量总是从申请表实时统计
func (s *assignmentService) Stats(ctx context.Context) (*AssignmentStats, error) {
	if _, err := s.authorize(ctx, workflow.OpViewAssignmentStats); err != nil {
		return nil, err
	}
	first, err := s.roleStats(workflow.RoleReviewer1, workflow.TierFirst)
	if err != nil {
		return nil, s.internal(ctx, workflow.OpViewAssignmentStats, err)
	}
	second, err := s.roleStats(workflow.RoleReviewer2, workflow.TierSecond)
	if err != nil {
		return nil, s.internal(ctx, workflow.OpViewAssignmentStats, err)
	}
	return &AssignmentStats{FirstReview: first, SecondReview: second}, nil
}

func (s *assignmentService) roleStats(role workflow.Role, tier workflow.ReviewTier) (*RoleStats, error) {
	queue, err := s.reviewers.FindQueue(string(role), false)
	if err != nil {
		return nil, err
	}
	counts, err := s.apps.CountAssignments(int(tier))
	if err != nil {
		return nil, err
	}
	unassigned, err := s.apps.FindUnassigned(int(tier), candidateStatuses[tier])
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(queue))
	for i, e := range queue {
		ids[i] = e.UserID
	}
	profiles, err := s.reviewers.FindProfiles(ids)
	if err != nil {
		return nil, err
	}

	stats := &RoleStats{
		Role:             string(role),
		Reviewers:        len(queue),
		AwaitingReviewer: len(unassigned),
		PerReviewer:      make([]*ReviewerStat, 0, len(queue)),
	}
	for _, n := range counts {
		stats.Assigned += n
	}
	for _, e := range queue {
		stat := &ReviewerStat{
			ReviewerID:     e.UserID,
			Role:           e.Role,
			IsActive:       e.IsActive,
			Assigned:       counts[e.UserID],
			SnapshotCount:  e.AssignmentCount,
			LastAssignedAt: e.LastAssignedAt,
		}
		if p, ok := profiles[e.UserID]; ok {
			stat.Name = p.FullName()
			stat.Email = p.Email
		}
		if e.IsActive {
			stats.ActiveReviewers++
		}
		stats.PerReviewer = append(stats.PerReviewer, stat)
	}
	return stats, nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
