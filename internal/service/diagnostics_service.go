package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/sirupsen/logrus"
)

// TierCounts 某一层级的分配与完成情况
type TierCounts struct {
	Assigned  int `json:"assigned"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

// ReviewerDiagnostics 单个评审人的核对结果
type ReviewerDiagnostics struct {
	ReviewerID   string     `json:"reviewer_id"`
	Name         string     `json:"name,omitempty"`
	Email        string     `json:"email,omitempty"`
	Role         string     `json:"role,omitempty"`
	IsActive     bool       `json:"is_active"`
	FirstReview  TierCounts `json:"first_review"`
	SecondReview TierCounts `json:"second_review"`
}

// PendingApplication 已分配但未评分的申请
type PendingApplication struct {
	ApplicationID uint       `json:"application_id"`
	Role          string     `json:"role"`
	ReviewerID    string     `json:"reviewer_id"`
	Status        string     `json:"status"`
	AssignedAt    *time.Time `json:"assigned_at,omitempty"`
}

// ScoreMismatch 评分人与当前分配不一致
type ScoreMismatch struct {
	ApplicationID    uint   `json:"application_id"`
	Role             string `json:"role"`
	AssignedReviewer string `json:"assigned_reviewer,omitempty"`
	ScoredBy         string `json:"scored_by"`
}

// DuplicateReviewers 疑似重复的评审人账号
type DuplicateReviewers struct {
	MatchedOn   string   `json:"matched_on"` // email | name
	Key         string   `json:"key"`
	ReviewerIDs []string `json:"reviewer_ids"`
}

// QueueDrift 队列快照与实际分配不一致
type QueueDrift struct {
	ReviewerID string `json:"reviewer_id"`
	Role       string `json:"role"`
	Snapshot   int    `json:"snapshot"`
	Actual     int    `json:"actual"`
}

// OverdueApproval 转交后再次超时的尽调审批
type OverdueApproval struct {
	ApplicationID     uint       `json:"application_id"`
	ValidatorID       string     `json:"validator_id"`
	ApprovalDeadline  *time.Time `json:"approval_deadline,omitempty"`
	ReassignmentCount int        `json:"reassignment_count"`
}

// DiagnosticsReport 分配与评分核对报告
type DiagnosticsReport struct {
	GeneratedAt       time.Time              `json:"generated_at"`
	Reviewers         []*ReviewerDiagnostics `json:"reviewers"`
	Pending           []*PendingApplication  `json:"pending"`
	Mismatches        []*ScoreMismatch       `json:"mismatches"`
	Duplicates        []*DuplicateReviewers  `json:"duplicates"`
	QueueDrift        []*QueueDrift          `json:"queue_drift"`
	OverdueReassigned []*OverdueApproval     `json:"overdue_reassigned"`
}

// DiagnosticsService 只读核对服务
type DiagnosticsService interface {
	Run(ctx context.Context) (*DiagnosticsReport, error)
}

type diagnosticsService struct {
	base
	apps      repository.ApplicationRepository
	results   repository.EligibilityRepository
	reviewers repository.ReviewerRepository
	dd        repository.DueDiligenceRepository
}

// NewDiagnosticsService 创建核对服务
func NewDiagnosticsService(deps Deps) DiagnosticsService {
	return &diagnosticsService{
		base:      newBase(deps),
		apps:      repository.NewApplicationRepository(deps.DB),
		results:   repository.NewEligibilityRepository(deps.DB),
		reviewers: repository.NewReviewerRepository(deps.DB),
		dd:        repository.NewDueDiligenceRepository(deps.DB),
	}
}

// Run 直接从申请表和评分表重新统计, 不使用队列快照
func (s *diagnosticsService) Run(ctx context.Context) (*DiagnosticsReport, error) {
	if _, err := s.authorize(ctx, workflow.OpRunDiagnostics); err != nil {
		return nil, err
	}
	report, err := s.build()
	if err != nil {
		return nil, s.internal(ctx, workflow.OpRunDiagnostics, err)
	}
	s.logger.WithFields(logrus.Fields{
		"pending":    len(report.Pending),
		"mismatches": len(report.Mismatches),
		"duplicates": len(report.Duplicates),
		"drift":      len(report.QueueDrift),
	}).Info("diagnostics completed")
	return report, nil
}

func (s *diagnosticsService) build() (*DiagnosticsReport, error) {
	now := s.now()
	apps, err := s.apps.FindAll(false)
	if err != nil {
		return nil, err
	}
	results, err := s.results.FindAll()
	if err != nil {
		return nil, err
	}
	profiles, err := s.reviewers.AllProfiles()
	if err != nil {
		return nil, err
	}
	queue, err := s.reviewers.AllQueueEntries()
	if err != nil {
		return nil, err
	}
	overdue, err := s.dd.FindOverdueReassigned(now)
	if err != nil {
		return nil, err
	}

	report := &DiagnosticsReport{
		GeneratedAt:       now,
		Pending:           []*PendingApplication{},
		Mismatches:        []*ScoreMismatch{},
		QueueDrift:        []*QueueDrift{},
		OverdueReassigned: []*OverdueApproval{},
	}

	byApp := make(map[uint]*model.EligibilityResultModel, len(results))
	for _, r := range results {
		byApp[r.ApplicationID] = r
	}

	stats := make(map[string]*ReviewerDiagnostics)
	stat := func(id string) *ReviewerDiagnostics {
		d, ok := stats[id]
		if !ok {
			d = &ReviewerDiagnostics{ReviewerID: id}
			stats[id] = d
		}
		return d
	}
	for _, p := range profiles {
		if workflow.Role(p.Role).IsReviewerRole() {
			d := stat(p.UserID)
			d.Name, d.Email, d.Role = p.FullName(), p.Email, p.Role
		}
	}
	active := make(map[string]bool, len(queue))
	for _, e := range queue {
		active[e.UserID] = e.IsActive
	}

	derived := map[workflow.Role]map[string]int{
		workflow.RoleReviewer1: {},
		workflow.RoleReviewer2: {},
	}
	for _, app := range apps {
		result := byApp[app.ID]
		tiers := []struct {
			role       workflow.Role
			assigned   *string
			assignedAt *time.Time
			score      *float64
			scoredBy   string
			counts     func(*ReviewerDiagnostics) *TierCounts
		}{
			{workflow.RoleReviewer1, app.Reviewer1ID, app.Reviewer1AssignedAt, nil, "", func(d *ReviewerDiagnostics) *TierCounts { return &d.FirstReview }},
			{workflow.RoleReviewer2, app.Reviewer2ID, app.Reviewer2AssignedAt, nil, "", func(d *ReviewerDiagnostics) *TierCounts { return &d.SecondReview }},
		}
		if result != nil {
			tiers[0].score, tiers[0].scoredBy = result.Reviewer1Score, result.Reviewer1By
			tiers[1].score, tiers[1].scoredBy = result.Reviewer2Score, result.Reviewer2By
		}

		for _, t := range tiers {
			assigned := ""
			if t.assigned != nil {
				assigned = *t.assigned
			}
			if t.score != nil && t.scoredBy != "" && t.scoredBy != assigned {
				report.Mismatches = append(report.Mismatches, &ScoreMismatch{
					ApplicationID:    app.ID,
					Role:             string(t.role),
					AssignedReviewer: assigned,
					ScoredBy:         t.scoredBy,
				})
			}
			if assigned == "" {
				continue
			}
			derived[t.role][assigned]++
			counts := t.counts(stat(assigned))
			counts.Assigned++
			if t.score != nil {
				counts.Completed++
				continue
			}
			counts.Pending++
			report.Pending = append(report.Pending, &PendingApplication{
				ApplicationID: app.ID,
				Role:          string(t.role),
				ReviewerID:    assigned,
				Status:        app.Status,
				AssignedAt:    t.assignedAt,
			})
		}
	}

	for id, d := range stats {
		d.IsActive = active[id]
		report.Reviewers = append(report.Reviewers, d)
	}
	sort.Slice(report.Reviewers, func(i, j int) bool {
		a, b := report.Reviewers[i], report.Reviewers[j]
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		return a.ReviewerID < b.ReviewerID
	})
	sort.SliceStable(report.Pending, func(i, j int) bool {
		if report.Pending[i].Role != report.Pending[j].Role {
			return report.Pending[i].Role < report.Pending[j].Role
		}
		return report.Pending[i].ApplicationID < report.Pending[j].ApplicationID
	})

	for _, e := range queue {
		counts, ok := derived[workflow.Role(e.Role)]
		if !ok {
			continue
		}
		if actual := counts[e.UserID]; actual != e.AssignmentCount {
			report.QueueDrift = append(report.QueueDrift, &QueueDrift{
				ReviewerID: e.UserID,
				Role:       e.Role,
				Snapshot:   e.AssignmentCount,
				Actual:     actual,
			})
		}
	}

	report.Duplicates = findDuplicates(profiles)

	for _, r := range overdue {
		report.OverdueReassigned = append(report.OverdueReassigned, &OverdueApproval{
			ApplicationID:     r.ApplicationID,
			ValidatorID:       r.ValidatorReviewerID,
			ApprovalDeadline:  r.ApprovalDeadline,
			ReassignmentCount: r.ReassignmentCount,
		})
	}
	return report, nil
}

// findDuplicates 按规范化邮箱和全名分组, 返回多于一个账号的分组
func findDuplicates(profiles []*model.UserProfileModel) []*DuplicateReviewers {
	byEmail := make(map[string][]string)
	byName := make(map[string][]string)
	for _, p := range profiles {
		if !workflow.Role(p.Role).IsReviewerRole() {
			continue
		}
		if email := normalizeEmail(p.Email); email != "" {
			byEmail[email] = append(byEmail[email], p.UserID)
		}
		if name := normalizeName(p.FullName()); name != "" {
			byName[name] = append(byName[name], p.UserID)
		}
	}

	dups := []*DuplicateReviewers{}
	collect := func(matchedOn string, groups map[string][]string) {
		keys := make([]string, 0, len(groups))
		for k, ids := range groups {
			if len(ids) > 1 {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			ids := groups[k]
			sort.Strings(ids)
			dups = append(dups, &DuplicateReviewers{MatchedOn: matchedOn, Key: k, ReviewerIDs: ids})
		}
	}
	collect("email", byEmail)
	collect("name", byName)
	return dups
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
