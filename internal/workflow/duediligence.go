package workflow

import "time"

// DDStatus 尽职调查状态
type DDStatus string

const (
	DDPending          DDStatus = "pending"
	DDInProgress       DDStatus = "in_progress"
	DDAwaitingApproval DDStatus = "awaiting_approval"
	DDApproved         DDStatus = "approved"
	DDQueried          DDStatus = "queried"
	DDAutoReassigned   DDStatus = "auto_reassigned"
)

// PhaseStatus 尽调阶段状态
type PhaseStatus string

const (
	PhaseNotStarted PhaseStatus = "not_started"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseCompleted  PhaseStatus = "completed"
)

// ValidatorAction 验证人操作
type ValidatorAction string

const (
	ActionApproved ValidatorAction = "approved"
	ActionQueried  ValidatorAction = "queried"
)

// Valid 判断验证人操作是否合法
func (a ValidatorAction) Valid() bool {
	return a == ActionApproved || a == ActionQueried
}

// Verdict 尽调最终结论, 只有批准时写入
type Verdict string

const VerdictPass Verdict = "pass"

// ddTransitions 尽调状态机
var ddTransitions = map[DDStatus][]DDStatus{
	DDPending:          {DDInProgress},
	DDInProgress:       {DDAwaitingApproval, DDApproved},
	DDAwaitingApproval: {DDApproved, DDQueried, DDAutoReassigned},
	DDAutoReassigned:   {DDApproved, DDQueried},
	DDQueried:          {DDInProgress},
}

// CanTransitionDD 判断尽调状态转换是否允许
func CanTransitionDD(from, to DDStatus) bool {
	for _, next := range ddTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AcceptsValidatorAction 当前状态下验证人是否可以操作
// auto_reassigned 表示已转交给新的验证人, 新验证人同样可以审批
func AcceptsValidatorAction(s DDStatus) bool {
	return s == DDAwaitingApproval || s == DDAutoReassigned
}

// AcceptsPrimaryScoring 当前状态下主评审是否可以录入阶段分数
func AcceptsPrimaryScoring(s DDStatus) bool {
	return s == DDPending || s == DDInProgress || s == DDQueried
}

// ApprovalDeadline 计算审批截止时间
func ApprovalDeadline(from time.Time, window time.Duration) time.Time {
	return from.Add(window)
}

// DeadlineExpired 截止时间严格早于 now 才算过期
func DeadlineExpired(deadline *time.Time, now time.Time) bool {
	return deadline != nil && deadline.Before(now)
}

// DDScore 尽调得分, 第二阶段完成时取两阶段平均
func DDScore(phase1 *float64, phase2 *float64, phase2Complete bool) *float64 {
	if phase1 == nil {
		return nil
	}
	score := *phase1
	if phase2Complete && phase2 != nil {
		score = (*phase1 + *phase2) / 2
	}
	return &score
}

