package workflow

// Actor 当前操作人
type Actor struct {
	ID    string `json:"id"`
	Role  Role   `json:"role"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// IsAdmin 是否为管理员
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}

// Operation 工作流操作
type Operation string

const (
	OpCreateApplication     Operation = "application.create"
	OpSubmitApplication     Operation = "application.submit"
	OpViewApplication       Operation = "application.view"
	OpTransitionStatus      Operation = "application.transition"
	OpForceTransition       Operation = "application.force_transition"
	OpArchiveApplication    Operation = "application.archive"
	OpInitializeQueue       Operation = "assignment.initialize_queue"
	OpBulkAssign            Operation = "assignment.bulk_assign"
	OpRedistribute          Operation = "assignment.redistribute"
	OpToggleReviewer        Operation = "assignment.toggle_reviewer"
	OpReassign              Operation = "assignment.reassign"
	OpViewAssignmentStats   Operation = "assignment.stats"
	OpSubmitFirstReview     Operation = "review.submit_first"
	OpSubmitSecondReview    Operation = "review.submit_second"
	OpOverrideDecision      Operation = "review.override"
	OpViewScoreComparison   Operation = "review.compare"
	OpLockScores            Operation = "review.lock"
	OpUnlockScores          Operation = "review.unlock"
	OpInitiateOversight     Operation = "dd.initiate_oversight"
	OpAssignDDReviewer      Operation = "dd.assign"
	OpSubmitDDScores        Operation = "dd.submit_scores"
	OpSubmitValidatorAction Operation = "dd.validator_action"
	OpCheckDeadlines        Operation = "dd.check_deadlines"
	OpViewDDQueue           Operation = "dd.queue"
	OpViewQualified         Operation = "dd.qualified"
	OpViewRecipients        Operation = "dd.recipients"
	OpRunDiagnostics        Operation = "diagnostics.run"
	OpViewStatistics        Operation = "statistics.view"
)

// policyTable 操作 -> 允许的角色
// 所有工作流操作统一在此鉴权
var policyTable = map[Operation][]Role{
	OpCreateApplication:     {RoleApplicant, RoleAdmin},
	OpSubmitApplication:     {RoleApplicant, RoleAdmin},
	OpViewApplication:       {RoleApplicant, RoleReviewer1, RoleReviewer2, RoleAdmin, RoleTechnicalReviewer, RoleOversight},
	OpTransitionStatus:      {RoleAdmin},
	OpForceTransition:       {RoleAdmin},
	OpArchiveApplication:    {RoleAdmin},
	OpInitializeQueue:       {RoleAdmin},
	OpBulkAssign:            {RoleAdmin},
	OpRedistribute:          {RoleAdmin},
	OpToggleReviewer:        {RoleAdmin},
	OpReassign:              {RoleAdmin},
	OpViewAssignmentStats:   {RoleAdmin, RoleOversight},
	OpSubmitFirstReview:     {RoleReviewer1, RoleAdmin},
	OpSubmitSecondReview:    {RoleReviewer2, RoleAdmin},
	OpOverrideDecision:      {RoleAdmin},
	OpViewScoreComparison:   {RoleReviewer2, RoleAdmin, RoleOversight},
	OpLockScores:            {RoleAdmin},
	OpUnlockScores:          {RoleAdmin},
	OpInitiateOversight:     {RoleOversight, RoleAdmin},
	OpAssignDDReviewer:      {RoleAdmin},
	OpSubmitDDScores:        {RoleTechnicalReviewer, RoleReviewer1, RoleReviewer2, RoleAdmin},
	OpSubmitValidatorAction: {RoleOversight, RoleTechnicalReviewer, RoleAdmin},
	OpCheckDeadlines:        {RoleAdmin, RoleOversight},
	OpViewDDQueue:           {RoleAdmin, RoleOversight, RoleTechnicalReviewer},
	OpViewQualified:         {RoleAdmin, RoleOversight},
	OpViewRecipients:        {RoleAdmin},
	OpRunDiagnostics:        {RoleAdmin, RoleOversight},
	OpViewStatistics:        {RoleAdmin, RoleOversight},
}

// Allowed 判断角色是否可以执行操作
func Allowed(role Role, op Operation) bool {
	for _, r := range policyTable[op] {
		if r == role {
			return true
		}
	}
	return false
}

// Authorize 校验操作人是否可以执行操作
func Authorize(actor *Actor, op Operation) error {
	if actor == nil || actor.ID == "" {
		return ErrNotAuthenticated
	}
	if !Allowed(actor.Role, op) {
		return Unauthorized("FORBIDDEN", "role %q may not perform %s", actor.Role, op)
	}
	return nil
}
