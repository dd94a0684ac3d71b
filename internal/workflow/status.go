package workflow

// ApplicationStatus 申请状态
type ApplicationStatus string

const (
	StatusDraft               ApplicationStatus = "draft"
	StatusSubmitted           ApplicationStatus = "submitted"
	StatusUnderReview         ApplicationStatus = "under_review"
	StatusPendingSeniorReview ApplicationStatus = "pending_senior_review"
	StatusScoringPhase        ApplicationStatus = "scoring_phase"
	StatusShortlisted         ApplicationStatus = "shortlisted"
	StatusDragonsDen          ApplicationStatus = "dragons_den"
	StatusFinalist            ApplicationStatus = "finalist"
	StatusApproved            ApplicationStatus = "approved"
	StatusRejected            ApplicationStatus = "rejected"
)

// AllStatuses 所有申请状态(按流程顺序)
var AllStatuses = []ApplicationStatus{
	StatusDraft,
	StatusSubmitted,
	StatusUnderReview,
	StatusPendingSeniorReview,
	StatusScoringPhase,
	StatusShortlisted,
	StatusDragonsDen,
	StatusFinalist,
	StatusApproved,
	StatusRejected,
}

// Track 申请赛道
type Track string

const (
	TrackFoundation   Track = "foundation"
	TrackAcceleration Track = "acceleration"
)

// Valid 判断赛道是否合法
func (t Track) Valid() bool {
	return t == TrackFoundation || t == TrackAcceleration
}

// forwardTransitions 正常流程允许的状态转换(仅向前)
// rejected 由 rejectableStatuses 单独处理
var forwardTransitions = map[ApplicationStatus][]ApplicationStatus{
	StatusDraft:               {StatusSubmitted},
	StatusSubmitted:           {StatusUnderReview},
	StatusUnderReview:         {StatusPendingSeniorReview},
	StatusPendingSeniorReview: {StatusScoringPhase},
	StatusScoringPhase:        {StatusShortlisted, StatusDragonsDen},
	StatusShortlisted:         {StatusDragonsDen},
	StatusDragonsDen:          {StatusFinalist},
	StatusFinalist:            {StatusApproved},
}

// Valid 判断状态是否合法
func (s ApplicationStatus) Valid() bool {
	for _, st := range AllStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// IsTerminal 是否为终态
func (s ApplicationStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition 判断正常流程下 from -> to 是否允许
// 所有非强制的状态变更都必须经过这里
func CanTransition(from, to ApplicationStatus) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	if to == StatusRejected {
		// 草稿尚未提交, 不能直接拒绝
		return from != StatusDraft && !from.IsTerminal()
	}
	for _, next := range forwardTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions 返回 from 状态可以转换到的所有状态
func AllowedTransitions(from ApplicationStatus) []ApplicationStatus {
	allowed := make([]ApplicationStatus, 0, 3)
	allowed = append(allowed, forwardTransitions[from]...)
	if CanTransition(from, StatusRejected) {
		allowed = append(allowed, StatusRejected)
	}
	return allowed
}

// CanScoreFirstReview R1 评分允许的申请状态
func CanScoreFirstReview(s ApplicationStatus) bool {
	return s == StatusSubmitted || s == StatusUnderReview
}

// CanScoreSecondReview R2 评分允许的申请状态
func CanScoreSecondReview(s ApplicationStatus) bool {
	return s == StatusPendingSeniorReview
}
