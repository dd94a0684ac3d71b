package workflow

// Role 用户角色
type Role string

const (
	RoleApplicant         Role = "applicant"
	RoleReviewer1         Role = "reviewer_1"
	RoleReviewer2         Role = "reviewer_2"
	RoleAdmin             Role = "admin"
	RoleTechnicalReviewer Role = "technical_reviewer"
	RoleOversight         Role = "oversight"
)

// Valid 判断角色是否合法
func (r Role) Valid() bool {
	switch r {
	case RoleApplicant, RoleReviewer1, RoleReviewer2, RoleAdmin, RoleTechnicalReviewer, RoleOversight:
		return true
	}
	return false
}

// IsReviewerRole 是否为参与自动分配的评审角色
func (r Role) IsReviewerRole() bool {
	return r == RoleReviewer1 || r == RoleReviewer2
}

// ReviewerLoad 评审人当前负载
type ReviewerLoad struct {
	ReviewerID string
	Count      int
}

// PickLeastLoaded 选出负载最低的评审人
// 负载相同时选择 ReviewerID 最小者, 没有候选人时返回 -1
func PickLeastLoaded(loads []ReviewerLoad) int {
	best := -1
	for i, l := range loads {
		if best == -1 ||
			l.Count < loads[best].Count ||
			(l.Count == loads[best].Count && l.ReviewerID < loads[best].ReviewerID) {
			best = i
		}
	}
	return best
}

// Spread 返回最大负载与最小负载之差
func Spread(loads []ReviewerLoad) int {
	if len(loads) == 0 {
		return 0
	}
	lo, hi := loads[0].Count, loads[0].Count
	for _, l := range loads[1:] {
		if l.Count < lo {
			lo = l.Count
		}
		if l.Count > hi {
			hi = l.Count
		}
	}
	return hi - lo
}
