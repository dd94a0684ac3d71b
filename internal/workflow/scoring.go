package workflow

import "math"

// Decision 管理员的覆盖决定
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Valid 判断决定是否合法
func (d Decision) Valid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// ReviewTier 评审层级
type ReviewTier int

const (
	TierFirst  ReviewTier = 1
	TierSecond ReviewTier = 2
)

// TierForRole 根据角色获取评审层级
func TierForRole(role Role) (ReviewTier, bool) {
	switch role {
	case RoleReviewer1:
		return TierFirst, true
	case RoleReviewer2:
		return TierSecond, true
	}
	return 0, false
}

// ValidateScore 校验分数范围 [0, max]
func ValidateScore(score, max float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Invalid("INVALID_SCORE", "score must be a finite number")
	}
	if score < 0 || score > max {
		return Invalid("SCORE_OUT_OF_RANGE", "score must be between 0 and %.0f", max)
	}
	return nil
}

// Aggregate 计算总分(两次评分的平均值)
func Aggregate(r1, r2 float64) float64 {
	return (r1 + r2) / 2
}

// Disparity 计算分差
func Disparity(a, b float64) float64 {
	return math.Abs(a - b)
}

// ScoreOutcome 两级评分的汇总结果
type ScoreOutcome struct {
	TotalScore       float64
	Disparity        float64
	DisparityFlagged bool
	IsEligible       bool
	Overridden       bool
	QualifiesForDD   bool
}

// Evaluate 根据 R1/R2 分数与可选的覆盖决定计算结果
// 覆盖决定优先于分数线得出的资格
func Evaluate(r1, r2 float64, override *Decision, s Settings) ScoreOutcome {
	out := ScoreOutcome{
		TotalScore: Aggregate(r1, r2),
		Disparity:  Disparity(r1, r2),
	}
	out.DisparityFlagged = out.Disparity > s.DisparityDelta
	out.IsEligible = out.TotalScore >= s.PassThreshold
	if override != nil {
		out.Overridden = true
		out.IsEligible = *override == DecisionApproved
	}
	out.QualifiesForDD = out.IsEligible && out.TotalScore >= s.DDThreshold
	return out
}
