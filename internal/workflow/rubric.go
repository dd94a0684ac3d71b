package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DDPhase 尽调阶段
type DDPhase int

const (
	PhaseOne DDPhase = 1 // 电话/案头核查
	PhaseTwo DDPhase = 2 // 实地走访
)

// Criterion 评分项
type Criterion struct {
	Key      string  `yaml:"key" json:"key"`
	Label    string  `yaml:"label" json:"label"`
	MaxScore float64 `yaml:"maxScore" json:"max_score"`
}

// Rubric 单个阶段的评分细则
type Rubric struct {
	Criteria []Criterion `yaml:"criteria" json:"criteria"`
}

// Rubrics 两个阶段的评分细则
type Rubrics struct {
	Phase1 Rubric `yaml:"phase1" json:"phase1"`
	Phase2 Rubric `yaml:"phase2" json:"phase2"`
}

// For 获取指定阶段的细则
func (r Rubrics) For(phase DDPhase) (Rubric, error) {
	switch phase {
	case PhaseOne:
		return r.Phase1, nil
	case PhaseTwo:
		return r.Phase2, nil
	}
	return Rubric{}, Invalid("INVALID_PHASE", "unknown due diligence phase %d", phase)
}

// DefaultRubrics 默认评分细则
func DefaultRubrics() Rubrics {
	return Rubrics{
		Phase1: Rubric{Criteria: []Criterion{
			{Key: "business_registration", Label: "Business registration and compliance", MaxScore: 15},
			{Key: "financial_records", Label: "Financial records and revenue evidence", MaxScore: 25},
			{Key: "operations", Label: "Operational activity verification", MaxScore: 20},
			{Key: "market_validation", Label: "Market and customer validation", MaxScore: 20},
			{Key: "management_capacity", Label: "Management capacity", MaxScore: 20},
		}},
		Phase2: Rubric{Criteria: []Criterion{
			{Key: "premises", Label: "Premises verification", MaxScore: 25},
			{Key: "operational_capacity", Label: "Observed operational capacity", MaxScore: 25},
			{Key: "employees", Label: "Employee verification", MaxScore: 20},
			{Key: "assets", Label: "Inventory and assets", MaxScore: 15},
			{Key: "community_impact", Label: "Community and environmental impact", MaxScore: 15},
		}},
	}
}

// LoadRubrics 从 YAML 文件加载评分细则
// 文件不存在时返回默认细则
func LoadRubrics(path string) (Rubrics, error) {
	if path == "" {
		return DefaultRubrics(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRubrics(), nil
		}
		return Rubrics{}, fmt.Errorf("read rubric file: %w", err)
	}

	var r Rubrics
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Rubrics{}, fmt.Errorf("parse rubric file: %w", err)
	}
	if err := r.validate(); err != nil {
		return Rubrics{}, err
	}
	return r, nil
}

func (r Rubrics) validate() error {
	for name, rb := range map[string]Rubric{"phase1": r.Phase1, "phase2": r.Phase2} {
		if len(rb.Criteria) == 0 {
			return fmt.Errorf("rubric %s has no criteria", name)
		}
		seen := make(map[string]bool, len(rb.Criteria))
		for _, c := range rb.Criteria {
			if c.Key == "" || c.MaxScore <= 0 {
				return fmt.Errorf("rubric %s has an invalid criterion %q", name, c.Key)
			}
			if seen[c.Key] {
				return fmt.Errorf("rubric %s has duplicate criterion %q", name, c.Key)
			}
			seen[c.Key] = true
		}
	}
	return nil
}

// PhaseResult 阶段评分结果
type PhaseResult struct {
	Total    float64
	Complete bool
}

// EvaluatePhase 校验评分项并计算阶段总分
// 所有评分项都有分数时阶段才算完成
func (rb Rubric) EvaluatePhase(scores map[string]float64) (PhaseResult, error) {
	known := make(map[string]Criterion, len(rb.Criteria))
	for _, c := range rb.Criteria {
		known[c.Key] = c
	}
	var res PhaseResult
	for key, v := range scores {
		c, ok := known[key]
		if !ok {
			return PhaseResult{}, Invalid("UNKNOWN_CRITERION", "unknown criterion %q", key)
		}
		if err := ValidateScore(v, c.MaxScore); err != nil {
			return PhaseResult{}, Invalid("CRITERION_OUT_OF_RANGE", "criterion %q must be between 0 and %.0f", key, c.MaxScore)
		}
		res.Total += v
	}
	res.Complete = len(rb.Criteria) > 0
	for _, c := range rb.Criteria {
		if _, ok := scores[c.Key]; !ok {
			res.Complete = false
			break
		}
	}
	return res, nil
}
