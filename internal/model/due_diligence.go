package model

import (
	"encoding/json"
	"errors"
	"time"
)

// DueDiligenceModel 尽职调查记录, 每个申请最多一条
type DueDiligenceModel struct {
	ID                     uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ApplicationID          uint       `gorm:"not null;uniqueIndex" json:"application_id"`
	AggregateScore         *float64   `json:"aggregate_score,omitempty"` // 进入尽调时的评审总分
	Phase1Scores           string     `gorm:"column:phase1_scores;type:text" json:"-"`
	Phase1Score            *float64   `gorm:"column:phase1_score" json:"phase1_score,omitempty"`
	Phase1Notes            string     `gorm:"column:phase1_notes;type:text" json:"phase1_notes,omitempty"`
	Phase1Status           string     `gorm:"column:phase1_status;type:varchar(32);not null" json:"phase1_status"`
	Phase2Scores           string     `gorm:"column:phase2_scores;type:text" json:"-"`
	Phase2Score            *float64   `gorm:"column:phase2_score" json:"phase2_score,omitempty"`
	Phase2Notes            string     `gorm:"column:phase2_notes;type:text" json:"phase2_notes,omitempty"`
	Phase2Status           string     `gorm:"column:phase2_status;type:varchar(32);not null" json:"phase2_status"`
	DDStatus               string     `gorm:"column:dd_status;type:varchar(32);not null;index:idx_dd_status_deadline,priority:1" json:"dd_status"`
	PrimaryReviewerID      string     `gorm:"type:varchar(64);index" json:"primary_reviewer_id,omitempty"`
	PrimaryReviewedAt      *time.Time `json:"primary_reviewed_at,omitempty"`
	ValidatorReviewerID    string     `gorm:"type:varchar(64);index" json:"validator_reviewer_id,omitempty"`
	PreviousValidatorID    string     `gorm:"type:varchar(64)" json:"previous_validator_id,omitempty"`
	ValidatorAction        string     `gorm:"type:varchar(16)" json:"validator_action,omitempty"`
	ValidatorComments      string     `gorm:"type:text" json:"validator_comments,omitempty"`
	ValidatorActedAt       *time.Time `json:"validator_acted_at,omitempty"`
	ApprovalDeadline       *time.Time `gorm:"index:idx_dd_status_deadline,priority:2" json:"approval_deadline,omitempty"`
	ReassignmentCount      int        `gorm:"not null" json:"reassignment_count"`
	IsOversightInitiated   bool       `gorm:"not null" json:"is_oversight_initiated"`
	OversightJustification string     `gorm:"type:text" json:"oversight_justification,omitempty"`
	OversightInitiatedBy   string     `gorm:"type:varchar(64)" json:"oversight_initiated_by,omitempty"`
	ScoreDisparity         *float64   `json:"score_disparity,omitempty"` // |评审总分 - 尽调得分|
	DDScore                *float64   `gorm:"column:dd_score" json:"dd_score,omitempty"`
	FinalVerdict           string     `gorm:"type:varchar(16)" json:"final_verdict,omitempty"`
	FinalReason            string     `gorm:"type:text" json:"final_reason,omitempty"`
	CompletedAt            *time.Time `json:"completed_at,omitempty"`
	CreatedAt              time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (DueDiligenceModel) TableName() string {
	return "due_diligence_records"
}

// Validate 验证尽调记录
func (d *DueDiligenceModel) Validate() error {
	if d.ApplicationID == 0 {
		return errors.New("application ID is required")
	}
	if d.DDStatus == "" {
		return errors.New("dd status is required")
	}
	return nil
}

// PhaseScores 解析指定阶段的评分项分数
func (d *DueDiligenceModel) PhaseScores(phase int) (map[string]float64, error) {
	raw := d.Phase1Scores
	if phase == 2 {
		raw = d.Phase2Scores
	}
	scores := make(map[string]float64)
	if raw == "" {
		return scores, nil
	}
	if err := json.Unmarshal([]byte(raw), &scores); err != nil {
		return nil, err
	}
	return scores, nil
}

// SetPhaseScores 序列化指定阶段的评分项分数
func (d *DueDiligenceModel) SetPhaseScores(phase int, scores map[string]float64) error {
	data, err := json.Marshal(scores)
	if err != nil {
		return err
	}
	if phase == 2 {
		d.Phase2Scores = string(data)
	} else {
		d.Phase1Scores = string(data)
	}
	return nil
}
