package model

import (
	"errors"
	"time"
)

// EligibilityResultModel 两级评分记录, 每个申请最多一条
type EligibilityResultModel struct {
	ID                uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	ApplicationID     uint       `gorm:"not null;uniqueIndex" json:"application_id"`
	Reviewer1Score    *float64   `gorm:"column:reviewer1_score" json:"reviewer1_score,omitempty"`
	Reviewer1Notes    string     `gorm:"column:reviewer1_notes;type:text" json:"reviewer1_notes,omitempty"`
	Reviewer1At       *time.Time `gorm:"column:reviewer1_at" json:"reviewer1_at,omitempty"`
	Reviewer1By       string     `gorm:"column:reviewer1_by;type:varchar(64);index" json:"reviewer1_by,omitempty"`
	Reviewer2Score    *float64   `gorm:"column:reviewer2_score" json:"reviewer2_score,omitempty"`
	Reviewer2Notes    string     `gorm:"column:reviewer2_notes;type:text" json:"reviewer2_notes,omitempty"`
	Reviewer2At       *time.Time `gorm:"column:reviewer2_at" json:"reviewer2_at,omitempty"`
	Reviewer2By       string     `gorm:"column:reviewer2_by;type:varchar(64);index" json:"reviewer2_by,omitempty"`
	OverrodeReviewer1 bool       `gorm:"column:overrode_reviewer1;not null" json:"overrode_reviewer1"`
	OverrideDecision  string     `gorm:"type:varchar(16)" json:"override_decision,omitempty"`
	OverrideBy        string     `gorm:"type:varchar(64)" json:"override_by,omitempty"`
	TotalScore        *float64   `json:"total_score,omitempty"`
	IsEligible        bool       `gorm:"not null" json:"is_eligible"`
	ScoreDisparity    *float64   `json:"score_disparity,omitempty"`
	DisparityFlagged  bool       `gorm:"not null" json:"disparity_flagged"`
	IsLocked          bool       `gorm:"not null" json:"is_locked"`
	LockedBy          string     `gorm:"type:varchar(64)" json:"locked_by,omitempty"`
	LockedAt          *time.Time `json:"locked_at,omitempty"`
	LockReason        string     `gorm:"type:text" json:"lock_reason,omitempty"`
	CreatedAt         time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (EligibilityResultModel) TableName() string {
	return "eligibility_results"
}

// Validate 验证评分记录
func (e *EligibilityResultModel) Validate() error {
	if e.ApplicationID == 0 {
		return errors.New("application ID is required")
	}
	if e.Reviewer2Score != nil && e.Reviewer1Score == nil {
		return errors.New("reviewer 2 cannot score before reviewer 1")
	}
	return nil
}

// IsFinal 两级评分均已完成
func (e *EligibilityResultModel) IsFinal() bool {
	return e.Reviewer1Score != nil && e.Reviewer2Score != nil
}
