package model

import (
	"errors"
	"time"
)

// ApplicationModel 申请数据模型
// Reviewer1ID/Reviewer2ID 为当前生效的 R1/R2 分配, NULL 表示未分配
type ApplicationModel struct {
	ID                  uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Status              string     `gorm:"type:varchar(32);not null;index:idx_applications_status_archived,priority:1" json:"status"`
	Track               string     `gorm:"type:varchar(32);not null" json:"track"`
	Reviewer1ID         *string    `gorm:"column:reviewer1_id;type:varchar(64);index" json:"reviewer1_id,omitempty"`
	Reviewer1AssignedAt *time.Time `gorm:"column:reviewer1_assigned_at" json:"reviewer1_assigned_at,omitempty"`
	Reviewer2ID         *string    `gorm:"column:reviewer2_id;type:varchar(64);index" json:"reviewer2_id,omitempty"`
	Reviewer2AssignedAt *time.Time `gorm:"column:reviewer2_assigned_at" json:"reviewer2_assigned_at,omitempty"`
	CreatedAt           time.Time  `gorm:"not null" json:"created_at"`
	SubmittedAt         *time.Time `json:"submitted_at,omitempty"`
	UpdatedAt           time.Time  `gorm:"not null" json:"updated_at"`
	ArchivedAt          *time.Time `gorm:"index:idx_applications_status_archived,priority:2" json:"archived_at,omitempty"`
}

// TableName 指定表名
func (ApplicationModel) TableName() string {
	return "applications"
}

// Validate 验证申请模型
func (am *ApplicationModel) Validate() error {
	if am.Status == "" {
		return errors.New("status is required")
	}
	if am.Track == "" {
		return errors.New("track is required")
	}
	return nil
}

// ReviewerColumn 返回指定层级评审人所在的列
func ReviewerColumn(tier int) (idColumn string, assignedAtColumn string) {
	if tier == 2 {
		return "reviewer2_id", "reviewer2_assigned_at"
	}
	return "reviewer1_id", "reviewer1_assigned_at"
}

// BusinessModel 企业信息(与申请一对一)
type BusinessModel struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ApplicationID      uint      `gorm:"not null;uniqueIndex" json:"application_id"`
	Name               string    `gorm:"type:varchar(255);not null" json:"name"`
	County             string    `gorm:"type:varchar(64)" json:"county"`
	Sector             string    `gorm:"type:varchar(64)" json:"sector"`
	RegistrationNumber string    `gorm:"type:varchar(64)" json:"registration_number"`
	CreatedAt          time.Time `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (BusinessModel) TableName() string {
	return "businesses"
}

// ApplicantModel 申请人(通过企业与申请一对一)
type ApplicantModel struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	BusinessID uint      `gorm:"not null;uniqueIndex" json:"business_id"`
	UserID     string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	FirstName  string    `gorm:"type:varchar(128)" json:"first_name"`
	LastName   string    `gorm:"type:varchar(128)" json:"last_name"`
	Email      string    `gorm:"type:varchar(255)" json:"email"`
	Phone      string    `gorm:"type:varchar(32)" json:"phone"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

// TableName 指定表名
func (ApplicantModel) TableName() string {
	return "applicants"
}

// FullName 申请人全名
func (a *ApplicantModel) FullName() string {
	return joinName(a.FirstName, a.LastName)
}
