package model

import (
	"errors"
	"strings"
	"time"
)

// UserProfileModel 用户档案
type UserProfileModel struct {
	UserID    string    `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	FirstName string    `gorm:"type:varchar(128)" json:"first_name"`
	LastName  string    `gorm:"type:varchar(128)" json:"last_name"`
	Email     string    `gorm:"type:varchar(255);index" json:"email"`
	Role      string    `gorm:"type:varchar(32);not null;index" json:"role"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (UserProfileModel) TableName() string {
	return "user_profiles"
}

// Validate 验证用户档案
func (u *UserProfileModel) Validate() error {
	if u.UserID == "" {
		return errors.New("user ID is required")
	}
	if u.Role == "" {
		return errors.New("role is required")
	}
	return nil
}

// FullName 用户全名
func (u *UserProfileModel) FullName() string {
	return joinName(u.FirstName, u.LastName)
}

func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// ReviewerQueueModel 评审人队列
// AssignmentCount 仅为快照, 每次分配时在同一事务内按实际分配重新统计
type ReviewerQueueModel struct {
	UserID          string     `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	Role            string     `gorm:"type:varchar(32);not null;index" json:"role"`
	IsActive        bool       `gorm:"not null;index" json:"is_active"`
	AssignmentCount int        `gorm:"not null" json:"assignment_count"`
	LastAssignedAt  *time.Time `json:"last_assigned_at,omitempty"`
	CreatedAt       time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (ReviewerQueueModel) TableName() string {
	return "reviewer_queue"
}
