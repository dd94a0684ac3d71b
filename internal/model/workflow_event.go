package model

import (
	"errors"
	"time"
)

// 事件投递状态
const (
	EventPending = "pending"
	EventSuccess = "success"
	EventFailed  = "failed"
)

// WorkflowEventModel 工作流事件(发件箱)
type WorkflowEventModel struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ApplicationID uint      `gorm:"not null;index" json:"application_id"`
	Type          string    `gorm:"type:varchar(64);not null;index" json:"type"`
	Data          string    `gorm:"type:text;not null" json:"data"` // 序列化后的事件数据
	Status        string    `gorm:"type:varchar(32);not null;index" json:"status"`
	RetryCount    int       `gorm:"not null" json:"retry_count"`
	LastError     string    `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt     time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null" json:"updated_at"`
}

// TableName 指定表名
func (WorkflowEventModel) TableName() string {
	return "workflow_events"
}

// Validate 验证事件模型
func (em *WorkflowEventModel) Validate() error {
	if em.ID == "" {
		return errors.New("event ID is required")
	}
	if em.Type == "" {
		return errors.New("event type is required")
	}
	if em.Data == "" {
		return errors.New("event data is required")
	}
	if em.Status == "" {
		em.Status = EventPending
	}
	return nil
}
