package repository

import (
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"gorm.io/gorm"
)

// WorkflowEventRepository 工作流事件仓储接口
type WorkflowEventRepository interface {
	Save(event *model.WorkflowEventModel) error
	FindByID(id string) (*model.WorkflowEventModel, error)
	FindByApplicationID(applicationID uint) ([]*model.WorkflowEventModel, error)
	FindPending(limit int) ([]*model.WorkflowEventModel, error)
	MarkDelivered(id string) error
	MarkAttempt(id string, status string, lastError string) error
}

// workflowEventRepository 工作流事件仓储实现
type workflowEventRepository struct {
	db *gorm.DB
}

// NewWorkflowEventRepository 创建工作流事件仓储
func NewWorkflowEventRepository(db *gorm.DB) WorkflowEventRepository {
	return &workflowEventRepository{db: db}
}

// Save 保存事件
func (r *workflowEventRepository) Save(event *model.WorkflowEventModel) error {
	if err := event.Validate(); err != nil {
		return err
	}
	return r.db.Create(event).Error
}

// FindByID 根据 ID 查找事件
func (r *workflowEventRepository) FindByID(id string) (*model.WorkflowEventModel, error) {
	var event model.WorkflowEventModel
	if err := r.db.Where("id = ?", id).First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// FindByApplicationID 根据申请 ID 查找事件
func (r *workflowEventRepository) FindByApplicationID(applicationID uint) ([]*model.WorkflowEventModel, error) {
	var events []*model.WorkflowEventModel
	err := r.db.Where("application_id = ?", applicationID).Order("created_at ASC").Find(&events).Error
	return events, err
}

// FindPending 查找待投递的事件
func (r *workflowEventRepository) FindPending(limit int) ([]*model.WorkflowEventModel, error) {
	var events []*model.WorkflowEventModel
	query := r.db.Where("status = ?", model.EventPending).Order("created_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&events).Error
	return events, err
}

// MarkDelivered 标记事件已投递
func (r *workflowEventRepository) MarkDelivered(id string) error {
	return r.db.Model(&model.WorkflowEventModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.EventSuccess,
			"last_error": "",
			"updated_at": time.Now(),
		}).Error
}

// MarkAttempt 记录一次失败的投递
func (r *workflowEventRepository) MarkAttempt(id string, status string, lastError string) error {
	return r.db.Model(&model.WorkflowEventModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  lastError,
			"updated_at":  time.Now(),
		}).Error
}
