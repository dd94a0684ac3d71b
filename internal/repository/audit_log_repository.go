package repository

import (
	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"gorm.io/gorm"
)

// AuditLogFilter 审计日志查询条件, 空字段不参与过滤
type AuditLogFilter struct {
	ResourceTypes []string
	ResourceID    string
	UserID        string
	Limit         int
}

// AuditLogRepository 审计日志仓储接口
type AuditLogRepository interface {
	Save(log *model.AuditLogModel) error
	Find(filter AuditLogFilter) ([]*model.AuditLogModel, error)
	FindByResource(resourceType string, resourceID string) ([]*model.AuditLogModel, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository 创建审计日志仓储
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

// Save 保存审计日志, 审计日志只追加不修改
func (r *auditLogRepository) Save(log *model.AuditLogModel) error {
	if err := log.Validate(); err != nil {
		return err
	}
	return r.db.Create(log).Error
}

// Find 按条件查询, 最新的在前
func (r *auditLogRepository) Find(filter AuditLogFilter) ([]*model.AuditLogModel, error) {
	query := r.db.Model(&model.AuditLogModel{})
	if len(filter.ResourceTypes) > 0 {
		query = query.Where("resource_type IN ?", filter.ResourceTypes)
	}
	if filter.ResourceID != "" {
		query = query.Where("resource_id = ?", filter.ResourceID)
	}
	if filter.UserID != "" {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var logs []*model.AuditLogModel
	err := query.Order("created_at DESC").Find(&logs).Error
	return logs, err
}

// FindByResource 查询单个资源的审计日志
func (r *auditLogRepository) FindByResource(resourceType string, resourceID string) ([]*model.AuditLogModel, error) {
	return r.Find(AuditLogFilter{ResourceTypes: []string{resourceType}, ResourceID: resourceID})
}
