package repository

import (
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"gorm.io/gorm"
)

// EligibilityRepository 评分记录仓储接口
type EligibilityRepository interface {
	Create(result *model.EligibilityResultModel) error
	FindByApplicationID(applicationID uint) (*model.EligibilityResultModel, error)
	FindAll() ([]*model.EligibilityResultModel, error)
	// UpdateWhereLocked 仅当 is_locked 等于 locked 时更新
	UpdateWhereLocked(id uint, locked bool, updates map[string]interface{}) (bool, error)
}

// eligibilityRepository 评分记录仓储实现
type eligibilityRepository struct {
	db *gorm.DB
}

// NewEligibilityRepository 创建评分记录仓储
func NewEligibilityRepository(db *gorm.DB) EligibilityRepository {
	return &eligibilityRepository{db: db}
}

// Create 创建评分记录
func (r *eligibilityRepository) Create(result *model.EligibilityResultModel) error {
	if err := result.Validate(); err != nil {
		return err
	}
	return r.db.Create(result).Error
}

// FindByApplicationID 根据申请 ID 查找评分记录
func (r *eligibilityRepository) FindByApplicationID(applicationID uint) (*model.EligibilityResultModel, error) {
	var result model.EligibilityResultModel
	if err := r.db.Where("application_id = ?", applicationID).First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// FindAll 查找全部评分记录
func (r *eligibilityRepository) FindAll() ([]*model.EligibilityResultModel, error) {
	var results []*model.EligibilityResultModel
	err := r.db.Order("application_id ASC").Find(&results).Error
	return results, err
}

// UpdateWhereLocked 条件更新评分记录
func (r *eligibilityRepository) UpdateWhereLocked(id uint, locked bool, updates map[string]interface{}) (bool, error) {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	result := r.db.Model(&model.EligibilityResultModel{}).
		Where("id = ? AND is_locked = ?", id, locked).
		Updates(updates)
	return result.RowsAffected == 1, result.Error
}
