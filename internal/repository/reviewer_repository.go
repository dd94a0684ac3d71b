package repository

import (
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"gorm.io/gorm"
)

// ReviewerRepository 评审人档案与队列仓储接口
type ReviewerRepository interface {
	SaveProfile(profile *model.UserProfileModel) error
	FindProfile(userID string) (*model.UserProfileModel, error)
	FindProfiles(userIDs []string) (map[string]*model.UserProfileModel, error)
	FindProfilesByRole(roles ...string) ([]*model.UserProfileModel, error)
	AllProfiles() ([]*model.UserProfileModel, error)
	FindQueueEntry(userID string) (*model.ReviewerQueueModel, error)
	FindQueue(role string, activeOnly bool) ([]*model.ReviewerQueueModel, error)
	AllQueueEntries() ([]*model.ReviewerQueueModel, error)
	CreateQueueEntry(entry *model.ReviewerQueueModel) error
	SetActive(userID string, active bool) (bool, error)
	RefreshCounts(role string, counts map[string]int, assignedAt map[string]time.Time) error
}

// reviewerRepository 评审人仓储实现
type reviewerRepository struct {
	db *gorm.DB
}

// NewReviewerRepository 创建评审人仓储
func NewReviewerRepository(db *gorm.DB) ReviewerRepository {
	return &reviewerRepository{db: db}
}

// SaveProfile 保存用户档案
func (r *reviewerRepository) SaveProfile(profile *model.UserProfileModel) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	return r.db.Save(profile).Error
}

// FindProfile 查找用户档案
func (r *reviewerRepository) FindProfile(userID string) (*model.UserProfileModel, error) {
	var profile model.UserProfileModel
	if err := r.db.Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// FindProfiles 批量查找用户档案
func (r *reviewerRepository) FindProfiles(userIDs []string) (map[string]*model.UserProfileModel, error) {
	profiles := make(map[string]*model.UserProfileModel, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}
	var rows []*model.UserProfileModel
	if err := r.db.Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		profiles[p.UserID] = p
	}
	return profiles, nil
}

// FindProfilesByRole 按角色查找用户档案(按 user_id 升序)
func (r *reviewerRepository) FindProfilesByRole(roles ...string) ([]*model.UserProfileModel, error) {
	var profiles []*model.UserProfileModel
	err := r.db.Where("role IN ?", roles).Order("user_id ASC").Find(&profiles).Error
	return profiles, err
}

// AllProfiles 查找全部用户档案
func (r *reviewerRepository) AllProfiles() ([]*model.UserProfileModel, error) {
	var profiles []*model.UserProfileModel
	err := r.db.Order("user_id ASC").Find(&profiles).Error
	return profiles, err
}

// FindQueueEntry 查找队列条目
func (r *reviewerRepository) FindQueueEntry(userID string) (*model.ReviewerQueueModel, error) {
	var entry model.ReviewerQueueModel
	if err := r.db.Where("user_id = ?", userID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// FindQueue 查找某角色的队列条目(按 user_id 升序)
func (r *reviewerRepository) FindQueue(role string, activeOnly bool) ([]*model.ReviewerQueueModel, error) {
	var entries []*model.ReviewerQueueModel
	query := r.db.Where("role = ?", role)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	err := query.Order("user_id ASC").Find(&entries).Error
	return entries, err
}

// AllQueueEntries 查找全部队列条目
func (r *reviewerRepository) AllQueueEntries() ([]*model.ReviewerQueueModel, error) {
	var entries []*model.ReviewerQueueModel
	err := r.db.Order("user_id ASC").Find(&entries).Error
	return entries, err
}

// CreateQueueEntry 创建队列条目
func (r *reviewerRepository) CreateQueueEntry(entry *model.ReviewerQueueModel) error {
	return r.db.Create(entry).Error
}

// SetActive 设置评审人是否参与自动分配
func (r *reviewerRepository) SetActive(userID string, active bool) (bool, error) {
	result := r.db.Model(&model.ReviewerQueueModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		})
	return result.RowsAffected == 1, result.Error
}

// RefreshCounts 用实际分配数量刷新队列快照
func (r *reviewerRepository) RefreshCounts(role string, counts map[string]int, assignedAt map[string]time.Time) error {
	entries, err := r.FindQueue(role, false)
	if err != nil {
		return err
	}
	for _, e := range entries {
		updates := map[string]interface{}{
			"assignment_count": counts[e.UserID],
			"updated_at":       time.Now(),
		}
		if at, ok := assignedAt[e.UserID]; ok {
			updates["last_assigned_at"] = at
		}
		if err := r.db.Model(&model.ReviewerQueueModel{}).Where("user_id = ?", e.UserID).Updates(updates).Error; err != nil {
			return err
		}
	}
	return nil
}
