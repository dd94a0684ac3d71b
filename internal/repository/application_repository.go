package repository

import (
	"errors"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"gorm.io/gorm"
)

// ApplicationDetail 申请及其企业、申请人信息
type ApplicationDetail struct {
	Application *model.ApplicationModel `json:"application"`
	Business    *model.BusinessModel    `json:"business,omitempty"`
	Applicant   *model.ApplicantModel   `json:"applicant,omitempty"`
}

// ApplicationFilter 申请查询条件
type ApplicationFilter struct {
	Statuses        []string
	Track           string
	IncludeArchived bool
	Page            int
	PageSize        int
}

// RecipientRow 通知收件人
type RecipientRow struct {
	ApplicationID uint   `json:"application_id"`
	UserID        string `json:"applicant_id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Status        string `json:"status"`
}

// ApplicationRepository 申请仓储接口
type ApplicationRepository interface {
	Create(app *model.ApplicationModel, business *model.BusinessModel, applicant *model.ApplicantModel) error
	FindByID(id uint) (*model.ApplicationModel, error)
	FindDetail(id uint) (*ApplicationDetail, error)
	FindAll(includeArchived bool) ([]*model.ApplicationModel, error)
	List(filter ApplicationFilter) ([]*model.ApplicationModel, int64, error)
	UpdateStatus(id uint, from, to string, at time.Time, extra map[string]interface{}) (bool, error)
	ClaimReviewer(id uint, tier int, reviewerID string, at time.Time) (bool, error)
	SetReviewer(id uint, tier int, reviewerID string, at time.Time) (bool, error)
	ClearReviewers(tier int, statuses []string, at time.Time) (int64, error)
	FindUnassigned(tier int, statuses []string) ([]uint, error)
	CountAssignments(tier int) (map[string]int, error)
	CountByStatus() (map[string]int64, error)
	Archive(id uint, at time.Time) (bool, error)
	ListRecipients(statuses []string) ([]*RecipientRow, error)
}

// applicationRepository 申请仓储实现
type applicationRepository struct {
	db *gorm.DB
}

// NewApplicationRepository 创建申请仓储
func NewApplicationRepository(db *gorm.DB) ApplicationRepository {
	return &applicationRepository{db: db}
}

// Create 创建申请、企业与申请人
func (r *applicationRepository) Create(app *model.ApplicationModel, business *model.BusinessModel, applicant *model.ApplicantModel) error {
	if err := app.Validate(); err != nil {
		return err
	}
	if err := r.db.Create(app).Error; err != nil {
		return err
	}
	if business == nil {
		return nil
	}
	business.ApplicationID = app.ID
	if err := r.db.Create(business).Error; err != nil {
		return err
	}
	if applicant == nil {
		return nil
	}
	applicant.BusinessID = business.ID
	return r.db.Create(applicant).Error
}

// FindByID 根据 ID 查找申请
func (r *applicationRepository) FindByID(id uint) (*model.ApplicationModel, error) {
	var app model.ApplicationModel
	if err := r.db.Where("id = ?", id).First(&app).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

// FindDetail 查找申请详情
func (r *applicationRepository) FindDetail(id uint) (*ApplicationDetail, error) {
	app, err := r.FindByID(id)
	if err != nil {
		return nil, err
	}
	detail := &ApplicationDetail{Application: app}

	var business model.BusinessModel
	err = r.db.Where("application_id = ?", id).First(&business).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return detail, nil
	}
	if err != nil {
		return nil, err
	}
	detail.Business = &business

	var applicant model.ApplicantModel
	err = r.db.Where("business_id = ?", business.ID).First(&applicant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return detail, nil
	}
	if err != nil {
		return nil, err
	}
	detail.Applicant = &applicant
	return detail, nil
}

// FindAll 查找全部申请(按 ID 升序)
func (r *applicationRepository) FindAll(includeArchived bool) ([]*model.ApplicationModel, error) {
	var apps []*model.ApplicationModel
	query := r.db.Order("id ASC")
	if !includeArchived {
		query = query.Where("archived_at IS NULL")
	}
	err := query.Find(&apps).Error
	return apps, err
}

// List 分页查询申请
func (r *applicationRepository) List(filter ApplicationFilter) ([]*model.ApplicationModel, int64, error) {
	query := r.db.Model(&model.ApplicationModel{})
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.Track != "" {
		query = query.Where("track = ?", filter.Track)
	}
	if !filter.IncludeArchived {
		query = query.Where("archived_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var apps []*model.ApplicationModel
	err := query.Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&apps).Error
	return apps, total, err
}

// UpdateStatus 仅当当前状态仍为 from 时更新状态
func (r *applicationRepository) UpdateStatus(id uint, from, to string, at time.Time, extra map[string]interface{}) (bool, error) {
	updates := map[string]interface{}{
		"status":     to,
		"updated_at": at,
	}
	for k, v := range extra {
		updates[k] = v
	}
	result := r.db.Model(&model.ApplicationModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return result.RowsAffected == 1, result.Error
}

// ClaimReviewer 仅当该层级尚未分配时写入评审人
func (r *applicationRepository) ClaimReviewer(id uint, tier int, reviewerID string, at time.Time) (bool, error) {
	idCol, atCol := model.ReviewerColumn(tier)
	result := r.db.Model(&model.ApplicationModel{}).
		Where("id = ? AND "+idCol+" IS NULL AND archived_at IS NULL", id).
		Updates(map[string]interface{}{
			idCol:        reviewerID,
			atCol:        at,
			"updated_at": at,
		})
	return result.RowsAffected == 1, result.Error
}

// SetReviewer 覆盖写入评审人(人工改派)
func (r *applicationRepository) SetReviewer(id uint, tier int, reviewerID string, at time.Time) (bool, error) {
	idCol, atCol := model.ReviewerColumn(tier)
	result := r.db.Model(&model.ApplicationModel{}).
		Where("id = ? AND archived_at IS NULL", id).
		Updates(map[string]interface{}{
			idCol:        reviewerID,
			atCol:        at,
			"updated_at": at,
		})
	return result.RowsAffected == 1, result.Error
}

// ClearReviewers 清空指定状态申请在该层级的分配
func (r *applicationRepository) ClearReviewers(tier int, statuses []string, at time.Time) (int64, error) {
	idCol, atCol := model.ReviewerColumn(tier)
	result := r.db.Model(&model.ApplicationModel{}).
		Where(idCol+" IS NOT NULL AND archived_at IS NULL AND status IN ?", statuses).
		Updates(map[string]interface{}{
			idCol:        nil,
			atCol:        nil,
			"updated_at": at,
		})
	return result.RowsAffected, result.Error
}

// FindUnassigned 查找该层级未分配的申请 ID(按 ID 升序)
func (r *applicationRepository) FindUnassigned(tier int, statuses []string) ([]uint, error) {
	idCol, _ := model.ReviewerColumn(tier)
	var ids []uint
	err := r.db.Model(&model.ApplicationModel{}).
		Where(idCol+" IS NULL AND archived_at IS NULL AND status IN ?", statuses).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// CountAssignments 按评审人统计当前分配数量
func (r *applicationRepository) CountAssignments(tier int) (map[string]int, error) {
	idCol, _ := model.ReviewerColumn(tier)
	var rows []struct {
		ReviewerID string
		Total      int
	}
	err := r.db.Model(&model.ApplicationModel{}).
		Select(idCol + " AS reviewer_id, COUNT(*) AS total").
		Where(idCol + " IS NOT NULL AND archived_at IS NULL").
		Group(idCol).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ReviewerID] = row.Total
	}
	return counts, nil
}

// CountByStatus 按状态统计申请数量
func (r *applicationRepository) CountByStatus() (map[string]int64, error) {
	var rows []struct {
		Status string
		Total  int64
	}
	err := r.db.Model(&model.ApplicationModel{}).
		Select("status, COUNT(*) AS total").
		Where("archived_at IS NULL").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Total
	}
	return counts, nil
}

// Archive 归档申请
func (r *applicationRepository) Archive(id uint, at time.Time) (bool, error) {
	result := r.db.Model(&model.ApplicationModel{}).
		Where("id = ? AND archived_at IS NULL", id).
		Updates(map[string]interface{}{
			"archived_at": at,
			"updated_at":  at,
		})
	return result.RowsAffected == 1, result.Error
}

// ListRecipients 查询指定状态申请的申请人联系方式
func (r *applicationRepository) ListRecipients(statuses []string) ([]*RecipientRow, error) {
	var rows []*RecipientRow
	query := r.db.Table("applications AS a").
		Select("a.id AS application_id, ap.user_id, ap.email, ap.first_name, ap.last_name, a.status").
		Joins("JOIN businesses AS b ON b.application_id = a.id").
		Joins("JOIN applicants AS ap ON ap.business_id = b.id").
		Where("a.archived_at IS NULL")
	if len(statuses) > 0 {
		query = query.Where("a.status IN ?", statuses)
	}
	err := query.Order("a.id ASC").Scan(&rows).Error
	return rows, err
}
