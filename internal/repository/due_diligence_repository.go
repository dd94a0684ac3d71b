package repository

import (
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"gorm.io/gorm"
)

// DDFilter 尽调队列查询条件
type DDFilter struct {
	Statuses   []string
	ReviewerID string // 主评审或验证人
	Track      string
	County     string
	Sector     string
}

// DDRow 尽调记录与申请信息的联合视图
type DDRow struct {
	ApplicationID        uint       `json:"application_id"`
	BusinessName         string     `json:"business_name"`
	ApplicantFirstName   string     `json:"-"`
	ApplicantLastName    string     `json:"-"`
	County               string     `json:"county"`
	Sector               string     `json:"sector"`
	Track                string     `json:"track"`
	ApplicationStatus    string     `json:"application_status"`
	AggregateScore       *float64   `json:"aggregate_score,omitempty"`
	DDScore              *float64   `gorm:"column:dd_score" json:"dd_score,omitempty"`
	DDStatus             string     `gorm:"column:dd_status" json:"dd_status"`
	Phase1Status         string     `gorm:"column:phase1_status" json:"phase1_status"`
	Phase2Status         string     `gorm:"column:phase2_status" json:"phase2_status"`
	FinalVerdict         string     `json:"final_verdict,omitempty"`
	ApprovalDeadline     *time.Time `json:"approval_deadline,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	IsOversightInitiated bool       `json:"is_oversight_initiated"`
	Reviewer1ID          *string    `gorm:"column:reviewer1_id" json:"reviewer1_id,omitempty"`
	Reviewer2ID          *string    `gorm:"column:reviewer2_id" json:"reviewer2_id,omitempty"`
	PrimaryReviewerID    string     `json:"primary_reviewer_id,omitempty"`
	ValidatorReviewerID  string     `json:"validator_reviewer_id,omitempty"`
}

// DueDiligenceRepository 尽调记录仓储接口
type DueDiligenceRepository interface {
	Create(record *model.DueDiligenceModel) error
	FindByApplicationID(applicationID uint) (*model.DueDiligenceModel, error)
	FindAll() ([]*model.DueDiligenceModel, error)
	// UpdateInStatus 仅当记录仍处于给定状态之一时更新
	UpdateInStatus(id uint, statuses []string, updates map[string]interface{}) (bool, error)
	// UpdateForValidator 仅当记录仍由该验证人负责且处于给定状态之一时更新
	UpdateForValidator(id uint, validatorID string, statuses []string, updates map[string]interface{}) (bool, error)
	FindExpired(now time.Time) ([]*model.DueDiligenceModel, error)
	// ReassignExpired 仅当记录仍在等待审批且已过期时转交
	ReassignExpired(id uint, now time.Time, updates map[string]interface{}) (bool, error)
	CountOpenByValidator() (map[string]int, error)
	FindOverdueReassigned(now time.Time) ([]*model.DueDiligenceModel, error)
	Query(filter DDFilter) ([]*DDRow, error)
}

// dueDiligenceRepository 尽调记录仓储实现
type dueDiligenceRepository struct {
	db *gorm.DB
}

// NewDueDiligenceRepository 创建尽调记录仓储
func NewDueDiligenceRepository(db *gorm.DB) DueDiligenceRepository {
	return &dueDiligenceRepository{db: db}
}

// Create 创建尽调记录
func (r *dueDiligenceRepository) Create(record *model.DueDiligenceModel) error {
	if err := record.Validate(); err != nil {
		return err
	}
	return r.db.Create(record).Error
}

// FindByApplicationID 根据申请 ID 查找尽调记录
func (r *dueDiligenceRepository) FindByApplicationID(applicationID uint) (*model.DueDiligenceModel, error) {
	var record model.DueDiligenceModel
	if err := r.db.Where("application_id = ?", applicationID).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindAll 查找全部尽调记录
func (r *dueDiligenceRepository) FindAll() ([]*model.DueDiligenceModel, error) {
	var records []*model.DueDiligenceModel
	err := r.db.Order("application_id ASC").Find(&records).Error
	return records, err
}

// UpdateInStatus 条件更新尽调记录
func (r *dueDiligenceRepository) UpdateInStatus(id uint, statuses []string, updates map[string]interface{}) (bool, error) {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	result := r.db.Model(&model.DueDiligenceModel{}).
		Where("id = ? AND dd_status IN ?", id, statuses).
		Updates(updates)
	return result.RowsAffected == 1, result.Error
}

// UpdateForValidator 验证人条件更新
func (r *dueDiligenceRepository) UpdateForValidator(id uint, validatorID string, statuses []string, updates map[string]interface{}) (bool, error) {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	result := r.db.Model(&model.DueDiligenceModel{}).
		Where("id = ? AND validator_reviewer_id = ? AND dd_status IN ?", id, validatorID, statuses).
		Updates(updates)
	return result.RowsAffected == 1, result.Error
}

// FindExpired 查找待审批且已过期的记录, 已转交的记录不会再次被选中
func (r *dueDiligenceRepository) FindExpired(now time.Time) ([]*model.DueDiligenceModel, error) {
	var records []*model.DueDiligenceModel
	err := r.db.Where("dd_status = ? AND approval_deadline IS NOT NULL AND approval_deadline < ?", string(workflow.DDAwaitingApproval), now).
		Order("id ASC").
		Find(&records).Error
	return records, err
}

// ReassignExpired 转交过期记录
func (r *dueDiligenceRepository) ReassignExpired(id uint, now time.Time, updates map[string]interface{}) (bool, error) {
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = now
	}
	result := r.db.Model(&model.DueDiligenceModel{}).
		Where("id = ? AND dd_status = ? AND approval_deadline < ?", id, string(workflow.DDAwaitingApproval), now).
		Updates(updates)
	return result.RowsAffected == 1, result.Error
}

// CountOpenByValidator 统计每个验证人待处理的审批数量
func (r *dueDiligenceRepository) CountOpenByValidator() (map[string]int, error) {
	var rows []struct {
		ValidatorReviewerID string
		Total               int
	}
	err := r.db.Model(&model.DueDiligenceModel{}).
		Select("validator_reviewer_id, COUNT(*) AS total").
		Where("validator_reviewer_id <> '' AND dd_status IN ?", []string{string(workflow.DDAwaitingApproval), string(workflow.DDAutoReassigned)}).
		Group("validator_reviewer_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ValidatorReviewerID] = row.Total
	}
	return counts, nil
}

// FindOverdueReassigned 查找转交后再次超时的记录
func (r *dueDiligenceRepository) FindOverdueReassigned(now time.Time) ([]*model.DueDiligenceModel, error) {
	var records []*model.DueDiligenceModel
	err := r.db.Where("dd_status = ? AND approval_deadline < ?", string(workflow.DDAutoReassigned), now).
		Order("id ASC").
		Find(&records).Error
	return records, err
}

// Query 查询尽调联合视图
func (r *dueDiligenceRepository) Query(filter DDFilter) ([]*DDRow, error) {
	query := r.db.Table("due_diligence_records AS dd").
		Select(`dd.application_id, b.name AS business_name,
			ap.first_name AS applicant_first_name, ap.last_name AS applicant_last_name,
			b.county, b.sector, a.track, a.status AS application_status,
			dd.aggregate_score, dd.dd_score, dd.dd_status, dd.phase1_status, dd.phase2_status,
			dd.final_verdict, dd.approval_deadline, dd.completed_at, dd.is_oversight_initiated,
			a.reviewer1_id, a.reviewer2_id, dd.primary_reviewer_id, dd.validator_reviewer_id`).
		Joins("JOIN applications AS a ON a.id = dd.application_id").
		Joins("LEFT JOIN businesses AS b ON b.application_id = a.id").
		Joins("LEFT JOIN applicants AS ap ON ap.business_id = b.id").
		Where("a.archived_at IS NULL")

	if len(filter.Statuses) > 0 {
		query = query.Where("dd.dd_status IN ?", filter.Statuses)
	}
	if filter.ReviewerID != "" {
		query = query.Where("dd.primary_reviewer_id = ? OR dd.validator_reviewer_id = ?", filter.ReviewerID, filter.ReviewerID)
	}
	if filter.Track != "" {
		query = query.Where("a.track = ?", filter.Track)
	}
	if filter.County != "" {
		query = query.Where("b.county = ?", filter.County)
	}
	if filter.Sector != "" {
		query = query.Where("b.sector = ?", filter.Sector)
	}

	var rows []*DDRow
	err := query.Order("dd.application_id ASC").Scan(&rows).Error
	return rows, err
}
