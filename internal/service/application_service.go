package service

import (
	"context"
	"errors"
	"strings"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// CreateApplicationRequest 创建申请请求
type CreateApplicationRequest struct {
	Track    string `json:"track" binding:"required"`
	Business struct {
		Name               string `json:"name" binding:"required"`
		County             string `json:"county"`
		Sector             string `json:"sector"`
		RegistrationNumber string `json:"registration_number"`
	} `json:"business"`
	Applicant struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Phone     string `json:"phone"`
	} `json:"applicant"`
}

// ApplicationService 申请状态机服务
type ApplicationService interface {
	Create(ctx context.Context, req *CreateApplicationRequest) (*model.ApplicationModel, error)
	Submit(ctx context.Context, id uint) (*model.ApplicationModel, error)
	Get(ctx context.Context, id uint) (*repository.ApplicationDetail, error)
	List(ctx context.Context, filter repository.ApplicationFilter) ([]*model.ApplicationModel, int64, error)
	Transition(ctx context.Context, id uint, to workflow.ApplicationStatus, notes string) (*model.ApplicationModel, error)
	ForceTransition(ctx context.Context, id uint, to workflow.ApplicationStatus, notes string) (*model.ApplicationModel, error)
	BulkForceTransition(ctx context.Context, ids []uint, to workflow.ApplicationStatus, notes string) (*BulkResult, error)
	Archive(ctx context.Context, id uint) error
	History(ctx context.Context, id uint) ([]*model.StateHistoryModel, error)
}

type applicationService struct {
	base
	apps    repository.ApplicationRepository
	history repository.StateHistoryRepository
}

// NewApplicationService 创建申请服务
func NewApplicationService(deps Deps) ApplicationService {
	return &applicationService{
		base:    newBase(deps),
		apps:    repository.NewApplicationRepository(deps.DB),
		history: repository.NewStateHistoryRepository(deps.DB),
	}
}

// Create 创建草稿申请
func (s *applicationService) Create(ctx context.Context, req *CreateApplicationRequest) (*model.ApplicationModel, error) {
	actor, err := s.authorize(ctx, workflow.OpCreateApplication)
	if err != nil {
		return nil, err
	}
	if !workflow.Track(req.Track).Valid() {
		return nil, workflow.Invalid("INVALID_TRACK", "track must be foundation or acceleration")
	}
	if strings.TrimSpace(req.Business.Name) == "" {
		return nil, workflow.Invalid("BUSINESS_NAME_REQUIRED", "business name is required")
	}

	var app *model.ApplicationModel
	err = s.run(ctx, workflow.OpCreateApplication, actor, func(cs *changeSet) error {
		app = &model.ApplicationModel{
			Status:    string(workflow.StatusDraft),
			Track:     req.Track,
			CreatedAt: cs.now,
			UpdatedAt: cs.now,
		}
		business := &model.BusinessModel{
			Name:               strings.TrimSpace(req.Business.Name),
			County:             req.Business.County,
			Sector:             req.Business.Sector,
			RegistrationNumber: req.Business.RegistrationNumber,
			CreatedAt:          cs.now,
		}
		applicant := &model.ApplicantModel{
			UserID:    actor.ID,
			FirstName: req.Applicant.FirstName,
			LastName:  req.Applicant.LastName,
			Email:     req.Applicant.Email,
			Phone:     req.Applicant.Phone,
			CreatedAt: cs.now,
		}
		if err := cs.apps.Create(app, business, applicant); err != nil {
			return err
		}
		return cs.audit(workflow.OpCreateApplication, model.ResourceApplication, resourceID(app.ID), map[string]interface{}{
			"track":    req.Track,
			"business": business.Name,
		})
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Submit 提交草稿申请
func (s *applicationService) Submit(ctx context.Context, id uint) (*model.ApplicationModel, error) {
	actor, err := s.authorize(ctx, workflow.OpSubmitApplication)
	if err != nil {
		return nil, err
	}

	var app *model.ApplicationModel
	err = s.run(ctx, workflow.OpSubmitApplication, actor, func(cs *changeSet) error {
		detail, err := cs.apps.FindDetail(id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return workflow.NotFound("APPLICATION_NOT_FOUND", "application %d not found", id)
		}
		if err != nil {
			return err
		}
		if err := checkOwner(actor, detail); err != nil {
			return err
		}
		app = detail.Application
		if app.ArchivedAt != nil {
			return workflow.Conflict("APPLICATION_ARCHIVED", "application %d is archived", id)
		}
		if err := cs.moveApplication(app, workflow.StatusSubmitted, "submitted by applicant", false); err != nil {
			return err
		}
		return cs.audit(workflow.OpSubmitApplication, model.ResourceApplication, resourceID(id), nil)
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithField("application_id", id).Info("application submitted")
	return app, nil
}

// checkOwner 申请人只能操作自己的申请
func checkOwner(actor *workflow.Actor, detail *repository.ApplicationDetail) error {
	if actor.Role != workflow.RoleApplicant {
		return nil
	}
	if detail.Applicant == nil || detail.Applicant.UserID != actor.ID {
		return workflow.Unauthorized("NOT_OWNER", "application %d belongs to another applicant", detail.Application.ID)
	}
	return nil
}

// Get 获取申请详情
func (s *applicationService) Get(ctx context.Context, id uint) (*repository.ApplicationDetail, error) {
	actor, err := s.authorize(ctx, workflow.OpViewApplication)
	if err != nil {
		return nil, err
	}
	detail, err := s.apps.FindDetail(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.NotFound("APPLICATION_NOT_FOUND", "application %d not found", id)
	}
	if err != nil {
		return nil, s.internal(ctx, workflow.OpViewApplication, err)
	}
	if err := checkOwner(actor, detail); err != nil {
		return nil, err
	}
	return detail, nil
}

// List 分页查询申请, 申请人不可使用
func (s *applicationService) List(ctx context.Context, filter repository.ApplicationFilter) ([]*model.ApplicationModel, int64, error) {
	actor, err := s.authorize(ctx, workflow.OpViewApplication)
	if err != nil {
		return nil, 0, err
	}
	if actor.Role == workflow.RoleApplicant {
		return nil, 0, workflow.Unauthorized("FORBIDDEN", "applicants may not list applications")
	}
	apps, total, err := s.apps.List(filter)
	if err != nil {
		return nil, 0, s.internal(ctx, workflow.OpViewApplication, err)
	}
	return apps, total, nil
}

// Transition 按状态转换表变更状态
func (s *applicationService) Transition(ctx context.Context, id uint, to workflow.ApplicationStatus, notes string) (*model.ApplicationModel, error) {
	return s.transition(ctx, workflow.OpTransitionStatus, id, to, notes, false)
}

// ForceTransition 管理员强制变更状态, 绕过转换表并记录为强制变更
func (s *applicationService) ForceTransition(ctx context.Context, id uint, to workflow.ApplicationStatus, notes string) (*model.ApplicationModel, error) {
	return s.transition(ctx, workflow.OpForceTransition, id, to, notes, true)
}

func (s *applicationService) transition(ctx context.Context, op workflow.Operation, id uint, to workflow.ApplicationStatus, notes string, forced bool) (*model.ApplicationModel, error) {
	actor, err := s.authorize(ctx, op)
	if err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, workflow.Invalid("INVALID_STATUS", "unknown status %q", to)
	}
	return s.transitionOne(ctx, op, actor, id, to, notes, forced)
}

func (s *applicationService) transitionOne(ctx context.Context, op workflow.Operation, actor *workflow.Actor, id uint, to workflow.ApplicationStatus, notes string, forced bool) (*model.ApplicationModel, error) {
	var app *model.ApplicationModel
	var from string
	err := s.run(ctx, op, actor, func(cs *changeSet) error {
		var err error
		app, err = cs.loadActiveApplication(id)
		if err != nil {
			return err
		}
		from = app.Status
		if from == string(to) {
			return workflow.Conflict("SAME_STATUS", "application %d is already %s", id, to)
		}
		if err := cs.moveApplication(app, to, notes, forced); err != nil {
			return err
		}
		return cs.audit(op, model.ResourceApplication, resourceID(id), map[string]interface{}{
			"from":   from,
			"to":     to,
			"notes":  notes,
			"forced": forced,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"application_id": id,
		"from":           from,
		"to":             to,
		"forced":         forced,
		"operator":       actor.ID,
	}).Info("application status changed")
	return app, nil
}

// BulkForceTransition 批量强制变更, 每个申请独立事务, 失败不影响其他申请
func (s *applicationService) BulkForceTransition(ctx context.Context, ids []uint, to workflow.ApplicationStatus, notes string) (*BulkResult, error) {
	actor, err := s.authorize(ctx, workflow.OpForceTransition)
	if err != nil {
		return nil, err
	}
	if !to.Valid() {
		return nil, workflow.Invalid("INVALID_STATUS", "unknown status %q", to)
	}
	if len(ids) == 0 {
		return nil, workflow.Invalid("NO_APPLICATIONS", "no applications selected")
	}

	result := &BulkResult{Items: make([]*BulkItem, 0, len(ids))}
	for _, id := range ids {
		_, err := s.transitionOne(ctx, workflow.OpForceTransition, actor, id, to, notes, true)
		result.add(id, err)
	}
	s.logger.WithFields(logrus.Fields{
		"to":        to,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Info("bulk status change finished")
	return result, nil
}

// Archive 归档申请
func (s *applicationService) Archive(ctx context.Context, id uint) error {
	actor, err := s.authorize(ctx, workflow.OpArchiveApplication)
	if err != nil {
		return err
	}
	return s.run(ctx, workflow.OpArchiveApplication, actor, func(cs *changeSet) error {
		if _, err := cs.loadActiveApplication(id); err != nil {
			return err
		}
		ok, err := cs.apps.Archive(id, cs.now)
		if err != nil {
			return err
		}
		if !ok {
			return workflow.Conflict("APPLICATION_ARCHIVED", "application %d is archived", id)
		}
		return cs.audit(workflow.OpArchiveApplication, model.ResourceApplication, resourceID(id), nil)
	})
}

// History 查询申请状态历史
func (s *applicationService) History(ctx context.Context, id uint) ([]*model.StateHistoryModel, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	histories, err := s.history.FindByResource(model.ResourceApplication, resourceID(id))
	if err != nil {
		return nil, s.internal(ctx, workflow.OpViewApplication, err)
	}
	return histories, nil
}
