package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/auth"
	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/google/uuid"
)

// maxAuditLogs 单次查询返回的审计日志上限
const maxAuditLogs = 500

// AuditLogService 审计日志查询服务, 仅管理员和监督人员可用
// 写入由各工作流服务在事务内完成
type AuditLogService interface {
	// ApplicationTrail 申请及其尽调记录的审计日志
	ApplicationTrail(ctx context.Context, applicationID uint, limit int) ([]*model.AuditLogModel, error)
	// ActorTrail 某个用户的操作记录
	ActorTrail(ctx context.Context, userID string, limit int) ([]*model.AuditLogModel, error)
}

type auditLogService struct {
	auditRepo repository.AuditLogRepository
}

// NewAuditLogService 创建审计日志服务
func NewAuditLogService(auditRepo repository.AuditLogRepository) AuditLogService {
	return &auditLogService{
		auditRepo: auditRepo,
	}
}

func (s *auditLogService) ApplicationTrail(ctx context.Context, applicationID uint, limit int) ([]*model.AuditLogModel, error) {
	return s.find(ctx, repository.AuditLogFilter{
		ResourceTypes: []string{model.ResourceApplication, model.ResourceDueDiligence},
		ResourceID:    resourceID(applicationID),
		Limit:         limit,
	})
}

func (s *auditLogService) ActorTrail(ctx context.Context, userID string, limit int) ([]*model.AuditLogModel, error) {
	if userID == "" {
		return nil, workflow.Invalid("USER_ID_REQUIRED", "user_id is required")
	}
	return s.find(ctx, repository.AuditLogFilter{UserID: userID, Limit: limit})
}

func (s *auditLogService) find(ctx context.Context, filter repository.AuditLogFilter) ([]*model.AuditLogModel, error) {
	if err := workflow.Authorize(auth.CurrentUser(ctx), workflow.OpViewStatistics); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > maxAuditLogs {
		filter.Limit = maxAuditLogs
	}
	return s.auditRepo.Find(filter)
}

// newAuditLog 构建审计日志, 请求信息取自 context
func newAuditLog(ctx context.Context, userID, action, resourceType, resourceID string, details interface{}, at time.Time) (*model.AuditLogModel, error) {
	detailsJSON := ""
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return nil, err
		}
		detailsJSON = string(data)
	}

	return &model.AuditLogModel{
		ID:           uuid.New().String(),
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    GetRequestID(ctx),
		IP:           GetClientIP(ctx),
		Details:      detailsJSON,
		CreatedAt:    at,
	}, nil
}
