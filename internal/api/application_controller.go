package api

import (
	"context"
	"strconv"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/IdrisKulubi/HIH-sub002/internal/utils"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/gin-gonic/gin"
)

// TransitionRequest 状态变更请求
type TransitionRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

// BulkTransitionRequest 批量强制变更请求
type BulkTransitionRequest struct {
	ApplicationIDs []uint `json:"application_ids" binding:"required,min=1,max=500"`
	Status         string `json:"status" binding:"required"`
	Notes          string `json:"notes"`
}

// ApplicationController 申请控制器
type ApplicationController struct {
	applications service.ApplicationService
	auditLogs    service.AuditLogService
}

// NewApplicationController 创建申请控制器
func NewApplicationController(applications service.ApplicationService, auditLogs service.AuditLogService) *ApplicationController {
	return &ApplicationController{
		applications: applications,
		auditLogs:    auditLogs,
	}
}

// Create 创建草稿申请
func (c *ApplicationController) Create(ctx *gin.Context) {
	var req service.CreateApplicationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	req.Business.Name = utils.SanitizeString(req.Business.Name)

	app, err := c.applications.Create(ctx.Request.Context(), &req)
	if err != nil {
		fail(ctx, err)
		return
	}
	Created(ctx, app)
}

// List 分页查询申请
func (c *ApplicationController) List(ctx *gin.Context) {
	page, pageSize := pageParams(ctx)
	includeArchived, _ := strconv.ParseBool(ctx.Query("include_archived"))

	apps, total, err := c.applications.List(ctx.Request.Context(), repository.ApplicationFilter{
		Statuses:        queryList(ctx, "status"),
		Track:           ctx.Query("track"),
		IncludeArchived: includeArchived,
		Page:            page,
		PageSize:        pageSize,
	})
	if err != nil {
		fail(ctx, err)
		return
	}
	Paginated(ctx, apps, newPagination(page, pageSize, total))
}

// Get 获取申请详情
func (c *ApplicationController) Get(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	detail, err := c.applications.Get(ctx.Request.Context(), id)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, detail)
}

// Submit 提交草稿
func (c *ApplicationController) Submit(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	app, err := c.applications.Submit(ctx.Request.Context(), id)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, app)
}

// Transition 按转换表变更状态
func (c *ApplicationController) Transition(ctx *gin.Context) {
	c.transition(ctx, c.applications.Transition)
}

// ForceTransition 管理员强制变更状态
func (c *ApplicationController) ForceTransition(ctx *gin.Context) {
	c.transition(ctx, c.applications.ForceTransition)
}

type transitionFunc func(ctx context.Context, id uint, to workflow.ApplicationStatus, notes string) (*model.ApplicationModel, error)

func (c *ApplicationController) transition(ctx *gin.Context, fn transitionFunc) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	var req TransitionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if !checkText(ctx, req.Notes) {
		return
	}
	app, err := fn(ctx.Request.Context(), id, workflow.ApplicationStatus(req.Status), req.Notes)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, app)
}

// BulkForceTransition 批量强制变更状态, 逐条返回结果
func (c *ApplicationController) BulkForceTransition(ctx *gin.Context) {
	var req BulkTransitionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if !checkText(ctx, req.Notes) {
		return
	}
	result, err := c.applications.BulkForceTransition(ctx.Request.Context(), req.ApplicationIDs, workflow.ApplicationStatus(req.Status), req.Notes)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, result)
}

// Archive 归档申请
func (c *ApplicationController) Archive(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	if err := c.applications.Archive(ctx.Request.Context(), id); err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, nil)
}

// History 状态变更历史
func (c *ApplicationController) History(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	histories, err := c.applications.History(ctx.Request.Context(), id)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, histories)
}

// AuditLogs 申请及其尽调记录的审计日志, 仅管理员和监督人员可见
func (c *ApplicationController) AuditLogs(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	logs, err := c.auditLogs.ApplicationTrail(ctx.Request.Context(), id, limit)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, logs)
}
