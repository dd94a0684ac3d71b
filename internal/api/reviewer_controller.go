package api

import (
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/IdrisKulubi/HIH-sub002/internal/utils"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/gin-gonic/gin"
)

// ToggleActiveRequest 启用或停用评审人
type ToggleActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// ReassignRequest 手动改派请求
type ReassignRequest struct {
	Role       string `json:"role" binding:"required"`
	ReviewerID string `json:"reviewer_id" binding:"required"`
}

// ReviewerController 评审人分配控制器
type ReviewerController struct {
	assignments service.AssignmentService
}

// NewReviewerController 创建评审人分配控制器
func NewReviewerController(assignments service.AssignmentService) *ReviewerController {
	return &ReviewerController{assignments: assignments}
}

// InitializeQueue 为缺少快照的评审人建立分配快照
func (c *ReviewerController) InitializeQueue(ctx *gin.Context) {
	added, err := c.assignments.InitializeQueue(ctx.Request.Context())
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, gin.H{"added": added})
}

// BulkAssign 将待分配的申请分配给负载最低的评审人
// 路径参数 role 为 reviewer_1 或 reviewer_2
func (c *ReviewerController) BulkAssign(ctx *gin.Context) {
	assigned, err := c.assignments.BulkAssign(ctx.Request.Context(), workflow.Role(ctx.Param("role")))
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, gin.H{"assigned": assigned})
}

// Redistribute 清空该角色的分配后重新均衡
func (c *ReviewerController) Redistribute(ctx *gin.Context) {
	result, err := c.assignments.Redistribute(ctx.Request.Context(), workflow.Role(ctx.Param("role")))
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, result)
}

// ToggleActive 启用或停用评审人
func (c *ReviewerController) ToggleActive(ctx *gin.Context) {
	reviewerID := ctx.Param("reviewer_id")
	if err := utils.ValidateUserID(reviewerID); err != nil {
		fail(ctx, err)
		return
	}
	var req ToggleActiveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if err := c.assignments.ToggleReviewerActive(ctx.Request.Context(), reviewerID, *req.Active); err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, gin.H{"reviewer_id": reviewerID, "active": *req.Active})
}

// Reassign 手动改派某一轮评审
func (c *ReviewerController) Reassign(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	var req ReassignRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if err := utils.ValidateUserID(req.ReviewerID); err != nil {
		fail(ctx, err)
		return
	}
	if err := c.assignments.Reassign(ctx.Request.Context(), id, workflow.Role(req.Role), req.ReviewerID); err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, nil)
}

// Stats 分配统计
func (c *ReviewerController) Stats(ctx *gin.Context) {
	stats, err := c.assignments.Stats(ctx.Request.Context())
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, stats)
}
