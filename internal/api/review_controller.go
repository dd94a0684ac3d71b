package api

import (
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/gin-gonic/gin"
)

// SubmitReviewRequest 评审提交请求
type SubmitReviewRequest struct {
	Role     string   `json:"role" binding:"required"`
	Score    *float64 `json:"score" binding:"required"`
	Notes    string   `json:"notes"`
	Decision *string  `json:"decision,omitempty"`
}

// OverrideRequest 覆盖决定请求
type OverrideRequest struct {
	Decision string `json:"decision" binding:"required"`
	Notes    string `json:"notes"`
}

// LockRequest 锁定评分请求
type LockRequest struct {
	Reason string `json:"reason"`
}

// ReviewController 两级评分控制器
type ReviewController struct {
	scoring service.ScoringService
}

// NewReviewController 创建评分控制器
func NewReviewController(scoring service.ScoringService) *ReviewController {
	return &ReviewController{scoring: scoring}
}

// Submit 提交第一轮或第二轮评分
func (c *ReviewController) Submit(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	var req SubmitReviewRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if !checkText(ctx, req.Notes) {
		return
	}

	review := &service.ReviewRequest{
		ApplicationID: id,
		Role:          workflow.Role(req.Role),
		Score:         *req.Score,
		Notes:         req.Notes,
	}
	if req.Decision != nil {
		decision := workflow.Decision(*req.Decision)
		review.Decision = &decision
	}

	result, err := c.scoring.SubmitReview(ctx.Request.Context(), review)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, result)
}

// Blind 第二轮评审录入视图
func (c *ReviewController) Blind(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	view, err := c.scoring.BlindView(ctx.Request.Context(), id)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, view)
}

// Comparison 两轮评分对比
func (c *ReviewController) Comparison(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	view, err := c.scoring.ComparisonView(ctx.Request.Context(), id)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, view)
}

// Override 覆盖最终决定
func (c *ReviewController) Override(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	var req OverrideRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if !checkText(ctx, req.Notes) {
		return
	}
	result, err := c.scoring.OverrideDecision(ctx.Request.Context(), id, workflow.Decision(req.Decision), req.Notes)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, result)
}

// Lock 锁定评分
func (c *ReviewController) Lock(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	var req LockRequest
	// 请求体可选
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			badRequest(ctx, err)
			return
		}
	}
	if !checkText(ctx, req.Reason) {
		return
	}
	if err := c.scoring.Lock(ctx.Request.Context(), id, req.Reason); err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, nil)
}

// Unlock 解锁评分
func (c *ReviewController) Unlock(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	if err := c.scoring.Unlock(ctx.Request.Context(), id); err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, nil)
}
