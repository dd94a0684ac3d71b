package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/export"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/IdrisKulubi/HIH-sub002/internal/utils"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/gin-gonic/gin"
)

// OversightRequest 监督人员发起尽调请求
type OversightRequest struct {
	Justification string `json:"justification" binding:"required"`
}

// AssignDDReviewerRequest 指定主评审或验证人
type AssignDDReviewerRequest struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
}

// PhaseScoresBody 尽调阶段评分请求体
type PhaseScoresBody struct {
	Phase  int                `json:"phase" binding:"required"`
	Scores map[string]float64 `json:"scores" binding:"required"`
	Notes  string             `json:"notes"`
}

// ValidatorActionRequest 验证人操作请求
type ValidatorActionRequest struct {
	Action   string `json:"action" binding:"required"`
	Comments string `json:"comments"`
}

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV  = "text/csv; charset=utf-8"
)

// DueDiligenceController 尽职调查控制器
type DueDiligenceController struct {
	dd service.DueDiligenceService
}

// NewDueDiligenceController 创建尽调控制器
func NewDueDiligenceController(dd service.DueDiligenceService) *DueDiligenceController {
	return &DueDiligenceController{dd: dd}
}

// ddFilter 读取尽调查询条件
func ddFilter(ctx *gin.Context) repository.DDFilter {
	return repository.DDFilter{
		Statuses:   queryList(ctx, "status"),
		ReviewerID: ctx.Query("reviewer_id"),
		Track:      ctx.Query("track"),
		County:     ctx.Query("county"),
		Sector:     ctx.Query("sector"),
	}
}

// Get 获取申请的尽调记录
func (c *DueDiligenceController) Get(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	record, err := c.dd.Get(ctx.Request.Context(), id)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, record)
}

// Queue 尽调队列
func (c *DueDiligenceController) Queue(ctx *gin.Context) {
	items, err := c.dd.Queue(ctx.Request.Context(), ddFilter(ctx))
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, items)
}

// Qualified 通过尽调的申请
func (c *DueDiligenceController) Qualified(ctx *gin.Context) {
	rows, err := c.dd.Qualified(ctx.Request.Context(), ddFilter(ctx))
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, rows)
}

// Export 导出通过尽调的申请, format 为 xlsx(默认) 或 csv
func (c *DueDiligenceController) Export(ctx *gin.Context) {
	format := ctx.DefaultQuery("format", "xlsx")
	if format != "xlsx" && format != "csv" {
		fail(ctx, workflow.Invalid("INVALID_FORMAT", "format must be xlsx or csv"))
		return
	}

	rows, err := c.dd.Qualified(ctx.Request.Context(), ddFilter(ctx))
	if err != nil {
		fail(ctx, err)
		return
	}

	filename := fmt.Sprintf("qualified-applications-%s.%s", time.Now().UTC().Format("20060102"), format)
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	ctx.Status(http.StatusOK)
	if format == "csv" {
		ctx.Header("Content-Type", contentTypeCSV)
		err = export.WriteQualifiedCSV(ctx.Writer, rows)
	} else {
		ctx.Header("Content-Type", contentTypeXLSX)
		err = export.WriteQualifiedXLSX(ctx.Writer, rows)
	}
	if err != nil {
		// 已写出部分内容时错误中间件只记录, 不再输出 JSON
		fail(ctx, err)
	}
}

// Recipients 通知收件人列表
func (c *DueDiligenceController) Recipients(ctx *gin.Context) {
	rows, err := c.dd.Recipients(ctx.Request.Context(), queryList(ctx, "status"))
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, rows)
}

// InitiateOversight 监督人员直接发起尽调
func (c *DueDiligenceController) InitiateOversight(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	var req OversightRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if !checkText(ctx, req.Justification) {
		return
	}
	justification, err := utils.TrimAndValidate(req.Justification, maxTextLength)
	if err != nil {
		fail(ctx, err)
		return
	}
	record, err := c.dd.InitiateOversightReview(ctx.Request.Context(), id, justification)
	if err != nil {
		fail(ctx, err)
		return
	}
	Created(ctx, record)
}

// AssignPrimaryReviewer 指定主评审
func (c *DueDiligenceController) AssignPrimaryReviewer(ctx *gin.Context) {
	c.assign(ctx, c.dd.AssignPrimaryReviewer)
}

// AssignValidator 指定验证人
func (c *DueDiligenceController) AssignValidator(ctx *gin.Context) {
	c.assign(ctx, c.dd.AssignValidator)
}

func (c *DueDiligenceController) assign(ctx *gin.Context, fn func(ctx context.Context, applicationID uint, reviewerID string) error) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	var req AssignDDReviewerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if err := utils.ValidateUserID(req.ReviewerID); err != nil {
		fail(ctx, err)
		return
	}
	if err := fn(ctx.Request.Context(), id, req.ReviewerID); err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, nil)
}

// SubmitScores 提交尽调阶段评分
func (c *DueDiligenceController) SubmitScores(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	var body PhaseScoresBody
	if err := ctx.ShouldBindJSON(&body); err != nil {
		badRequest(ctx, err)
		return
	}
	if !checkText(ctx, body.Notes) {
		return
	}
	record, err := c.dd.SubmitPhaseScores(ctx.Request.Context(), &service.PhaseScoresRequest{
		ApplicationID: id,
		Phase:         workflow.DDPhase(body.Phase),
		Scores:        body.Scores,
		Notes:         body.Notes,
	})
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, record)
}

// ValidatorAction 验证人批准或质询
func (c *DueDiligenceController) ValidatorAction(ctx *gin.Context) {
	id, ok := applicationID(ctx)
	if !ok {
		return
	}
	var req ValidatorActionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}
	if !checkText(ctx, req.Comments) {
		return
	}
	record, err := c.dd.SubmitValidatorAction(ctx.Request.Context(), id, workflow.ValidatorAction(req.Action), req.Comments)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, record)
}

// CheckDeadlines 立即执行一次审批截止检查
func (c *DueDiligenceController) CheckDeadlines(ctx *gin.Context) {
	result, err := c.dd.CheckApprovalDeadlines(ctx.Request.Context())
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, result)
}
