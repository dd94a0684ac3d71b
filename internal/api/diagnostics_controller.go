package api

import (
	"strconv"

	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/gin-gonic/gin"
)

// DiagnosticsController 诊断与统计控制器
type DiagnosticsController struct {
	diagnostics service.DiagnosticsService
	statistics  service.StatisticsService
	auditLogs   service.AuditLogService
}

// NewDiagnosticsController 创建诊断控制器
func NewDiagnosticsController(diagnostics service.DiagnosticsService, statistics service.StatisticsService, auditLogs service.AuditLogService) *DiagnosticsController {
	return &DiagnosticsController{
		diagnostics: diagnostics,
		statistics:  statistics,
		auditLogs:   auditLogs,
	}
}

// Run 生成只读诊断报告
func (c *DiagnosticsController) Run(ctx *gin.Context) {
	report, err := c.diagnostics.Run(ctx.Request.Context())
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, report)
}

// Statistics 申请与尽调概览
func (c *DiagnosticsController) Statistics(ctx *gin.Context) {
	overview, err := c.statistics.Overview(ctx.Request.Context())
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, overview)
}

// AuditLogs 按操作人查询审计日志
func (c *DiagnosticsController) AuditLogs(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.Query("limit"))
	logs, err := c.auditLogs.ActorTrail(ctx.Request.Context(), ctx.Query("user_id"), limit)
	if err != nil {
		fail(ctx, err)
		return
	}
	Success(ctx, logs)
}
