package api

import (
	"net/http"

	"github.com/IdrisKulubi/HIH-sub002/internal/auth"
	"github.com/IdrisKulubi/HIH-sub002/internal/config"
	"github.com/IdrisKulubi/HIH-sub002/internal/metrics"
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Services 路由依赖的服务
type Services struct {
	Applications service.ApplicationService
	Assignments  service.AssignmentService
	Scoring      service.ScoringService
	DueDiligence service.DueDiligenceService
	Diagnostics  service.DiagnosticsService
	Statistics   service.StatisticsService
	AuditLogs    service.AuditLogService
}

// RouterConfig 路由配置
type RouterConfig struct {
	CORS      config.CORSConfig
	RateLimit config.RateLimitConfig
	Tracing   config.TracingConfig
	// Validator 为 nil 时从请求头读取身份, 仅用于开发环境
	Validator *auth.KeycloakTokenValidator
	DB        *gorm.DB
	Redis     *redis.Client
}

// SetupRoutes 配置路由
func SetupRoutes(cfg RouterConfig, svc Services) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	if cfg.Tracing.Enabled {
		router.Use(TracingMiddleware(cfg.Tracing.ServiceName))
	}
	router.Use(RequestLogMiddleware())
	router.Use(SecurityHeadersMiddleware())
	router.Use(CORSMiddleware(cfg.CORS))
	if cfg.RateLimit.Enabled {
		router.Use(RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	router.Use(ErrorHandlerMiddleware())

	healthController := NewHealthController(cfg.DB, cfg.Redis)
	router.GET("/health", healthController.Check)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	applicationController := NewApplicationController(svc.Applications, svc.AuditLogs)
	reviewerController := NewReviewerController(svc.Assignments)
	reviewController := NewReviewController(svc.Scoring)
	ddController := NewDueDiligenceController(svc.DueDiligence)
	diagnosticsController := NewDiagnosticsController(svc.Diagnostics, svc.Statistics, svc.AuditLogs)

	v1 := router.Group("/api/v1")
	if cfg.Validator != nil {
		v1.Use(auth.KeycloakAuthMiddleware(cfg.Validator))
	} else {
		v1.Use(auth.HeaderIdentityMiddleware())
	}
	{
		applications := v1.Group("/applications")
		{
			applications.POST("", applicationController.Create)
			applications.GET("", applicationController.List)
			applications.GET("/:id", applicationController.Get)
			applications.POST("/:id/submit", applicationController.Submit)
			applications.POST("/:id/transition", applicationController.Transition)
			applications.POST("/:id/force-transition", applicationController.ForceTransition)
			applications.POST("/:id/archive", applicationController.Archive)
			applications.GET("/:id/history", applicationController.History)
			applications.GET("/:id/audit-logs", applicationController.AuditLogs)

			applications.POST("/:id/reassign", reviewerController.Reassign)

			applications.POST("/:id/reviews", reviewController.Submit)
			applications.GET("/:id/reviews/blind", reviewController.Blind)
			applications.GET("/:id/reviews/comparison", reviewController.Comparison)
			applications.POST("/:id/reviews/override", reviewController.Override)
			applications.POST("/:id/reviews/lock", reviewController.Lock)
			applications.POST("/:id/reviews/unlock", reviewController.Unlock)

			applications.GET("/:id/due-diligence", ddController.Get)
			applications.POST("/:id/due-diligence/oversight", ddController.InitiateOversight)
			applications.POST("/:id/due-diligence/primary-reviewer", ddController.AssignPrimaryReviewer)
			applications.POST("/:id/due-diligence/validator", ddController.AssignValidator)
			applications.POST("/:id/due-diligence/scores", ddController.SubmitScores)
			applications.POST("/:id/due-diligence/validator-action", ddController.ValidatorAction)
		}

		v1.POST("/bulk/force-transition", applicationController.BulkForceTransition)

		reviewers := v1.Group("/reviewers")
		{
			reviewers.POST("/queue/initialize", reviewerController.InitializeQueue)
			reviewers.GET("/stats", reviewerController.Stats)
			reviewers.PUT("/:reviewer_id/active", reviewerController.ToggleActive)
		}

		// role 为 reviewer_1 或 reviewer_2
		assignments := v1.Group("/assignments")
		{
			assignments.POST("/:role/bulk", reviewerController.BulkAssign)
			assignments.POST("/:role/redistribute", reviewerController.Redistribute)
		}

		dd := v1.Group("/due-diligence")
		{
			dd.GET("", ddController.Queue)
			dd.GET("/qualified", ddController.Qualified)
			dd.GET("/qualified/export", ddController.Export)
			dd.GET("/recipients", ddController.Recipients)
			dd.POST("/check-deadlines", ddController.CheckDeadlines)
		}

		v1.GET("/diagnostics", diagnosticsController.Run)
		v1.GET("/statistics", diagnosticsController.Statistics)
		v1.GET("/audit-logs", diagnosticsController.AuditLogs)
	}

	// 未匹配的路由返回 JSON 格式的 404
	router.NoRoute(func(c *gin.Context) {
		Error(c, http.StatusNotFound, "ROUTE_NOT_FOUND", "the requested route does not exist")
	})

	return router
}
