package container

import (
	"fmt"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/api"
	"github.com/IdrisKulubi/HIH-sub002/internal/auth"
	"github.com/IdrisKulubi/HIH-sub002/internal/config"
	"github.com/IdrisKulubi/HIH-sub002/internal/database"
	"github.com/IdrisKulubi/HIH-sub002/internal/integration"
	"github.com/IdrisKulubi/HIH-sub002/internal/lock"
	"github.com/IdrisKulubi/HIH-sub002/internal/metrics"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理数据库、事件分发、分布式锁以及全部工作流服务
type Container struct {
	db                *gorm.DB
	logger            *logrus.Logger
	policy            *workflow.PolicyStore
	dispatcher        *integration.EventDispatcher
	redis             *redis.Client
	keycloakValidator *auth.KeycloakTokenValidator
	services          api.Services
	scheduler         *service.DeadlineScheduler
	collector         *metrics.Collector
}

// NewContainer 创建依赖注入容器
// 连接数据库(带重试)并执行迁移, 然后装配全部服务
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	c, err := NewContainerWithDB(cfg, db, logger)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return c, nil
}

// NewContainerWithDB 使用已有的数据库连接装配容器
func NewContainerWithDB(cfg *config.Config, db *gorm.DB, logger *logrus.Logger) (*Container, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	rubrics, err := workflow.LoadRubrics(cfg.Workflow.RubricFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load rubrics: %w", err)
	}
	policy := workflow.NewPolicyStore(cfg.Workflow.Settings(), rubrics)

	dispatcher := integration.NewEventDispatcher(repository.NewWorkflowEventRepository(db), cfg.Webhook, logger)

	deps := service.Deps{
		DB:        db,
		Policy:    policy,
		Publisher: dispatcher,
		Logger:    logger,
	}
	statistics := service.NewStatisticsService(deps)
	dd := service.NewDueDiligenceService(deps)

	c := &Container{
		db:         db,
		logger:     logger,
		policy:     policy,
		dispatcher: dispatcher,
		services: api.Services{
			Applications: service.NewApplicationService(deps),
			Assignments:  service.NewAssignmentService(deps),
			Scoring:      service.NewScoringService(deps),
			DueDiligence: dd,
			Diagnostics:  service.NewDiagnosticsService(deps),
			Statistics:   statistics,
			AuditLogs:    service.NewAuditLogService(repository.NewAuditLogRepository(db)),
		},
		collector: metrics.NewCollector(db, statistics, 30*time.Second),
	}

	// 未配置 Redis 时单实例运行, 扫描不加锁
	var locker lock.Locker
	if cfg.Redis.Addr != "" {
		c.redis = lock.NewRedisClient(cfg.Redis)
		locker = lock.NewRedisLocker(c.redis)
	}
	lockTTL := time.Duration(cfg.Redis.LockTTLSeconds) * time.Second
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	c.scheduler = service.NewDeadlineScheduler(dd, locker, &service.DeadlineScheduleConfig{
		Interval:   cfg.Workflow.SweepInterval(),
		LockTTL:    lockTTL,
		RunOnStart: true,
	}, logger)

	if cfg.Keycloak.Issuer != "" {
		c.keycloakValidator = auth.NewKeycloakTokenValidator(cfg.Keycloak.Issuer, cfg.Keycloak.JWKSURL)
	}

	return c, nil
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Policy 获取运行期参数存储
func (c *Container) Policy() *workflow.PolicyStore {
	return c.policy
}

// Dispatcher 获取事件分发器
func (c *Container) Dispatcher() *integration.EventDispatcher {
	return c.dispatcher
}

// Redis 获取 Redis 客户端, 未配置时为 nil
func (c *Container) Redis() *redis.Client {
	return c.redis
}

// KeycloakValidator 获取 Keycloak Token 验证器, 未配置时为 nil
func (c *Container) KeycloakValidator() *auth.KeycloakTokenValidator {
	return c.keycloakValidator
}

// Services 获取路由使用的服务集合
func (c *Container) Services() api.Services {
	return c.services
}

// Scheduler 获取截止时间调度器
func (c *Container) Scheduler() *service.DeadlineScheduler {
	return c.scheduler
}

// Collector 获取指标收集器
func (c *Container) Collector() *metrics.Collector {
	return c.collector
}

// ApplyConfig 配置热更新时刷新评审参数
func (c *Container) ApplyConfig(cfg *config.Config) {
	c.policy.Update(cfg.Workflow.Settings())
	rubrics, err := workflow.LoadRubrics(cfg.Workflow.RubricFile)
	if err != nil {
		c.logger.WithError(err).Warn("rubric reload failed, keeping current rubrics")
		return
	}
	c.policy.UpdateRubrics(rubrics)
	c.logger.Info("workflow settings reloaded")
}

// Close 关闭容器, 清理资源
func (c *Container) Close() error {
	c.dispatcher.Stop()
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.WithError(err).Warn("failed to close redis client")
		}
	}
	if c.db != nil {
		return database.Close(c.db)
	}
	return nil
}
