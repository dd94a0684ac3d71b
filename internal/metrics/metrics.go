package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 评审分配数
	assignmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_assignments_total",
			Help: "Total number of reviewer assignments made",
		},
		[]string{"role"},
	)

	// 评分提交数
	reviewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_reviews_total",
			Help: "Total number of review scores submitted",
		},
		[]string{"role"},
	)

	// 申请状态变更数
	statusTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_status_transitions_total",
			Help: "Total number of application status transitions",
		},
		[]string{"to", "forced"},
	)

	// 验证人操作数
	validatorActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_validator_actions_total",
			Help: "Total number of due diligence validator actions",
		},
		[]string{"action"}, // approved, queried
	)

	// 尽调自动转交数
	ddAutoReassignmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workflow_dd_auto_reassignments_total",
			Help: "Total number of due diligence approvals auto-reassigned after the deadline",
		},
	)

	// 截止时间扫描次数
	deadlineSweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_deadline_sweeps_total",
			Help: "Total number of approval deadline sweeps",
		},
		[]string{"result"}, // ok, error, skipped
	)

	// 数据库连接数
	databaseConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_active",
			Help: "Number of active database connections",
		},
	)

	databaseConnectionsIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	databaseConnectionsMax = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "database_connections_max",
			Help: "Maximum number of database connections",
		},
	)

	// 申请状态分布
	applicationsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "applications_by_status",
			Help: "Number of applications by status",
		},
		[]string{"status"},
	)
)

var (
	once sync.Once
)

func init() {
	// 注册指标
	prometheus.MustRegister(apiRequestsTotal)
	prometheus.MustRegister(apiRequestDuration)
	prometheus.MustRegister(assignmentsTotal)
	prometheus.MustRegister(reviewsTotal)
	prometheus.MustRegister(statusTransitionsTotal)
	prometheus.MustRegister(validatorActionsTotal)
	prometheus.MustRegister(ddAutoReassignmentsTotal)
	prometheus.MustRegister(deadlineSweepsTotal)
	prometheus.MustRegister(databaseConnectionsActive)
	prometheus.MustRegister(databaseConnectionsIdle)
	prometheus.MustRegister(databaseConnectionsMax)
	prometheus.MustRegister(applicationsByStatus)

	// 注册 Go 运行时指标（只注册一次）
	once.Do(func() {
		_ = prometheus.Register(prometheus.NewGoCollector())
		_ = prometheus.Register(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	})
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordAPIRequest 记录 API 请求
func RecordAPIRequest(method, path string, status int, duration float64) {
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	apiRequestsTotal.WithLabelValues(method, path, statusText).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// RecordAssignments 记录评审分配
func RecordAssignments(role string, n int) {
	if n > 0 {
		assignmentsTotal.WithLabelValues(role).Add(float64(n))
	}
}

// RecordReview 记录评分提交
func RecordReview(role string) {
	reviewsTotal.WithLabelValues(role).Inc()
}

// RecordStatusTransition 记录申请状态变更
func RecordStatusTransition(to string, forced bool) {
	statusTransitionsTotal.WithLabelValues(to, strconv.FormatBool(forced)).Inc()
}

// RecordValidatorAction 记录验证人操作
func RecordValidatorAction(action string) {
	validatorActionsTotal.WithLabelValues(action).Inc()
}

// RecordAutoReassignment 记录尽调自动转交
func RecordAutoReassignment() {
	ddAutoReassignmentsTotal.Inc()
}

// RecordDeadlineSweep 记录截止时间扫描
func RecordDeadlineSweep(result string) {
	deadlineSweepsTotal.WithLabelValues(result).Inc()
}

// UpdateDatabaseConnections 更新数据库连接数指标
func UpdateDatabaseConnections(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}

	stats := sqlDB.Stats()
	databaseConnectionsActive.Set(float64(stats.OpenConnections - stats.Idle))
	databaseConnectionsIdle.Set(float64(stats.Idle))
	databaseConnectionsMax.Set(float64(stats.MaxOpenConnections))

	return nil
}

// UpdateApplicationsByStatus 更新申请状态分布指标
func UpdateApplicationsByStatus(counts map[string]int64) {
	applicationsByStatus.Reset()
	for status, n := range counts {
		applicationsByStatus.WithLabelValues(status).Set(float64(n))
	}
}
