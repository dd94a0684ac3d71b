package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/api"
	"github.com/IdrisKulubi/HIH-sub002/internal/config"
	"github.com/IdrisKulubi/HIH-sub002/internal/logger"
	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	logger.Set(quiet)
}

// setupTestDB 创建内存数据库并迁移全部模型
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

type apiEnv struct {
	db     *gorm.DB
	router *gin.Engine
}

// newAPIEnv 基于真实服务和内存数据库构建路由, 身份从请求头读取
func newAPIEnv(t *testing.T) *apiEnv {
	db := setupTestDB(t)
	deps := service.Deps{
		DB:     db,
		Policy: workflow.NewPolicyStore(workflow.DefaultSettings(), workflow.DefaultRubrics()),
		Logger: logger.Get(),
	}
	svc := api.Services{
		Applications: service.NewApplicationService(deps),
		Assignments:  service.NewAssignmentService(deps),
		Scoring:      service.NewScoringService(deps),
		DueDiligence: service.NewDueDiligenceService(deps),
		Diagnostics:  service.NewDiagnosticsService(deps),
		Statistics:   service.NewStatisticsService(deps),
		AuditLogs:    service.NewAuditLogService(repository.NewAuditLogRepository(db)),
	}
	router := api.SetupRoutes(api.RouterConfig{
		CORS: config.CORSConfig{AllowedOrigins: []string{"https://portal.bire.org"}},
		DB:   db,
	}, svc)
	return &apiEnv{db: db, router: router}
}

// identity 请求身份
type identity struct {
	id   string
	role workflow.Role
}

var (
	admin     = identity{"admin-1", workflow.RoleAdmin}
	applicant = identity{"user-amina", workflow.RoleApplicant}
	r1        = identity{"r1-a", workflow.RoleReviewer1}
	r2        = identity{"r2-a", workflow.RoleReviewer2}
	tech      = identity{"tech-1", workflow.RoleTechnicalReviewer}
	oversight = identity{"ovs-1", workflow.RoleOversight}
)

func (e *apiEnv) do(t *testing.T, who *identity, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who != nil {
		req.Header.Set("X-User-ID", who.id)
		req.Header.Set("X-User-Role", string(who.role))
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// data 解析成功响应中的 data 字段
func data(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	var resp struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.Equal(t, 0, resp.Code)
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Data, out))
	}
}

// failure 解析错误响应
func failure(t *testing.T, w *httptest.ResponseRecorder) api.ErrorResponse {
	var resp api.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func (e *apiEnv) profile(t *testing.T, who identity, first, last string) {
	now := time.Now().UTC()
	require.NoError(t, repository.NewReviewerRepository(e.db).SaveProfile(&model.UserProfileModel{
		UserID:    who.id,
		FirstName: first,
		LastName:  last,
		Email:     who.id + "@bire.org",
		Role:      string(who.role),
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

// createApplication 以申请人身份创建并提交申请
func (e *apiEnv) createApplication(t *testing.T, who identity, name string) uint {
	w := e.do(t, &who, http.MethodPost, "/api/v1/applications", map[string]interface{}{
		"track":     "foundation",
		"business":  map[string]string{"name": name, "county": "Kisumu", "sector": "agriculture"},
		"applicant": map[string]string{"first_name": "Amina", "last_name": "Otieno", "email": "amina@example.com"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var app model.ApplicationModel
	data(t, w, &app)

	w = e.do(t, &who, http.MethodPost, "/api/v1/applications/"+itoa(app.ID)+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return app.ID
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
