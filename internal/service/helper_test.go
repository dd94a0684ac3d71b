package service_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/auth"
	"github.com/IdrisKulubi/HIH-sub002/internal/integration"
	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 创建内存数据库并迁移全部模型
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

// fakeClock 可控时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher 记录发布的事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []*integration.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt *integration.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.Type
	}
	return types
}

type testEnv struct {
	db     *gorm.DB
	deps   service.Deps
	clock  *fakeClock
	events *recordingPublisher
	apps   repository.ApplicationRepository
}

func newTestEnv(t *testing.T) *testEnv {
	db := setupTestDB(t)
	log := logrus.New()
	log.SetOutput(io.Discard)
	clock := &fakeClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	events := &recordingPublisher{}
	return &testEnv{
		db: db,
		deps: service.Deps{
			DB:        db,
			Policy:    workflow.NewPolicyStore(workflow.DefaultSettings(), workflow.DefaultRubrics()),
			Publisher: events,
			Logger:    log,
			Clock:     clock.Now,
		},
		clock:  clock,
		events: events,
		apps:   repository.NewApplicationRepository(db),
	}
}

// as 以指定身份构造 context
func as(id string, role workflow.Role) context.Context {
	return auth.WithUser(context.Background(), &workflow.Actor{ID: id, Role: role})
}

func asAdmin() context.Context {
	return as("admin-1", workflow.RoleAdmin)
}

func (e *testEnv) profile(t *testing.T, id string, role workflow.Role, first, last, email string) {
	repo := repository.NewReviewerRepository(e.db)
	now := e.clock.Now()
	require.NoError(t, repo.SaveProfile(&model.UserProfileModel{
		UserID:    id,
		FirstName: first,
		LastName:  last,
		Email:     email,
		Role:      string(role),
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

// application 直接写入一个指定状态的申请
func (e *testEnv) application(t *testing.T, status workflow.ApplicationStatus, name string) *model.ApplicationModel {
	now := e.clock.Now()
	app := &model.ApplicationModel{Status: string(status), Track: string(workflow.TrackFoundation), CreatedAt: now, UpdatedAt: now}
	business := &model.BusinessModel{Name: name, County: "Nairobi", Sector: "agriculture", CreatedAt: now}
	applicant := &model.ApplicantModel{UserID: "user-" + name, FirstName: "Amina", LastName: name, Email: name + "@example.com", CreatedAt: now}
	require.NoError(t, e.apps.Create(app, business, applicant))
	return app
}

func (e *testEnv) reload(t *testing.T, id uint) *model.ApplicationModel {
	app, err := e.apps.FindByID(id)
	require.NoError(t, err)
	return app
}

func (e *testEnv) dd(t *testing.T, applicationID uint) *model.DueDiligenceModel {
	record, err := repository.NewDueDiligenceRepository(e.db).FindByApplicationID(applicationID)
	require.NoError(t, err)
	return record
}

func (e *testEnv) result(t *testing.T, applicationID uint) *model.EligibilityResultModel {
	result, err := repository.NewEligibilityRepository(e.db).FindByApplicationID(applicationID)
	require.NoError(t, err)
	return result
}

func (e *testEnv) assign(t *testing.T, appID uint, tier int, reviewerID string) {
	ok, err := e.apps.SetReviewer(appID, tier, reviewerID, e.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
}
