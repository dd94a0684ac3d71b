package repository_test

import (
	"testing"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
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

// seedApplication 创建一个带企业和申请人的申请
func seedApplication(t *testing.T, repo repository.ApplicationRepository, status, name string) *model.ApplicationModel {
	now := time.Now().UTC()
	app := &model.ApplicationModel{Status: status, Track: "foundation", CreatedAt: now, UpdatedAt: now}
	business := &model.BusinessModel{Name: name, County: "Nairobi", Sector: "agriculture", CreatedAt: now}
	applicant := &model.ApplicantModel{UserID: "user-" + name, FirstName: "Amina", LastName: name, Email: name + "@example.com", CreatedAt: now}
	require.NoError(t, repo.Create(app, business, applicant))
	return app
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
