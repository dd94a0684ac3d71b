package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubCounter struct {
	counts map[string]int64
	err    error
}

func (s *stubCounter) CountByStatus() (map[string]int64, error) {
	return s.counts, s.err
}

func TestRecorders(t *testing.T) {
	before := testutil.ToFloat64(assignmentsTotal.WithLabelValues("reviewer_1"))
	RecordAssignments("reviewer_1", 3)
	RecordAssignments("reviewer_1", 0)
	assert.Equal(t, before+3, testutil.ToFloat64(assignmentsTotal.WithLabelValues("reviewer_1")))

	before = testutil.ToFloat64(statusTransitionsTotal.WithLabelValues("rejected", "true"))
	RecordStatusTransition("rejected", true)
	assert.Equal(t, before+1, testutil.ToFloat64(statusTransitionsTotal.WithLabelValues("rejected", "true")))

	before = testutil.ToFloat64(ddAutoReassignmentsTotal)
	RecordAutoReassignment()
	assert.Equal(t, before+1, testutil.ToFloat64(ddAutoReassignmentsTotal))

	before = testutil.ToFloat64(apiRequestsTotal.WithLabelValues("GET", "/health", "OK"))
	RecordAPIRequest("GET", "/health", 200, 0.01)
	assert.Equal(t, before+1, testutil.ToFloat64(apiRequestsTotal.WithLabelValues("GET", "/health", "OK")))
}

func TestUpdateApplicationsByStatus(t *testing.T) {
	UpdateApplicationsByStatus(map[string]int64{"submitted": 4, "draft": 1})
	assert.Equal(t, 4.0, testutil.ToFloat64(applicationsByStatus.WithLabelValues("submitted")))

	// 重新收集时清除已消失的状态
	UpdateApplicationsByStatus(map[string]int64{"submitted": 2})
	assert.Equal(t, 1, testutil.CollectAndCount(applicationsByStatus))
}

func TestCollector(t *testing.T) {
	assert.Error(t, UpdateDatabaseConnections(nil))

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(3)

	c := NewCollector(db, &stubCounter{counts: map[string]int64{"scoring_phase": 7}}, time.Hour)
	c.CollectOnce()
	assert.Equal(t, 3.0, testutil.ToFloat64(databaseConnectionsMax))
	assert.Equal(t, 7.0, testutil.ToFloat64(applicationsByStatus.WithLabelValues("scoring_phase")))

	// 统计失败时保留上次的值
	NewCollector(db, &stubCounter{err: errors.New("boom")}, time.Hour).CollectOnce()
	assert.Equal(t, 7.0, testutil.ToFloat64(applicationsByStatus.WithLabelValues("scoring_phase")))

	c.Start()
	c.Stop()
}
