package repository_test

import (
	"testing"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestReviewerRepository_Profiles 测试用户档案
func TestReviewerRepository_Profiles(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewReviewerRepository(db)

	require.NoError(t, repo.SaveProfile(&model.UserProfileModel{UserID: "rev-b", Role: "reviewer_1", Email: "b@x.org"}))
	require.NoError(t, repo.SaveProfile(&model.UserProfileModel{UserID: "rev-a", Role: "reviewer_1", Email: "a@x.org"}))
	require.NoError(t, repo.SaveProfile(&model.UserProfileModel{UserID: "ovs-1", Role: "oversight"}))
	assert.Error(t, repo.SaveProfile(&model.UserProfileModel{UserID: "x"}))

	profiles, err := repo.FindProfilesByRole("reviewer_1")
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "rev-a", profiles[0].UserID)

	byID, err := repo.FindProfiles([]string{"rev-a", "ovs-1", "missing"})
	require.NoError(t, err)
	assert.Len(t, byID, 2)

	empty, err := repo.FindProfiles(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = repo.FindProfile("missing")
	assert.Error(t, err)
}

// TestReviewerRepository_Queue 测试队列条目与快照刷新
func TestReviewerRepository_Queue(t *testing.T) {
	db := setupTestDB(t)
	repo := repository.NewReviewerRepository(db)
	now := time.Now().UTC()

	for _, id := range []string{"rev-b", "rev-a", "rev-c"} {
		require.NoError(t, repo.CreateQueueEntry(&model.ReviewerQueueModel{UserID: id, Role: "reviewer_1", IsActive: true}))
	}

	ok, err := repo.SetActive("rev-c", false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.SetActive("missing", false)
	require.NoError(t, err)
	assert.False(t, ok)

	active, err := repo.FindQueue("reviewer_1", true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "rev-a", active[0].UserID)

	require.NoError(t, repo.RefreshCounts("reviewer_1", map[string]int{"rev-a": 3}, map[string]time.Time{"rev-a": now}))

	entry, err := repo.FindQueueEntry("rev-a")
	require.NoError(t, err)
	assert.Equal(t, 3, entry.AssignmentCount)
	assert.NotNil(t, entry.LastAssignedAt)

	entry, err = repo.FindQueueEntry("rev-b")
	require.NoError(t, err)
	assert.Equal(t, 0, entry.AssignmentCount)

	all, err := repo.AllQueueEntries()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
