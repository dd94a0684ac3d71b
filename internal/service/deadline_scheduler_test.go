package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/config"
	"github.com/IdrisKulubi/HIH-sub002/internal/lock"
	"github.com/IdrisKulubi/HIH-sub002/internal/service"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLocker(t *testing.T) lock.Locker {
	mr := miniredis.RunT(t)
	client := lock.NewRedisClient(config.RedisConfig{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return lock.NewRedisLocker(client)
}

// TestDeadlineScheduler_RunOnce 以系统身份执行截止检查
func TestDeadlineScheduler_RunOnce(t *testing.T) {
	f := newDDFixture(t)
	app := f.awaiting(t, "scheduled", "ovs-1")
	f.env.clock.Advance(12*time.Hour + time.Second)

	scheduler := service.NewDeadlineScheduler(f.dd, setupLocker(t), nil, f.env.deps.Logger)
	result, err := scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Reassigned)

	record := f.env.dd(t, app.ID)
	assert.Equal(t, string(workflow.DDAutoReassigned), record.DDStatus)
	assert.Equal(t, "ovs-2", record.ValidatorReviewerID)

	result, err = scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Checked)
}

// TestDeadlineScheduler_SkipsWhenLocked 其他实例持有锁时跳过
func TestDeadlineScheduler_SkipsWhenLocked(t *testing.T) {
	f := newDDFixture(t)
	app := f.awaiting(t, "locked", "ovs-1")
	f.env.clock.Advance(13 * time.Hour)

	locker := setupLocker(t)
	lease, err := locker.Acquire(context.Background(), "dd-deadline-sweep", time.Minute)
	require.NoError(t, err)

	scheduler := service.NewDeadlineScheduler(f.dd, locker, nil, f.env.deps.Logger)
	result, err := scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, string(workflow.DDAwaitingApproval), f.env.dd(t, app.ID).DDStatus)

	require.NoError(t, lease.Release(context.Background()))
	result, err = scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Reassigned)
}

// TestDeadlineScheduler_StartStop 启动时立即执行一次
func TestDeadlineScheduler_StartStop(t *testing.T) {
	f := newDDFixture(t)
	app := f.awaiting(t, "ticker", "ovs-1")
	f.env.clock.Advance(13 * time.Hour)

	scheduler := service.NewDeadlineScheduler(f.dd, nil, &service.DeadlineScheduleConfig{
		Interval:   time.Hour,
		LockTTL:    time.Minute,
		RunOnStart: true,
	}, f.env.deps.Logger)
	require.NoError(t, scheduler.Start(context.Background()))

	assert.Eventually(t, func() bool {
		record, err := service.NewDueDiligenceService(f.env.deps).Get(asAdmin(), app.ID)
		return err == nil && record.DDStatus == string(workflow.DDAutoReassigned)
	}, 2*time.Second, 20*time.Millisecond)
	scheduler.Stop()
	scheduler.Stop()

	bad := service.NewDeadlineScheduler(f.dd, nil, &service.DeadlineScheduleConfig{}, nil)
	assert.Error(t, bad.Start(context.Background()))
	bad.Stop()
}
