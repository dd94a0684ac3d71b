package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/lock"
	"github.com/IdrisKulubi/HIH-sub002/internal/metrics"
	"github.com/sirupsen/logrus"
)

// sweepLockKey 多实例部署时截止检查使用的锁
const sweepLockKey = "dd-deadline-sweep"

// DeadlineScheduler 尽调审批截止时间调度器
// 定期调用 CheckApprovalDeadlines, 多实例时通过分布式锁保证同一时刻只有一个实例执行
type DeadlineScheduler struct {
	dd       DueDiligenceService
	locker   lock.Locker
	config   *DeadlineScheduleConfig
	logger   *logrus.Logger
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	started  bool
}

// DeadlineScheduleConfig 调度配置
type DeadlineScheduleConfig struct {
	Interval   time.Duration // 检查间隔
	LockTTL    time.Duration // 锁的有效期, 应大于单次检查耗时
	RunOnStart bool          // 启动时立即执行一次
}

// NewDeadlineScheduler 创建调度器
// locker 为 nil 时不加锁
func NewDeadlineScheduler(dd DueDiligenceService, locker lock.Locker, config *DeadlineScheduleConfig, logger *logrus.Logger) *DeadlineScheduler {
	if config == nil {
		config = &DeadlineScheduleConfig{
			Interval:   5 * time.Minute,
			LockTTL:    time.Minute,
			RunOnStart: true,
		}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DeadlineScheduler{
		dd:       dd,
		locker:   locker,
		config:   config,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start 启动调度器
func (s *DeadlineScheduler) Start(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	s.started = true
	go s.schedule(ctx)
	return nil
}

// Stop 停止调度器并等待当前检查结束
func (s *DeadlineScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	if s.started {
		<-s.done
	}
}

// Config 获取调度配置
func (s *DeadlineScheduler) Config() *DeadlineScheduleConfig {
	return s.config
}

func (s *DeadlineScheduler) schedule(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if s.config.RunOnStart {
		s.tick(ctx)
	}
	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *DeadlineScheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.WithError(err).Error("approval deadline sweep failed")
	}
}

// RunOnce 以系统身份执行一次截止检查
// 锁被其他实例持有时跳过, 返回 nil 结果
func (s *DeadlineScheduler) RunOnce(ctx context.Context) (*SweepResult, error) {
	if s.locker != nil {
		lease, err := s.locker.Acquire(ctx, sweepLockKey, s.config.LockTTL)
		if errors.Is(err, lock.ErrNotAcquired) {
			s.logger.Debug("approval deadline sweep running elsewhere, skipped")
			metrics.RecordDeadlineSweep("skipped")
			return nil, nil
		}
		if err != nil {
			metrics.RecordDeadlineSweep("error")
			return nil, err
		}
		defer func() {
			if err := lease.Release(context.Background()); err != nil {
				s.logger.WithError(err).Warn("failed to release sweep lock")
			}
		}()
	}

	result, err := s.dd.CheckApprovalDeadlines(SystemContext(ctx))
	if err != nil {
		metrics.RecordDeadlineSweep("error")
		return nil, err
	}
	metrics.RecordDeadlineSweep("ok")
	return result, nil
}
