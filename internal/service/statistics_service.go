package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
)

// StatisticsService 统计服务接口
type StatisticsService interface {
	CountByStatus() (map[string]int64, error)
	Overview(ctx context.Context) (*Overview, error)
}

// CountItem 分组计数
type CountItem struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// EligibilityStatistics 评分统计
type EligibilityStatistics struct {
	Scored           int64   `json:"scored"`
	Final            int64   `json:"final"`
	Eligible         int64   `json:"eligible"`
	EligibleRate     float64 `json:"eligible_rate"`
	AverageTotal     float64 `json:"average_total"`
	DisparityFlagged int64   `json:"disparity_flagged"`
	Overridden       int64   `json:"overridden"`
	Locked           int64   `json:"locked"`
}

// Overview 工作流概览
type Overview struct {
	ByStatus    []*CountItem           `json:"by_status"`
	ByTrack     []*CountItem           `json:"by_track"`
	DDByStatus  []*CountItem           `json:"dd_by_status"`
	Eligibility *EligibilityStatistics `json:"eligibility"`
}

// statisticsService 统计服务实现
type statisticsService struct {
	base
}

// NewStatisticsService 创建统计服务
func NewStatisticsService(deps Deps) StatisticsService {
	return &statisticsService{base: newBase(deps)}
}

// CountByStatus 按状态统计未归档申请, 供指标收集器使用
func (s *statisticsService) CountByStatus() (map[string]int64, error) {
	items, err := s.groupCount(&model.ApplicationModel{}, "status", "archived_at IS NULL")
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(items))
	for _, item := range items {
		counts[item.Key] = item.Count
	}
	return counts, nil
}

// Overview 获取工作流概览
func (s *statisticsService) Overview(ctx context.Context) (*Overview, error) {
	if _, err := s.authorize(ctx, workflow.OpViewStatistics); err != nil {
		return nil, err
	}
	overview, err := s.overview()
	if err != nil {
		return nil, s.internal(ctx, workflow.OpViewStatistics, err)
	}
	return overview, nil
}

func (s *statisticsService) overview() (*Overview, error) {
	var err error
	overview := &Overview{}
	if overview.ByStatus, err = s.groupCount(&model.ApplicationModel{}, "status", "archived_at IS NULL"); err != nil {
		return nil, err
	}
	if overview.ByTrack, err = s.groupCount(&model.ApplicationModel{}, "track", "archived_at IS NULL"); err != nil {
		return nil, err
	}
	if overview.DDByStatus, err = s.groupCount(&model.DueDiligenceModel{}, "dd_status", ""); err != nil {
		return nil, err
	}
	if overview.Eligibility, err = s.eligibility(); err != nil {
		return nil, err
	}
	return overview, nil
}

// groupCount 按列分组计数
func (s *statisticsService) groupCount(m interface{}, column, where string) ([]*CountItem, error) {
	var results []struct {
		GroupKey string
		Total    int64
	}
	query := s.db.Model(m).Select(column + " AS group_key, COUNT(*) AS total")
	if where != "" {
		query = query.Where(where)
	}
	err := query.Group(column).Order(column).Scan(&results).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count by %s: %w", column, err)
	}

	items := make([]*CountItem, 0, len(results))
	for _, r := range results {
		items = append(items, &CountItem{Key: r.GroupKey, Count: r.Total})
	}
	return items, nil
}

// eligibility 评分汇总
func (s *statisticsService) eligibility() (*EligibilityStatistics, error) {
	stats := &EligibilityStatistics{}
	counts := []struct {
		target *int64
		where  string
	}{
		{&stats.Scored, "reviewer1_score IS NOT NULL"},
		{&stats.Final, "reviewer1_score IS NOT NULL AND reviewer2_score IS NOT NULL"},
		{&stats.Eligible, "reviewer2_score IS NOT NULL AND is_eligible = ?"},
		{&stats.DisparityFlagged, "disparity_flagged = ?"},
		{&stats.Overridden, "overrode_reviewer1 = ?"},
		{&stats.Locked, "is_locked = ?"},
	}
	for _, c := range counts {
		query := s.db.Model(&model.EligibilityResultModel{})
		if strings.Contains(c.where, "?") {
			query = query.Where(c.where, true)
		} else {
			query = query.Where(c.where)
		}
		if err := query.Count(c.target).Error; err != nil {
			return nil, fmt.Errorf("failed to count eligibility results: %w", err)
		}
	}

	var avg struct {
		Average *float64
	}
	err := s.db.Model(&model.EligibilityResultModel{}).
		Select("AVG(total_score) AS average").
		Where("total_score IS NOT NULL").
		Scan(&avg).Error
	if err != nil {
		return nil, fmt.Errorf("failed to average total scores: %w", err)
	}
	if avg.Average != nil {
		stats.AverageTotal = *avg.Average
	}
	if stats.Final > 0 {
		stats.EligibleRate = float64(stats.Eligible) / float64(stats.Final) * 100
	}
	return stats, nil
}
