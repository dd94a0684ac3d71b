package workflow

import (
	"sync"
	"time"
)

// Settings 工作流可调参数
type Settings struct {
	PassThreshold    float64       // 资格线, 总分 >= 该值视为合格
	DDThreshold      float64       // 进入尽职调查的分数线
	MaxScore         float64       // 评分上限
	DisparityDelta   float64       // R1/R2 分差超过该值时标记
	ApprovalWindow   time.Duration // 验证人审批时限
	MinCommentLength int           // 验证人意见最短长度
}

// DefaultSettings 返回默认参数
func DefaultSettings() Settings {
	return Settings{
		PassThreshold:    60,
		DDThreshold:      60,
		MaxScore:         100,
		DisparityDelta:   10,
		ApprovalWindow:   12 * time.Hour,
		MinCommentLength: 5,
	}
}

// PolicyStore 运行期参数存储, 支持配置热更新
type PolicyStore struct {
	mu       sync.RWMutex
	settings Settings
	rubrics  Rubrics
}

// NewPolicyStore 创建参数存储
func NewPolicyStore(settings Settings, rubrics Rubrics) *PolicyStore {
	return &PolicyStore{settings: settings, rubrics: rubrics}
}

// Settings 获取当前参数
func (p *PolicyStore) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

// Rubrics 获取尽调评分细则
func (p *PolicyStore) Rubrics() Rubrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rubrics
}

// Update 替换参数
func (p *PolicyStore) Update(settings Settings) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings = settings
}

// UpdateRubrics 替换评分细则
func (p *PolicyStore) UpdateRubrics(rubrics Rubrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rubrics = rubrics
}
