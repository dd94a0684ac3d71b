package integration

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/config"
	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// 工作流事件类型
const (
	EventApplicationStatusChanged = "application.status_changed"
	EventReviewerAssigned         = "reviewer.assigned"
	EventReviewSubmitted          = "review.submitted"
	EventScoresLocked             = "review.locked"
	EventDDCreated                = "due_diligence.created"
	EventDDStatusChanged          = "due_diligence.status_changed"
	EventDDReassigned             = "due_diligence.auto_reassigned"
)

// Event 工作流事件
type Event struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	ApplicationID uint                   `json:"application_id"`
	Actor         string                 `json:"actor"`
	Data          map[string]interface{} `json:"data,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
}

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, evt *Event) error
}

// EventDispatcher 事件分发器
// 事件先写入 workflow_events, 配置了 Webhook 时由 worker 异步推送
type EventDispatcher struct {
	repo       repository.WorkflowEventRepository
	client     *resty.Client
	url        string
	secret     string
	maxRetries int
	backoff    time.Duration
	workers    int
	queue      chan string
	stop       chan struct{}
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
	logger     *logrus.Logger
}

// NewEventDispatcher 创建事件分发器
func NewEventDispatcher(repo repository.WorkflowEventRepository, cfg config.WebhookConfig, logger *logrus.Logger) *EventDispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &EventDispatcher{
		repo: repo,
		client: resty.New().
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json").
			SetHeader("User-Agent", "bire-review"),
		url:        cfg.URL,
		secret:     cfg.Secret,
		maxRetries: maxRetries,
		backoff:    time.Second,
		workers:    workers,
		queue:      make(chan string, 1000),
		stop:       make(chan struct{}),
		logger:     logger,
	}
}

// SetBackoff 设置首次重试的等待时间
func (d *EventDispatcher) SetBackoff(backoff time.Duration) {
	d.backoff = backoff
}

// Enabled 是否配置了 Webhook
func (d *EventDispatcher) Enabled() bool {
	return d.url != ""
}

// Start 启动推送 worker, 并重新投递上次未完成的事件
func (d *EventDispatcher) Start() {
	if !d.Enabled() {
		return
	}
	d.startOnce.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.worker()
		}

		pending, err := d.repo.FindPending(cap(d.queue) / 2)
		if err != nil {
			d.logger.WithError(err).Warn("failed to load pending workflow events")
			return
		}
		for _, evt := range pending {
			d.enqueue(evt.ID)
		}
	})
}

// Stop 停止 worker
func (d *EventDispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.stop)
		d.wg.Wait()
	})
}

// Publish 持久化事件并加入推送队列
func (d *EventDispatcher) Publish(ctx context.Context, evt *Event) error {
	if evt.ID == "" {
		evt.ID = uuid.New().String()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	status := model.EventPending
	if !d.Enabled() {
		// 没有推送目标, 仅留档
		status = model.EventSuccess
	}

	record := &model.WorkflowEventModel{
		ID:            evt.ID,
		ApplicationID: evt.ApplicationID,
		Type:          evt.Type,
		Data:          string(data),
		Status:        status,
		CreatedAt:     evt.OccurredAt,
		UpdatedAt:     evt.OccurredAt,
	}
	if err := d.repo.Save(record); err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}

	if d.Enabled() {
		d.enqueue(evt.ID)
	}
	return nil
}

func (d *EventDispatcher) enqueue(id string) {
	select {
	case d.queue <- id:
	default:
		// 队列满时保留 pending 状态, 下次启动时重新投递
		d.logger.WithField("event_id", id).Warn("event queue full, delivery deferred")
	}
}

// worker 事件推送 worker
func (d *EventDispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case id := <-d.queue:
			d.deliver(id)
		case <-d.stop:
			return
		}
	}
}

// deliver 推送单个事件, 失败时指数退避重试
func (d *EventDispatcher) deliver(id string) {
	evt, err := d.repo.FindByID(id)
	if err != nil {
		d.logger.WithError(err).WithField("event_id", id).Error("failed to load workflow event")
		return
	}

	backoff := d.backoff
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		err = d.send(evt)
		if err == nil {
			if err := d.repo.MarkDelivered(id); err != nil {
				d.logger.WithError(err).WithField("event_id", id).Error("failed to mark event delivered")
			}
			return
		}

		status := model.EventPending
		if attempt == d.maxRetries {
			status = model.EventFailed
		}
		if markErr := d.repo.MarkAttempt(id, status, err.Error()); markErr != nil {
			d.logger.WithError(markErr).WithField("event_id", id).Error("failed to record delivery attempt")
		}
		d.logger.WithError(err).WithFields(logrus.Fields{
			"event_id": id,
			"type":     evt.Type,
			"attempt":  attempt,
		}).Warn("webhook delivery failed")

		if attempt < d.maxRetries {
			select {
			case <-time.After(backoff):
			case <-d.stop:
				return
			}
			backoff *= 2
		}
	}
}

// send 发送 Webhook 请求
func (d *EventDispatcher) send(evt *model.WorkflowEventModel) error {
	req := d.client.R().
		SetHeader("X-Bire-Event", evt.Type).
		SetHeader("X-Bire-Delivery", evt.ID).
		SetBody(evt.Data)
	if d.secret != "" {
		req.SetHeader("X-Bire-Signature", "sha256="+Sign(d.secret, []byte(evt.Data)))
	}

	resp, err := req.Post(d.url)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status code: %d", resp.StatusCode())
	}
	return nil
}

// Sign 计算请求体的 HMAC-SHA256 签名
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
