package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IdrisKulubi/HIH-sub002/internal/auth"
	"github.com/IdrisKulubi/HIH-sub002/internal/integration"
	"github.com/IdrisKulubi/HIH-sub002/internal/metrics"
	"github.com/IdrisKulubi/HIH-sub002/internal/model"
	"github.com/IdrisKulubi/HIH-sub002/internal/repository"
	"github.com/IdrisKulubi/HIH-sub002/internal/workflow"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps 工作流服务的公共依赖
type Deps struct {
	DB        *gorm.DB
	Policy    *workflow.PolicyStore
	Publisher integration.Publisher
	Logger    *logrus.Logger
	Clock     func() time.Time
}

// errInternal 对外统一的内部错误
var errInternal = &workflow.Error{Kind: workflow.KindInternal, Code: "INTERNAL_ERROR", Message: "internal error"}

// base 工作流服务共用的事务、鉴权与日志
type base struct {
	db        *gorm.DB
	policy    *workflow.PolicyStore
	publisher integration.Publisher
	logger    *logrus.Logger
	clock     func() time.Time
}

func newBase(d Deps) base {
	b := base{
		db:        d.DB,
		policy:    d.Policy,
		publisher: d.Publisher,
		logger:    d.Logger,
		clock:     d.Clock,
	}
	if b.policy == nil {
		b.policy = workflow.NewPolicyStore(workflow.DefaultSettings(), workflow.DefaultRubrics())
	}
	if b.logger == nil {
		b.logger = logrus.StandardLogger()
	}
	if b.clock == nil {
		b.clock = time.Now
	}
	return b
}

func (b *base) now() time.Time {
	return b.clock().UTC()
}

// authorize 获取当前用户并校验操作权限
func (b *base) authorize(ctx context.Context, op workflow.Operation) (*workflow.Actor, error) {
	actor := auth.CurrentUser(ctx)
	if err := workflow.Authorize(actor, op); err != nil {
		return nil, err
	}
	return actor, nil
}

// internal 记录非预期错误并转换为对外的通用错误
func (b *base) internal(ctx context.Context, op workflow.Operation, err error) error {
	if err == nil {
		return nil
	}
	if workflow.KindOf(err) != workflow.KindInternal {
		return err
	}
	b.logger.WithError(err).WithFields(logrus.Fields{
		"operation":  op,
		"request_id": GetRequestID(ctx),
	}).Error("workflow operation failed")
	return errInternal
}

// run 在单个事务中执行变更, 提交后记录指标并发布事件
func (b *base) run(ctx context.Context, op workflow.Operation, actor *workflow.Actor, fn func(cs *changeSet) error) error {
	var cs *changeSet
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cs = newChangeSet(ctx, tx, actor, b.now(), b.policy.Settings())
		return fn(cs)
	})
	if err != nil {
		return b.internal(ctx, op, err)
	}
	b.commit(ctx, cs)
	return nil
}

// commit 事务提交后的副作用
func (b *base) commit(ctx context.Context, cs *changeSet) {
	for _, t := range cs.transitions {
		metrics.RecordStatusTransition(t.to, t.forced)
	}
	for _, fn := range cs.afterCommit {
		fn()
	}
	if b.publisher == nil {
		return
	}
	for _, evt := range cs.events {
		if err := b.publisher.Publish(ctx, evt); err != nil {
			b.logger.WithError(err).WithField("event_type", evt.Type).Warn("failed to publish workflow event")
		}
	}
}

type transitionRecord struct {
	to     string
	forced bool
}

// changeSet 单个事务内的仓储与待提交副作用
type changeSet struct {
	ctx       context.Context
	tx        *gorm.DB
	actor     *workflow.Actor
	now       time.Time
	settings  workflow.Settings
	apps      repository.ApplicationRepository
	reviewers repository.ReviewerRepository
	results   repository.EligibilityRepository
	dd        repository.DueDiligenceRepository
	history   repository.StateHistoryRepository
	audits    repository.AuditLogRepository

	events      []*integration.Event
	transitions []transitionRecord
	afterCommit []func()
}

func newChangeSet(ctx context.Context, tx *gorm.DB, actor *workflow.Actor, now time.Time, settings workflow.Settings) *changeSet {
	return &changeSet{
		ctx:       ctx,
		tx:        tx,
		actor:     actor,
		now:       now,
		settings:  settings,
		apps:      repository.NewApplicationRepository(tx),
		reviewers: repository.NewReviewerRepository(tx),
		results:   repository.NewEligibilityRepository(tx),
		dd:        repository.NewDueDiligenceRepository(tx),
		history:   repository.NewStateHistoryRepository(tx),
		audits:    repository.NewAuditLogRepository(tx),
	}
}

func (cs *changeSet) actorID() string {
	if cs.actor == nil {
		return ""
	}
	return cs.actor.ID
}

// onCommit 注册事务提交后执行的回调
func (cs *changeSet) onCommit(fn func()) {
	cs.afterCommit = append(cs.afterCommit, fn)
}

// loadApplication 加载申请, 不存在时返回 not found
func (cs *changeSet) loadApplication(id uint) (*model.ApplicationModel, error) {
	app, err := cs.apps.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.NotFound("APPLICATION_NOT_FOUND", "application %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

// loadActiveApplication 加载未归档的申请
func (cs *changeSet) loadActiveApplication(id uint) (*model.ApplicationModel, error) {
	app, err := cs.loadApplication(id)
	if err != nil {
		return nil, err
	}
	if app.ArchivedAt != nil {
		return nil, workflow.Conflict("APPLICATION_ARCHIVED", "application %d is archived", id)
	}
	return app, nil
}

// loadDD 加载尽调记录
func (cs *changeSet) loadDD(applicationID uint) (*model.DueDiligenceModel, error) {
	record, err := cs.dd.FindByApplicationID(applicationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, workflow.NotFound("DD_NOT_FOUND", "no due diligence record for application %d", applicationID)
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// moveApplication 变更申请状态
// 非强制变更必须通过状态转换表, 写入时再次校验当前状态
func (cs *changeSet) moveApplication(app *model.ApplicationModel, to workflow.ApplicationStatus, reason string, forced bool) error {
	from := workflow.ApplicationStatus(app.Status)
	if !to.Valid() {
		return workflow.Invalid("INVALID_STATUS", "unknown status %q", to)
	}
	if !forced && !workflow.CanTransition(from, to) {
		return workflow.Conflict("INVALID_TRANSITION", "cannot move application %d from %s to %s", app.ID, from, to)
	}

	extra := map[string]interface{}{}
	if to == workflow.StatusSubmitted && app.SubmittedAt == nil {
		extra["submitted_at"] = cs.now
	}
	ok, err := cs.apps.UpdateStatus(app.ID, string(from), string(to), cs.now, extra)
	if err != nil {
		return err
	}
	if !ok {
		return workflow.Conflict("STALE_STATUS", "application %d changed concurrently", app.ID)
	}

	if err := cs.history.Save(&model.StateHistoryModel{
		ID:           uuid.New().String(),
		ResourceType: model.ResourceApplication,
		ResourceID:   resourceID(app.ID),
		FromState:    string(from),
		ToState:      string(to),
		Reason:       reason,
		Operator:     cs.actorID(),
		Forced:       forced,
		CreatedAt:    cs.now,
	}); err != nil {
		return err
	}

	app.Status = string(to)
	app.UpdatedAt = cs.now
	if to == workflow.StatusSubmitted && app.SubmittedAt == nil {
		submitted := cs.now
		app.SubmittedAt = &submitted
	}
	cs.transitions = append(cs.transitions, transitionRecord{to: string(to), forced: forced})
	cs.emit(integration.EventApplicationStatusChanged, app.ID, map[string]interface{}{
		"from":   from,
		"to":     to,
		"forced": forced,
		"reason": reason,
	})
	return nil
}

// recordDD 记录尽调状态变更
func (cs *changeSet) recordDD(applicationID uint, from, to workflow.DDStatus, reason string) error {
	if from == to {
		return nil
	}
	if err := cs.history.Save(&model.StateHistoryModel{
		ID:           uuid.New().String(),
		ResourceType: model.ResourceDueDiligence,
		ResourceID:   resourceID(applicationID),
		FromState:    string(from),
		ToState:      string(to),
		Reason:       reason,
		Operator:     cs.actorID(),
		CreatedAt:    cs.now,
	}); err != nil {
		return err
	}
	cs.emit(integration.EventDDStatusChanged, applicationID, map[string]interface{}{
		"from": from,
		"to":   to,
	})
	return nil
}

// audit 在事务内写入审计日志
func (cs *changeSet) audit(op workflow.Operation, resourceType, resourceID string, details interface{}) error {
	entry, err := newAuditLog(cs.ctx, cs.actorID(), string(op), resourceType, resourceID, details, cs.now)
	if err != nil {
		return fmt.Errorf("failed to build audit log: %w", err)
	}
	return cs.audits.Save(entry)
}

// emit 登记事务提交后发布的事件
func (cs *changeSet) emit(eventType string, applicationID uint, data map[string]interface{}) {
	cs.events = append(cs.events, &integration.Event{
		Type:          eventType,
		ApplicationID: applicationID,
		Actor:         cs.actorID(),
		Data:          data,
		OccurredAt:    cs.now,
	})
}

func resourceID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// BulkItem 批量操作中单个条目的结果
type BulkItem struct {
	ID      uint   `json:"id"`
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BulkResult 批量操作结果
type BulkResult struct {
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Items     []*BulkItem `json:"items"`
}

func (r *BulkResult) add(id uint, err error) {
	item := &BulkItem{ID: id, Success: err == nil}
	if err != nil {
		item.Code = workflow.CodeOf(err)
		item.Error = err.Error()
		r.Failed++
	} else {
		r.Succeeded++
	}
	r.Items = append(r.Items, item)
}
