package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/huminex/payroll_backend/appctx"
	"github.com/huminex/payroll_backend/config"
	"github.com/huminex/payroll_backend/utils"
	"gorm.io/gorm"
)

// OutboxEvent is a business event written in the same transaction as the state
// change it describes. The dispatcher publishes it after commit.
type OutboxEvent struct {
	ID               string     `gorm:"primaryKey;size:26" json:"id"`
	TenantId         string     `gorm:"size:64;not null;index" json:"tenantId"`
	EventName        string     `gorm:"size:100;not null;index" json:"eventName"`
	AggregateType    string     `gorm:"size:50;not null" json:"aggregateType"`
	AggregateId      string     `gorm:"size:128;not null;index" json:"aggregateId"`
	Payload          string     `gorm:"type:text;not null" json:"payload"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlationId"`
	OccurredAtUtc    time.Time  `gorm:"not null" json:"occurredAtUtc"`
	PublishStatus    string     `gorm:"size:20;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publishStatus"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishAttempts  int        `gorm:"not null;default:0" json:"publishAttempts"`
	NextAttemptAt    *time.Time `gorm:"index:idx_outbox_dispatch,priority:2" json:"nextAttemptAt"`
	LockedAt         *time.Time `gorm:"index" json:"lockedAt"`
	LockedBy         *string    `gorm:"size:100" json:"lockedBy"`
	LastPublishError *string    `gorm:"type:text" json:"lastPublishError"`
	PublishedAt      *time.Time `json:"publishedAt"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsubMessageId"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// BusinessEventPayload is the body of every payroll event.
type BusinessEventPayload struct {
	TenantId         string    `json:"tenantId"`
	ResourceId       string    `json:"resourceId"`
	Status           string    `json:"status"`
	ActorUserId      string    `json:"actorUserId"`
	Period           string    `json:"period,omitempty"`
	EmployeeId       string    `json:"employeeId,omitempty"`
	Email            string    `json:"email,omitempty"`
	DocumentBlobName string    `json:"documentBlobName,omitempty"`
	OccurredAtUtc    time.Time `json:"occurredAtUtc"`
}

func NewOutboxEvent(eventName, aggregateType string, rc appctx.RequestContext, payload BusinessEventPayload, now time.Time) (*OutboxEvent, error) {
	now = now.UTC()
	payload.TenantId = rc.TenantID
	payload.ActorUserId = rc.UserID
	payload.OccurredAtUtc = now
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &OutboxEvent{
		ID:            utils.NewSortableID(now),
		TenantId:      rc.TenantID,
		EventName:     eventName,
		AggregateType: aggregateType,
		AggregateId:   payload.ResourceId,
		Payload:       string(body),
		CorrelationId: rc.TraceID,
		OccurredAtUtc: now,
		PublishStatus: OutboxPublishStatusPending,
	}, nil
}

func (e OutboxEvent) ToPubSubMessage() config.PubSubMessage {
	return config.PubSubMessage{
		EventId:       e.ID,
		EventName:     e.EventName,
		TenantId:      e.TenantId,
		AggregateType: e.AggregateType,
		AggregateId:   e.AggregateId,
		OccurredAt:    e.OccurredAtUtc,
		Payload:       json.RawMessage(e.Payload),
		CorrelationId: e.CorrelationId,
	}
}

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

func (r *OutboxRepository) WithTx(tx *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: tx}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, evt *OutboxEvent) error {
	if evt.TenantId == "" {
		return ErrMissingTenant
	}
	return r.db.WithContext(ctx).Create(evt).Error
}

func (r *OutboxRepository) ListForAggregate(ctx context.Context, tenantID, aggregateID string) ([]OutboxEvent, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	var events []OutboxEvent
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND aggregate_id = ?", tenantID, aggregateID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

// ListByStatus is an internal-ops view across tenants.
func (r *OutboxRepository) ListByStatus(ctx context.Context, status string, limit int) ([]OutboxEvent, error) {
	ctx = appctx.CrossTenant(ctx)
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var events []OutboxEvent
	q := r.db.WithContext(ctx).Order("id ASC").Limit(limit)
	if status != "" {
		q = q.Where("publish_status = ?", status)
	}
	err := q.Find(&events).Error
	return events, err
}

// Replay makes a FAILED or DEAD event eligible for immediate redelivery.
func (r *OutboxRepository) Replay(ctx context.Context, tenantID, eventID string, now time.Time) (*OutboxEvent, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	now = now.UTC()
	res := r.db.WithContext(ctx).Model(&OutboxEvent{}).
		Where("tenant_id = ? AND id = ? AND publish_status IN ?", tenantID, eventID,
			[]string{OutboxPublishStatusFailed, OutboxPublishStatusDead}).
		Updates(map[string]interface{}{
			"publish_status":     OutboxPublishStatusFailed,
			"publish_attempts":   0,
			"next_attempt_at":    &now,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	var evt OutboxEvent
	if err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, eventID).Take(&evt).Error; err != nil {
		return nil, notFound(err)
	}
	return &evt, nil
}
