package models_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/huminex/payroll_backend/appctx"
	"github.com/huminex/payroll_backend/models"
)

func TestNewOutboxEvent_StampsRequestContext(t *testing.T) {
	rc := appctx.RequestContext{TenantID: "t1", UserID: "u1", TraceID: "trace-1"}
	evt, err := models.NewOutboxEvent(models.EventPayrollRunApproved, models.AuditResourcePayrollRun, rc, models.BusinessEventPayload{
		ResourceId: "r1",
		Status:     "approved",
		Period:     "2026-02",
	}, testNow)
	if err != nil {
		t.Fatalf("NewOutboxEvent: %v", err)
	}
	if evt.TenantId != "t1" || evt.AggregateId != "r1" || evt.CorrelationId != "trace-1" || evt.PublishStatus != models.OutboxPublishStatusPending {
		t.Fatalf("unexpected event: %+v", evt)
	}
	var payload models.BusinessEventPayload
	if err := json.Unmarshal([]byte(evt.Payload), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.TenantId != "t1" || payload.ActorUserId != "u1" || !payload.OccurredAtUtc.Equal(testNow) {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	msg := evt.ToPubSubMessage()
	if msg.EventId != evt.ID || msg.EventName != models.EventPayrollRunApproved || string(msg.Payload) != evt.Payload {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestNewOutboxEvent_IdsSortByCreation(t *testing.T) {
	rc := appctx.RequestContext{TenantID: "t1", UserID: "u1"}
	first, _ := models.NewOutboxEvent(models.EventPayrollRunCreated, models.AuditResourcePayrollRun, rc, models.BusinessEventPayload{ResourceId: "r1"}, testNow)
	second, _ := models.NewOutboxEvent(models.EventPayrollRunCreated, models.AuditResourcePayrollRun, rc, models.BusinessEventPayload{ResourceId: "r2"}, testNow.Add(time.Millisecond))
	if !(first.ID < second.ID) {
		t.Fatalf("expected %s < %s", first.ID, second.ID)
	}
}

func TestOutboxRepository_EnqueueListAndReplay(t *testing.T) {
	db := newTestDB(t)
	repo := models.NewOutboxRepository(db)
	ctx := context.Background()
	rc := appctx.RequestContext{TenantID: "t1", UserID: "u1"}

	evt, err := models.NewOutboxEvent(models.EventPayrollRunCreated, models.AuditResourcePayrollRun, rc, models.BusinessEventPayload{ResourceId: "r1"}, testNow)
	if err != nil {
		t.Fatalf("NewOutboxEvent: %v", err)
	}
	if err := repo.Enqueue(ctx, evt); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	events, err := repo.ListForAggregate(ctx, "t1", "r1")
	if err != nil || len(events) != 1 {
		t.Fatalf("ListForAggregate: %d events err=%v", len(events), err)
	}
	if events, _ := repo.ListForAggregate(ctx, "t2", "r1"); len(events) != 0 {
		t.Fatalf("foreign tenant saw events")
	}

	pending, err := repo.ListByStatus(ctx, models.OutboxPublishStatusPending, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("ListByStatus: %d events err=%v", len(pending), err)
	}

	// only FAILED and DEAD events can be replayed
	if _, err := repo.Replay(ctx, "t1", evt.ID, testNow); !errors.Is(err, models.ErrRecordNotFound) {
		t.Fatalf("replay pending: expected ErrRecordNotFound, got %v", err)
	}

	if err := db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("tenant_id = ? AND id = ?", "t1", evt.ID).
		Updates(map[string]interface{}{"publish_status": models.OutboxPublishStatusDead, "publish_attempts": 20}).Error; err != nil {
		t.Fatalf("mark dead: %v", err)
	}
	if _, err := repo.Replay(ctx, "t2", evt.ID, testNow); !errors.Is(err, models.ErrRecordNotFound) {
		t.Fatalf("replay foreign: expected ErrRecordNotFound, got %v", err)
	}
	replayed, err := repo.Replay(ctx, "t1", evt.ID, testNow)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayed.PublishStatus != models.OutboxPublishStatusFailed || replayed.PublishAttempts != 0 || replayed.NextAttemptAt == nil {
		t.Fatalf("unexpected replayed event: %+v", replayed)
	}
}

func TestOutboxRepository_EnqueueRequiresTenant(t *testing.T) {
	db := newTestDB(t)
	repo := models.NewOutboxRepository(db)
	if err := repo.Enqueue(context.Background(), &models.OutboxEvent{ID: "x"}); !errors.Is(err, models.ErrMissingTenant) {
		t.Fatalf("expected ErrMissingTenant, got %v", err)
	}
}
