package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/huminex/payroll_backend/config"
	"github.com/huminex/payroll_backend/models"
	"gorm.io/gorm"
)

type fakePublisher struct {
	mu        sync.Mutex
	published []config.PubSubMessage
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, msg config.PubSubMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, msg)
	return "msg-" + msg.EventId, nil
}

func newTestDispatcher(db *gorm.DB, publisher Publisher, now *time.Time) *OutboxDispatcher {
	d := NewOutboxDispatcher(db, publisher, config.NewLogger("panic"))
	d.Now = func() time.Time { return *now }
	return d
}

func enqueueTestEvent(t *testing.T, db *gorm.DB, tenantID, resourceID string) *models.OutboxEvent {
	t.Helper()
	evt, err := models.NewOutboxEvent(models.EventPayrollRunCreated, models.AuditResourcePayrollRun,
		testRequestContext(tenantID), models.BusinessEventPayload{ResourceId: resourceID}, testNow)
	if err != nil {
		t.Fatalf("NewOutboxEvent: %v", err)
	}
	if err := models.NewOutboxRepository(db).Enqueue(context.Background(), evt); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return evt
}

func reloadEvent(t *testing.T, db *gorm.DB, evt *models.OutboxEvent) models.OutboxEvent {
	t.Helper()
	var out models.OutboxEvent
	if err := db.Where("tenant_id = ? AND id = ?", evt.TenantId, evt.ID).Take(&out).Error; err != nil {
		t.Fatalf("reload event: %v", err)
	}
	return out
}

func TestOutboxDispatcher_PublishesAcrossTenants(t *testing.T) {
	db := newTestDB(t)
	a := enqueueTestEvent(t, db, "t1", "r1")
	b := enqueueTestEvent(t, db, "t2", "r2")
	publisher := &fakePublisher{}
	now := testNow
	d := newTestDispatcher(db, publisher, &now)

	sent, err := d.DispatchOnce(context.Background())
	if err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	if sent != 2 || len(publisher.published) != 2 {
		t.Fatalf("expected 2 published, got sent=%d published=%d", sent, len(publisher.published))
	}
	for _, evt := range []*models.OutboxEvent{a, b} {
		got := reloadEvent(t, db, evt)
		if got.PublishStatus != models.OutboxPublishStatusSent || got.PubSubMessageId == nil || *got.PubSubMessageId != "msg-"+evt.ID {
			t.Fatalf("unexpected event state: %+v", got)
		}
		if got.LockedAt != nil || got.LockedBy != nil || got.PublishAttempts != 1 {
			t.Fatalf("lock not released: %+v", got)
		}
	}

	sent, err = d.DispatchOnce(context.Background())
	if err != nil || sent != 0 {
		t.Fatalf("sent events must not be published again: sent=%d err=%v", sent, err)
	}
}

func TestOutboxDispatcher_FailureBacksOff(t *testing.T) {
	db := newTestDB(t)
	evt := enqueueTestEvent(t, db, "t1", "r1")
	publisher := &fakePublisher{err: errors.New("broker down")}
	now := testNow
	d := newTestDispatcher(db, publisher, &now)

	if sent, err := d.DispatchOnce(context.Background()); err != nil || sent != 0 {
		t.Fatalf("DispatchOnce: sent=%d err=%v", sent, err)
	}
	got := reloadEvent(t, db, evt)
	if got.PublishStatus != models.OutboxPublishStatusFailed || got.PublishAttempts != 1 || got.LastPublishError == nil {
		t.Fatalf("unexpected failed event: %+v", got)
	}
	if got.NextAttemptAt == nil || !got.NextAttemptAt.Equal(testNow.Add(d.InitialBackoff)) {
		t.Fatalf("expected next attempt at %s, got %v", testNow.Add(d.InitialBackoff), got.NextAttemptAt)
	}

	// not due yet
	publisher.err = nil
	if sent, _ := d.DispatchOnce(context.Background()); sent != 0 {
		t.Fatalf("event retried before its backoff elapsed")
	}

	now = testNow.Add(d.InitialBackoff + time.Second)
	if sent, err := d.DispatchOnce(context.Background()); err != nil || sent != 1 {
		t.Fatalf("retry: sent=%d err=%v", sent, err)
	}
	got = reloadEvent(t, db, evt)
	if got.PublishStatus != models.OutboxPublishStatusSent || got.PublishAttempts != 2 {
		t.Fatalf("unexpected retried event: %+v", got)
	}
}

func TestOutboxDispatcher_DeadAfterMaxAttempts(t *testing.T) {
	db := newTestDB(t)
	evt := enqueueTestEvent(t, db, "t1", "r1")
	publisher := &fakePublisher{err: errors.New("broker down")}
	now := testNow
	d := newTestDispatcher(db, publisher, &now)
	d.MaxAttempts = 1

	if _, err := d.DispatchOnce(context.Background()); err != nil {
		t.Fatalf("DispatchOnce: %v", err)
	}
	got := reloadEvent(t, db, evt)
	if got.PublishStatus != models.OutboxPublishStatusDead || got.NextAttemptAt != nil {
		t.Fatalf("expected DEAD event, got %+v", got)
	}

	// replay makes it eligible again with a fresh attempt budget
	if _, err := models.NewOutboxRepository(db).Replay(context.Background(), "t1", evt.ID, now); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	publisher.err = nil
	if sent, err := d.DispatchOnce(context.Background()); err != nil || sent != 1 {
		t.Fatalf("after replay: sent=%d err=%v", sent, err)
	}
}

func TestOutboxDispatcher_ReclaimsStaleLocks(t *testing.T) {
	db := newTestDB(t)
	evt := enqueueTestEvent(t, db, "t1", "r1")
	publisher := &fakePublisher{}
	now := testNow
	d := newTestDispatcher(db, publisher, &now)

	lockedAt := testNow.Add(-time.Second)
	owner := "crashed-dispatcher"
	if err := db.Model(&models.OutboxEvent{}).Where("tenant_id = ? AND id = ?", "t1", evt.ID).Updates(map[string]interface{}{
		"publish_status": models.OutboxPublishStatusProcessing,
		"locked_at":      &lockedAt,
		"locked_by":      &owner,
	}).Error; err != nil {
		t.Fatalf("lock event: %v", err)
	}

	if sent, _ := d.DispatchOnce(context.Background()); sent != 0 {
		t.Fatalf("fresh lock must be respected")
	}
	now = testNow.Add(d.LockTimeout)
	if sent, err := d.DispatchOnce(context.Background()); err != nil || sent != 1 {
		t.Fatalf("stale lock: sent=%d err=%v", sent, err)
	}
}

func TestOutboxDispatcher_Backoff(t *testing.T) {
	d := &OutboxDispatcher{InitialBackoff: 5 * time.Second, MaxBackoff: 30 * time.Second}
	cases := map[int]time.Duration{1: 5 * time.Second, 2: 10 * time.Second, 3: 20 * time.Second, 4: 30 * time.Second, 12: 30 * time.Second}
	for attempt, want := range cases {
		if got := d.backoff(attempt); got != want {
			t.Fatalf("backoff(%d): expected %s, got %s", attempt, want, got)
		}
	}
}
