package models_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/huminex/payroll_backend/models"
	"gorm.io/gorm"
)

func newIdempotencyStoreForTest(t *testing.T) (*models.IdempotencyStore, *time.Time) {
	t.Helper()
	store := models.NewIdempotencyStore(newTestDB(t))
	now := testNow
	store.Now = func() time.Time { return now }
	return store, &now
}

func TestIdempotencyStore_PutThenTryGet(t *testing.T) {
	store, _ := newIdempotencyStoreForTest(t)
	ctx := context.Background()

	got, err := store.TryGet(ctx, "t1", "k1", "POST", "/api/v1/payroll/runs")
	if err != nil || got != nil {
		t.Fatalf("expected miss, got %+v err=%v", got, err)
	}

	resp := models.StoredResponse{StatusCode: 201, Body: []byte(`{"data":{"runId":"r1"},"traceId":"x"}`), Fingerprint: "fp1"}
	if err := store.Put(ctx, "t1", "k1", "POST", "/api/v1/payroll/runs", resp, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err = store.TryGet(ctx, "t1", "k1", "POST", "/api/v1/payroll/runs")
	if err != nil || got == nil {
		t.Fatalf("expected hit, got %+v err=%v", got, err)
	}
	if got.StatusCode != 201 || string(got.Body) != string(resp.Body) || got.Fingerprint != "fp1" {
		t.Fatalf("unexpected stored response: %+v", got)
	}

	// key scope is (tenant, key, method, path)
	for _, probe := range [][3]string{{"t2", "k1", "/api/v1/payroll/runs"}, {"t1", "k2", "/api/v1/payroll/runs"}, {"t1", "k1", "/api/v1/payroll/runs/r1/approve"}} {
		if got, _ := store.TryGet(ctx, probe[0], probe[1], "POST", probe[2]); got != nil {
			t.Fatalf("probe %v should miss, got %+v", probe, got)
		}
	}
}

func TestIdempotencyStore_PutSameResponseIsNoop(t *testing.T) {
	store, _ := newIdempotencyStoreForTest(t)
	ctx := context.Background()
	resp := models.StoredResponse{StatusCode: 200, Body: []byte(`{"data":1}`), Fingerprint: "fp"}

	if err := store.Put(ctx, "t1", "k1", "POST", "/p", resp, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "t1", "k1", "POST", "/p", resp, time.Hour); err != nil {
		t.Fatalf("second identical Put: %v", err)
	}

	different := models.StoredResponse{StatusCode: 409, Body: []byte(`{"code":"INVALID_TRANSITION"}`), Fingerprint: "fp"}
	if err := store.Put(ctx, "t1", "k1", "POST", "/p", different, time.Hour); !errors.Is(err, models.ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}

	got, _ := store.TryGet(ctx, "t1", "k1", "POST", "/p")
	if got == nil || got.StatusCode != 200 {
		t.Fatalf("first response must win, got %+v", got)
	}
}

func TestIdempotencyStore_ExpiredRecords(t *testing.T) {
	store, now := newIdempotencyStoreForTest(t)
	ctx := context.Background()

	old := models.StoredResponse{StatusCode: 200, Body: []byte(`{"data":"old"}`), Fingerprint: "fp-old"}
	if err := store.Put(ctx, "t1", "k1", "POST", "/p", old, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}

	*now = now.Add(2 * time.Hour)
	if got, err := store.TryGet(ctx, "t1", "k1", "POST", "/p"); err != nil || got != nil {
		t.Fatalf("expired record must miss, got %+v err=%v", got, err)
	}

	fresh := models.StoredResponse{StatusCode: 201, Body: []byte(`{"data":"new"}`), Fingerprint: "fp-new"}
	if err := store.Put(ctx, "t1", "k1", "POST", "/p", fresh, time.Hour); err != nil {
		t.Fatalf("Put over expired record: %v", err)
	}
	got, err := store.TryGet(ctx, "t1", "k1", "POST", "/p")
	if err != nil || got == nil {
		t.Fatalf("expected hit after refresh, got %+v err=%v", got, err)
	}
	if got.StatusCode != 201 || got.Fingerprint != "fp-new" {
		t.Fatalf("expired record not replaced: %+v", got)
	}
}

func TestIdempotencyStore_DeleteExpiredInBatches(t *testing.T) {
	store, now := newIdempotencyStoreForTest(t)
	ctx := context.Background()
	resp := models.StoredResponse{StatusCode: 200, Body: []byte(`{}`), Fingerprint: "fp"}

	for _, key := range []string{"a", "b", "c"} {
		if err := store.Put(ctx, "t1", key, "POST", "/p", resp, time.Hour); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}
	if err := store.Put(ctx, "t2", "live", "POST", "/p", resp, 48*time.Hour); err != nil {
		t.Fatalf("Put live: %v", err)
	}

	cutoff := now.Add(2 * time.Hour)
	deleted, err := store.DeleteExpired(ctx, cutoff, 2)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted with limit 2, got %d", deleted)
	}
	deleted, err = store.DeleteExpired(ctx, cutoff, 2)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted, got %d", deleted)
	}

	*now = cutoff
	if got, _ := store.TryGet(ctx, "t2", "live", "POST", "/p"); got == nil {
		t.Fatalf("unexpired record was deleted")
	}
}

func TestIdempotencyStore_RequiresTenant(t *testing.T) {
	store, _ := newIdempotencyStoreForTest(t)
	ctx := context.Background()
	if _, err := store.TryGet(ctx, "", "k", "POST", "/p"); !errors.Is(err, models.ErrMissingTenant) {
		t.Fatalf("TryGet: expected ErrMissingTenant, got %v", err)
	}
	if err := store.Put(ctx, "", "k", "POST", "/p", models.StoredResponse{}, time.Hour); !errors.Is(err, models.ErrMissingTenant) {
		t.Fatalf("Put: expected ErrMissingTenant, got %v", err)
	}
}

func TestIdempotencyStore_ClaimRollsBackTheLoser(t *testing.T) {
	db := newTestDB(t)
	store := models.NewIdempotencyStore(db)
	now := testNow
	store.Now = func() time.Time { return now }
	ctx := context.Background()
	resp := models.StoredResponse{StatusCode: 200, Body: []byte(`{"data":"first"}`), Fingerprint: "fp"}

	err := db.Transaction(func(tx *gorm.DB) error {
		return store.WithTx(tx).Claim(ctx, "t1", "k1", "POST", "/p", resp, time.Hour)
	})
	if err != nil {
		t.Fatalf("first Claim: %v", err)
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		employee := models.Employee{TenantId: "t1", ID: "e9", FullName: "Late Writer", Email: "e9@example.test", Status: models.EmployeeStatusActive, CreatedAtUtc: testNow}
		if err := tx.WithContext(ctx).Create(&employee).Error; err != nil {
			return err
		}
		return store.WithTx(tx).Claim(ctx, "t1", "k1", "POST", "/p", models.StoredResponse{StatusCode: 200, Body: []byte(`{"data":"second"}`), Fingerprint: "fp"}, time.Hour)
	})
	if !errors.Is(err, models.ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey, got %v", err)
	}
	if _, err := models.NewPayrollRepository(db).GetEmployee(ctx, "t1", "e9"); !errors.Is(err, models.ErrRecordNotFound) {
		t.Fatalf("losing transaction must roll back, got %v", err)
	}
	got, err := store.TryGet(ctx, "t1", "k1", "POST", "/p")
	if err != nil || got == nil || string(got.Body) != `{"data":"first"}` {
		t.Fatalf("expected the first claim to stand, got %+v err=%v", got, err)
	}

	// an expired record does not block a new claim
	now = now.Add(2 * time.Hour)
	err = db.Transaction(func(tx *gorm.DB) error {
		return store.WithTx(tx).Claim(ctx, "t1", "k1", "POST", "/p", models.StoredResponse{StatusCode: 201, Body: []byte(`{"data":"fresh"}`), Fingerprint: "fp-new"}, time.Hour)
	})
	if err != nil {
		t.Fatalf("Claim over expired record: %v", err)
	}
	got, err = store.TryGet(ctx, "t1", "k1", "POST", "/p")
	if err != nil || got == nil || got.Fingerprint != "fp-new" {
		t.Fatalf("expired record not replaced: %+v err=%v", got, err)
	}
}
