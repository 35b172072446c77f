package models_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/huminex/payroll_backend/appctx"
	"github.com/huminex/payroll_backend/models"
)

func TestAuditRecorder_RecordsActorAndMetadata(t *testing.T) {
	db := newTestDB(t)
	recorder := models.NewAuditRecorder(db, nil)
	ctx := context.Background()
	rc := appctx.RequestContext{TenantID: "t1", UserID: "u1", UserEmail: "u1@example.test", TraceID: "trace-1"}

	recorder.Record(ctx, rc, models.AuditEntry{
		Action:       models.AuditActionApproveRun,
		ResourceType: models.AuditResourcePayrollRun,
		ResourceId:   "r1",
		Outcome:      models.AuditOutcomeSuccess,
		Metadata:     map[string]any{"idempotencyKey": "k1", "statusCode": 200},
	})
	recorder.Record(ctx, rc, models.AuditEntry{
		Action:       models.AuditActionDisburseRun,
		ResourceType: models.AuditResourcePayrollRun,
		ResourceId:   "r1",
		Outcome:      models.AuditOutcomeFailure,
	})

	rows, err := recorder.ListForResource(ctx, "t1", models.AuditResourcePayrollRun, "r1")
	if err != nil {
		t.Fatalf("ListForResource: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 audit rows, got %d", len(rows))
	}
	first := rows[0]
	if first.ActorUserId != "u1" || first.ActorEmail != "u1@example.test" || first.TraceId != "trace-1" || first.Outcome != models.AuditOutcomeSuccess {
		t.Fatalf("unexpected audit row: %+v", first)
	}
	if first.MetadataJson == nil {
		t.Fatalf("metadata missing")
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(*first.MetadataJson), &meta); err != nil {
		t.Fatalf("metadata is not JSON: %v", err)
	}
	if meta["idempotencyKey"] != "k1" {
		t.Fatalf("unexpected metadata: %v", meta)
	}
	if rows[1].MetadataJson != nil {
		t.Fatalf("empty metadata should be stored as NULL, got %q", *rows[1].MetadataJson)
	}

	if rows, _ := recorder.ListForResource(ctx, "t2", models.AuditResourcePayrollRun, "r1"); len(rows) != 0 {
		t.Fatalf("foreign tenant saw audit rows: %d", len(rows))
	}
	if _, err := recorder.ListForResource(ctx, "", models.AuditResourcePayrollRun, "r1"); !errors.Is(err, models.ErrMissingTenant) {
		t.Fatalf("expected ErrMissingTenant, got %v", err)
	}
}

func TestAuditRecorder_FailedWriteIsSwallowed(t *testing.T) {
	db := newTestDB(t)
	recorder := models.NewAuditRecorder(db, nil)
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	_ = sqlDB.Close()

	// must not panic or surface the error
	recorder.Record(context.Background(), appctx.RequestContext{TenantID: "t1", UserID: "u1"}, models.AuditEntry{
		Action:       models.AuditActionReadRuns,
		ResourceType: models.AuditResourcePayrollRun,
		Outcome:      models.AuditOutcomeSuccess,
	})
}
