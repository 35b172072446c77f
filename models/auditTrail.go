package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/huminex/payroll_backend/appctx"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	AuditActionCreateRun    = "create_run"
	AuditActionApproveRun   = "approve_run"
	AuditActionDisburseRun  = "disburse_run"
	AuditActionEmailPayslip = "email_payslip"
	AuditActionReadRuns     = "read_runs"
	AuditActionReadPayslips = "read_payslips"
	AuditActionReadPayslip  = "read_payslip"

	AuditOutcomeSuccess  = "success"
	AuditOutcomeNotFound = "not_found"
	AuditOutcomeFailure  = "failure"

	AuditResourcePayrollRun = "payroll_run"
	AuditResourcePayslip    = "payslip"
)

// AuditTrail is an append-only action record.
type AuditTrail struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	TenantId      string    `gorm:"size:64;not null;index:idx_audit_resource,priority:1" json:"tenantId"`
	ActorUserId   string    `gorm:"size:64" json:"actorUserId"`
	ActorEmail    string    `gorm:"size:255" json:"actorEmail"`
	Action        string    `gorm:"size:64;not null;index" json:"action"`
	ResourceType  string    `gorm:"size:64;not null;index:idx_audit_resource,priority:2" json:"resourceType"`
	ResourceId    string    `gorm:"size:128;index:idx_audit_resource,priority:3" json:"resourceId"`
	Outcome       string    `gorm:"size:20;not null" json:"outcome"`
	MetadataJson  *string   `gorm:"type:text" json:"metadataJson"`
	TraceId       string    `gorm:"size:64;index" json:"traceId"`
	OccurredAtUtc time.Time `gorm:"not null;index" json:"occurredAtUtc"`
}

type AuditEntry struct {
	Action       string
	ResourceType string
	ResourceId   string
	Outcome      string
	Metadata     map[string]any
}

// AuditRecorder appends audit rows. Writes are best effort: a failed write is
// logged and never returned to the caller.
type AuditRecorder struct {
	db     *gorm.DB
	logger *logrus.Logger
	Now    func() time.Time
}

func NewAuditRecorder(db *gorm.DB, logger *logrus.Logger) *AuditRecorder {
	return &AuditRecorder{db: db, logger: logger, Now: func() time.Time { return time.Now().UTC() }}
}

func (r *AuditRecorder) Record(ctx context.Context, rc appctx.RequestContext, entry AuditEntry) {
	row := AuditTrail{
		ID:            uuid.NewString(),
		TenantId:      rc.TenantID,
		ActorUserId:   rc.UserID,
		ActorEmail:    rc.UserEmail,
		Action:        entry.Action,
		ResourceType:  entry.ResourceType,
		ResourceId:    entry.ResourceId,
		Outcome:       entry.Outcome,
		TraceId:       rc.TraceID,
		OccurredAtUtc: r.Now(),
	}
	if len(entry.Metadata) > 0 {
		if b, err := json.Marshal(entry.Metadata); err == nil {
			meta := string(b)
			row.MetadataJson = &meta
		} else {
			r.logFailure(rc, entry, err)
		}
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		r.logFailure(rc, entry, err)
	}
}

func (r *AuditRecorder) logFailure(rc appctx.RequestContext, entry AuditEntry, err error) {
	if r.logger == nil {
		return
	}
	r.logger.WithFields(logrus.Fields{
		"module":   "AuditRecorder",
		"tenantId": rc.TenantID,
		"traceId":  rc.TraceID,
		"action":   entry.Action,
		"resource": entry.ResourceType + ":" + entry.ResourceId,
		"outcome":  entry.Outcome,
	}).Error("audit write failed: " + err.Error())
}

// ListForResource returns a resource's audit rows, oldest first.
func (r *AuditRecorder) ListForResource(ctx context.Context, tenantID, resourceType, resourceID string) ([]AuditTrail, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	var rows []AuditTrail
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND resource_type = ? AND resource_id = ?", tenantID, resourceType, resourceID).
		Order("occurred_at_utc ASC").
		Find(&rows).Error
	return rows, err
}
