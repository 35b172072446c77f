package workflow

import (
	"context"
	"errors"

	"github.com/huminex/payroll_backend/appctx"
	"github.com/huminex/payroll_backend/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// PayrollQueries serves the read side. Every read is audited.
type PayrollQueries struct {
	Payroll *models.PayrollRepository
	Audit   *models.AuditRecorder
}

func NewPayrollQueries(payroll *models.PayrollRepository, audit *models.AuditRecorder) *PayrollQueries {
	return &PayrollQueries{Payroll: payroll, Audit: audit}
}

func (q *PayrollQueries) ListRuns(ctx context.Context, rc appctx.RequestContext) ([]models.PayrollRun, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "payroll.list_runs", trace.WithAttributes(attribute.String("tenant.id", rc.TenantID)))
	defer span.End()

	runs, err := q.Payroll.ListRuns(ctx, rc.TenantID)
	q.record(ctx, rc, models.AuditActionReadRuns, models.AuditResourcePayrollRun, "", err, map[string]any{"count": len(runs)})
	return runs, err
}

func (q *PayrollQueries) ListPayslips(ctx context.Context, rc appctx.RequestContext, employeeID string) ([]models.Payslip, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "payroll.list_payslips", trace.WithAttributes(attribute.String("tenant.id", rc.TenantID)))
	defer span.End()

	slips, err := q.Payroll.ListPayslips(ctx, rc.TenantID, employeeID)
	q.record(ctx, rc, models.AuditActionReadPayslips, models.AuditResourcePayslip, employeeID, err, map[string]any{"count": len(slips)})
	return slips, err
}

// GetPayslip answers ErrRecordNotFound both for an unknown payslip and for a
// period that does not parse.
func (q *PayrollQueries) GetPayslip(ctx context.Context, rc appctx.RequestContext, employeeID, periodText string) (*models.Payslip, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "payroll.get_payslip", trace.WithAttributes(attribute.String("tenant.id", rc.TenantID)))
	defer span.End()

	resourceID := employeeID + "/" + periodText
	period, err := models.ParsePeriod(periodText)
	if err != nil {
		q.record(ctx, rc, models.AuditActionReadPayslip, models.AuditResourcePayslip, resourceID, models.ErrRecordNotFound, map[string]any{"reason": "invalid period"})
		return nil, models.ErrRecordNotFound
	}
	slip, err := q.Payroll.GetPayslip(ctx, rc.TenantID, employeeID, period)
	if err == nil {
		resourceID = slip.ID
	}
	q.record(ctx, rc, models.AuditActionReadPayslip, models.AuditResourcePayslip, resourceID, err, nil)
	return slip, err
}

func (q *PayrollQueries) record(ctx context.Context, rc appctx.RequestContext, action, resourceType, resourceID string, err error, meta map[string]any) {
	outcome := models.AuditOutcomeSuccess
	switch {
	case errors.Is(err, models.ErrRecordNotFound):
		outcome = models.AuditOutcomeNotFound
	case err != nil:
		outcome = models.AuditOutcomeFailure
	}
	q.Audit.Record(context.WithoutCancel(ctx), rc, models.AuditEntry{
		Action:       action,
		ResourceType: resourceType,
		ResourceId:   resourceID,
		Outcome:      outcome,
		Metadata:     meta,
	})
}
