package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PayrollRepository owns payroll run and payslip persistence.
// Every method takes the tenant explicitly and filters on tenant_id in the statement itself.
type PayrollRepository struct {
	db *gorm.DB
}

func NewPayrollRepository(db *gorm.DB) *PayrollRepository {
	return &PayrollRepository{db: db}
}

// WithTx binds the repository to an open transaction.
func (r *PayrollRepository) WithTx(tx *gorm.DB) *PayrollRepository {
	return &PayrollRepository{db: tx}
}

func (r *PayrollRepository) ListRuns(ctx context.Context, tenantID string) ([]PayrollRun, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	var runs []PayrollRun
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("period_year DESC, period_month DESC").
		Find(&runs).Error
	return runs, err
}

func (r *PayrollRepository) GetRun(ctx context.Context, tenantID, runID string) (*PayrollRun, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	var run PayrollRun
	if err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, runID).Take(&run).Error; err != nil {
		return nil, notFound(err)
	}
	return &run, nil
}

func (r *PayrollRepository) GetRunsByIDs(ctx context.Context, tenantID string, runIDs []string) ([]PayrollRun, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	var runs []PayrollRun
	if len(runIDs) == 0 {
		return runs, nil
	}
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND id IN ?", tenantID, runIDs).Find(&runs).Error
	return runs, err
}

// CreateRun inserts a draft run. The (tenant, year, month) unique index is the
// authoritative guard against concurrent creates for the same period.
func (r *PayrollRepository) CreateRun(ctx context.Context, tenantID string, period Period, totals RunTotals, actorUserID string, now time.Time) (*PayrollRun, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	run := PayrollRun{
		ID:              uuid.NewString(),
		TenantId:        tenantID,
		PeriodYear:      period.Year,
		PeriodMonth:     period.Month,
		Status:          PayrollRunStatusDraft,
		EmployeesCount:  totals.EmployeesCount,
		GrossAmount:     totals.GrossAmount,
		NetAmount:       totals.NetAmount,
		CreatedByUserId: actorUserID,
		CreatedAtUtc:    now.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		if IsDuplicateKeyErr(err) {
			return nil, ErrDuplicatePeriod
		}
		return nil, err
	}
	run.Period = period.String()
	return &run, nil
}

func (r *PayrollRepository) ApproveRun(ctx context.Context, tenantID, runID, actorUserID string, now time.Time) (*PayrollRun, error) {
	return r.transition(ctx, tenantID, runID, PayrollRunStatusApproved, map[string]interface{}{
		"approved_by_user_id": actorUserID,
		"approved_at_utc":     now.UTC(),
	})
}

func (r *PayrollRepository) DisburseRun(ctx context.Context, tenantID, runID, actorUserID string, now time.Time) (*PayrollRun, error) {
	return r.transition(ctx, tenantID, runID, PayrollRunStatusDisbursed, map[string]interface{}{
		"disbursed_by_user_id": actorUserID,
		"disbursed_at_utc":     now.UTC(),
	})
}

// transition is a single conditional UPDATE guarded by the required prior status.
// Zero affected rows means the run is absent (ErrRecordNotFound) or in the wrong
// state (ErrInvalidTransition, returned with the current run).
func (r *PayrollRepository) transition(ctx context.Context, tenantID, runID string, next PayrollRunStatus, updates map[string]interface{}) (*PayrollRun, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	prior, ok := next.requiredPrior()
	if !ok {
		return nil, ErrInvalidTransition
	}
	updates["status"] = next

	res := r.db.WithContext(ctx).Model(&PayrollRun{}).
		Where("tenant_id = ? AND id = ? AND status = ?", tenantID, runID, prior).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}

	run, err := r.GetRun(ctx, tenantID, runID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return run, ErrInvalidTransition
	}
	return run, nil
}

func (r *PayrollRepository) ListPayslips(ctx context.Context, tenantID, employeeID string) ([]Payslip, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	var slips []Payslip
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND employee_id = ?", tenantID, employeeID).
		Order("period_year DESC, period_month DESC").
		Find(&slips).Error
	return slips, err
}

func (r *PayrollRepository) ListPayslipsForPeriod(ctx context.Context, tenantID string, period Period) ([]Payslip, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	var slips []Payslip
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND period_year = ? AND period_month = ?", tenantID, period.Year, period.Month).
		Order("employee_id ASC").
		Find(&slips).Error
	return slips, err
}

func (r *PayrollRepository) GetPayslip(ctx context.Context, tenantID, employeeID string, period Period) (*Payslip, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	var slip Payslip
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND employee_id = ? AND period_year = ? AND period_month = ?", tenantID, employeeID, period.Year, period.Month).
		Take(&slip).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &slip, nil
}

// IssuePayslip validates the amounts and inserts an issued payslip.
func (r *PayrollRepository) IssuePayslip(ctx context.Context, tenantID string, in NewPayslip, now time.Time) (*Payslip, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	slip := Payslip{
		ID:               uuid.NewString(),
		TenantId:         tenantID,
		EmployeeId:       in.EmployeeId,
		PeriodYear:       in.Period.Year,
		PeriodMonth:      in.Period.Month,
		GrossAmount:      in.GrossAmount,
		DeductionsAmount: in.DeductionsAmount,
		NetAmount:        in.NetAmount,
		Status:           PayslipStatusIssued,
		CreatedAtUtc:     now.UTC(),
		UpdatedAtUtc:     now.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&slip).Error; err != nil {
		if IsDuplicateKeyErr(err) {
			return nil, ErrDuplicatePayslip
		}
		return nil, err
	}
	slip.Period = in.Period.String()
	return &slip, nil
}

// LinkPayslipsToRun attaches the period's unlinked payslips to a run.
func (r *PayrollRepository) LinkPayslipsToRun(ctx context.Context, tenantID string, period Period, runID string) (int64, error) {
	if tenantID == "" {
		return 0, ErrMissingTenant
	}
	res := r.db.WithContext(ctx).Model(&Payslip{}).
		Where("tenant_id = ? AND period_year = ? AND period_month = ? AND payroll_run_id IS NULL", tenantID, period.Year, period.Month).
		Update("payroll_run_id", runID)
	return res.RowsAffected, res.Error
}

// AttachPayslipDocument sets document_blob_name; repeating it with the same ref is harmless.
func (r *PayrollRepository) AttachPayslipDocument(ctx context.Context, tenantID, employeeID string, period Period, blobRef string, now time.Time) error {
	if tenantID == "" {
		return ErrMissingTenant
	}
	res := r.db.WithContext(ctx).Model(&Payslip{}).
		Where("tenant_id = ? AND employee_id = ? AND period_year = ? AND period_month = ?", tenantID, employeeID, period.Year, period.Month).
		Updates(map[string]interface{}{
			"document_blob_name": blobRef,
			"updated_at_utc":     now.UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *PayrollRepository) MarkPayslipEmailed(ctx context.Context, tenantID, employeeID string, period Period, now time.Time) (*Payslip, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	res := r.db.WithContext(ctx).Model(&Payslip{}).
		Where("tenant_id = ? AND employee_id = ? AND period_year = ? AND period_month = ?", tenantID, employeeID, period.Year, period.Month).
		Updates(map[string]interface{}{
			"status":              PayslipStatusEmailed,
			"last_emailed_at_utc": now.UTC(),
			"updated_at_utc":      now.UTC(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return r.GetPayslip(ctx, tenantID, employeeID, period)
}

func (r *PayrollRepository) GetEmployee(ctx context.Context, tenantID, employeeID string) (*Employee, error) {
	if tenantID == "" {
		return nil, ErrMissingTenant
	}
	var employee Employee
	if err := r.db.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, employeeID).Take(&employee).Error; err != nil {
		return nil, notFound(err)
	}
	return &employee, nil
}

// UpsertEmployee syncs a directory entry into the read model.
func (r *PayrollRepository) UpsertEmployee(ctx context.Context, employee Employee) error {
	if employee.TenantId == "" {
		return ErrMissingTenant
	}
	if employee.Status == "" {
		employee.Status = EmployeeStatusActive
	}
	if employee.CreatedAtUtc.IsZero() {
		employee.CreatedAtUtc = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"full_name", "email", "status"}),
	}).Create(&employee).Error
}
