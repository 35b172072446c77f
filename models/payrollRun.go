package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PayrollRunStatus string

const (
	PayrollRunStatusDraft     PayrollRunStatus = "draft"
	PayrollRunStatusApproved  PayrollRunStatus = "approved"
	PayrollRunStatusDisbursed PayrollRunStatus = "disbursed"
)

// requiredPrior is the only status a run may move to s from.
func (s PayrollRunStatus) requiredPrior() (PayrollRunStatus, bool) {
	switch s {
	case PayrollRunStatusApproved:
		return PayrollRunStatusDraft, true
	case PayrollRunStatusDisbursed:
		return PayrollRunStatusApproved, true
	}
	return "", false
}

// CanTransitionTo is true only for draft -> approved and approved -> disbursed.
func (s PayrollRunStatus) CanTransitionTo(next PayrollRunStatus) bool {
	prior, ok := next.requiredPrior()
	return ok && prior == s
}

// PayrollRun is a per-tenant, per-month payroll batch.
// Unique constraint: (tenant_id, period_year, period_month).
type PayrollRun struct {
	ID                string           `gorm:"primaryKey;size:36" json:"runId"`
	TenantId          string           `gorm:"size:64;not null;index:uniq_payroll_run_period,unique" json:"tenantId"`
	PeriodYear        int              `gorm:"not null;index:uniq_payroll_run_period,unique" json:"periodYear"`
	PeriodMonth       int              `gorm:"not null;index:uniq_payroll_run_period,unique" json:"periodMonth"`
	Period            string           `gorm:"-" json:"period"`
	Status            PayrollRunStatus `gorm:"size:20;not null;index" json:"status"`
	EmployeesCount    int              `gorm:"not null;default:0" json:"employeesCount"`
	GrossAmount       decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"grossAmount"`
	NetAmount         decimal.Decimal  `gorm:"type:decimal(20,4);not null" json:"netAmount"`
	CreatedByUserId   string           `gorm:"size:64" json:"createdByUserId"`
	CreatedAtUtc      time.Time        `gorm:"not null" json:"createdAtUtc"`
	ApprovedByUserId  *string          `gorm:"size:64" json:"approvedByUserId,omitempty"`
	ApprovedAtUtc     *time.Time       `json:"approvedAtUtc,omitempty"`
	DisbursedByUserId *string          `gorm:"size:64" json:"disbursedByUserId,omitempty"`
	DisbursedAtUtc    *time.Time       `json:"disbursedAtUtc,omitempty"`
}

func (r *PayrollRun) AfterFind(tx *gorm.DB) error {
	r.Period = FormatPeriod(r.PeriodYear, r.PeriodMonth)
	return nil
}

// RunTotals is the output of the payroll calculation step.
type RunTotals struct {
	EmployeesCount int
	GrossAmount    decimal.Decimal
	NetAmount      decimal.Decimal
}

// RunTransition is the response payload of approve/disburse.
type RunTransition struct {
	RunId  string           `json:"runId"`
	Action string           `json:"action"`
	Status PayrollRunStatus `json:"status"`
}
