package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PayslipStatusIssued  = "issued"
	PayslipStatusEmailed = "emailed"
)

// Payslip is one employee's compensation record for a month.
// Unique constraint: (tenant_id, employee_id, period_year, period_month).
type Payslip struct {
	ID               string          `gorm:"primaryKey;size:36" json:"id"`
	TenantId         string          `gorm:"size:64;not null;index:uniq_payslip_period,unique;index:idx_payslip_run_period,priority:1" json:"tenantId"`
	EmployeeId       string          `gorm:"size:64;not null;index:uniq_payslip_period,unique" json:"employeeId"`
	PeriodYear       int             `gorm:"not null;index:uniq_payslip_period,unique;index:idx_payslip_run_period,priority:2" json:"periodYear"`
	PeriodMonth      int             `gorm:"not null;index:uniq_payslip_period,unique;index:idx_payslip_run_period,priority:3" json:"periodMonth"`
	Period           string          `gorm:"-" json:"period"`
	PayrollRunId     *string         `gorm:"size:36;index" json:"payrollRunId"`
	GrossAmount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"grossAmount"`
	DeductionsAmount decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"deductionsAmount"`
	NetAmount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"netAmount"`
	Status           string          `gorm:"size:30;not null" json:"status"`
	DocumentBlobName *string         `gorm:"size:512" json:"documentBlobName"`
	LastEmailedAtUtc *time.Time      `json:"lastEmailedAtUtc"`
	CreatedAtUtc     time.Time       `gorm:"not null" json:"createdAtUtc"`
	UpdatedAtUtc     time.Time       `gorm:"not null" json:"updatedAtUtc"`
}

func (p *Payslip) AfterFind(tx *gorm.DB) error {
	p.Period = FormatPeriod(p.PeriodYear, p.PeriodMonth)
	return nil
}

// NewPayslip is the input of payslip issuance.
type NewPayslip struct {
	EmployeeId       string
	Period           Period
	GrossAmount      decimal.Decimal
	DeductionsAmount decimal.Decimal
	NetAmount        decimal.Decimal
}

// Validate enforces non-negative amounts and net = gross - deductions.
func (in NewPayslip) Validate() error {
	if strings.TrimSpace(in.EmployeeId) == "" {
		return fmt.Errorf("%w: employee id is required", ErrInvalidAmounts)
	}
	if in.GrossAmount.IsNegative() || in.DeductionsAmount.IsNegative() || in.NetAmount.IsNegative() {
		return fmt.Errorf("%w: amounts must not be negative", ErrInvalidAmounts)
	}
	if !in.GrossAmount.Sub(in.DeductionsAmount).Equal(in.NetAmount) {
		return fmt.Errorf("%w: net %s != gross %s - deductions %s", ErrInvalidAmounts,
			in.NetAmount.String(), in.GrossAmount.String(), in.DeductionsAmount.String())
	}
	return nil
}

// PayslipEmailDispatch is the response payload of "email payslip".
type PayslipEmailDispatch struct {
	EmployeeId     string `json:"employeeId"`
	Period         string `json:"period"`
	Email          string `json:"email"`
	DispatchStatus string `json:"dispatchStatus"`
}

const DispatchStatusQueued = "queued"
