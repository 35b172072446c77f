package workflow

import (
	"context"

	"github.com/huminex/payroll_backend/models"
	"github.com/shopspring/decimal"
)

// RunCalculator derives the totals of a new payroll run. It receives the
// repository bound to the create-run transaction.
type RunCalculator interface {
	Calculate(ctx context.Context, payroll *models.PayrollRepository, tenantID string, period models.Period) (models.RunTotals, error)
}

// PayslipTotalsCalculator sums the payslips already issued for the period.
type PayslipTotalsCalculator struct{}

func (PayslipTotalsCalculator) Calculate(ctx context.Context, payroll *models.PayrollRepository, tenantID string, period models.Period) (models.RunTotals, error) {
	slips, err := payroll.ListPayslipsForPeriod(ctx, tenantID, period)
	if err != nil {
		return models.RunTotals{}, err
	}
	totals := models.RunTotals{GrossAmount: decimal.Zero, NetAmount: decimal.Zero}
	employees := make(map[string]struct{}, len(slips))
	for _, slip := range slips {
		employees[slip.EmployeeId] = struct{}{}
		totals.GrossAmount = totals.GrossAmount.Add(slip.GrossAmount)
		totals.NetAmount = totals.NetAmount.Add(slip.NetAmount)
	}
	totals.EmployeesCount = len(employees)
	return totals, nil
}
