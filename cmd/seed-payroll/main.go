// seed-payroll creates employees and issued payslips for one tenant and period (dev only).
//
// Usage:
//
//	go run ./cmd/seed-payroll --tenant-id t1 --period 2026-02 --employees 5
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/huminex/payroll_backend/config"
	"github.com/huminex/payroll_backend/models"
	"github.com/shopspring/decimal"
)

func main() {
	tenantID := flag.String("tenant-id", "", "Required: tenant id")
	periodText := flag.String("period", "", "Required: period as yyyy-MM")
	employees := flag.Int("employees", 3, "number of employees to seed")
	gross := flag.String("gross", "3000.00", "gross amount per payslip")
	deductions := flag.String("deductions", "450.00", "deductions per payslip")
	flag.Parse()

	if strings.TrimSpace(*tenantID) == "" {
		fmt.Fprintln(os.Stderr, "--tenant-id is required")
		os.Exit(1)
	}
	period, err := models.ParsePeriod(*periodText)
	if err != nil {
		fmt.Fprintf(os.Stderr, "--period: %v\n", err)
		os.Exit(1)
	}
	grossAmount, err := decimal.NewFromString(*gross)
	if err != nil {
		fmt.Fprintf(os.Stderr, "--gross: %v\n", err)
		os.Exit(1)
	}
	deductionsAmount, err := decimal.NewFromString(*deductions)
	if err != nil {
		fmt.Fprintf(os.Stderr, "--deductions: %v\n", err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()
	repo := models.NewPayrollRepository(db)
	now := time.Now().UTC()
	issued := 0
	for i := 1; i <= *employees; i++ {
		employeeID := fmt.Sprintf("emp-%03d", i)
		if err := repo.UpsertEmployee(ctx, models.Employee{
			TenantId: *tenantID,
			ID:       employeeID,
			FullName: fmt.Sprintf("Employee %03d", i),
			Email:    fmt.Sprintf("%s@example.test", employeeID),
		}); err != nil {
			fmt.Fprintf(os.Stderr, "upsert %s: %v\n", employeeID, err)
			os.Exit(1)
		}
		_, err := repo.IssuePayslip(ctx, *tenantID, models.NewPayslip{
			EmployeeId:       employeeID,
			Period:           period,
			GrossAmount:      grossAmount,
			DeductionsAmount: deductionsAmount,
			NetAmount:        grossAmount.Sub(deductionsAmount),
		}, now)
		if errors.Is(err, models.ErrDuplicatePayslip) {
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue payslip %s: %v\n", employeeID, err)
			os.Exit(1)
		}
		issued++
	}
	fmt.Printf("tenant %s period %s: %d employees, %d payslips issued\n", *tenantID, period, *employees, issued)
}
