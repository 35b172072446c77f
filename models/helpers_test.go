package models_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/huminex/payroll_backend/config"
	"github.com/huminex/payroll_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	cfg := config.GormConfig()
	cfg.Logger = logger.Default.LogMode(logger.Silent)
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Use(config.NewTenantGuardPlugin()); err != nil {
		t.Fatalf("install tenant guard: %v", err)
	}
	if err := models.MigrateTable(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustPeriod(t *testing.T, s string) models.Period {
	t.Helper()
	p, err := models.ParsePeriod(s)
	if err != nil {
		t.Fatalf("ParsePeriod(%q): %v", s, err)
	}
	return p
}

func issuePayslip(t *testing.T, repo *models.PayrollRepository, tenantID, employeeID string, period models.Period, gross, deductions string) *models.Payslip {
	t.Helper()
	g := decimal.RequireFromString(gross)
	d := decimal.RequireFromString(deductions)
	slip, err := repo.IssuePayslip(context.Background(), tenantID, models.NewPayslip{
		EmployeeId:       employeeID,
		Period:           period,
		GrossAmount:      g,
		DeductionsAmount: d,
		NetAmount:        g.Sub(d),
	}, testNow)
	if err != nil {
		t.Fatalf("IssuePayslip(%s): %v", employeeID, err)
	}
	return slip
}
