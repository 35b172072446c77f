package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/huminex/payroll_backend/appctx"
	"github.com/huminex/payroll_backend/config"
	"github.com/huminex/payroll_backend/documents"
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

func newTestCommands(t *testing.T, docs DocumentStorage) (*PayrollCommands, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	c := NewPayrollCommands(db, docs, config.NewLogger("panic"))
	c.Now = func() time.Time { return testNow }
	c.Idempotency.Now = func() time.Time { return testNow }
	return c, db
}

func testRequestContext(tenantID string) appctx.RequestContext {
	return appctx.RequestContext{TenantID: tenantID, UserID: "u1", UserEmail: "u1@example.test", Role: appctx.RoleAdmin, TraceID: "trace-" + tenantID}
}

func seedPayslip(t *testing.T, c *PayrollCommands, tenantID, employeeID, period, gross, deductions string) {
	t.Helper()
	p, err := models.ParsePeriod(period)
	if err != nil {
		t.Fatalf("ParsePeriod: %v", err)
	}
	ctx := context.Background()
	if err := c.Payroll.UpsertEmployee(ctx, models.Employee{
		TenantId: tenantID,
		ID:       employeeID,
		FullName: "Employee " + employeeID,
		Email:    employeeID + "@example.test",
	}); err != nil {
		t.Fatalf("UpsertEmployee: %v", err)
	}
	g := decimal.RequireFromString(gross)
	d := decimal.RequireFromString(deductions)
	if _, err := c.Payroll.IssuePayslip(ctx, tenantID, models.NewPayslip{
		EmployeeId:       employeeID,
		Period:           p,
		GrossAmount:      g,
		DeductionsAmount: d,
		NetAmount:        g.Sub(d),
	}, testNow); err != nil {
		t.Fatalf("IssuePayslip: %v", err)
	}
}

type envelope struct {
	Data    json.RawMessage `json:"data"`
	TraceId string          `json:"traceId"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, body []byte) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode envelope %s: %v", body, err)
	}
	return env
}

func outboxEvents(t *testing.T, db *gorm.DB, tenantID string) []models.OutboxEvent {
	t.Helper()
	var events []models.OutboxEvent
	if err := db.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&events).Error; err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	return events
}

func auditRows(t *testing.T, db *gorm.DB, tenantID, action string) []models.AuditTrail {
	t.Helper()
	var rows []models.AuditTrail
	if err := db.Where("tenant_id = ? AND action = ?", tenantID, action).Order("occurred_at_utc ASC").Find(&rows).Error; err != nil {
		t.Fatalf("list audit: %v", err)
	}
	return rows
}

// failingStorage fails every call until Recover is called.
type failingStorage struct {
	mu        sync.Mutex
	calls     int
	recovered bool
	next      DocumentStorage
}

func (s *failingStorage) EnsurePayslipDocument(ctx context.Context, tenantID string, slip models.Payslip, employee models.Employee) (string, error) {
	s.mu.Lock()
	s.calls++
	failed := !s.recovered
	s.mu.Unlock()
	if failed {
		return "", errors.New("bucket unreachable")
	}
	return s.next.EnsurePayslipDocument(ctx, tenantID, slip, employee)
}

func (s *failingStorage) Recover() {
	s.mu.Lock()
	s.recovered = true
	s.mu.Unlock()
}

var _ DocumentStorage = (*failingStorage)(nil)
var _ DocumentStorage = (*documents.MemoryStore)(nil)
