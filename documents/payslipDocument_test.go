package documents

import (
	"bytes"
	"context"
	"testing"

	"github.com/huminex/payroll_backend/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func testPayslip() (models.Payslip, models.Employee) {
	slip := models.Payslip{
		ID:               "p1",
		TenantId:         "t1",
		EmployeeId:       "e1",
		PeriodYear:       2026,
		PeriodMonth:      2,
		GrossAmount:      decimal.NewFromInt(3000),
		DeductionsAmount: decimal.NewFromInt(450),
		NetAmount:        decimal.NewFromInt(2550),
	}
	employee := models.Employee{TenantId: "t1", ID: "e1", FullName: "Aye Aye", Email: "aye@example.test"}
	return slip, employee
}

func TestRenderPayslip(t *testing.T) {
	slip, employee := testPayslip()
	data, err := RenderPayslip(slip, employee)
	if err != nil {
		t.Fatalf("RenderPayslip: %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	cases := map[string]string{"B1": "Aye Aye", "B4": "2026-02", "B5": "3000.00", "B7": "2550.00"}
	for cell, want := range cases {
		got, err := f.GetCellValue(payslipSheet, cell)
		if err != nil {
			t.Fatalf("GetCellValue(%s): %v", cell, err)
		}
		if got != want {
			t.Fatalf("%s: expected %q, got %q", cell, want, got)
		}
	}
}

func TestMemoryStore_EnsureIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	slip, employee := testPayslip()
	ctx := context.Background()

	first, err := store.EnsurePayslipDocument(ctx, "t1", slip, employee)
	if err != nil {
		t.Fatalf("EnsurePayslipDocument: %v", err)
	}
	if first != "t1/payslips/e1/2026-02.xlsx" {
		t.Fatalf("unexpected object name %q", first)
	}
	second, err := store.EnsurePayslipDocument(ctx, "t1", slip, employee)
	if err != nil || second != first {
		t.Fatalf("second ensure: %q err=%v", second, err)
	}
	if _, ok := store.Object(first); !ok {
		t.Fatalf("object not stored")
	}
	if store.Calls() != 2 {
		t.Fatalf("expected 2 calls, got %d", store.Calls())
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := store.EnsurePayslipDocument(cancelled, "t1", slip, employee); err == nil {
		t.Fatalf("expected error on cancelled context")
	}
}
