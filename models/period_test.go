package models_test

import (
	"errors"
	"testing"

	"github.com/huminex/payroll_backend/models"
)

func TestParsePeriod_RoundTrips(t *testing.T) {
	for _, in := range []string{"2026-01", "2026-12", "1999-07", "0001-01"} {
		p, err := models.ParsePeriod(in)
		if err != nil {
			t.Fatalf("ParsePeriod(%q) error: %v", in, err)
		}
		if p.String() != in {
			t.Fatalf("ParsePeriod(%q).String() = %q", in, p.String())
		}
	}
}

func TestParsePeriod_RejectsMalformed(t *testing.T) {
	cases := []string{"", "2026-13", "2026-00", "2026-1", "26-01", "2026/01", "2026-01-01", " 2026-01", "2026-01 ", "abcd-ef", "2026-+1"}
	for _, in := range cases {
		if _, err := models.ParsePeriod(in); !errors.Is(err, models.ErrInvalidPeriod) {
			t.Fatalf("ParsePeriod(%q) expected ErrInvalidPeriod, got %v", in, err)
		}
	}
}

func TestPayrollRunStatus_OnlyForwardSingleStep(t *testing.T) {
	cases := []struct {
		from, to models.PayrollRunStatus
		ok       bool
	}{
		{models.PayrollRunStatusDraft, models.PayrollRunStatusApproved, true},
		{models.PayrollRunStatusApproved, models.PayrollRunStatusDisbursed, true},
		{models.PayrollRunStatusDraft, models.PayrollRunStatusDisbursed, false},
		{models.PayrollRunStatusApproved, models.PayrollRunStatusApproved, false},
		{models.PayrollRunStatusDisbursed, models.PayrollRunStatusApproved, false},
		{models.PayrollRunStatusDisbursed, models.PayrollRunStatusDraft, false},
		{models.PayrollRunStatusApproved, models.PayrollRunStatusDraft, false},
		{models.PayrollRunStatusDisbursed, models.PayrollRunStatusDisbursed, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}
