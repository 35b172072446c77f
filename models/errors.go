package models

import (
	"errors"
	"strings"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

var (
	ErrRecordNotFound          = errors.New("record not found")
	ErrMissingTenant           = errors.New("tenant id is required")
	ErrInvalidPeriod           = errors.New("period must be formatted as yyyy-MM with month 01-12")
	ErrDuplicatePeriod         = errors.New("a payroll run already exists for this period")
	ErrInvalidTransition       = errors.New("payroll run status transition not allowed")
	ErrInvalidAmounts          = errors.New("payslip amounts are invalid")
	ErrDuplicatePayslip        = errors.New("a payslip already exists for this employee and period")
	ErrDuplicateIdempotencyKey = errors.New("idempotency key already stored with a different response")
)

// IsDuplicateKeyErr reports a unique-constraint violation from any supported driver.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	// sqlite without error translation
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}
