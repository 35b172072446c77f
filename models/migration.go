package models

import (
	"context"

	"github.com/huminex/payroll_backend/appctx"
	"gorm.io/gorm"
)

// AllModels lists every table owned by this service.
func AllModels() []interface{} {
	return []interface{}{
		&PayrollRun{}, &Payslip{}, &Employee{},
		&IdempotencyRecord{},
		&AuditTrail{},
		&OutboxEvent{},
	}
}

func MigrateTable(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(appctx.CrossTenant(ctx)).AutoMigrate(AllModels()...)
}
