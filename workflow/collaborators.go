package workflow

import (
	"context"

	"github.com/huminex/payroll_backend/config"
	"github.com/huminex/payroll_backend/models"
)

// DocumentStorage produces the stored document of a payslip and returns its blob reference.
// Implementations must be safe to call repeatedly for the same payslip.
type DocumentStorage interface {
	EnsurePayslipDocument(ctx context.Context, tenantID string, slip models.Payslip, employee models.Employee) (string, error)
}

// Publisher delivers one outbox message and returns the broker's message id.
type Publisher interface {
	Publish(ctx context.Context, msg config.PubSubMessage) (string, error)
}
