package documents

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/huminex/payroll_backend/models"
	"github.com/huminex/payroll_backend/utils"
)

// GCSStore keeps payslip documents in a Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	client, err := utils.GetGCSClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

// EnsurePayslipDocument uploads the rendered payslip unless the object already exists.
func (s *GCSStore) EnsurePayslipDocument(ctx context.Context, tenantID string, slip models.Payslip, employee models.Employee) (string, error) {
	name := ObjectName(tenantID, slip.EmployeeId, models.FormatPeriod(slip.PeriodYear, slip.PeriodMonth))
	exists, err := utils.GCSObjectExists(ctx, s.client, s.bucket, name)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", name, err)
	}
	if exists {
		return name, nil
	}
	data, err := RenderPayslip(slip, employee)
	if err != nil {
		return "", err
	}
	if err := utils.UploadBytesToGCS(ctx, s.client, s.bucket, name, data, utils.ContentTypeXLSX); err != nil {
		return "", err
	}
	return name, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
