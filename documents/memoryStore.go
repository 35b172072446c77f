package documents

import (
	"context"
	"sync"

	"github.com/huminex/payroll_backend/models"
)

// MemoryStore keeps rendered documents in process. Used when no bucket is configured.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}}
}

func (s *MemoryStore) EnsurePayslipDocument(ctx context.Context, tenantID string, slip models.Payslip, employee models.Employee) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := ObjectName(tenantID, slip.EmployeeId, models.FormatPeriod(slip.PeriodYear, slip.PeriodMonth))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if _, ok := s.objects[name]; ok {
		return name, nil
	}
	data, err := RenderPayslip(slip, employee)
	if err != nil {
		return "", err
	}
	s.objects[name] = data
	return name, nil
}

func (s *MemoryStore) Object(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[name]
	return data, ok
}

func (s *MemoryStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
