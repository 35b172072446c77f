package workflow

import (
	"context"
	"errors"
	"net/http"

	"github.com/huminex/payroll_backend/config"
	"github.com/huminex/payroll_backend/models"
	"github.com/huminex/payroll_backend/utils"
)

var (
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrMissingIdempotencyKey = errors.New("Idempotency-Key header is required")
)

// StatusClientClosedRequest is written when the caller went away before any side effect.
const StatusClientClosedRequest = 499

// APIError is the HTTP shape of a domain error.
type APIError struct {
	Status  int
	Code    string
	Message string
	// Cacheable responses are stored for idempotent replay.
	Cacheable bool
}

var errorTable = []struct {
	target error
	api    APIError
}{
	{models.ErrRecordNotFound, APIError{http.StatusNotFound, utils.CodeNotFound, "resource not found", true}},
	{models.ErrDuplicatePeriod, APIError{http.StatusConflict, utils.CodeDuplicatePeriod, models.ErrDuplicatePeriod.Error(), true}},
	{models.ErrDuplicatePayslip, APIError{http.StatusConflict, utils.CodeDuplicatePayslip, models.ErrDuplicatePayslip.Error(), true}},
	{models.ErrInvalidTransition, APIError{http.StatusConflict, utils.CodeInvalidTransition, models.ErrInvalidTransition.Error(), true}},
	{models.ErrDuplicateIdempotencyKey, APIError{http.StatusConflict, utils.CodeIdempotencyKeyReused, "idempotency key was already used for a different request", false}},
	{models.ErrInvalidPeriod, APIError{http.StatusBadRequest, utils.CodeValidationFailed, models.ErrInvalidPeriod.Error(), false}},
	{models.ErrInvalidAmounts, APIError{http.StatusBadRequest, utils.CodeValidationFailed, models.ErrInvalidAmounts.Error(), false}},
	{ErrMissingIdempotencyKey, APIError{http.StatusBadRequest, utils.CodeMissingIdempotencyKey, ErrMissingIdempotencyKey.Error(), false}},
	{models.ErrMissingTenant, APIError{http.StatusUnauthorized, utils.CodeUnauthorized, "tenant context is missing", false}},
	{ErrDependencyUnavailable, APIError{http.StatusServiceUnavailable, utils.CodeDependencyUnavailable, "a downstream dependency is unavailable, retry with the same Idempotency-Key", false}},
	{context.DeadlineExceeded, APIError{http.StatusServiceUnavailable, utils.CodeDependencyUnavailable, "request timed out", false}},
	{config.ErrMissingTenantScope, APIError{http.StatusInternalServerError, utils.CodeInternal, "internal error", false}},
}

// ErrorFor maps err to its HTTP shape. Unknown errors are 500 INTERNAL.
func ErrorFor(err error) APIError {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.api
		}
	}
	return APIError{http.StatusInternalServerError, utils.CodeInternal, "internal error", false}
}
