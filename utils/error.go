package utils

// Error codes carried in the error envelope.
const (
	CodeValidationFailed      = "VALIDATION_FAILED"
	CodeMissingIdempotencyKey = "MISSING_IDEMPOTENCY_KEY"
	CodeNotFound              = "NOT_FOUND"
	CodeDuplicatePeriod       = "DUPLICATE_PERIOD"
	CodeDuplicatePayslip      = "DUPLICATE_PAYSLIP"
	CodeInvalidTransition     = "INVALID_TRANSITION"
	CodeIdempotencyKeyReused  = "IDEMPOTENCY_KEY_REUSED"
	CodeUnauthorized          = "UNAUTHORIZED"
	CodeForbidden             = "FORBIDDEN"
	CodeRateLimited           = "RATE_LIMITED"
	CodeDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	CodeInternal              = "INTERNAL"
)
