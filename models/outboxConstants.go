package models

// Outbox publish statuses for OutboxEvent.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Business event names.
const (
	EventPayrollRunCreated     = "payroll.run.created"
	EventPayrollRunApproved    = "payroll.run.approved"
	EventPayrollRunDisbursed   = "payroll.run.disbursed"
	EventPayrollPayslipEmailed = "payroll.payslip.emailed"
)
