package models

import "time"

const (
	EmployeeStatusActive     = "active"
	EmployeeStatusTerminated = "terminated"
)

// Employee is the read model of the employee directory used to address payslips.
// Primary key: (tenant_id, id).
type Employee struct {
	TenantId     string    `gorm:"primaryKey;size:64" json:"tenantId"`
	ID           string    `gorm:"primaryKey;size:64" json:"id"`
	FullName     string    `gorm:"size:200;not null" json:"fullName"`
	Email        string    `gorm:"size:255;not null" json:"email"`
	Status       string    `gorm:"size:20;not null" json:"status"`
	CreatedAtUtc time.Time `gorm:"not null" json:"createdAtUtc"`
}
