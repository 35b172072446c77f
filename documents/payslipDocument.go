package documents

import (
	"fmt"

	"github.com/huminex/payroll_backend/models"
	"github.com/xuri/excelize/v2"
)

const payslipSheet = "Sheet1"

// ObjectName is the storage key of a payslip document.
func ObjectName(tenantID, employeeID, period string) string {
	return fmt.Sprintf("%s/payslips/%s/%s.xlsx", tenantID, employeeID, period)
}

// RenderPayslip writes the payslip as a single-sheet workbook.
func RenderPayslip(slip models.Payslip, employee models.Employee) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	period := models.FormatPeriod(slip.PeriodYear, slip.PeriodMonth)
	rows := [][2]interface{}{
		{"Employee", employee.FullName},
		{"Employee ID", slip.EmployeeId},
		{"Email", employee.Email},
		{"Period", period},
		{"Gross", slip.GrossAmount.StringFixed(2)},
		{"Deductions", slip.DeductionsAmount.StringFixed(2)},
		{"Net", slip.NetAmount.StringFixed(2)},
	}
	for i, row := range rows {
		if err := f.SetCellValue(payslipSheet, "A"+fmt.Sprint(i+1), row[0]); err != nil {
			return nil, err
		}
		if err := f.SetCellValue(payslipSheet, "B"+fmt.Sprint(i+1), row[1]); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
