package models

import (
	"fmt"
	"regexp"
	"strconv"
)

var periodPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// Period is a payroll month.
type Period struct {
	Year  int
	Month int
}

// ParsePeriod accepts exactly "yyyy-MM" with a month between 01 and 12.
func ParsePeriod(s string) (Period, error) {
	if !periodPattern.MatchString(s) {
		return Period{}, ErrInvalidPeriod
	}
	year, _ := strconv.Atoi(s[:4])
	month, _ := strconv.Atoi(s[5:])
	if month < 1 || month > 12 {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Year: year, Month: month}, nil
}

func FormatPeriod(year, month int) string {
	return fmt.Sprintf("%04d-%02d", year, month)
}

func (p Period) String() string {
	return FormatPeriod(p.Year, p.Month)
}
