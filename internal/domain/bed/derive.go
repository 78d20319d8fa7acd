package bed

import (
	"math"
	"time"
)

const day = 24 * time.Hour

type AgeUnit string

const (
	AgeYears  AgeUnit = "years"
	AgeMonths AgeUnit = "months"
	AgeDays   AgeUnit = "days"
)

type Age struct {
	Value int     `json:"value"`
	Unit  AgeUnit `json:"unit"`
}

// OccupationDays is the number of whole days between admission and now.
func OccupationDays(admission, now time.Time) int {
	d := now.Sub(admission)
	if d <= 0 {
		return 0
	}
	return int(d / day)
}

// ActualStayDays is the stay length recorded at discharge, rounded up to
// whole days.
func ActualStayDays(admission, discharge time.Time) int {
	d := discharge.Sub(admission)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(float64(d) / float64(day)))
}

// ageInMonths reports patients of these departments in months, or days
// under one month, until they turn two.
func ageInMonths(dept Department) bool {
	return dept == DeptUTINeonatal || dept == DeptPediatria
}

// AgeAt derives a patient's age on the calendar date of now.
func AgeAt(birth Date, now time.Time, dept Department) Age {
	if birth.IsZero() {
		return Age{Unit: AgeYears}
	}
	today := DateOf(now)
	if today.Before(birth.Time) {
		return Age{Unit: AgeDays}
	}

	months := (today.Year()-birth.Year())*12 + int(today.Month()-birth.Month())
	if today.Day() < birth.Day() {
		months--
	}

	if ageInMonths(dept) && months < 24 {
		if months < 1 {
			return Age{Value: int(today.Sub(birth.Time) / day), Unit: AgeDays}
		}
		return Age{Value: months, Unit: AgeMonths}
	}
	return Age{Value: months / 12, Unit: AgeYears}
}

// Derive fills the read-time fields of p relative to now.
func (p *Patient) Derive(now time.Time) {
	p.OccupationDays = OccupationDays(p.AdmissionAt, now)
	p.Age = AgeAt(p.BirthDate, now, p.Department)
}
