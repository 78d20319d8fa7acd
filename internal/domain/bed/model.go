package bed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Department string

const (
	DeptClinicaMedica          Department = "CLINICA MEDICA"
	DeptProntoSocorro          Department = "PRONTO SOCORRO"
	DeptClinicaCirurgica       Department = "CLINICA CIRURGICA"
	DeptUTIAdulto              Department = "UTI ADULTO"
	DeptUTINeonatal            Department = "UTI NEONATAL"
	DeptPediatria              Department = "PEDIATRIA"
	DeptMaternidade            Department = "MATERNIDADE"
	DeptProntoSocorroPediatria Department = "PRONTO SOCORRO PEDIATRIA"
)

// Departments lists every accepted department in board order.
var Departments = []Department{
	DeptClinicaMedica,
	DeptProntoSocorro,
	DeptClinicaCirurgica,
	DeptUTIAdulto,
	DeptUTINeonatal,
	DeptPediatria,
	DeptMaternidade,
	DeptProntoSocorroPediatria,
}

func (d Department) Valid() bool {
	for _, v := range Departments {
		if v == d {
			return true
		}
	}
	return false
}

// ParseDepartment accepts an exact department name.
func ParseDepartment(s string) (Department, error) {
	d := Department(s)
	if !d.Valid() {
		return "", fmt.Errorf("unknown department %q", s)
	}
	return d, nil
}

type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
)

func (s Sex) Valid() bool { return s == SexMale || s == SexFemale }

type DischargeType string

const (
	DischargeImprovement      DischargeType = "improvement"
	DischargeEvasion          DischargeType = "evasion"
	DischargeTransfer         DischargeType = "transfer"
	DischargeDeath            DischargeType = "death"
	DischargeContraReferencia DischargeType = "contra_referencia"
)

func (t DischargeType) Valid() bool {
	switch t {
	case DischargeImprovement, DischargeEvasion, DischargeTransfer, DischargeDeath, DischargeContraReferencia:
		return true
	}
	return false
}

// Date is a calendar date rendered as YYYY-MM-DD.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in its own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return Date{t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a YYYY-MM-DD string")
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Optional distinguishes an absent JSON field (Set=false) from an explicit
// null (Set=true, Value=nil) in partial updates.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(b []byte) error {
	o.Set = true
	if bytes.Equal(b, []byte("null")) {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Some returns a set Optional holding v.
func Some[T any](v T) Optional[T] { return Optional[T]{Set: true, Value: &v} }

// Null returns a set Optional holding an explicit null.
func Null[T any]() Optional[T] { return Optional[T]{Set: true} }

type Bed struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Department  Department   `json:"department"`
	IsOccupied  bool         `json:"is_occupied"`
	IsReserved  bool         `json:"is_reserved"`
	IsCustom    bool         `json:"is_custom"`
	Version     int          `json:"version"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Patient     *Patient     `json:"patient,omitempty"`
	Reservation *Reservation `json:"reservation,omitempty"`
}

// Free reports whether the bed can take an admission or a reservation.
func (b *Bed) Free() bool { return !b.IsOccupied && !b.IsReserved }

type Patient struct {
	ID                    uuid.UUID  `json:"id"`
	BedID                 uuid.UUID  `json:"bed_id"`
	Name                  string     `json:"name"`
	Sex                   Sex        `json:"sex"`
	BirthDate             Date       `json:"birth_date"`
	AdmissionAt           time.Time  `json:"admission_at"`
	Diagnosis             string     `json:"diagnosis"`
	Specialty             *string    `json:"specialty"`
	ExpectedDischargeDate *Date      `json:"expected_discharge_date"`
	OriginCity            string     `json:"origin_city"`
	IsTFD                 bool       `json:"is_tfd"`
	TFDType               *string    `json:"tfd_type"`
	Department            Department `json:"department"`
	IsIsolation           bool       `json:"is_isolation"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`

	// Derived at read time, never stored.
	OccupationDays int `json:"occupation_days"`
	Age            Age `json:"age"`
}

type Reservation struct {
	ID           uuid.UUID  `json:"id"`
	BedID        uuid.UUID  `json:"bed_id"`
	PatientName  string     `json:"patient_name"`
	OriginClinic string     `json:"origin_clinic"`
	Diagnosis    string     `json:"diagnosis"`
	Department   Department `json:"department"`
	CreatedAt    time.Time  `json:"created_at"`
}

// DischargeRecord is the immutable history row written at discharge.
type DischargeRecord struct {
	ID             uuid.UUID     `json:"id"`
	PatientID      uuid.UUID     `json:"patient_id"`
	BedID          uuid.UUID     `json:"bed_id"`
	BedName        string        `json:"bed_name"`
	Name           string        `json:"name"`
	Sex            Sex           `json:"sex"`
	BirthDate      Date          `json:"birth_date"`
	AdmissionAt    time.Time     `json:"admission_at"`
	Diagnosis      string        `json:"diagnosis"`
	Specialty      *string       `json:"specialty"`
	OriginCity     string        `json:"origin_city"`
	IsTFD          bool          `json:"is_tfd"`
	TFDType        *string       `json:"tfd_type"`
	Department     Department    `json:"department"`
	DischargeAt    time.Time     `json:"discharge_at"`
	DischargeType  DischargeType `json:"discharge_type"`
	ActualStayDays int           `json:"actual_stay_days"`
	DischargedBy   string        `json:"discharged_by,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

type Transfer struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	FromBedID      uuid.UUID  `json:"from_bed_id"`
	ToBedID        uuid.UUID  `json:"to_bed_id"`
	FromDepartment Department `json:"from_department"`
	ToDepartment   Department `json:"to_department"`
	TransferredAt  time.Time  `json:"transferred_at"`
	TransferredBy  string     `json:"transferred_by,omitempty"`
}

// DischargeFilter narrows ListDischarges. Zero values do not filter.
type DischargeFilter struct {
	Department Department
	Type       DischargeType
	From       time.Time
	To         time.Time
}
