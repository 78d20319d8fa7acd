package bed

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedboard/internal/platform/apperr"
)

const (
	maxNameLen = 255
	maxBedName = 64
)

// AdmitRequest carries a new patient into a bed. Version, when set, must
// match the bed's current version.
type AdmitRequest struct {
	Name                  string    `json:"name"`
	Sex                   Sex       `json:"sex"`
	BirthDate             Date      `json:"birth_date"`
	AdmissionAt           time.Time `json:"admission_at"`
	Diagnosis             string    `json:"diagnosis"`
	Specialty             *string   `json:"specialty"`
	ExpectedDischargeDate *Date     `json:"expected_discharge_date"`
	OriginCity            string    `json:"origin_city"`
	IsTFD                 bool      `json:"is_tfd"`
	TFDType               *string   `json:"tfd_type"`
	IsIsolation           bool      `json:"is_isolation"`
	Version               *int      `json:"version"`
}

func (r *AdmitRequest) Validate(now time.Time) error {
	v := &apperr.ValidationError{}
	r.Name = strings.TrimSpace(r.Name)
	r.Diagnosis = strings.TrimSpace(r.Diagnosis)
	r.OriginCity = strings.TrimSpace(r.OriginCity)

	v.Required("name", r.Name)
	if len(r.Name) > maxNameLen {
		v.Add("name", "is too long")
	}
	if !r.Sex.Valid() {
		v.Add("sex", "must be M or F")
	}
	if r.BirthDate.IsZero() {
		v.Add("birth_date", "is required")
	} else if r.BirthDate.After(now) {
		v.Add("birth_date", "cannot be in the future")
	}
	if r.AdmissionAt.IsZero() {
		v.Add("admission_at", "is required")
	} else {
		if r.AdmissionAt.After(now.Add(time.Minute)) {
			v.Add("admission_at", "cannot be in the future")
		}
		if !r.BirthDate.IsZero() && r.AdmissionAt.Before(r.BirthDate.Time) {
			v.Add("admission_at", "is before birth date")
		}
	}
	v.Required("diagnosis", r.Diagnosis)
	v.Required("origin_city", r.OriginCity)
	if r.ExpectedDischargeDate != nil && r.ExpectedDischargeDate.IsZero() {
		r.ExpectedDischargeDate = nil
	}
	r.Specialty = trimOptional(r.Specialty)
	r.TFDType = trimOptional(r.TFDType)
	if !r.IsTFD {
		r.TFDType = nil
	}
	return v.Err()
}

// DischargeRequest moves the patient in a bed into discharge history.
type DischargeRequest struct {
	PatientID   uuid.UUID     `json:"patient_id"`
	Type        DischargeType `json:"discharge_type"`
	DischargeAt time.Time     `json:"discharge_at"`
	Version     *int          `json:"version"`
}

// Validate fills DischargeAt with now when absent.
func (r *DischargeRequest) Validate(now time.Time) error {
	v := &apperr.ValidationError{}
	if r.PatientID == uuid.Nil {
		v.Add("patient_id", "is required")
	}
	if !r.Type.Valid() {
		v.Add("discharge_type", "must be one of improvement, evasion, transfer, death, contra_referencia")
	}
	if r.DischargeAt.IsZero() {
		r.DischargeAt = now
	} else if r.DischargeAt.After(now.Add(time.Minute)) {
		v.Add("discharge_at", "cannot be in the future")
	}
	return v.Err()
}

type TransferRequest struct {
	PatientID uuid.UUID `json:"patient_id"`
	ToBedID   uuid.UUID `json:"to_bed_id"`
}

func (r *TransferRequest) Validate(fromBedID uuid.UUID) error {
	v := &apperr.ValidationError{}
	if r.PatientID == uuid.Nil {
		v.Add("patient_id", "is required")
	}
	if r.ToBedID == uuid.Nil {
		v.Add("to_bed_id", "is required")
	} else if r.ToBedID == fromBedID {
		v.Add("to_bed_id", "must differ from the current bed")
	}
	return v.Err()
}

type ReserveRequest struct {
	PatientName  string `json:"patient_name"`
	OriginClinic string `json:"origin_clinic"`
	Diagnosis    string `json:"diagnosis"`
	Version      *int   `json:"version"`
}

func (r *ReserveRequest) Validate() error {
	v := &apperr.ValidationError{}
	r.PatientName = strings.TrimSpace(r.PatientName)
	r.OriginClinic = strings.TrimSpace(r.OriginClinic)
	r.Diagnosis = strings.TrimSpace(r.Diagnosis)
	v.Required("patient_name", r.PatientName)
	if len(r.PatientName) > maxNameLen {
		v.Add("patient_name", "is too long")
	}
	v.Required("origin_clinic", r.OriginClinic)
	v.Required("diagnosis", r.Diagnosis)
	return v.Err()
}

type CreateBedRequest struct {
	Department Department `json:"department"`
	Name       string     `json:"name"`
}

func (r *CreateBedRequest) Validate() error {
	v := &apperr.ValidationError{}
	r.Name = strings.TrimSpace(r.Name)
	if !r.Department.Valid() {
		v.Add("department", "is not a known department")
	}
	v.Required("name", r.Name)
	if len(r.Name) > maxBedName {
		v.Add("name", "is too long")
	}
	return v.Err()
}

// PatientUpdate edits the mutable clinical fields of an admitted patient.
// Absent fields are left untouched; an explicit null expected discharge
// date means "no predicted date".
type PatientUpdate struct {
	Diagnosis             Optional[string] `json:"diagnosis"`
	Specialty             Optional[string] `json:"specialty"`
	ExpectedDischargeDate Optional[Date]   `json:"expected_discharge_date"`
	IsIsolation           Optional[bool]   `json:"is_isolation"`
	IsTFD                 Optional[bool]   `json:"is_tfd"`
	TFDType               Optional[string] `json:"tfd_type"`
	OriginCity            Optional[string] `json:"origin_city"`
}

// Apply validates u and writes it onto p.
func (u *PatientUpdate) Apply(p *Patient) error {
	v := &apperr.ValidationError{}
	if u.Diagnosis.Set {
		if u.Diagnosis.Value == nil || strings.TrimSpace(*u.Diagnosis.Value) == "" {
			v.Add("diagnosis", "cannot be empty")
		} else {
			p.Diagnosis = strings.TrimSpace(*u.Diagnosis.Value)
		}
	}
	if u.OriginCity.Set {
		if u.OriginCity.Value == nil || strings.TrimSpace(*u.OriginCity.Value) == "" {
			v.Add("origin_city", "cannot be empty")
		} else {
			p.OriginCity = strings.TrimSpace(*u.OriginCity.Value)
		}
	}
	if u.IsIsolation.Set {
		if u.IsIsolation.Value == nil {
			v.Add("is_isolation", "cannot be null")
		} else {
			p.IsIsolation = *u.IsIsolation.Value
		}
	}
	if u.IsTFD.Set {
		if u.IsTFD.Value == nil {
			v.Add("is_tfd", "cannot be null")
		} else {
			p.IsTFD = *u.IsTFD.Value
		}
	}
	if err := v.Err(); err != nil {
		return err
	}

	if u.Specialty.Set {
		p.Specialty = trimOptional(u.Specialty.Value)
	}
	if u.ExpectedDischargeDate.Set {
		p.ExpectedDischargeDate = u.ExpectedDischargeDate.Value
		if p.ExpectedDischargeDate != nil && p.ExpectedDischargeDate.IsZero() {
			p.ExpectedDischargeDate = nil
		}
	}
	if u.TFDType.Set {
		p.TFDType = trimOptional(u.TFDType.Value)
	}
	if !p.IsTFD {
		p.TFDType = nil
	}
	return nil
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}
