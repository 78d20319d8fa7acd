package alert

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/platform/apperr"
)

type Kind string

const (
	KindLongStay    Kind = "long_stay"
	KindReadmission Kind = "readmission"
)

func (k Kind) Valid() bool { return k == KindLongStay || k == KindReadmission }

// Key identifies one alert instance durably. Long stay alerts are keyed by
// the patient; readmissions by the readmitted patient and the discharge it
// follows.
type Key struct {
	Kind        Kind      `json:"kind"`
	SubjectID   uuid.UUID `json:"subject_id"`
	ReferenceID uuid.UUID `json:"reference_id"`
}

func LongStayKey(patientID uuid.UUID) Key {
	return Key{Kind: KindLongStay, SubjectID: patientID}
}

func ReadmissionKey(patientID, previousDischargeID uuid.UUID) Key {
	return Key{Kind: KindReadmission, SubjectID: patientID, ReferenceID: previousDischargeID}
}

// String renders kind:subject[:reference].
func (k Key) String() string {
	s := string(k.Kind) + ":" + k.SubjectID.String()
	if k.ReferenceID != uuid.Nil {
		s += ":" + k.ReferenceID.String()
	}
	return s
}

func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Key{}, apperr.Invalid("key", "must be kind:subject[:reference]")
	}
	k := Key{Kind: Kind(parts[0])}
	if !k.Kind.Valid() {
		return Key{}, apperr.Invalid("key", fmt.Sprintf("unknown alert kind %q", parts[0]))
	}
	var err error
	if k.SubjectID, err = uuid.Parse(parts[1]); err != nil || k.SubjectID == uuid.Nil {
		return Key{}, apperr.Invalid("key", "invalid subject id")
	}
	if len(parts) == 3 {
		if k.ReferenceID, err = uuid.Parse(parts[2]); err != nil {
			return Key{}, apperr.Invalid("key", "invalid reference id")
		}
	}
	if k.Kind == KindReadmission && k.ReferenceID == uuid.Nil {
		return Key{}, apperr.Invalid("key", "readmission keys need a reference id")
	}
	if k.Kind == KindLongStay && k.ReferenceID != uuid.Nil {
		return Key{}, apperr.Invalid("key", "long stay keys take no reference id")
	}
	return k, nil
}

type InvestigationStatus string

const (
	Investigated    InvestigationStatus = "investigated"
	NotInvestigated InvestigationStatus = "not_investigated"
)

func (s InvestigationStatus) Valid() bool { return s == Investigated || s == NotInvestigated }

type Investigation struct {
	Key            string              `json:"key"`
	Status         InvestigationStatus `json:"status"`
	Notes          string              `json:"notes,omitempty"`
	InvestigatedBy string              `json:"investigated_by,omitempty"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

type InvestigationInput struct {
	Status InvestigationStatus `json:"status"`
	Notes  string              `json:"notes"`
}

type LongStayAlert struct {
	Key            string         `json:"key"`
	PatientID      uuid.UUID      `json:"patient_id"`
	PatientName    string         `json:"patient_name"`
	BedID          uuid.UUID      `json:"bed_id"`
	BedName        string         `json:"bed_name"`
	Department     bed.Department `json:"department"`
	Diagnosis      string         `json:"diagnosis"`
	OriginCity     string         `json:"origin_city"`
	AdmissionAt    time.Time      `json:"admission_at"`
	DaysInHospital int            `json:"days_in_hospital"`
	Investigation  *Investigation `json:"investigation"`
}

// Readmission pairs a discharge with the next admission of a patient with
// the same normalized name and origin city inside the window.
type Readmission struct {
	Key                 string         `json:"key"`
	PatientID           uuid.UUID      `json:"patient_id"`
	PatientName         string         `json:"patient_name"`
	OriginCity          string         `json:"origin_city"`
	Diagnosis           string         `json:"diagnosis"`
	PreviousDischargeID uuid.UUID      `json:"previous_discharge_id"`
	DischargeAt         time.Time      `json:"discharge_at"`
	ReadmissionAt       time.Time      `json:"readmission_at"`
	DaysBetween         int            `json:"days_between"`
	StillAdmitted       bool           `json:"still_admitted"`
	Investigation       *Investigation `json:"investigation"`
}

func (r *Readmission) key() Key { return ReadmissionKey(r.PatientID, r.PreviousDischargeID) }

type Order string

const (
	OrderDesc Order = "desc"
	OrderAsc  Order = "asc"
)
