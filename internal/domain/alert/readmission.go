package alert

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Discharge is a closed stay a readmission can point back to.
type Discharge struct {
	ID          uuid.UUID
	PatientID   uuid.UUID
	Name        string
	OriginCity  string
	DischargeAt time.Time
}

// Admission is a stay start, either of a patient still in a bed (Active) or
// of a stay that has since been discharged.
type Admission struct {
	PatientID   uuid.UUID
	Name        string
	OriginCity  string
	Diagnosis   string
	AdmissionAt time.Time
	Active      bool
}

type identityKey struct{ name, city string }

func identityOf(name, city string) identityKey {
	return identityKey{strings.ToLower(strings.TrimSpace(name)), strings.ToLower(strings.TrimSpace(city))}
}

// MatchReadmissions pairs each discharge with the earliest later admission
// of a different patient record sharing its normalized name and origin
// city, when that admission starts strictly after the discharge and
// strictly less than windowDays*24h after it. Results are ordered by
// readmission time, most recent first, then by discharge id.
func MatchReadmissions(discharges []Discharge, admissions []Admission, windowDays int) []*Readmission {
	window := time.Duration(windowDays) * 24 * time.Hour

	byIdentity := make(map[identityKey][]Admission)
	for _, a := range admissions {
		k := identityOf(a.Name, a.OriginCity)
		byIdentity[k] = append(byIdentity[k], a)
	}
	for _, list := range byIdentity {
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].AdmissionAt.Equal(list[j].AdmissionAt) {
				return list[i].AdmissionAt.Before(list[j].AdmissionAt)
			}
			return list[i].PatientID.String() < list[j].PatientID.String()
		})
	}

	var out []*Readmission
	for _, d := range discharges {
		limit := d.DischargeAt.Add(window)
		for _, a := range byIdentity[identityOf(d.Name, d.OriginCity)] {
			if a.PatientID == d.PatientID || !a.AdmissionAt.After(d.DischargeAt) {
				continue
			}
			if !a.AdmissionAt.Before(limit) {
				break
			}
			out = append(out, &Readmission{
				PatientID:           a.PatientID,
				PatientName:         a.Name,
				OriginCity:          a.OriginCity,
				Diagnosis:           a.Diagnosis,
				PreviousDischargeID: d.ID,
				DischargeAt:         d.DischargeAt,
				ReadmissionAt:       a.AdmissionAt,
				StillAdmitted:       a.Active,
			})
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ReadmissionAt.Equal(out[j].ReadmissionAt) {
			return out[i].ReadmissionAt.After(out[j].ReadmissionAt)
		}
		return out[i].PreviousDischargeID.String() < out[j].PreviousDischargeID.String()
	})
	return out
}
