package alert

import (
	"sort"
	"strings"
	"time"

	"github.com/ehr/bedboard/internal/domain/bed"
)

// DefaultLongStayDays is the stay length past which a patient is flagged.
const DefaultLongStayDays = 15

// LongStay lists patients in board hospitalized for more than thresholdDays
// whole days at now, sorted by days in order with ties broken by patient
// name then bed name.
func LongStay(board []*bed.Bed, now time.Time, thresholdDays int, order Order) []*LongStayAlert {
	var out []*LongStayAlert
	for _, b := range board {
		p := b.Patient
		if p == nil {
			continue
		}
		days := bed.OccupationDays(p.AdmissionAt, now)
		if days <= thresholdDays {
			continue
		}
		out = append(out, &LongStayAlert{
			Key:            LongStayKey(p.ID).String(),
			PatientID:      p.ID,
			PatientName:    p.Name,
			BedID:          b.ID,
			BedName:        b.Name,
			Department:     b.Department,
			Diagnosis:      p.Diagnosis,
			OriginCity:     p.OriginCity,
			AdmissionAt:    p.AdmissionAt,
			DaysInHospital: days,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DaysInHospital != b.DaysInHospital {
			if order == OrderAsc {
				return a.DaysInHospital < b.DaysInHospital
			}
			return a.DaysInHospital > b.DaysInHospital
		}
		if n := strings.Compare(strings.ToLower(a.PatientName), strings.ToLower(b.PatientName)); n != 0 {
			return n < 0
		}
		return a.BedName < b.BedName
	})
	return out
}
