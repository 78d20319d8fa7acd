package reporting

import (
	"math"
	"time"

	"github.com/ehr/bedboard/internal/domain/bed"
)

// DepartmentStat is the occupancy snapshot of one department.
type DepartmentStat struct {
	Department         bed.Department `json:"department"`
	Total              int            `json:"total"`
	Occupied           int            `json:"occupied"`
	Reserved           int            `json:"reserved"`
	Available          int            `json:"available"`
	OccupancyRate      float64        `json:"occupancy_rate"`
	Isolation          int            `json:"isolation"`
	TFD                int            `json:"tfd"`
	MeanOccupationDays float64        `json:"mean_occupation_days"`

	stayDays int
}

type BoardSummary struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Departments []*DepartmentStat `json:"departments"`
	Overall     *DepartmentStat   `json:"overall"`
}

// DepartmentStats tallies board per department, in the canonical department
// order. Departments without beds are left out. Rates are percentages
// rounded to one decimal.
func DepartmentStats(board []*bed.Bed, now time.Time) BoardSummary {
	byDept := make(map[bed.Department]*DepartmentStat)
	overall := &DepartmentStat{Department: "TOTAL"}
	for _, b := range board {
		st, ok := byDept[b.Department]
		if !ok {
			st = &DepartmentStat{Department: b.Department}
			byDept[b.Department] = st
		}
		st.add(b, now)
		overall.add(b, now)
	}

	sum := BoardSummary{GeneratedAt: now, Overall: overall.finish()}
	for _, d := range bed.Departments {
		if st, ok := byDept[d]; ok {
			sum.Departments = append(sum.Departments, st.finish())
		}
	}
	return sum
}

func (s *DepartmentStat) add(b *bed.Bed, now time.Time) {
	s.Total++
	switch {
	case b.IsOccupied:
		s.Occupied++
	case b.IsReserved:
		s.Reserved++
	default:
		s.Available++
	}
	if p := b.Patient; p != nil {
		if p.IsIsolation {
			s.Isolation++
		}
		if p.IsTFD {
			s.TFD++
		}
		s.stayDays += bed.OccupationDays(p.AdmissionAt, now)
	}
}

func (s *DepartmentStat) finish() *DepartmentStat {
	if s.Total > 0 {
		s.OccupancyRate = round1(100 * float64(s.Occupied) / float64(s.Total))
	}
	if s.Occupied > 0 {
		s.MeanOccupationDays = round1(float64(s.stayDays) / float64(s.Occupied))
	}
	return s
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
