package ambulance

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/platform/apperr"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusCancelled
}

type Mobility string

const (
	MobilityLying  Mobility = "DEITADO"
	MobilitySeated Mobility = "SENTADO"
)

func (m Mobility) Valid() bool { return m == MobilityLying || m == MobilitySeated }

type VehicleType string

const (
	VehicleAmbulance VehicleType = "AMBULANCIA"
	VehicleCar       VehicleType = "CARRO_COMUM"
)

func (v VehicleType) Valid() bool { return v == VehicleAmbulance || v == VehicleCar }

// Band is the presentational urgency colour of a request.
type Band string

const (
	BandBlue   Band = "blue"
	BandYellow Band = "yellow"
	BandAmber  Band = "amber"
	BandGreen  Band = "green"
	BandGray   Band = "gray"
)

const (
	yellowAfter = 12 * time.Hour
	amberAfter  = 24 * time.Hour
)

var (
	ErrRequestNotFound = apperr.NotFound("ambulance request")
	ErrNotPending      = apperr.New(apperr.ErrConflict, "ambulance request is no longer pending")
)

// Request is a transport request. BedLabel is free text, not a bed id.
type Request struct {
	ID              uuid.UUID   `json:"id"`
	PatientName     string      `json:"patient_name"`
	Sector          string      `json:"sector"`
	BedLabel        string      `json:"bed_label"`
	IsPuerpera      bool        `json:"is_puerpera"`
	AppropriateCrib *bool       `json:"appropriate_crib"`
	Mobility        Mobility    `json:"mobility"`
	VehicleType     VehicleType `json:"vehicle_type"`
	VehicleSubtype  *string     `json:"vehicle_subtype"`
	OriginCity      string      `json:"origin_city"`
	RequestDate     bed.Date    `json:"request_date"`
	RequestTime     string      `json:"request_time"`
	Status          Status      `json:"status"`
	RequestedBy     string      `json:"requested_by,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	ConfirmedAt     *time.Time  `json:"confirmed_at"`
	CancelledAt     *time.Time  `json:"cancelled_at"`

	// Derived at read time.
	ElapsedSeconds int64 `json:"elapsed_seconds"`
	Band           Band  `json:"band"`
}

// Elapsed is live against now while pending and frozen at the terminal
// timestamp afterwards.
func (r *Request) Elapsed(now time.Time) time.Duration {
	end := now
	switch {
	case r.ConfirmedAt != nil:
		end = *r.ConfirmedAt
	case r.CancelledAt != nil:
		end = *r.CancelledAt
	}
	if d := end.Sub(r.CreatedAt); d > 0 {
		return d
	}
	return 0
}

func (r *Request) BandAt(now time.Time) Band {
	switch r.Status {
	case StatusConfirmed:
		return BandGreen
	case StatusCancelled:
		return BandGray
	}
	switch e := r.Elapsed(now); {
	case e >= amberAfter:
		return BandAmber
	case e >= yellowAfter:
		return BandYellow
	default:
		return BandBlue
	}
}

func (r *Request) derive(now time.Time) {
	r.ElapsedSeconds = int64(r.Elapsed(now) / time.Second)
	r.Band = r.BandAt(now)
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status Status
	Date   bed.Date
}

// Stats summarises requests created in a period.
type Stats struct {
	Total                   int                 `json:"total"`
	ByStatus                map[Status]int      `json:"by_status"`
	ByVehicleType           map[VehicleType]int `json:"by_vehicle_type"`
	BySector                map[string]int      `json:"by_sector"`
	MeanConfirmationSeconds *int64              `json:"mean_confirmation_seconds"`
}

// Summarize aggregates requests into Stats. The mean covers confirmed
// requests only and is nil when there are none.
func Summarize(reqs []*Request) Stats {
	st := Stats{
		Total:         len(reqs),
		ByStatus:      map[Status]int{StatusPending: 0, StatusConfirmed: 0, StatusCancelled: 0},
		ByVehicleType: map[VehicleType]int{VehicleAmbulance: 0, VehicleCar: 0},
		BySector:      map[string]int{},
	}
	var sum time.Duration
	var confirmed int64
	for _, r := range reqs {
		st.ByStatus[r.Status]++
		st.ByVehicleType[r.VehicleType]++
		st.BySector[r.Sector]++
		if r.Status == StatusConfirmed && r.ConfirmedAt != nil {
			sum += r.ConfirmedAt.Sub(r.CreatedAt)
			confirmed++
		}
	}
	if confirmed > 0 {
		mean := int64(sum/time.Second) / confirmed
		st.MeanConfirmationSeconds = &mean
	}
	return st
}
