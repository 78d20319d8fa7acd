package ambulance

import (
	"strings"
	"time"

	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/platform/apperr"
)

const timeLayout = "15:04"

type CreateInput struct {
	PatientName     string      `json:"patient_name"`
	Sector          string      `json:"sector"`
	BedLabel        string      `json:"bed_label"`
	IsPuerpera      bool        `json:"is_puerpera"`
	AppropriateCrib *bool       `json:"appropriate_crib"`
	Mobility        Mobility    `json:"mobility"`
	VehicleType     VehicleType `json:"vehicle_type"`
	VehicleSubtype  *string     `json:"vehicle_subtype"`
	OriginCity      string      `json:"origin_city"`
	RequestDate     string      `json:"request_date"`
	RequestTime     string      `json:"request_time"`
}

// Validate reports every violation at once and builds the request. Fields
// that only apply to other choices are dropped.
func (in CreateInput) Validate() (*Request, error) {
	v := &apperr.ValidationError{}
	r := &Request{
		PatientName: strings.TrimSpace(in.PatientName),
		Sector:      strings.TrimSpace(in.Sector),
		BedLabel:    strings.TrimSpace(in.BedLabel),
		IsPuerpera:  in.IsPuerpera,
		Mobility:    Mobility(strings.ToUpper(strings.TrimSpace(string(in.Mobility)))),
		VehicleType: VehicleType(strings.ToUpper(strings.TrimSpace(string(in.VehicleType)))),
		OriginCity:  strings.TrimSpace(in.OriginCity),
		RequestTime: strings.TrimSpace(in.RequestTime),
		Status:      StatusPending,
	}

	v.Required("patient_name", r.PatientName)
	v.Required("sector", r.Sector)
	v.Required("bed_label", r.BedLabel)
	v.Required("origin_city", r.OriginCity)
	if !r.Mobility.Valid() {
		v.Add("mobility", "must be DEITADO or SENTADO")
	}
	if !r.VehicleType.Valid() {
		v.Add("vehicle_type", "must be AMBULANCIA or CARRO_COMUM")
	}

	if date := strings.TrimSpace(in.RequestDate); date == "" {
		v.Add("request_date", "is required")
	} else if d, err := bed.ParseDate(date); err != nil {
		v.Add("request_date", "must be YYYY-MM-DD")
	} else {
		r.RequestDate = d
	}
	if r.RequestTime == "" {
		v.Add("request_time", "is required")
	} else if _, err := time.Parse(timeLayout, r.RequestTime); err != nil {
		v.Add("request_time", "must be HH:MM")
	}

	if r.IsPuerpera {
		r.AppropriateCrib = in.AppropriateCrib
	}
	if r.VehicleType == VehicleAmbulance && in.VehicleSubtype != nil {
		if s := strings.TrimSpace(*in.VehicleSubtype); s != "" {
			r.VehicleSubtype = &s
		}
	}

	if err := v.Err(); err != nil {
		return nil, err
	}
	return r, nil
}
