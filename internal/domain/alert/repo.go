package alert

import (
	"context"
	"time"
)

type Repository interface {
	// Discharges lists discharged stays with a discharge at or after since.
	Discharges(ctx context.Context, since time.Time) ([]Discharge, error)
	// Admissions lists active and discharged stays admitted strictly after
	// after.
	Admissions(ctx context.Context, after time.Time) ([]Admission, error)
	// UpsertInvestigation writes the investigation for key, replacing any
	// earlier one.
	UpsertInvestigation(ctx context.Context, key Key, inv *Investigation) error
	Investigations(ctx context.Context, kind Kind) (map[Key]*Investigation, error)
}
