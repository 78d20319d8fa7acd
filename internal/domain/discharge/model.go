package discharge

import (
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/platform/apperr"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusCancelled
}

// DefaultJustificationAfter is how long a control may stay pending before
// completing it requires a justification.
const DefaultJustificationAfter = 5 * time.Hour

var (
	ErrControlNotFound       = apperr.NotFound("discharge control")
	ErrNotPending            = apperr.New(apperr.ErrConflict, "discharge control is no longer pending")
	ErrAlreadyPending        = apperr.New(apperr.ErrConflict, "patient already has a pending discharge request")
	ErrPatientGone           = apperr.New(apperr.ErrConflict, "patient is no longer admitted")
	ErrJustificationRequired = apperr.Invalid("justification", "justification required")
)

// Control is one two-phase discharge. The bed stays occupied while it is
// pending; occupancy changes only when it completes.
type Control struct {
	ID            uuid.UUID         `json:"id"`
	PatientID     uuid.UUID         `json:"patient_id"`
	PatientName   string            `json:"patient_name"`
	BedID         uuid.UUID         `json:"bed_id"`
	BedName       string            `json:"bed_name"`
	Department    bed.Department    `json:"department"`
	DischargeType bed.DischargeType `json:"discharge_type"`
	Status        Status            `json:"status"`
	RequestedAt   time.Time         `json:"requested_at"`
	RequestedBy   string            `json:"requested_by,omitempty"`
	CompletedAt   *time.Time        `json:"completed_at"`
	CancelledAt   *time.Time        `json:"cancelled_at"`
	Justification *string           `json:"justification"`

	// Derived at read time.
	ElapsedSeconds        int64 `json:"elapsed_seconds"`
	RequiresJustification bool  `json:"requires_justification"`
}

// Elapsed runs against now while pending and stops at the terminal
// timestamp otherwise.
func (c *Control) Elapsed(now time.Time) time.Duration {
	end := now
	switch {
	case c.Status == StatusCompleted && c.CompletedAt != nil:
		end = *c.CompletedAt
	case c.Status == StatusCancelled && c.CancelledAt != nil:
		end = *c.CancelledAt
	}
	if d := end.Sub(c.RequestedAt); d > 0 {
		return d
	}
	return 0
}

// NeedsJustification applies the completion rule: at or past threshold a
// justification is mandatory.
func NeedsJustification(elapsed, threshold time.Duration) bool {
	return elapsed >= threshold
}

func (c *Control) derive(now time.Time, threshold time.Duration) {
	e := c.Elapsed(now)
	c.ElapsedSeconds = int64(e / time.Second)
	c.RequiresJustification = c.Status == StatusPending && NeedsJustification(e, threshold)
}

type RequestInput struct {
	PatientID     uuid.UUID         `json:"patient_id"`
	DischargeType bed.DischargeType `json:"discharge_type"`
}

func (in *RequestInput) Validate() error {
	v := &apperr.ValidationError{}
	if in.PatientID == uuid.Nil {
		v.Add("patient_id", "is required")
	}
	if in.DischargeType == "" {
		in.DischargeType = bed.DischargeImprovement
	} else if !in.DischargeType.Valid() {
		v.Add("discharge_type", "is not a known discharge type")
	}
	return v.Err()
}

// CompleteInput finishes a control. DischargeType overrides the type given
// at request time when set.
type CompleteInput struct {
	Justification string            `json:"justification"`
	DischargeType bed.DischargeType `json:"discharge_type"`
}

// Completion is the outcome of a completed control.
type Completion struct {
	Control   *Control             `json:"control"`
	Discharge *bed.DischargeRecord `json:"discharge"`
}
