package discharge

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/platform/apperr"
	"github.com/ehr/bedboard/internal/platform/auth"
	"github.com/ehr/bedboard/internal/platform/changefeed"
	"github.com/ehr/bedboard/internal/platform/db"
	"github.com/ehr/bedboard/pkg/pagination"
)

// Service coordinates the two-phase discharge: a bedside request followed
// by an administrative completion that performs the actual discharge.
type Service struct {
	repo      Repository
	beds      *bed.Service
	tx        db.TxRunner
	threshold time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewService(repo Repository, beds *bed.Service, tx db.TxRunner, threshold time.Duration) *Service {
	if threshold <= 0 {
		threshold = DefaultJustificationAfter
	}
	return &Service{
		repo:      repo,
		beds:      beds,
		tx:        tx,
		threshold: threshold,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

// Threshold is the elapsed time from which completion needs a justification.
func (s *Service) Threshold() time.Duration { return s.threshold }

// HasPendingControl implements bed.DischargeGuard.
func (s *Service) HasPendingControl(ctx context.Context, patientID uuid.UUID) (bool, error) {
	return s.repo.HasPending(ctx, patientID)
}

func (s *Service) change(op changefeed.Op, id uuid.UUID) changefeed.Change {
	return changefeed.Change{Table: changefeed.TableDischargeControls, Op: op, ID: id.String(), At: s.now().UTC()}
}

// Request opens a pending control for an admitted patient. The bed is not
// changed, but its row is locked for the transaction so the request and a
// direct discharge of the same bed serialize.
func (s *Service) Request(ctx context.Context, in RequestInput) (*Control, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var c *Control
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.beds.GetPatient(ctx, in.PatientID)
		if err != nil {
			return err
		}
		b, err := s.beds.LockBed(ctx, p.BedID)
		if err != nil {
			return err
		}
		if b.Patient == nil || b.Patient.ID != p.ID {
			return bed.ErrPatientNotInBed
		}
		pending, err := s.repo.HasPending(ctx, p.ID)
		if err != nil {
			return err
		}
		if pending {
			return ErrAlreadyPending
		}
		c = &Control{
			PatientID:     p.ID,
			PatientName:   p.Name,
			BedID:         b.ID,
			BedName:       b.Name,
			Department:    b.Department,
			DischargeType: in.DischargeType,
			RequestedAt:   s.now().UTC(),
			RequestedBy:   auth.ActorFromContext(ctx),
		}
		return s.repo.Create(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	c.derive(s.now(), s.threshold)
	s.beds.Notify(ctx, s.change(changefeed.OpInsert, c.ID))
	return c, nil
}

// Cancel withdraws a pending control. The bed was never freed, so nothing
// else changes. Cancelling a control that is not pending is a conflict.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Control, error) {
	var c *Control
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		c, err = s.repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != StatusPending {
			return ErrNotPending
		}
		at := s.now().UTC()
		if err := s.repo.MarkCancelled(ctx, id, at); err != nil {
			return err
		}
		c.Status = StatusCancelled
		c.CancelledAt = &at
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.derive(s.now(), s.threshold)
	s.beds.Notify(ctx, s.change(changefeed.OpUpdate, c.ID))
	return c, nil
}

// Complete performs the discharge for a pending control. From the
// threshold on, a non-blank justification is required.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, in CompleteInput) (*Completion, error) {
	if in.DischargeType != "" && !in.DischargeType.Valid() {
		return nil, apperr.Invalid("discharge_type", "is not a known discharge type")
	}
	justification := strings.TrimSpace(in.Justification)

	var out *Completion
	var changes []changefeed.Change
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.Lock(ctx, id)
		if err != nil {
			return err
		}
		if c.Status != StatusPending {
			return ErrNotPending
		}

		now := s.now().UTC()
		if NeedsJustification(c.Elapsed(now), s.threshold) && justification == "" {
			return ErrJustificationRequired
		}

		// The patient may have been transferred since the request.
		p, err := s.beds.GetPatient(ctx, c.PatientID)
		if apperr.Kind(err) == apperr.ErrNotFound {
			return ErrPatientGone
		}
		if err != nil {
			return err
		}

		typ := c.DischargeType
		if in.DischargeType != "" {
			typ = in.DischargeType
		}
		rec, bedChanges, err := s.beds.DischargeInTx(ctx, p.BedID, bed.DischargeRequest{
			PatientID:   p.ID,
			Type:        typ,
			DischargeAt: now,
		})
		if err != nil {
			return err
		}

		var j *string
		if justification != "" {
			j = &justification
		}
		if err := s.repo.MarkCompleted(ctx, id, now, j); err != nil {
			return err
		}
		c.Status = StatusCompleted
		c.CompletedAt = &now
		c.Justification = j
		c.DischargeType = typ

		out = &Completion{Control: c, Discharge: rec}
		changes = append(bedChanges, s.change(changefeed.OpUpdate, c.ID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	out.Control.derive(s.now(), s.threshold)
	s.beds.Notify(ctx, changes...)
	return out, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Control, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.derive(s.now(), s.threshold)
	return c, nil
}

// ListPending returns every pending control, oldest first, with elapsed
// time and the justification flag computed now.
func (s *Service) ListPending(ctx context.Context) ([]*Control, error) {
	items, _, err := s.repo.ListByStatus(ctx, StatusPending, pagination.MaxLimit, 0)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, c := range items {
		c.derive(now, s.threshold)
	}
	return items, nil
}

// List pages through controls of one status, newest terminal first.
func (s *Service) List(ctx context.Context, status Status, page pagination.Params) ([]*Control, int, error) {
	if !status.Valid() {
		return nil, 0, apperr.Invalid("status", "must be pending, completed or cancelled")
	}
	items, total, err := s.repo.ListByStatus(ctx, status, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for _, c := range items {
		c.derive(now, s.threshold)
	}
	return items, total, nil
}
