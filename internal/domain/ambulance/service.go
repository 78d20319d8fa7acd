package ambulance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/bedboard/internal/platform/apperr"
	"github.com/ehr/bedboard/internal/platform/auth"
	"github.com/ehr/bedboard/internal/platform/changefeed"
	"github.com/ehr/bedboard/pkg/pagination"
)

// Service tracks ambulance requests. They are independent of beds; the
// bed label is informational.
type Service struct {
	repo   Repository
	pub    changefeed.Publisher
	now    func() time.Time
	loc    *time.Location
	logger zerolog.Logger
}

func NewService(repo Repository, pub changefeed.Publisher) *Service {
	return &Service{repo: repo, pub: pub, now: time.Now, loc: time.Local, logger: zerolog.Nop()}
}

func (s *Service) SetClock(now func() time.Time, loc *time.Location) {
	s.now = now
	if loc != nil {
		s.loc = loc
	}
}

// Location is where request dates and report periods are interpreted.
func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

func (s *Service) publish(ctx context.Context, op changefeed.Op, id uuid.UUID) {
	ch := changefeed.Change{Table: changefeed.TableAmbulance, Op: op, ID: id.String(), At: s.now().UTC()}
	if err := s.pub.Publish(ctx, ch); err != nil {
		s.logger.Warn().Err(err).Str("request_id", id.String()).Msg("publish ambulance change")
	}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Request, error) {
	req, err := in.Validate()
	if err != nil {
		return nil, err
	}
	req.CreatedAt = s.now().UTC()
	req.RequestedBy = auth.ActorFromContext(ctx)
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}
	req.derive(s.now())
	s.publish(ctx, changefeed.OpInsert, req.ID)
	s.logger.Info().Str("request_id", req.ID.String()).Str("vehicle_type", string(req.VehicleType)).Msg("ambulance requested")
	return req, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	req.derive(s.now())
	return req, nil
}

// Confirm marks a pending request confirmed, freezing its elapsed time.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.transition(ctx, id, StatusConfirmed)
}

// Cancel marks a pending request cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Request, error) {
	return s.transition(ctx, id, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status) (*Request, error) {
	req, err := s.repo.Transition(ctx, id, to, s.now().UTC())
	if err != nil {
		return nil, err
	}
	req.derive(s.now())
	s.publish(ctx, changefeed.OpUpdate, id)
	return req, nil
}

func (s *Service) List(ctx context.Context, f Filter, page pagination.Params) ([]*Request, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Invalid("status", "must be PENDING, CONFIRMED or CANCELLED")
	}
	items, total, err := s.repo.List(ctx, f, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	now := s.now()
	for _, r := range items {
		r.derive(now)
	}
	return items, total, nil
}

// Statistics summarises requests created in [from, to).
func (s *Service) Statistics(ctx context.Context, from, to time.Time) (Stats, error) {
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return Stats{}, apperr.Invalid("to", "must be after from")
	}
	if to.IsZero() {
		to = s.now().Add(time.Second)
	}
	reqs, err := s.repo.CreatedBetween(ctx, from, to)
	if err != nil {
		return Stats{}, err
	}
	return Summarize(reqs), nil
}
