package alert

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/platform/apperr"
	"github.com/ehr/bedboard/internal/platform/auth"
	"github.com/ehr/bedboard/internal/platform/changefeed"
)

// DefaultReadmissionWindowDays bounds the gap between a discharge and the
// next admission for it to count as a readmission.
const DefaultReadmissionWindowDays = 30

// BoardReader is the slice of bed.Service the alert lists need.
type BoardReader interface {
	GetBoard(ctx context.Context, dept bed.Department) ([]*bed.Bed, error)
}

type Service struct {
	repo         Repository
	board        BoardReader
	pub          changefeed.Publisher
	longStayDays int
	windowDays   int
	now          func() time.Time
	logger       zerolog.Logger
}

func NewService(repo Repository, board BoardReader, pub changefeed.Publisher, longStayDays, windowDays int) *Service {
	if longStayDays <= 0 {
		longStayDays = DefaultLongStayDays
	}
	if windowDays <= 0 {
		windowDays = DefaultReadmissionWindowDays
	}
	return &Service{
		repo:         repo,
		board:        board,
		pub:          pub,
		longStayDays: longStayDays,
		windowDays:   windowDays,
		now:          time.Now,
		logger:       zerolog.Nop(),
	}
}

func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

// LongStay lists patients over the stay threshold with their investigation.
func (s *Service) LongStay(ctx context.Context, order Order) ([]*LongStayAlert, error) {
	switch order {
	case "":
		order = OrderDesc
	case OrderAsc, OrderDesc:
	default:
		return nil, apperr.Invalid("order", "must be asc or desc")
	}

	board, err := s.board.GetBoard(ctx, "")
	if err != nil {
		return nil, err
	}
	alerts := LongStay(board, s.now(), s.longStayDays, order)
	if len(alerts) == 0 {
		return alerts, nil
	}

	invs, err := s.repo.Investigations(ctx, KindLongStay)
	if err != nil {
		return nil, err
	}
	for _, a := range alerts {
		a.Investigation = invs[LongStayKey(a.PatientID)]
	}
	return alerts, nil
}

// Readmissions lists readmissions whose previous discharge happened at or
// after since, most recent readmission first. A zero since means all.
func (s *Service) Readmissions(ctx context.Context, since time.Time) ([]*Readmission, error) {
	discharges, err := s.repo.Discharges(ctx, since)
	if err != nil || len(discharges) == 0 {
		return nil, err
	}
	admissions, err := s.repo.Admissions(ctx, since)
	if err != nil {
		return nil, err
	}
	list := MatchReadmissions(discharges, admissions, s.windowDays)
	if len(list) == 0 {
		return list, nil
	}

	invs, err := s.repo.Investigations(ctx, KindReadmission)
	if err != nil {
		return nil, err
	}
	for _, r := range list {
		k := r.key()
		r.Key = k.String()
		r.DaysBetween = bed.OccupationDays(r.DischargeAt, r.ReadmissionAt)
		r.Investigation = invs[k]
	}
	return list, nil
}

// RecordInvestigation stores the outcome for an alert. Concurrent writers
// resolve last-write-wins.
func (s *Service) RecordInvestigation(ctx context.Context, rawKey string, in InvestigationInput) (*Investigation, error) {
	key, err := ParseKey(rawKey)
	if err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, apperr.Invalid("status", "must be investigated or not_investigated")
	}

	inv := &Investigation{
		Key:            key.String(),
		Status:         in.Status,
		Notes:          strings.TrimSpace(in.Notes),
		InvestigatedBy: auth.ActorFromContext(ctx),
		UpdatedAt:      s.now().UTC(),
	}
	if err := s.repo.UpsertInvestigation(ctx, key, inv); err != nil {
		return nil, err
	}

	ch := changefeed.Change{Table: changefeed.TableInvestigations, Op: changefeed.OpUpdate, ID: inv.Key, At: inv.UpdatedAt}
	if err := s.pub.Publish(ctx, ch); err != nil {
		s.logger.Warn().Err(err).Str("key", inv.Key).Msg("publish investigation change")
	}
	return inv, nil
}
