package bed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/bedboard/internal/platform/apperr"
	"github.com/ehr/bedboard/internal/platform/auth"
	"github.com/ehr/bedboard/internal/platform/cache"
	"github.com/ehr/bedboard/internal/platform/changefeed"
	"github.com/ehr/bedboard/internal/platform/db"
	"github.com/ehr/bedboard/pkg/pagination"
)

// DischargeGuard reports whether a patient has a discharge awaiting
// administrative sign-off. Direct discharges are refused while one exists.
type DischargeGuard interface {
	HasPendingControl(ctx context.Context, patientID uuid.UUID) (bool, error)
}

type Service struct {
	repo     Repository
	tx       db.TxRunner
	pub      changefeed.Publisher
	cache    cache.Snapshots
	cacheTTL time.Duration
	guard    DischargeGuard
	now      func() time.Time
	loc      *time.Location
	logger   zerolog.Logger
}

func NewService(repo Repository, tx db.TxRunner, pub changefeed.Publisher) *Service {
	return &Service{
		repo:   repo,
		tx:     tx,
		pub:    pub,
		now:    time.Now,
		loc:    time.UTC,
		logger: zerolog.Nop(),
	}
}

// SetCache serves the board from c for at most ttl between mutations.
func (s *Service) SetCache(c cache.Snapshots, ttl time.Duration) {
	s.cache = c
	s.cacheTTL = ttl
}

func (s *Service) SetDischargeGuard(g DischargeGuard) { s.guard = g }

func (s *Service) SetLogger(l zerolog.Logger) { s.logger = l }

// SetClock overrides the time source and the hospital's local time zone.
func (s *Service) SetClock(now func() time.Time, loc *time.Location) {
	s.now = now
	if loc != nil {
		s.loc = loc
	}
}

func (s *Service) clock() time.Time { return s.now().In(s.loc) }

// Location is the time zone calendar dates are interpreted in.
func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) change(table string, op changefeed.Op, id uuid.UUID) changefeed.Change {
	return changefeed.Change{Table: table, Op: op, ID: id.String(), At: s.now().UTC()}
}

// Notify drops cached boards and publishes changes. Callers invoke it once
// the transaction that produced changes has committed.
func (s *Service) Notify(ctx context.Context, changes ...changefeed.Change) {
	if len(changes) == 0 {
		return
	}
	s.InvalidateBoard(ctx)
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, changes...); err != nil {
		s.logger.Warn().Err(err).Int("changes", len(changes)).Msg("publish bed changes")
	}
}

func (s *Service) InvalidateBoard(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("invalidate board cache")
	}
}

func checkVersion(b *Bed, want *int) error {
	if want != nil && *want != b.Version {
		return ErrStaleVersion
	}
	return nil
}

func boardKey(dept Department) string {
	if dept == "" {
		return "board:all"
	}
	return "board:" + string(dept)
}

// GetBoard lists beds ordered by department then name, each carrying its
// patient or reservation. An empty dept lists every department.
func (s *Service) GetBoard(ctx context.Context, dept Department) ([]*Bed, error) {
	if dept != "" && !dept.Valid() {
		return nil, apperr.Invalid("department", "is not a known department")
	}

	key := boardKey(dept)
	var gen int64
	store := s.cache != nil
	if s.cache != nil {
		var data []byte
		var err error
		data, gen, err = s.cache.Get(ctx, key)
		switch {
		case err == nil:
			var beds []*Bed
			if err := json.Unmarshal(data, &beds); err == nil {
				s.derive(beds)
				return beds, nil
			}
			s.logger.Warn().Str("key", key).Msg("discarding undecodable board snapshot")
		case !errors.Is(err, cache.ErrMiss):
			s.logger.Warn().Err(err).Msg("read board cache")
			store = false
		}
	}

	beds, err := s.repo.ListBoard(ctx, dept)
	if err != nil {
		return nil, err
	}
	if beds == nil {
		beds = []*Bed{}
	}
	if store {
		if data, err := json.Marshal(beds); err == nil {
			if err := s.cache.Set(ctx, gen, key, data, s.cacheTTL); err != nil {
				s.logger.Warn().Err(err).Msg("write board cache")
			}
		}
	}
	s.derive(beds)
	return beds, nil
}

func (s *Service) derive(beds []*Bed) {
	now := s.clock()
	for _, b := range beds {
		if b.Patient != nil {
			b.Patient.Derive(now)
		}
	}
}

func (s *Service) GetBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	b, err := s.repo.GetBed(ctx, id)
	if err != nil {
		return nil, err
	}
	s.derive([]*Bed{b})
	return b, nil
}

// LockBed locks the bed row for the transaction in ctx and returns it.
func (s *Service) LockBed(ctx context.Context, id uuid.UUID) (*Bed, error) {
	return s.repo.LockBed(ctx, id)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Derive(s.clock())
	return p, nil
}

// CreateBed adds a custom bed to a department.
func (s *Service) CreateBed(ctx context.Context, req CreateBedRequest) (*Bed, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	b := &Bed{Name: req.Name, Department: req.Department, IsCustom: true}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.ListBoard(ctx, req.Department)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if strings.EqualFold(e.Name, req.Name) {
				return ErrBedNameTaken
			}
		}
		return s.repo.CreateBed(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	s.Notify(ctx, s.change(changefeed.TableBeds, changefeed.OpInsert, b.ID))
	return b, nil
}

// SeedBeds creates the named non-custom beds of dept that do not exist yet.
func (s *Service) SeedBeds(ctx context.Context, dept Department, names []string) (int, error) {
	if !dept.Valid() {
		return 0, apperr.Invalid("department", "is not a known department")
	}
	var changes []changefeed.Change
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for _, name := range names {
			b := &Bed{Name: strings.TrimSpace(name), Department: dept}
			if b.Name == "" {
				continue
			}
			created, err := s.repo.SeedBed(ctx, b)
			if err != nil {
				return err
			}
			if created {
				changes = append(changes, s.change(changefeed.TableBeds, changefeed.OpInsert, b.ID))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.Notify(ctx, changes...)
	return len(changes), nil
}

// DeleteBed removes a custom bed holding neither a patient nor a reservation.
func (s *Service) DeleteBed(ctx context.Context, id uuid.UUID) error {
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.LockBed(ctx, id)
		if err != nil {
			return err
		}
		if !b.IsCustom {
			return ErrBedNotCustom
		}
		if !b.Free() || b.Patient != nil || b.Reservation != nil {
			return ErrBedInUse
		}
		return s.repo.DeleteBed(ctx, id)
	})
	if err != nil {
		return err
	}
	s.Notify(ctx, s.change(changefeed.TableBeds, changefeed.OpDelete, id))
	return nil
}

// Admit places a new patient in a bed. A reservation on the bed is
// discarded.
func (s *Service) Admit(ctx context.Context, bedID uuid.UUID, req AdmitRequest) (*Patient, error) {
	now := s.clock()
	if err := req.Validate(now); err != nil {
		return nil, err
	}

	var p *Patient
	var changes []changefeed.Change
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.LockBed(ctx, bedID)
		if err != nil {
			return err
		}
		if err := checkVersion(b, req.Version); err != nil {
			return err
		}
		if b.IsOccupied || b.Patient != nil {
			return ErrBedOccupied
		}
		if b.Reservation != nil {
			if err := s.repo.DeleteReservation(ctx, b.ID); err != nil {
				return err
			}
			changes = append(changes, s.change(changefeed.TableReservations, changefeed.OpDelete, b.Reservation.ID))
		}

		p = &Patient{
			BedID:                 b.ID,
			Name:                  req.Name,
			Sex:                   req.Sex,
			BirthDate:             req.BirthDate,
			AdmissionAt:           req.AdmissionAt,
			Diagnosis:             req.Diagnosis,
			Specialty:             req.Specialty,
			ExpectedDischargeDate: req.ExpectedDischargeDate,
			OriginCity:            req.OriginCity,
			IsTFD:                 req.IsTFD,
			TFDType:               req.TFDType,
			Department:            b.Department,
			IsIsolation:           req.IsIsolation,
		}
		if err := s.repo.CreatePatient(ctx, p); err != nil {
			return err
		}
		if _, err := s.repo.SetBedState(ctx, b.ID, true, false, b.Version); err != nil {
			return err
		}
		changes = append(changes,
			s.change(changefeed.TablePatients, changefeed.OpInsert, p.ID),
			s.change(changefeed.TableBeds, changefeed.OpUpdate, b.ID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.Derive(now)
	s.Notify(ctx, changes...)
	return p, nil
}

// Discharge is the single-step discharge. It is refused while the patient
// has a pending discharge control.
func (s *Service) Discharge(ctx context.Context, bedID uuid.UUID, req DischargeRequest) (*DischargeRecord, error) {
	if err := req.Validate(s.clock()); err != nil {
		return nil, err
	}

	var rec *DischargeRecord
	var changes []changefeed.Change
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		// Lock before consulting the guard so a concurrent discharge
		// request for this bed's patient is ordered against us.
		if _, err := s.repo.LockBed(ctx, bedID); err != nil {
			return err
		}
		if s.guard != nil {
			pending, err := s.guard.HasPendingControl(ctx, req.PatientID)
			if err != nil {
				return err
			}
			if pending {
				return ErrPendingControl
			}
		}
		var err error
		rec, changes, err = s.DischargeInTx(ctx, bedID, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Notify(ctx, changes...)
	return rec, nil
}

// DischargeInTx copies the patient in bedID into discharge history, removes
// the patient and frees the bed. It joins the transaction in ctx and leaves
// publishing the returned changes to the caller.
func (s *Service) DischargeInTx(ctx context.Context, bedID uuid.UUID, req DischargeRequest) (*DischargeRecord, []changefeed.Change, error) {
	if err := req.Validate(s.clock()); err != nil {
		return nil, nil, err
	}

	var rec *DischargeRecord
	var changes []changefeed.Change
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.LockBed(ctx, bedID)
		if err != nil {
			return err
		}
		if err := checkVersion(b, req.Version); err != nil {
			return err
		}
		p := b.Patient
		if p == nil || p.ID != req.PatientID {
			return ErrPatientNotInBed
		}
		if req.DischargeAt.Before(p.AdmissionAt) {
			return apperr.Invalid("discharge_at", "is before admission")
		}

		rec = &DischargeRecord{
			PatientID:      p.ID,
			BedID:          b.ID,
			BedName:        b.Name,
			Name:           p.Name,
			Sex:            p.Sex,
			BirthDate:      p.BirthDate,
			AdmissionAt:    p.AdmissionAt,
			Diagnosis:      p.Diagnosis,
			Specialty:      p.Specialty,
			OriginCity:     p.OriginCity,
			IsTFD:          p.IsTFD,
			TFDType:        p.TFDType,
			Department:     p.Department,
			DischargeAt:    req.DischargeAt,
			DischargeType:  req.Type,
			ActualStayDays: ActualStayDays(p.AdmissionAt, req.DischargeAt),
			DischargedBy:   auth.ActorFromContext(ctx),
		}
		if err := s.repo.CreateDischarge(ctx, rec); err != nil {
			return err
		}
		if err := s.repo.DeletePatient(ctx, p.ID); err != nil {
			return err
		}
		if _, err := s.repo.SetBedState(ctx, b.ID, false, false, b.Version); err != nil {
			return err
		}
		changes = []changefeed.Change{
			s.change(changefeed.TableDischarges, changefeed.OpInsert, rec.ID),
			s.change(changefeed.TablePatients, changefeed.OpDelete, p.ID),
			s.change(changefeed.TableBeds, changefeed.OpUpdate, b.ID),
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return rec, changes, nil
}

// Transfer moves a patient to a free bed, possibly in another department.
func (s *Service) Transfer(ctx context.Context, fromBedID uuid.UUID, req TransferRequest) (*Transfer, error) {
	if err := req.Validate(fromBedID); err != nil {
		return nil, err
	}

	var t *Transfer
	var changes []changefeed.Change
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		from, to, err := s.lockPair(ctx, fromBedID, req.ToBedID)
		if err != nil {
			return err
		}
		p := from.Patient
		if p == nil || p.ID != req.PatientID {
			return ErrPatientNotInBed
		}
		if to.IsOccupied || to.Patient != nil {
			return ErrBedOccupied
		}
		if to.IsReserved || to.Reservation != nil {
			return ErrBedReserved
		}

		t = &Transfer{
			PatientID:      p.ID,
			FromBedID:      from.ID,
			ToBedID:        to.ID,
			FromDepartment: from.Department,
			ToDepartment:   to.Department,
			TransferredAt:  s.now().UTC(),
			TransferredBy:  auth.ActorFromContext(ctx),
		}
		if err := s.repo.CreateTransfer(ctx, t); err != nil {
			return err
		}

		p.BedID = to.ID
		p.Department = to.Department
		if err := s.repo.UpdatePatient(ctx, p); err != nil {
			return err
		}
		if _, err := s.repo.SetBedState(ctx, from.ID, false, false, from.Version); err != nil {
			return err
		}
		if _, err := s.repo.SetBedState(ctx, to.ID, true, false, to.Version); err != nil {
			return err
		}
		changes = []changefeed.Change{
			s.change(changefeed.TableTransfers, changefeed.OpInsert, t.ID),
			s.change(changefeed.TablePatients, changefeed.OpUpdate, p.ID),
			s.change(changefeed.TableBeds, changefeed.OpUpdate, from.ID),
			s.change(changefeed.TableBeds, changefeed.OpUpdate, to.ID),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Notify(ctx, changes...)
	return t, nil
}

// lockPair locks two beds in id order so concurrent transfers in opposite
// directions cannot deadlock.
func (s *Service) lockPair(ctx context.Context, a, b uuid.UUID) (*Bed, *Bed, error) {
	first, second := a, b
	if bytes.Compare(a[:], b[:]) > 0 {
		first, second = b, a
	}
	x, err := s.repo.LockBed(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	y, err := s.repo.LockBed(ctx, second)
	if err != nil {
		return nil, nil, err
	}
	if first == a {
		return x, y, nil
	}
	return y, x, nil
}

// Reserve holds a free bed for an incoming patient.
func (s *Service) Reserve(ctx context.Context, bedID uuid.UUID, req ReserveRequest) (*Reservation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var res *Reservation
	var changes []changefeed.Change
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.LockBed(ctx, bedID)
		if err != nil {
			return err
		}
		if err := checkVersion(b, req.Version); err != nil {
			return err
		}
		if b.IsOccupied || b.Patient != nil {
			return ErrBedOccupied
		}
		if b.IsReserved || b.Reservation != nil {
			return ErrBedReserved
		}
		res = &Reservation{
			BedID:        b.ID,
			PatientName:  req.PatientName,
			OriginClinic: req.OriginClinic,
			Diagnosis:    req.Diagnosis,
			Department:   b.Department,
		}
		if err := s.repo.CreateReservation(ctx, res); err != nil {
			return err
		}
		if _, err := s.repo.SetBedState(ctx, b.ID, false, true, b.Version); err != nil {
			return err
		}
		changes = []changefeed.Change{
			s.change(changefeed.TableReservations, changefeed.OpInsert, res.ID),
			s.change(changefeed.TableBeds, changefeed.OpUpdate, b.ID),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Notify(ctx, changes...)
	return res, nil
}

func (s *Service) CancelReservation(ctx context.Context, bedID uuid.UUID) error {
	var changes []changefeed.Change
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		b, err := s.repo.LockBed(ctx, bedID)
		if err != nil {
			return err
		}
		if b.Reservation == nil && !b.IsReserved {
			return ErrReservationNotFound
		}
		if b.Reservation != nil {
			if err := s.repo.DeleteReservation(ctx, b.ID); err != nil {
				return err
			}
			changes = append(changes, s.change(changefeed.TableReservations, changefeed.OpDelete, b.Reservation.ID))
		}
		if _, err := s.repo.SetBedState(ctx, b.ID, b.IsOccupied, false, b.Version); err != nil {
			return err
		}
		changes = append(changes, s.change(changefeed.TableBeds, changefeed.OpUpdate, b.ID))
		return nil
	})
	if err != nil {
		return err
	}
	s.Notify(ctx, changes...)
	return nil
}

// UpdatePatient edits an admitted patient's clinical fields and bumps the
// version of the bed holding them.
func (s *Service) UpdatePatient(ctx context.Context, patientID uuid.UUID, u PatientUpdate) (*Patient, error) {
	var p *Patient
	var changes []changefeed.Change
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetPatient(ctx, patientID)
		if err != nil {
			return err
		}
		b, err := s.repo.LockBed(ctx, current.BedID)
		if err != nil {
			return err
		}
		if b.Patient == nil || b.Patient.ID != patientID {
			return ErrStaleVersion
		}
		p = b.Patient
		if err := u.Apply(p); err != nil {
			return err
		}
		if err := s.repo.UpdatePatient(ctx, p); err != nil {
			return err
		}
		if _, err := s.repo.SetBedState(ctx, b.ID, b.IsOccupied, b.IsReserved, b.Version); err != nil {
			return err
		}
		changes = []changefeed.Change{
			s.change(changefeed.TablePatients, changefeed.OpUpdate, p.ID),
			s.change(changefeed.TableBeds, changefeed.OpUpdate, b.ID),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.Derive(s.clock())
	s.Notify(ctx, changes...)
	return p, nil
}

func (s *Service) ListDischarges(ctx context.Context, f DischargeFilter, page pagination.Params) ([]*DischargeRecord, int, error) {
	if f.Department != "" && !f.Department.Valid() {
		return nil, 0, apperr.Invalid("department", "is not a known department")
	}
	if f.Type != "" && !f.Type.Valid() {
		return nil, 0, apperr.Invalid("type", "is not a known discharge type")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, 0, apperr.Invalid("to", "is before from")
	}
	return s.repo.ListDischarges(ctx, f, page.Limit, page.Offset)
}

func (s *Service) ListTransfers(ctx context.Context, patientID uuid.UUID) ([]*Transfer, error) {
	return s.repo.ListTransfers(ctx, patientID)
}
