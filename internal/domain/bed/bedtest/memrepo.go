// Package bedtest provides an in-memory bed.Repository for tests of the bed
// package and of the packages built on it.
package bedtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/bedboard/internal/domain/bed"
	"github.com/ehr/bedboard/internal/platform/apperr"
)

// Repo mirrors the PostgreSQL schema constraints: unique bed names per
// department, one patient and one reservation per bed, and never occupied
// and reserved at once.
type Repo struct {
	mu           sync.Mutex
	beds         map[uuid.UUID]*bed.Bed
	patients     map[uuid.UUID]*bed.Patient
	reservations map[uuid.UUID]*bed.Reservation // by bed id
	discharges   []*bed.DischargeRecord
	transfers    []*bed.Transfer

	// FailOn makes the named method return the error once.
	FailOn map[string]error
	// Now stamps created_at and updated_at.
	Now func() time.Time
}

func NewRepo() *Repo {
	return &Repo{
		beds:         make(map[uuid.UUID]*bed.Bed),
		patients:     make(map[uuid.UUID]*bed.Patient),
		reservations: make(map[uuid.UUID]*bed.Reservation),
		FailOn:       make(map[string]error),
		Now:          time.Now,
	}
}

var _ bed.Repository = (*Repo)(nil)

func (r *Repo) fail(method string) error {
	if err, ok := r.FailOn[method]; ok {
		delete(r.FailOn, method)
		return err
	}
	return nil
}

// Snapshot implements db.Snapshotter.
func (r *Repo) Snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	beds := make(map[uuid.UUID]*bed.Bed, len(r.beds))
	for k, v := range r.beds {
		c := *v
		beds[k] = &c
	}
	patients := make(map[uuid.UUID]*bed.Patient, len(r.patients))
	for k, v := range r.patients {
		patients[k] = copyPatient(v)
	}
	reservations := make(map[uuid.UUID]*bed.Reservation, len(r.reservations))
	for k, v := range r.reservations {
		c := *v
		reservations[k] = &c
	}
	discharges := append([]*bed.DischargeRecord(nil), r.discharges...)
	transfers := append([]*bed.Transfer(nil), r.transfers...)

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.beds = beds
		r.patients = patients
		r.reservations = reservations
		r.discharges = discharges
		r.transfers = transfers
	}
}

func copyPatient(p *bed.Patient) *bed.Patient {
	c := *p
	if p.Specialty != nil {
		s := *p.Specialty
		c.Specialty = &s
	}
	if p.TFDType != nil {
		s := *p.TFDType
		c.TFDType = &s
	}
	if p.ExpectedDischargeDate != nil {
		d := *p.ExpectedDischargeDate
		c.ExpectedDischargeDate = &d
	}
	return &c
}

// view assembles a detached copy of a bed with its patient or reservation.
func (r *Repo) view(b *bed.Bed) *bed.Bed {
	c := *b
	c.Patient = nil
	c.Reservation = nil
	for _, p := range r.patients {
		if p.BedID == b.ID {
			c.Patient = copyPatient(p)
			break
		}
	}
	if res, ok := r.reservations[b.ID]; ok {
		rc := *res
		c.Reservation = &rc
	}
	return &c
}

func (r *Repo) ListBoard(_ context.Context, dept bed.Department) ([]*bed.Bed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("ListBoard"); err != nil {
		return nil, err
	}
	var out []*bed.Bed
	for _, b := range r.beds {
		if dept == "" || b.Department == dept {
			out = append(out, r.view(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Department != out[j].Department {
			return out[i].Department < out[j].Department
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *Repo) GetBed(_ context.Context, id uuid.UUID) (*bed.Bed, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.beds[id]
	if !ok {
		return nil, bed.ErrBedNotFound
	}
	return r.view(b), nil
}

func (r *Repo) LockBed(ctx context.Context, id uuid.UUID) (*bed.Bed, error) {
	r.mu.Lock()
	err := r.fail("LockBed")
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.GetBed(ctx, id)
}

func (r *Repo) insertBed(b *bed.Bed) error {
	for _, e := range r.beds {
		if e.Department == b.Department && e.Name == b.Name {
			return apperr.Conflict("duplicate bed %s/%s", b.Department, b.Name)
		}
	}
	b.ID = uuid.New()
	b.Version = 1
	b.CreatedAt = r.Now()
	b.UpdatedAt = b.CreatedAt
	c := *b
	c.Patient, c.Reservation = nil, nil
	r.beds[b.ID] = &c
	return nil
}

func (r *Repo) CreateBed(_ context.Context, b *bed.Bed) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CreateBed"); err != nil {
		return err
	}
	return r.insertBed(b)
}

func (r *Repo) SeedBed(_ context.Context, b *bed.Bed) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.beds {
		if e.Department == b.Department && e.Name == b.Name {
			return false, nil
		}
	}
	return true, r.insertBed(b)
}

func (r *Repo) DeleteBed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.beds[id]; !ok {
		return bed.ErrBedNotFound
	}
	delete(r.beds, id)
	return nil
}

func (r *Repo) SetBedState(_ context.Context, id uuid.UUID, occupied, reserved bool, version int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("SetBedState"); err != nil {
		return 0, err
	}
	b, ok := r.beds[id]
	if !ok || b.Version != version {
		return 0, bed.ErrStaleVersion
	}
	if occupied && reserved {
		return 0, apperr.Conflict("beds_occupied_xor_reserved")
	}
	b.IsOccupied = occupied
	b.IsReserved = reserved
	b.Version++
	b.UpdatedAt = r.Now()
	return b.Version, nil
}

func (r *Repo) CreatePatient(_ context.Context, p *bed.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CreatePatient"); err != nil {
		return err
	}
	if _, ok := r.beds[p.BedID]; !ok {
		return apperr.NotFound("referenced record")
	}
	for _, e := range r.patients {
		if e.BedID == p.BedID {
			return apperr.Conflict("patients_bed_id_key")
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = r.Now()
	p.UpdatedAt = p.CreatedAt
	r.patients[p.ID] = copyPatient(p)
	return nil
}

func (r *Repo) GetPatient(_ context.Context, id uuid.UUID) (*bed.Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, bed.ErrPatientNotFound
	}
	return copyPatient(p), nil
}

func (r *Repo) UpdatePatient(_ context.Context, p *bed.Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("UpdatePatient"); err != nil {
		return err
	}
	if _, ok := r.patients[p.ID]; !ok {
		return bed.ErrPatientNotFound
	}
	for _, e := range r.patients {
		if e.ID != p.ID && e.BedID == p.BedID {
			return apperr.Conflict("patients_bed_id_key")
		}
	}
	p.UpdatedAt = r.Now()
	r.patients[p.ID] = copyPatient(p)
	return nil
}

func (r *Repo) DeletePatient(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("DeletePatient"); err != nil {
		return err
	}
	if _, ok := r.patients[id]; !ok {
		return bed.ErrPatientNotFound
	}
	delete(r.patients, id)
	return nil
}

func (r *Repo) CreateReservation(_ context.Context, res *bed.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reservations[res.BedID]; ok {
		return apperr.Conflict("bed_reservations_bed_id_key")
	}
	res.ID = uuid.New()
	res.CreatedAt = r.Now()
	c := *res
	r.reservations[res.BedID] = &c
	return nil
}

func (r *Repo) DeleteReservation(_ context.Context, bedID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reservations[bedID]; !ok {
		return bed.ErrReservationNotFound
	}
	delete(r.reservations, bedID)
	return nil
}

func (r *Repo) CreateDischarge(_ context.Context, d *bed.DischargeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CreateDischarge"); err != nil {
		return err
	}
	d.ID = uuid.New()
	d.CreatedAt = r.Now()
	c := *d
	r.discharges = append(r.discharges, &c)
	return nil
}

func (r *Repo) ListDischarges(_ context.Context, f bed.DischargeFilter, limit, offset int) ([]*bed.DischargeRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []*bed.DischargeRecord
	for _, d := range r.discharges {
		if f.Department != "" && d.Department != f.Department {
			continue
		}
		if f.Type != "" && d.DischargeType != f.Type {
			continue
		}
		if !f.From.IsZero() && d.DischargeAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !d.DischargeAt.Before(f.To) {
			continue
		}
		c := *d
		matched = append(matched, &c)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].DischargeAt.After(matched[j].DischargeAt)
	})
	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// Discharges returns every stored discharge record in insertion order.
func (r *Repo) Discharges() []*bed.DischargeRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*bed.DischargeRecord(nil), r.discharges...)
}

func (r *Repo) CreateTransfer(_ context.Context, t *bed.Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail("CreateTransfer"); err != nil {
		return err
	}
	t.ID = uuid.New()
	c := *t
	r.transfers = append(r.transfers, &c)
	return nil
}

func (r *Repo) ListTransfers(_ context.Context, patientID uuid.UUID) ([]*bed.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*bed.Transfer
	for _, t := range r.transfers {
		if t.PatientID == patientID {
			c := *t
			out = append(out, &c)
		}
	}
	return out, nil
}

// AddBed stores a bed directly, bypassing the service, and returns its id.
func (r *Repo) AddBed(dept bed.Department, name string, custom bool) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := &bed.Bed{Department: dept, Name: name, IsCustom: custom}
	if err := r.insertBed(b); err != nil {
		panic(err)
	}
	return b.ID
}
