package bed

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the bed board store. Lock methods must run inside a
// transaction started by db.TxRunner; the lock is held until it ends.
type Repository interface {
	ListBoard(ctx context.Context, dept Department) ([]*Bed, error)
	GetBed(ctx context.Context, id uuid.UUID) (*Bed, error)
	LockBed(ctx context.Context, id uuid.UUID) (*Bed, error)
	CreateBed(ctx context.Context, b *Bed) error
	// SeedBed inserts b unless a bed with the same department and name
	// exists, reporting whether it was created.
	SeedBed(ctx context.Context, b *Bed) (bool, error)
	DeleteBed(ctx context.Context, id uuid.UUID) error
	// SetBedState writes the occupancy flags when the stored version equals
	// version and returns the bumped version.
	SetBedState(ctx context.Context, id uuid.UUID, occupied, reserved bool, version int) (int, error)

	CreatePatient(ctx context.Context, p *Patient) error
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	UpdatePatient(ctx context.Context, p *Patient) error
	DeletePatient(ctx context.Context, id uuid.UUID) error

	CreateReservation(ctx context.Context, r *Reservation) error
	DeleteReservation(ctx context.Context, bedID uuid.UUID) error

	CreateDischarge(ctx context.Context, d *DischargeRecord) error
	ListDischarges(ctx context.Context, f DischargeFilter, limit, offset int) ([]*DischargeRecord, int, error)

	CreateTransfer(ctx context.Context, t *Transfer) error
	ListTransfers(ctx context.Context, patientID uuid.UUID) ([]*Transfer, error)
}
