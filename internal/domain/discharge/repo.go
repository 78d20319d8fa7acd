package discharge

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create stores a pending control; ErrAlreadyPending when the patient
	// has one.
	Create(ctx context.Context, c *Control) error
	Get(ctx context.Context, id uuid.UUID) (*Control, error)
	Lock(ctx context.Context, id uuid.UUID) (*Control, error)
	// MarkCompleted and MarkCancelled only move pending controls and return
	// ErrNotPending otherwise.
	MarkCompleted(ctx context.Context, id uuid.UUID, at time.Time, justification *string) error
	MarkCancelled(ctx context.Context, id uuid.UUID, at time.Time) error
	HasPending(ctx context.Context, patientID uuid.UUID) (bool, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Control, int, error)
}
