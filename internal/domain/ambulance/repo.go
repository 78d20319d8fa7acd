package ambulance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *Request) error
	Get(ctx context.Context, id uuid.UUID) (*Request, error)
	// Transition moves a pending request to status at time at. It fails
	// with ErrNotPending when the request is already terminal.
	Transition(ctx context.Context, id uuid.UUID, status Status, at time.Time) (*Request, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Request, int, error)
	// CreatedBetween returns requests with from <= created_at < to.
	CreatedBetween(ctx context.Context, from, to time.Time) ([]*Request, error)
}
