package db

import (
	"context"
	"sync"
)

// Snapshotter is implemented by in-memory repositories so MemTxRunner can
// roll them back. Snapshot captures the current state and returns a
// function restoring it.
type Snapshotter interface {
	Snapshot() (restore func())
}

type memTxKey struct{}

// MemTxRunner is a TxRunner for in-memory repositories. It serializes
// transactions and restores every participant when fn fails, giving the
// same all-or-nothing outcome as a database transaction.
type MemTxRunner struct {
	mu           sync.Mutex
	participants []Snapshotter
	// FailCommit, when set, makes the next commit fail after fn succeeded.
	FailCommit error
}

func NewMemTxRunner(participants ...Snapshotter) *MemTxRunner {
	return &MemTxRunner{participants: participants}
}

// Add registers more participants.
func (r *MemTxRunner) Add(p ...Snapshotter) {
	r.participants = append(r.participants, p...)
}

func (r *MemTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	restores := make([]func(), 0, len(r.participants))
	for _, p := range r.participants {
		restores = append(restores, p.Snapshot())
	}
	rollback := func() {
		for _, restore := range restores {
			restore()
		}
	}

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		rollback()
		return err
	}
	if err := r.FailCommit; err != nil {
		r.FailCommit = nil
		rollback()
		return Classify(err)
	}
	return nil
}
