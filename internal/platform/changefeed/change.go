// Package changefeed carries table-level change notifications between server
// instances over NATS. Subscribers invalidate cached read models and fan the
// events out to websocket clients; nothing downstream applies deltas.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	SubjectPrefix = "bedboard.changes."
	// SubjectAll matches every table.
	SubjectAll = SubjectPrefix + ">"
	StreamName = "BEDBOARD_CHANGES"
)

// Table names published on the feed.
const (
	TableBeds              = "beds"
	TablePatients          = "patients"
	TableReservations      = "bed_reservations"
	TableDischarges        = "patient_discharges"
	TableTransfers         = "patient_transfers"
	TableDischargeControls = "discharge_controls"
	TableAmbulance         = "ambulance_requests"
	TableInvestigations    = "alert_investigations"
	TableUsers             = "users"
)

type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

type Change struct {
	Table string    `json:"table"`
	Op    Op        `json:"op"`
	ID    string    `json:"id"`
	At    time.Time `json:"at"`
}

func (c Change) Subject() string {
	return SubjectPrefix + c.Table
}

// Publisher is what mutating services depend on. Publishing happens after
// commit, so implementations must not be called inside a transaction.
type Publisher interface {
	Publish(ctx context.Context, changes ...Change) error
}

func encode(c Change) ([]byte, error) {
	if c.Table == "" || strings.ContainsAny(c.Table, ".*> ") {
		return nil, fmt.Errorf("invalid change table %q", c.Table)
	}
	return json.Marshal(c)
}

func decode(data []byte) (Change, error) {
	var c Change
	if err := json.Unmarshal(data, &c); err != nil {
		return Change{}, fmt.Errorf("decode change: %w", err)
	}
	return c, nil
}

// Recorder is an in-memory Publisher used where no broker is wired.
type Recorder struct {
	Changes []Change
}

func (r *Recorder) Publish(_ context.Context, changes ...Change) error {
	r.Changes = append(r.Changes, changes...)
	return nil
}

// Tables returns the distinct tables recorded, in publish order.
func (r *Recorder) Tables() []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range r.Changes {
		if !seen[c.Table] {
			seen[c.Table] = true
			out = append(out, c.Table)
		}
	}
	return out
}

func (r *Recorder) Reset() { r.Changes = nil }

// Discard drops every change. One-shot commands (migrate, seed, user
// create) use it when no broker is configured.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, ...Change) error { return nil }
