package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func startServer(t *testing.T) *EmbeddedServer {
	t.Helper()
	es, err := NewEmbeddedServer(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(es.Shutdown)
	return es
}

func receive(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func TestBus_PublishSubscribe_Core(t *testing.T) {
	es := startServer(t)
	bus := es.Bus()

	got := make(chan Change, 4)
	sub, err := bus.Subscribe(func(c Change) { got <- c })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if err := bus.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	at := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	err = bus.Publish(context.Background(), Change{Table: TableBeds, Op: OpUpdate, ID: "bed-1", At: at})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	c := receive(t, got)
	if c.Table != TableBeds || c.Op != OpUpdate || c.ID != "bed-1" || !c.At.Equal(at) {
		t.Errorf("unexpected change %+v", c)
	}
}

func TestBus_PublishThroughStream(t *testing.T) {
	es := startServer(t)
	bus := es.Bus()
	ctx := context.Background()

	if err := bus.EnsureStream(ctx); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}

	got := make(chan Change, 4)
	sub, err := bus.Subscribe(func(c Change) { got <- c })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	_ = bus.Flush()

	err = bus.Publish(ctx,
		Change{Table: TablePatients, Op: OpInsert, ID: "p-1"},
		Change{Table: TableBeds, Op: OpUpdate, ID: "bed-1"},
	)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	first, second := receive(t, got), receive(t, got)
	if first.Table != TablePatients || second.Table != TableBeds {
		t.Errorf("unexpected order: %s then %s", first.Table, second.Table)
	}
	if first.At.IsZero() {
		t.Error("expected publish to stamp the change time")
	}
}

func TestBus_RejectsInvalidTable(t *testing.T) {
	es := startServer(t)
	bus := es.Bus()

	err := bus.Publish(context.Background(), Change{Table: "beds.>", Op: OpInsert})
	if err == nil {
		t.Fatal("expected invalid table to be rejected")
	}
}

func TestBus_Check(t *testing.T) {
	es := startServer(t)
	if err := es.Bus().Check(context.Background()); err != nil {
		t.Errorf("expected healthy bus, got %v", err)
	}
}

func TestRecorder(t *testing.T) {
	r := &Recorder{}
	_ = r.Publish(context.Background(),
		Change{Table: TableBeds},
		Change{Table: TablePatients},
		Change{Table: TableBeds},
	)
	tables := r.Tables()
	if len(tables) != 2 || tables[0] != TableBeds || tables[1] != TablePatients {
		t.Errorf("unexpected tables %v", tables)
	}
	r.Reset()
	if len(r.Changes) != 0 {
		t.Error("expected reset to clear changes")
	}
}

func TestChange_Subject(t *testing.T) {
	c := Change{Table: TableAmbulance}
	if c.Subject() != "bedboard.changes.ambulance_requests" {
		t.Errorf("unexpected subject %q", c.Subject())
	}
}
