package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func syncRecordID(p *PositionSync) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordID
}

// fakeClock drives PositionSync's debounce window without real sleeps.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestSync(b Backend, clock *fakeClock) *PositionSync {
	p := NewPositionSync(b, testLogger(), nil, 5*time.Second, 0.05)
	if clock != nil {
		p.now = clock.now
	}
	return p
}

func TestPositionSync_debounce_and_create_then_update(t *testing.T) {
	// Scenario: 5% tick skipped, 6% tick creates, tick inside the window is
	// dropped, tick after the window updates using the created record id.
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := &fakeBackend{createRecordID: 77}
	p := newTestSync(b, clock)
	p.Rebind(7, movieRef(42), 5)

	p.Tick(ctx, 10, 200) // exactly 5%: not meaningful yet
	time.Sleep(20 * time.Millisecond)
	if _, _, _, create, _ := b.counts(); create != 0 {
		t.Fatalf("5%% tick must not write, got %d creates", create)
	}

	clock.advance(1 * time.Second)
	p.Tick(ctx, 12, 200) // 6%: first write, a create
	waitFor(t, func() bool {
		_, _, _, create, _ := b.counts()
		return create == 1 && syncRecordID(p) == 77
	})
	b.mu.Lock()
	got := b.lastCreate
	b.mu.Unlock()
	if got.viewerID != 7 || got.ref != movieRef(42) || got.sourceID != 5 || got.pos != 12 {
		t.Errorf("unexpected create payload: %+v", got)
	}

	clock.advance(2 * time.Second)
	p.Tick(ctx, 14, 200) // inside the 5s window: dropped, not queued
	time.Sleep(20 * time.Millisecond)
	if _, _, _, create, update := b.counts(); create != 1 || update != 0 {
		t.Fatalf("tick inside window must be dropped, got create=%d update=%d", create, update)
	}

	clock.advance(3 * time.Second) // 5s after the create attempt
	p.Tick(ctx, 20, 200)
	waitFor(t, func() bool {
		_, _, _, _, update := b.counts()
		return update == 1
	})
	b.mu.Lock()
	upd := b.updateCalls[0]
	b.mu.Unlock()
	if upd.recordID != 77 || upd.pos != 20 {
		t.Errorf("update should address record 77 with position 20, got %+v", upd)
	}
	if _, _, _, create, _ := b.counts(); create != 1 {
		t.Errorf("only one create per binding, got %d", create)
	}
}

func TestPositionSync_skips_unknown_duration(t *testing.T) {
	b := &fakeBackend{createRecordID: 1}
	p := newTestSync(b, nil)
	p.Rebind(7, movieRef(42), 5)

	p.Tick(context.Background(), 30, 0)
	p.Tick(context.Background(), 30, -1)
	time.Sleep(20 * time.Millisecond)
	if _, _, _, create, _ := b.counts(); create != 0 {
		t.Errorf("ticks without a known duration must be ignored, got %d creates", create)
	}
}

func TestPositionSync_never_two_creates_in_flight(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	gate := make(chan struct{})
	b := &fakeBackend{createRecordID: 77, createGate: gate}
	p := newTestSync(b, clock)
	p.Rebind(7, movieRef(42), 5)

	p.Tick(ctx, 20, 200) // create blocks on the gate
	waitFor(t, func() bool {
		_, _, _, create, _ := b.counts()
		return create == 1
	})

	clock.advance(10 * time.Second)
	p.Tick(ctx, 40, 200) // window elapsed, but the create is still in flight
	time.Sleep(20 * time.Millisecond)
	if _, _, _, create, update := b.counts(); create != 1 || update != 0 {
		t.Fatalf("no second write while the create is in flight, got create=%d update=%d", create, update)
	}

	close(gate)
	waitFor(t, func() bool { return syncRecordID(p) == 77 })

	clock.advance(10 * time.Second)
	p.Tick(ctx, 60, 200)
	waitFor(t, func() bool {
		_, _, _, _, update := b.counts()
		return update == 1
	})
}

func TestPositionSync_create_failure_retries_create(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := &fakeBackend{createErr: errors.New("boom")}
	p := newTestSync(b, clock)
	p.Rebind(7, movieRef(42), 5)

	p.Tick(ctx, 20, 200)
	waitFor(t, func() bool {
		_, _, _, create, _ := b.counts()
		return create == 1
	})
	if syncRecordID(p) != 0 {
		t.Fatal("failed create must not set a record id")
	}

	// The value for that tick is lost; the next allowed tick tries a fresh create.
	b.mu.Lock()
	b.createErr = nil
	b.createRecordID = 5
	b.mu.Unlock()
	clock.advance(6 * time.Second)
	p.Tick(ctx, 40, 200)
	waitFor(t, func() bool { return syncRecordID(p) == 5 })
	if _, _, _, create, update := b.counts(); create != 2 || update != 0 {
		t.Errorf("expected a second create and no update, got create=%d update=%d", create, update)
	}
}

func TestPositionSync_anonymous_viewer_never_writes(t *testing.T) {
	b := &fakeBackend{createRecordID: 1}
	p := newTestSync(b, nil)
	p.Rebind(0, movieRef(42), 5)

	p.Tick(context.Background(), 100, 200)
	time.Sleep(20 * time.Millisecond)
	if _, _, _, create, _ := b.counts(); create != 0 {
		t.Errorf("anonymous playback must not be persisted, got %d creates", create)
	}
}

func TestPositionSync_close_discards_in_flight_result(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	b := &fakeBackend{createRecordID: 77, createGate: gate}
	p := newTestSync(b, nil)
	p.Rebind(7, movieRef(42), 5)

	p.Tick(ctx, 20, 200)
	waitFor(t, func() bool {
		_, _, _, create, _ := b.counts()
		return create == 1
	})

	p.Close()
	close(gate)
	time.Sleep(20 * time.Millisecond)
	if syncRecordID(p) != 0 {
		t.Error("result of a write completing after Close must be discarded")
	}

	p.Tick(ctx, 60, 200)
	time.Sleep(20 * time.Millisecond)
	if _, _, _, create, _ := b.counts(); create != 1 {
		t.Errorf("closed sync must not write, got %d creates", create)
	}
}

func TestPositionSync_rebind_restarts_create_semantics(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	b := &fakeBackend{createRecordID: 77}
	p := newTestSync(b, clock)
	p.Rebind(7, movieRef(42), 5)

	p.Tick(ctx, 20, 200)
	waitFor(t, func() bool { return syncRecordID(p) == 77 })

	// New content: the record id belongs to the old reference and is forgotten.
	b.mu.Lock()
	b.createRecordID = 78
	b.mu.Unlock()
	p.Rebind(7, episodeRef(9), 6)
	p.Tick(ctx, 20, 200) // window reset on rebind: write allowed immediately
	waitFor(t, func() bool { return syncRecordID(p) == 78 })
	if _, _, _, create, update := b.counts(); create != 2 || update != 0 {
		t.Errorf("rebind must restart with a create, got create=%d update=%d", create, update)
	}
}
