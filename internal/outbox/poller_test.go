package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeOutboxRepo struct {
	events []Event

	processed []int64
	failed    []int64
}

func (r *fakeOutboxRepo) FetchUnprocessed(_ context.Context, limit int) ([]Event, error) {
	if len(r.events) > limit {
		return r.events[:limit], nil
	}
	return r.events, nil
}

func (r *fakeOutboxRepo) MarkProcessed(_ context.Context, id int64) error {
	r.processed = append(r.processed, id)
	return nil
}

func (r *fakeOutboxRepo) MarkFailed(_ context.Context, id int64) error {
	r.failed = append(r.failed, id)
	return nil
}

func TestPollerDispatchesByType(t *testing.T) {
	repo := &fakeOutboxRepo{events: []Event{
		{ID: 1, EventType: "a.happened"},
		{ID: 2, EventType: "b.happened"},
	}}

	var got []int64
	p := NewPoller(repo, time.Minute, zerolog.Nop())
	p.Handle("a.happened", func(_ context.Context, ev Event) error {
		got = append(got, ev.ID)
		return nil
	})
	p.Handle("b.happened", func(_ context.Context, ev Event) error {
		got = append(got, ev.ID)
		return nil
	})

	p.drain(context.Background())

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("handled = %v, want [1 2] in order", got)
	}
	if len(repo.processed) != 2 {
		t.Errorf("processed = %v, want both events", repo.processed)
	}
}

func TestPollerMarksFailedForRetry(t *testing.T) {
	repo := &fakeOutboxRepo{events: []Event{{ID: 7, EventType: "a.happened"}}}

	p := NewPoller(repo, time.Minute, zerolog.Nop())
	p.Handle("a.happened", func(context.Context, Event) error {
		return errors.New("downstream unavailable")
	})

	p.drain(context.Background())

	if len(repo.failed) != 1 || repo.failed[0] != 7 {
		t.Errorf("failed = %v, want [7]", repo.failed)
	}
	if len(repo.processed) != 0 {
		t.Errorf("processed = %v, a failed event must stay unprocessed", repo.processed)
	}
}

func TestPollerSkipsUnknownTypes(t *testing.T) {
	repo := &fakeOutboxRepo{events: []Event{{ID: 9, EventType: "nobody.cares"}}}

	p := NewPoller(repo, time.Minute, zerolog.Nop())
	p.drain(context.Background())

	// Skipped events are marked processed so they do not clog the queue.
	if len(repo.processed) != 1 || repo.processed[0] != 9 {
		t.Errorf("processed = %v, want [9]", repo.processed)
	}
	if len(repo.failed) != 0 {
		t.Errorf("failed = %v, want none", repo.failed)
	}
}
