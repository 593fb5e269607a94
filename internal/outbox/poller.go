package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type Handler func(ctx context.Context, ev Event) error

// Poller drains the outbox on a fixed interval and dispatches events by type.
// A failing handler leaves the event unprocessed so the next sweep retries it,
// up to the attempt cap.
type Poller struct {
	repo      Repository
	handlers  map[string]Handler
	interval  time.Duration
	batchSize int
	log       zerolog.Logger
}

func NewPoller(repo Repository, interval time.Duration, log zerolog.Logger) *Poller {
	return &Poller{
		repo:      repo,
		handlers:  make(map[string]Handler),
		interval:  interval,
		batchSize: 50,
		log:       log.With().Str("component", "outbox-poller").Logger(),
	}
}

func (p *Poller) Handle(eventType string, h Handler) {
	p.handlers[eventType] = h
}

// Run blocks until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.drain(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("shutdown signal received, stopping poller")
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Poller) drain(ctx context.Context) {
	events, err := p.repo.FetchUnprocessed(ctx, p.batchSize)
	if err != nil {
		p.log.Error().Err(err).Msg("fetch unprocessed events")
		return
	}

	for _, ev := range events {
		p.dispatch(ctx, ev)
	}
}

func (p *Poller) dispatch(ctx context.Context, ev Event) {
	h, ok := p.handlers[ev.EventType]
	if !ok {
		p.log.Warn().Str("event_type", ev.EventType).Int64("event_id", ev.ID).Msg("no handler registered, skipping")
		if err := p.repo.MarkProcessed(ctx, ev.ID); err != nil {
			p.log.Error().Err(err).Int64("event_id", ev.ID).Msg("mark skipped event processed")
		}
		return
	}

	if err := h(ctx, ev); err != nil {
		p.log.Error().Err(err).Str("event_type", ev.EventType).Int64("event_id", ev.ID).Msg("handle event")
		if err := p.repo.MarkFailed(ctx, ev.ID); err != nil {
			p.log.Error().Err(err).Int64("event_id", ev.ID).Msg("mark event failed")
		}
		return
	}

	if err := p.repo.MarkProcessed(ctx, ev.ID); err != nil {
		p.log.Error().Err(err).Int64("event_id", ev.ID).Msg("mark event processed")
	}
}
