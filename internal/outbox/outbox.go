package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Event is one row of the transactional outbox. State changes append their
// event in the same transaction; workers drain unprocessed rows afterwards,
// so notification I/O never runs under a database lock.
type Event struct {
	ID          int64
	EventType   string
	Payload     []byte
	Attempts    int
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// Execer is satisfied by pgx pools and transactions alike.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Append writes an event. Call it with the transaction that carries the state
// change so the two commit together.
func Append(ctx context.Context, db Execer, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	_, err = db.Exec(ctx, `
		INSERT INTO outbox_events (event_type, payload, created_at)
		VALUES ($1, $2, now())
	`, eventType, data)
	if err != nil {
		return fmt.Errorf("append outbox event %s: %w", eventType, err)
	}
	return nil
}
