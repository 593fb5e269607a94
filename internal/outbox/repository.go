package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// maxAttempts stops a poison event from being retried forever.
const maxAttempts = 5

type Repository interface {
	FetchUnprocessed(ctx context.Context, limit int) ([]Event, error)
	MarkProcessed(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) FetchUnprocessed(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, payload, attempts, created_at, processed_at
		FROM outbox_events
		WHERE processed_at IS NULL
		  AND attempts < $1
		ORDER BY id
		LIMIT $2
	`, maxAttempts, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var ev Event
		var processedAt *time.Time
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Payload, &ev.Attempts, &ev.CreatedAt, &processedAt); err != nil {
			return nil, err
		}
		ev.ProcessedAt = processedAt
		result = append(result, ev)
	}
	return result, rows.Err()
}

func (r *PgRepository) MarkProcessed(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET processed_at = now()
		WHERE id = $1
	`, id)
	return err
}

func (r *PgRepository) MarkFailed(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox_events
		SET attempts = attempts + 1
		WHERE id = $1
	`, id)
	return err
}
