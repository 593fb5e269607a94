package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicbase/clinic-scheduling/internal/booking"
)

const entryColumns = `id, patient_id, doctor_id, procedure_id, window_start, window_end, priority, status,
	claim_token, offered_doctor_id, offered_start, offered_end, appointment_id, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID,
		&e.PatientID,
		&e.DoctorID,
		&e.ProcedureID,
		&e.WindowStart,
		&e.WindowEnd,
		&e.Priority,
		&e.Status,
		&e.ClaimToken,
		&e.OfferedDoctorID,
		&e.OfferedStart,
		&e.OfferedEnd,
		&e.AppointmentID,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *PgRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO waitlist_entries
			(id, patient_id, doctor_id, procedure_id, window_start, window_end, priority, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', now(), now())
		RETURNING `+entryColumns+`
	`, e.ID, e.PatientID, e.DoctorID, e.ProcedureID, e.WindowStart, e.WindowEnd, e.Priority)

	created, err := scanEntry(row)
	if err != nil {
		return err
	}
	*e = *created
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE id = $1
	`, id)
	return scanEntry(row)
}

func (r *PgRepository) Cancel(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = 'cancelled',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+entryColumns+`
	`, id)
	e, err := scanEntry(row)
	if errors.Is(err, ErrEntryNotFound) {
		// distinguish missing from already-resolved
		if _, getErr := r.GetByID(ctx, id); getErr == nil {
			return nil, ErrClaimExpired
		}
		return nil, ErrEntryNotFound
	}
	return e, err
}

func (r *PgRepository) ListMatching(ctx context.Context, doctorID uuid.UUID, procedureID *uuid.UUID, start, end time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT w.id, w.patient_id, w.doctor_id, w.procedure_id, w.window_start, w.window_end, w.priority, w.status,
		       w.claim_token, w.offered_doctor_id, w.offered_start, w.offered_end, w.appointment_id, w.created_at, w.updated_at,
		       p.name, p.email
		FROM waitlist_entries w
		JOIN patients p ON p.id = w.patient_id
		WHERE w.status = 'pending'
		  AND (w.doctor_id IS NULL OR w.doctor_id = $1)
		  AND (w.procedure_id IS NULL OR w.procedure_id = $2)
		  AND w.window_start < $4 AND $3 < w.window_end
		ORDER BY w.priority ASC, w.created_at ASC
	`, doctorID, procedureID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID, &e.PatientID, &e.DoctorID, &e.ProcedureID, &e.WindowStart, &e.WindowEnd, &e.Priority, &e.Status,
			&e.ClaimToken, &e.OfferedDoctorID, &e.OfferedStart, &e.OfferedEnd, &e.AppointmentID, &e.CreatedAt, &e.UpdatedAt,
			&e.PatientName, &e.PatientEmail,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetByToken(ctx context.Context, token uuid.UUID) (*Entry, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE claim_token = $1
	`, token)
	e, err := scanEntry(row)
	if errors.Is(err, ErrEntryNotFound) {
		// Tokens are unguessable; a miss means the offer was superseded or
		// never issued, which is the same benign outcome for the claimer.
		return nil, ErrClaimExpired
	}
	return e, err
}

func (r *PgRepository) StampOffer(ctx context.Context, id uuid.UUID, token uuid.UUID, doctorID uuid.UUID, start, end time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE waitlist_entries
		SET claim_token = $2,
		    offered_doctor_id = $3,
		    offered_start = $4,
		    offered_end = $5,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
	`, id, token, doctorID, start, end)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (r *PgRepository) InClaimTx(ctx context.Context, token uuid.UUID, fn func(ctx context.Context, e *Entry, btx booking.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row lock on the entry serializes racing claims for the same token.
	row := tx.QueryRow(ctx, `
		SELECT `+entryColumns+`
		FROM waitlist_entries
		WHERE claim_token = $1
		FOR UPDATE
	`, token)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return ErrClaimExpired
		}
		return err
	}

	if err := fn(ctx, entry, booking.TxFrom(tx)); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE waitlist_entries
		SET status = $2,
		    appointment_id = $3,
		    updated_at = now()
		WHERE id = $1
	`, entry.ID, entry.Status, entry.AppointmentID); err != nil {
		return fmt.Errorf("persist claimed entry: %w", err)
	}

	return tx.Commit(ctx)
}
