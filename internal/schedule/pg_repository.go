package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicbase/clinic-scheduling/internal/outbox"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, active, schedule_version, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Specialty, &d.Active, &d.ScheduleVersion, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *PgRepository) ListActiveDoctorIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM doctors WHERE active ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PgRepository) GetWeekly(ctx context.Context, doctorID uuid.UUID) (Weekly, int, error) {
	var version int
	err := r.pool.QueryRow(ctx, `
		SELECT schedule_version FROM doctors WHERE id = $1
	`, doctorID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, ErrDoctorNotFound
		}
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT weekday, start_minutes, end_minutes, break_start_minutes, break_end_minutes, slot_duration_minutes
		FROM weekly_schedules
		WHERE doctor_id = $1
		ORDER BY weekday
	`, doctorID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	weekly := make(Weekly)
	for rows.Next() {
		var weekday int
		var iv WorkingInterval
		var breakStart, breakEnd *int
		if err := rows.Scan(&weekday, &iv.Start, &iv.End, &breakStart, &breakEnd, &iv.SlotDuration); err != nil {
			return nil, 0, err
		}
		if breakStart != nil {
			bs := TimeOfDay(*breakStart)
			be := TimeOfDay(*breakEnd)
			iv.BreakStart = &bs
			iv.BreakEnd = &be
		}
		weekly[time.Weekday(weekday)] = iv
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return weekly, version, nil
}

func (r *PgRepository) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgTx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer pgTx.Rollback(ctx)

	if err := fn(ctx, &pgTxRepository{tx: pgTx}); err != nil {
		return err
	}

	return pgTx.Commit(ctx)
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) ReplaceWeekly(ctx context.Context, doctorID uuid.UUID, w Weekly) (int, error) {
	var version int
	err := r.tx.QueryRow(ctx, `
		UPDATE doctors
		SET schedule_version = schedule_version + 1,
		    updated_at = now()
		WHERE id = $1
		RETURNING schedule_version
	`, doctorID).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrDoctorNotFound
		}
		return 0, err
	}

	if _, err := r.tx.Exec(ctx, `
		DELETE FROM weekly_schedules WHERE doctor_id = $1
	`, doctorID); err != nil {
		return 0, err
	}

	for weekday, iv := range w {
		var breakStart, breakEnd *int
		if iv.BreakStart != nil {
			bs := int(*iv.BreakStart)
			be := int(*iv.BreakEnd)
			breakStart = &bs
			breakEnd = &be
		}
		_, err := r.tx.Exec(ctx, `
			INSERT INTO weekly_schedules
				(doctor_id, weekday, start_minutes, end_minutes, break_start_minutes, break_end_minutes, slot_duration_minutes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, doctorID, int(weekday), int(iv.Start), int(iv.End), breakStart, breakEnd, iv.SlotDuration)
		if err != nil {
			return 0, err
		}
	}

	return version, nil
}

func (r *pgTxRepository) ListFutureAppointments(ctx context.Context, doctorID uuid.UUID, from time.Time) ([]ApptWindow, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, start_at, end_at
		FROM appointments
		WHERE doctor_id = $1
		  AND status <> 'cancelled'
		  AND start_at >= $2
		ORDER BY start_at
		FOR UPDATE
	`, doctorID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ApptWindow
	for rows.Next() {
		var w ApptWindow
		if err := rows.Scan(&w.ID, &w.StartAt, &w.EndAt); err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func (r *pgTxRepository) AppendEvent(ctx context.Context, eventType string, payload any) error {
	return outbox.Append(ctx, r.tx, eventType, payload)
}
