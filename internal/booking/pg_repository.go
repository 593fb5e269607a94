package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicbase/clinic-scheduling/internal/outbox"
	"github.com/clinicbase/clinic-scheduling/internal/slot"
)

const appointmentColumns = `id, doctor_id, patient_id, procedure_id, room_id, equipment_id, assistant_id,
	start_at, end_at, status, reminder_sent_at, created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.ProcedureID,
		&a.RoomID,
		&a.EquipmentID,
		&a.AssistantID,
		&a.StartAt,
		&a.EndAt,
		&a.Status,
		&a.ReminderSentAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var p Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Email, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) ListBookedIntervals(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]slot.BookedInterval, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	rows, err := r.pool.Query(ctx, `
		SELECT id, start_at, end_at
		FROM appointments
		WHERE doctor_id = $1
		  AND status <> 'cancelled'
		  AND start_at < $3 AND end_at > $2
		ORDER BY start_at
	`, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []slot.BookedInterval
	for rows.Next() {
		var b slot.BookedInterval
		if err := rows.Scan(&b.ID, &b.Start, &b.End); err != nil {
			return nil, err
		}
		result = append(result, b)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListDueReminders(ctx context.Context, from, to time.Time) ([]ReminderItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, d.name, p.name, p.email, a.start_at, a.end_at
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		JOIN patients p ON p.id = a.patient_id
		WHERE a.status IN ('planned', 'confirmed')
		  AND a.reminder_sent_at IS NULL
		  AND a.start_at >= $1 AND a.start_at < $2
		ORDER BY a.start_at
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ReminderItem
	for rows.Next() {
		var item ReminderItem
		if err := rows.Scan(&item.AppointmentID, &item.DoctorName, &item.PatientName, &item.PatientEmail, &item.StartAt, &item.EndAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent_at = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, at)
	return err
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

// TxFrom wraps an already-open pgx transaction, so other repositories (the
// waitlist claim path) can reuse the booking queries inside their own
// transaction.
func TxFrom(tx pgx.Tx) Tx {
	return &pgTxRepository{tx: tx}
}

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (r *pgTxRepository) LockOverlapping(ctx context.Context, d Draft, excludeID *uuid.UUID) ([]Appointment, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status <> 'cancelled'
		  AND start_at < $2 AND end_at > $1
		  AND (doctor_id = $3
		       OR ($4::uuid IS NOT NULL AND room_id = $4)
		       OR ($5::uuid IS NOT NULL AND equipment_id = $5)
		       OR ($6::uuid IS NOT NULL AND assistant_id = $6))
		  AND ($7::uuid IS NULL OR id <> $7)
		ORDER BY start_at
		FOR UPDATE
	`, d.StartAt, d.EndAt, d.DoctorID, d.RoomID, d.EquipmentID, d.AssistantID, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *pgTxRepository) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, doctor_id, patient_id, procedure_id, room_id, equipment_id, assistant_id,
			 start_at, end_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.DoctorID, a.PatientID, a.ProcedureID, a.RoomID, a.EquipmentID, a.AssistantID,
		a.StartAt, a.EndAt, a.Status)

	inserted, err := scanAppointment(row)
	if err != nil {
		return err
	}
	*a = *inserted
	return nil
}

func (r *pgTxRepository) UpdateInterval(ctx context.Context, id uuid.UUID, startAt, endAt time.Time) (*Appointment, error) {
	row := r.tx.QueryRow(ctx, `
		UPDATE appointments
		SET start_at = $2,
		    end_at = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, startAt, endAt)
	return scanAppointment(row)
}

func (r *pgTxRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+appointmentColumns+`
	`, id, from, to)
	return scanAppointment(row)
}

func (r *pgTxRepository) AppendEvent(ctx context.Context, eventType string, payload any) error {
	return outbox.Append(ctx, r.tx, eventType, payload)
}
