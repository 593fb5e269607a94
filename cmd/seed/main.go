package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinicbase/clinic-scheduling/internal/db"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

func main() {
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	bg := context.Background()
	if err := seedDoctors(bg, pool, 50); err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(bg, pool, 5000); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedProcedures(bg, pool); err != nil {
		log.Fatal().Err(err).Msg("seed procedures")
	}
	if err := seedResources(bg, pool, 20, 15, 30); err != nil {
		log.Fatal().Err(err).Msg("seed resources")
	}

	log.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding doctors")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}
	slotDurations := []int{15, 20, 30, 45, 60}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, active, schedule_version, created_at, updated_at)
			VALUES ($1, $2, $3, true, 1, now(), now())
		`, id, name, spec)
		if err != nil {
			return err
		}

		// Weekdays only. Everyone takes a lunch break at 13:00.
		slotDur := slotDurations[gofakeit.Number(0, len(slotDurations)-1)]
		startMin := gofakeit.Number(8, 10) * 60
		endMin := gofakeit.Number(16, 18) * 60
		for weekday := 1; weekday <= 5; weekday++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO weekly_schedules
					(doctor_id, weekday, start_minutes, end_minutes, break_start_minutes, break_end_minutes, slot_duration_minutes)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, id, weekday, startMin, endMin, 13*60, 14*60, slotDur)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Msg("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("done", end).Int("total", count).Msg("patients seeded")
	}

	return nil
}

func seedProcedures(ctx context.Context, pool *pgxpool.Pool) error {
	procedures := []struct {
		name    string
		minutes int
	}{
		{"Consultation", 30},
		{"Follow-up", 15},
		{"Annual physical", 60},
		{"Vaccination", 15},
		{"ECG", 30},
		{"Skin biopsy", 45},
		{"Eye exam", 30},
		{"Hearing test", 30},
		{"X-ray review", 20},
		{"Physiotherapy session", 60},
	}

	log.Info().Int("count", len(procedures)).Msg("seeding procedures")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, p := range procedures {
		_, err := tx.Exec(ctx, `
			INSERT INTO procedures (id, name, duration_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, uuid.New(), p.name, p.minutes)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedResources(ctx context.Context, pool *pgxpool.Pool, rooms, equipment, assistants int) error {
	log.Info().
		Int("rooms", rooms).
		Int("equipment", equipment).
		Int("assistants", assistants).
		Msg("seeding resources")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < rooms; i++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, uuid.New(), gofakeit.LetterN(1)+gofakeit.DigitN(2))
		if err != nil {
			return err
		}
	}

	devices := []string{"Ultrasound", "ECG machine", "X-ray", "Dermatoscope", "Audiometer"}
	for i := 0; i < equipment; i++ {
		name := devices[gofakeit.Number(0, len(devices)-1)] + " #" + gofakeit.DigitN(2)
		_, err := tx.Exec(ctx, `
			INSERT INTO equipment (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, uuid.New(), name)
		if err != nil {
			return err
		}
	}

	for i := 0; i < assistants; i++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO assistants (id, name, created_at, updated_at)
			VALUES ($1, $2, now(), now())
		`, uuid.New(), gofakeit.Name())
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
