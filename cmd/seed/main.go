package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-appointment-engine/internal/config"
	"github.com/hackgods/hospital-appointment-engine/internal/db"
	"github.com/hackgods/hospital-appointment-engine/internal/logging"
)

type department struct {
	Name string
	Code string
	Base string
	Ext  string
}

var departments = []department{
	{"General Medicine", "GEN", "400.00", "150.00"},
	{"Cardiology", "CARD", "900.00", "300.00"},
	{"Dermatology", "DERM", "600.00", "200.00"},
	{"Orthopedics", "ORTH", "750.00", "250.00"},
	{"Pediatrics", "PED", "450.00", "150.00"},
	{"Neurology", "NEUR", "950.00", "350.00"},
}

var appointmentTypes = []string{"consultation", "follow_up", "procedure", "telemedicine"}

const (
	doctorsPerDepartment = 8
	personCount          = 5000
)

type seeder struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "prod").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "seed").Logger()
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		AppName:  "seed",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())
	s := &seeder{pool: pool, logger: logger}

	deptIDs, err := s.seedDepartments(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("seed departments")
	}
	if err := s.seedDoctors(ctx, deptIDs); err != nil {
		logger.Fatal().Err(err).Msg("seed doctors")
	}
	if err := s.seedPersons(ctx, personCount); err != nil {
		logger.Fatal().Err(err).Msg("seed persons")
	}

	logger.Info().Msg("seed complete")
}

// seedDepartments inserts departments with their default pricing for every
// appointment type.
func (s *seeder) seedDepartments(ctx context.Context) (map[string]uuid.UUID, error) {
	ids := make(map[string]uuid.UUID, len(departments))

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, d := range departments {
			id := uuid.New()
			_, err := tx.Exec(ctx, `
				INSERT INTO departments (id, name, code) VALUES ($1, $2, $3)
			`, id, d.Name, d.Code)
			if err != nil {
				return fmt.Errorf("insert department %s: %w", d.Code, err)
			}
			ids[d.Code] = id

			for _, typ := range appointmentTypes {
				_, err := tx.Exec(ctx, `
					INSERT INTO appointment_pricing (id, department_id, appointment_type, base_fee, extension_fee_per_30min)
					VALUES ($1, $2, $3, $4::numeric, $5::numeric)
				`, uuid.New(), id, typ, d.Base, d.Ext)
				if err != nil {
					return fmt.Errorf("insert pricing %s/%s: %w", d.Code, typ, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("departments", len(ids)).Msg("departments seeded")
	return ids, nil
}

// seedDoctors creates doctors with weekly schedules. Some get a
// doctor-specific consultation price and some get leave in the next month.
func (s *seeder) seedDoctors(ctx context.Context, deptIDs map[string]uuid.UUID) error {
	count := 0
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, d := range departments {
			deptID := deptIDs[d.Code]
			for i := 0; i < doctorsPerDepartment; i++ {
				doctorID, err := insertDoctor(ctx, tx, deptID, d.Name)
				if err != nil {
					return err
				}
				if err := insertSchedule(ctx, tx, doctorID); err != nil {
					return err
				}

				if gofakeit.Number(1, 4) == 1 {
					fee := fmt.Sprintf("%d.00", gofakeit.Number(500, 1500))
					_, err := tx.Exec(ctx, `
						INSERT INTO appointment_pricing (id, department_id, doctor_id, appointment_type, base_fee, extension_fee_per_30min)
						VALUES ($1, $2, $3, 'consultation', $4::numeric, $5::numeric)
					`, uuid.New(), deptID, doctorID, fee, d.Ext)
					if err != nil {
						return fmt.Errorf("insert doctor pricing: %w", err)
					}
				}

				if gofakeit.Number(1, 5) == 1 {
					if err := insertLeave(ctx, tx, doctorID); err != nil {
						return err
					}
				}
				count++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info().Int("doctors", count).Msg("doctors seeded")
	return nil
}

func insertDoctor(ctx context.Context, tx pgx.Tx, deptID uuid.UUID, specialization string) (uuid.UUID, error) {
	personID := uuid.New()
	_, err := tx.Exec(ctx, `
		INSERT INTO persons (id, first_name, last_name, email, phone)
		VALUES ($1, $2, $3, $4, $5)
	`, personID, gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Email(), gofakeit.Phone())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert doctor person: %w", err)
	}

	doctorID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO staff (id, person_id, department_id, role, specialization)
		VALUES ($1, $2, $3, 'doctor', $4)
	`, doctorID, personID, deptID, specialization)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert doctor: %w", err)
	}
	return doctorID, nil
}

// insertSchedule gives a doctor a weekday morning block and, on some days,
// an afternoon block.
func insertSchedule(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID) error {
	for day := 1; day <= 5; day++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO doctor_schedules (id, doctor_id, day_of_week, start_time, end_time)
			VALUES ($1, $2, $3, '09:00', '12:30')
		`, uuid.New(), doctorID, day)
		if err != nil {
			return fmt.Errorf("insert schedule: %w", err)
		}

		if gofakeit.Bool() {
			_, err := tx.Exec(ctx, `
				INSERT INTO doctor_schedules (id, doctor_id, day_of_week, start_time, end_time)
				VALUES ($1, $2, $3, '14:00', '17:00')
			`, uuid.New(), doctorID, day)
			if err != nil {
				return fmt.Errorf("insert schedule: %w", err)
			}
		}
	}

	if gofakeit.Number(1, 3) == 1 {
		_, err := tx.Exec(ctx, `
			INSERT INTO doctor_schedules (id, doctor_id, day_of_week, start_time, end_time)
			VALUES ($1, $2, 6, '10:00', '13:00')
		`, uuid.New(), doctorID)
		if err != nil {
			return fmt.Errorf("insert schedule: %w", err)
		}
	}
	return nil
}

func insertLeave(ctx context.Context, tx pgx.Tx, doctorID uuid.UUID) error {
	start := time.Now().AddDate(0, 0, gofakeit.Number(3, 30))
	end := start.AddDate(0, 0, gofakeit.Number(0, 4))
	status := gofakeit.RandomString([]string{"pending", "approved", "approved", "rejected"})

	_, err := tx.Exec(ctx, `
		INSERT INTO doctor_leaves (id, doctor_id, start_date, end_date, status, reason)
		VALUES ($1, $2, $3::date, $4::date, $5, $6)
	`, uuid.New(), doctorID, start.Format("2006-01-02"), end.Format("2006-01-02"), status, gofakeit.RandomString([]string{"conference", "annual leave", "training", "personal"}))
	if err != nil {
		return fmt.Errorf("insert leave: %w", err)
	}
	return nil
}

// seedPersons inserts people who are not yet patients. They become
// patients with an MRN on their first booking.
func (s *seeder) seedPersons(ctx context.Context, count int) error {
	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		batch := &pgx.Batch{}
		for i := offset; i < end; i++ {
			dob := gofakeit.DateRange(time.Now().AddDate(-90, 0, 0), time.Now().AddDate(-1, 0, 0))
			batch.Queue(`
				INSERT INTO persons (id, first_name, last_name, email, phone, date_of_birth)
				VALUES ($1, $2, $3, $4, $5, $6::date)
			`, uuid.New(), gofakeit.FirstName(), gofakeit.LastName(), gofakeit.Email(), gofakeit.Phone(), dob.Format("2006-01-02"))
		}

		if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert persons: %w", err)
		}
		s.logger.Info().Int("seeded", end).Int("total", count).Msg("persons seeded")
	}
	return nil
}
