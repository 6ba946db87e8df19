// Package bootstrap connects the backing stores and assembles the services
// shared by the binaries under cmd/.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-appointment-engine/internal/appointment"
	"github.com/hackgods/hospital-appointment-engine/internal/availability"
	"github.com/hackgods/hospital-appointment-engine/internal/config"
	"github.com/hackgods/hospital-appointment-engine/internal/db"
	"github.com/hackgods/hospital-appointment-engine/internal/metrics"
	"github.com/hackgods/hospital-appointment-engine/internal/notify"
	"github.com/hackgods/hospital-appointment-engine/internal/pricing"
	redisclient "github.com/hackgods/hospital-appointment-engine/internal/redis"
	"github.com/hackgods/hospital-appointment-engine/internal/sequence"
)

type Infra struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	Tx       *db.TxManager
}

// Connect dials Postgres and Redis, failing fast when either is unreachable.
// service labels the Postgres sessions.
func Connect(ctx context.Context, cfg config.Config, service string, logger zerolog.Logger) (*Infra, error) {
	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		AppName:  service,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	logger.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to Redis")

	return &Infra{Postgres: pool, Redis: rdb, Tx: db.NewTxManager(pool)}, nil
}

func (i *Infra) Close(logger zerolog.Logger) {
	if err := i.Redis.Close(); err != nil {
		logger.Warn().Err(err).Msg("error closing redis")
	}
	i.Postgres.Close()
}

type Services struct {
	Appointments *appointment.Service
	Availability *availability.Planner
	Fees         *pricing.Calculator
}

func NewServices(infra *Infra, cfg config.Config, m *metrics.Metrics, logger zerolog.Logger) Services {
	fees := pricing.NewCalculator(pricing.NewPgRepository(infra.Tx))

	appointments := appointment.NewService(appointment.Deps{
		Repo:      appointment.NewPgRepository(infra.Tx),
		Tx:        infra.Tx,
		Locker:    redisclient.NewRedisLocker(infra.Redis, cfg.LockTTL.Std()),
		Pricing:   fees,
		Sequences: sequence.NewGenerator(infra.Tx, m),
		Notifier:  notify.NewRedisPublisher(infra.Redis, cfg.NotifyChannel),
		Metrics:   m,
		Logger:    logger,
	})

	planner := availability.NewPlanner(availability.NewPgSource(infra.Tx), availability.Options{
		Granularity:   cfg.SlotGranularity.Std(),
		HorizonMonths: cfg.AvailabilityHorizonMonths,
	}, m, logger)

	return Services{Appointments: appointments, Availability: planner, Fees: fees}
}
