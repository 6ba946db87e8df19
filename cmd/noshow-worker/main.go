package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-appointment-engine/internal/appointment"
	"github.com/hackgods/hospital-appointment-engine/internal/bootstrap"
	"github.com/hackgods/hospital-appointment-engine/internal/clock"
	"github.com/hackgods/hospital-appointment-engine/internal/config"
	"github.com/hackgods/hospital-appointment-engine/internal/logging"
	"github.com/hackgods/hospital-appointment-engine/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "prod").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.LogLevel, cfg.Env).With().Str("service", "noshow-worker").Logger()
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval.Std()).Msg("noshow-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := bootstrap.Connect(rootCtx, cfg, "noshow-worker", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("connection error")
	}
	defer infra.Close(logger)

	// metrics are exported by api-server only
	var m *metrics.Metrics
	svc := bootstrap.NewServices(infra, cfg, m, logger).Appointments

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping noshow worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

// runOnce marks appointments from previous days that were never checked in.
func runOnce(ctx context.Context, svc *appointment.Service, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	marked, err := svc.SweepNoShows(runCtx, clock.DateOf(start))
	if err != nil {
		logger.Error().Err(err).Msg("no-show run error")
		return
	}
	logger.Info().Int("marked", marked).Dur("took", time.Since(start)).Msg("no-show run complete")
}
