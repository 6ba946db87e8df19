package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-appointment-engine/internal/config"
	"github.com/hackgods/hospital-appointment-engine/internal/db"
	"github.com/hackgods/hospital-appointment-engine/internal/logging"
)

type SimConfig struct {
	APIBaseURL      string        `envconfig:"SIM_API_BASE_URL" default:"http://localhost:8080"`
	Duration        time.Duration `envconfig:"SIM_DURATION" default:"30s"`
	Workers         int           `envconfig:"SIM_WORKERS" default:"10"`
	BookingRatio    float64       `envconfig:"SIM_BOOKING_RATIO" default:"0.5"`
	TransitionRatio float64       `envconfig:"SIM_TRANSITION_RATIO" default:"0.2"`
	ReadRatio       float64       `envconfig:"SIM_READ_RATIO" default:"0.3"`
	PersonLimit     int           `envconfig:"SIM_PERSON_LIMIT" default:"4000"`
	DoctorLimit     int           `envconfig:"SIM_DOCTOR_LIMIT" default:"50"`
	BurstSize       int           `envconfig:"SIM_BURST_SIZE" default:"25"` // concurrent bookings of one slot before the mixed run
}

type slot struct {
	DoctorID uuid.UUID
	Date     string
	Time     string
}

type DataPool struct {
	Persons []uuid.UUID
	Doctors []uuid.UUID
	Slots   []slot

	mu           sync.RWMutex
	appointments []uuid.UUID
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Rejected  int64
	Error     int64
	latencies []time.Duration
	mu        sync.Mutex
}

// Record classifies a response: 2xx success, 409 conflict, other 4xx rejected.
func (om *OperationMetrics) Record(latency time.Duration, status int, err error) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case err != nil:
		atomic.AddInt64(&om.Error, 1)
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case status >= 400 && status < 500:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.latencies = append(om.latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Percentiles() (p50, p95, p99 time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	at := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return at(50), at(95), at(99)
}

type Metrics struct {
	Burst        OperationMetrics
	Booking      OperationMetrics
	Transition   OperationMetrics
	Read         OperationMetrics
	Availability OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	actor   uuid.UUID
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	base, err := config.Load()
	if err != nil {
		logging.New("info", "prod").Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(base.LogLevel, base.Env).With().Str("service", "simulate").Logger()

	var cfg SimConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid simulation config")
	}
	if err := normalize(&cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid simulation config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, base.PostgresDSN, db.PoolOptions{MaxConns: 4, AppName: "simulate"})
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		actor:  uuid.New(),
		logger: logger,
	}

	sim.pool, err = sim.loadDataPool(ctx, pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}
	logger.Info().
		Int("persons", len(sim.pool.Persons)).
		Int("doctors", len(sim.pool.Doctors)).
		Int("slots", len(sim.pool.Slots)).
		Msg("data pool loaded")

	sim.Burst(context.Background())
	sim.Run()
	sim.PrintReport()
}

func normalize(cfg *SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	total := cfg.BookingRatio + cfg.TransitionRatio + cfg.ReadRatio
	if total <= 0 {
		return fmt.Errorf("operation ratios must add up to more than zero")
	}
	cfg.BookingRatio /= total
	cfg.TransitionRatio /= total
	cfg.ReadRatio /= total
	return nil
}

func (s *Simulator) loadDataPool(ctx context.Context, pool *pgxpool.Pool) (*DataPool, error) {
	dp := &DataPool{}

	rows, err := pool.Query(ctx, `
		SELECT p.id
		FROM persons p
		LEFT JOIN staff s ON s.person_id = p.id
		WHERE s.id IS NULL
		LIMIT $1
	`, s.config.PersonLimit)
	if err != nil {
		return nil, fmt.Errorf("load persons: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dp.Persons = append(dp.Persons, id)
	}
	rows.Close()

	rows, err = pool.Query(ctx, `
		SELECT id FROM staff WHERE role = 'doctor' AND is_active LIMIT $1
	`, s.config.DoctorLimit)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		dp.Doctors = append(dp.Doctors, id)
	}
	rows.Close()

	if len(dp.Persons) == 0 {
		return nil, fmt.Errorf("no persons loaded, run cmd/seed first")
	}
	if len(dp.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors loaded, run cmd/seed first")
	}

	for _, doctor := range dp.Doctors {
		slots, err := s.fetchSlots(ctx, doctor)
		if err != nil {
			s.logger.Warn().Err(err).Str("doctor_id", doctor.String()).Msg("skipping doctor")
			continue
		}
		dp.Slots = append(dp.Slots, slots...)
	}
	if len(dp.Slots) == 0 {
		return nil, fmt.Errorf("no free slots available")
	}
	return dp, nil
}

func (s *Simulator) fetchSlots(ctx context.Context, doctorID uuid.UUID) ([]slot, error) {
	from := time.Now().AddDate(0, 0, 1)
	url := fmt.Sprintf("%s/doctors/%s/availability?start_date=%s&end_date=%s",
		s.config.APIBaseURL, doctorID, from.Format("2006-01-02"), from.AddDate(0, 0, 14).Format("2006-01-02"))

	status, body, err := s.call(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("availability returned %d", status)
	}

	var resp struct {
		Slots []struct {
			Date string `json:"date"`
			Time string `json:"time"`
		} `json:"slots"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	out := make([]slot, 0, len(resp.Slots))
	for _, sl := range resp.Slots {
		out = append(out, slot{DoctorID: doctorID, Date: sl.Date, Time: sl.Time})
	}
	return out, nil
}

// Burst books a single slot from many goroutines at once. Exactly one
// request should win; every other one should see 409.
func (s *Simulator) Burst(ctx context.Context) {
	if s.config.BurstSize <= 0 {
		return
	}
	target := s.pool.Slots[0]
	s.logger.Info().
		Int("requests", s.config.BurstSize).
		Str("doctor_id", target.DoctorID.String()).
		Str("date", target.Date).
		Str("time", target.Time).
		Msg("starting same-slot burst")

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < s.config.BurstSize; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			s.book(ctx, &s.metrics.Burst, target, s.pool.Persons[i%len(s.pool.Persons)])
		}(i)
	}
	close(start)
	wg.Wait()

	won := atomic.LoadInt64(&s.metrics.Burst.Success)
	if won != 1 {
		s.logger.Error().Int64("successes", won).Msg("same-slot burst did not produce exactly one booking")
		return
	}
	s.logger.Info().Int64("conflicts", atomic.LoadInt64(&s.metrics.Burst.Conflict)).Msg("same-slot burst held")
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			target := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
			person := s.pool.Persons[rng.Intn(len(s.pool.Persons))]
			s.book(ctx, &s.metrics.Booking, target, person)
		case r < s.config.BookingRatio+s.config.TransitionRatio:
			s.transition(ctx, rng)
		default:
			s.read(ctx, rng)
		}
	}
}

func (s *Simulator) book(ctx context.Context, om *OperationMetrics, target slot, person uuid.UUID) {
	body, _ := json.Marshal(map[string]any{
		"patient_id":       person,
		"doctor_id":        target.DoctorID,
		"appointment_date": target.Date,
		"start_time":       target.Time,
		"reason":           "simulated visit",
	})

	start := time.Now()
	status, resp, err := s.call(ctx, http.MethodPost, s.config.APIBaseURL+"/appointments", body)
	om.Record(time.Since(start), status, err)

	if err == nil && status == http.StatusCreated {
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(resp, &created) == nil && created.ID != uuid.Nil {
			s.pool.AddAppointment(created.ID)
		}
	}
}

func (s *Simulator) transition(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	actions := []string{"check-in", "start", "complete", "cancel"}
	url := fmt.Sprintf("%s/appointments/%s/%s", s.config.APIBaseURL, id, actions[rng.Intn(len(actions))])

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodPost, url, nil)
	s.metrics.Transition.Record(time.Since(start), status, err)
}

func (s *Simulator) read(ctx context.Context, rng *rand.Rand) {
	var (
		url string
		om  = &s.metrics.Read
	)
	switch rng.Intn(3) {
	case 0:
		id, ok := s.pool.RandomAppointment(rng)
		if !ok {
			return
		}
		url = fmt.Sprintf("%s/appointments/%s", s.config.APIBaseURL, id)
	case 1:
		// persons become patients on their first booking, so misses are expected
		url = fmt.Sprintf("%s/appointments?patient_id=%s&limit=20", s.config.APIBaseURL, s.pool.Persons[rng.Intn(len(s.pool.Persons))])
	default:
		doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
		url = fmt.Sprintf("%s/doctors/%s/availability", s.config.APIBaseURL, doctor)
		om = &s.metrics.Availability
	}

	start := time.Now()
	status, _, err := s.call(ctx, http.MethodGet, url, nil)
	om.Record(time.Since(start), status, err)
}

func (s *Simulator) call(ctx context.Context, method, url string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", s.actor.String())
	req.Header.Set("X-Actor-Kind", "staff")

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Same-slot burst", &s.metrics.Burst)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Transitions", &s.metrics.Transition)
	printOperationReport("Reads", &s.metrics.Read)
	printOperationReport("Availability", &s.metrics.Availability)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	rejected := atomic.LoadInt64(&om.Rejected)
	failed := atomic.LoadInt64(&om.Error)
	p50, p95, p99 := om.Percentiles()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, pct(rejected))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: p50=%s p95=%s p99=%s\n",
		p50.Round(time.Millisecond), p95.Round(time.Millisecond), p99.Round(time.Millisecond))
	fmt.Println()
}
