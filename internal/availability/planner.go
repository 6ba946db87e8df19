package availability

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/hospital-appointment-engine/internal/apperr"
	"github.com/hackgods/hospital-appointment-engine/internal/clock"
	"github.com/hackgods/hospital-appointment-engine/internal/metrics"
)

const maxRangeDays = 366

type Doctor struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	DepartmentID uuid.UUID `json:"department_id"`
}

// Source reads the schedule data owned by staff management.
type Source interface {
	// Doctor returns nil, nil when no active doctor has the id.
	Doctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	DepartmentExists(ctx context.Context, id uuid.UUID) (bool, error)
	// ActiveDoctors returns the department's active doctors ordered by name.
	ActiveDoctors(ctx context.Context, departmentID uuid.UUID) ([]Doctor, error)
	Templates(ctx context.Context, doctorID uuid.UUID) ([]Template, error)
	ApprovedLeaves(ctx context.Context, doctorID uuid.UUID, from, to clock.Date) ([]Leave, error)
	BookedStarts(ctx context.Context, doctorID uuid.UUID, from, to clock.Date) (Booked, error)
}

type Options struct {
	Granularity   time.Duration
	HorizonMonths int
	Location      *time.Location
}

type Planner struct {
	src     Source
	opts    Options
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

func NewPlanner(src Source, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Planner {
	if opts.Granularity <= 0 {
		opts.Granularity = DefaultGranularity
	}
	if opts.HorizonMonths <= 0 {
		opts.HorizonMonths = 3
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Planner{
		src:     src,
		opts:    opts,
		metrics: m,
		logger:  logger.With().Str("component", "availability").Logger(),
		now:     time.Now,
	}
}

// WithClock overrides the time source used for the default range.
func (p *Planner) WithClock(now func() time.Time) *Planner {
	if now != nil {
		p.now = now
	}
	return p
}

// Range resolves optional bounds to a concrete inclusive date range.
func (p *Planner) Range(from, to *clock.Date) (clock.Date, clock.Date, error) {
	start := clock.DateOf(p.now().In(p.opts.Location))
	if from != nil && !from.IsZero() {
		start = *from
	}
	end := start.AddMonths(p.opts.HorizonMonths)
	if to != nil && !to.IsZero() {
		end = *to
	}

	if end.Before(start) {
		return clock.Date{}, clock.Date{}, apperr.Validation("end_date %s is before start_date %s", end, start)
	}
	if start.DaysUntil(end) > maxRangeDays {
		return clock.Date{}, clock.Date{}, apperr.Validation("date range longer than one year")
	}
	return start, end, nil
}

func (p *Planner) DoctorAvailability(ctx context.Context, doctorID uuid.UUID, from, to *clock.Date) ([]Slot, error) {
	start, end, err := p.Range(from, to)
	if err != nil {
		return nil, err
	}

	doc, err := p.src.Doctor(ctx, doctorID)
	if err != nil {
		return nil, apperr.Boundary(p.logger, "doctor availability", err)
	}
	if doc == nil {
		return nil, apperr.NotFound("doctor")
	}

	slots, err := p.doctorSlots(ctx, doctorID, start, end)
	if err != nil {
		return nil, apperr.Boundary(p.logger, "doctor availability", err)
	}
	p.metrics.ObserveAvailability("doctor", len(slots))
	return slots, nil
}

type DoctorSlots struct {
	Doctor Doctor `json:"doctor"`
	Slots  []Slot `json:"slots"`
}

// DepartmentAvailability computes every active doctor's slots concurrently.
// Results keep the doctors' name order and every slot carries its doctor id.
func (p *Planner) DepartmentAvailability(ctx context.Context, departmentID uuid.UUID, from, to *clock.Date) ([]DoctorSlots, error) {
	start, end, err := p.Range(from, to)
	if err != nil {
		return nil, err
	}

	ok, err := p.src.DepartmentExists(ctx, departmentID)
	if err != nil {
		return nil, apperr.Boundary(p.logger, "department availability", err)
	}
	if !ok {
		return nil, apperr.NotFound("department")
	}

	doctors, err := p.src.ActiveDoctors(ctx, departmentID)
	if err != nil {
		return nil, apperr.Boundary(p.logger, "department availability", err)
	}

	out := make([]DoctorSlots, len(doctors))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, doc := range doctors {
		g.Go(func() error {
			slots, err := p.doctorSlots(gctx, doc.ID, start, end)
			if err != nil {
				return err
			}
			id := doc.ID
			for j := range slots {
				slots[j].DoctorID = &id
			}
			out[i] = DoctorSlots{Doctor: doc, Slots: slots}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Boundary(p.logger, "department availability", err)
	}

	total := 0
	for _, d := range out {
		total += len(d.Slots)
	}
	p.metrics.ObserveAvailability("department", total)
	return out, nil
}

func (p *Planner) doctorSlots(ctx context.Context, doctorID uuid.UUID, from, to clock.Date) ([]Slot, error) {
	templates, err := p.src.Templates(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if len(templates) == 0 {
		return []Slot{}, nil
	}

	leaves, err := p.src.ApprovedLeaves(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	booked, err := p.src.BookedStarts(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}

	slots := Derive(from, to, templates, leaves, booked, p.opts.Granularity)
	if slots == nil {
		slots = []Slot{}
	}
	return slots, nil
}

// Flatten concatenates department results into one slot list.
func Flatten(byDoctor []DoctorSlots) []Slot {
	var out []Slot
	for _, d := range byDoctor {
		out = append(out, d.Slots...)
	}
	return out
}
