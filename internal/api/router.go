package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-appointment-engine/internal/appointment"
	"github.com/hackgods/hospital-appointment-engine/internal/availability"
	"github.com/hackgods/hospital-appointment-engine/internal/clock"
	"github.com/hackgods/hospital-appointment-engine/internal/metrics"
	"github.com/hackgods/hospital-appointment-engine/internal/pricing"
)

type AppointmentService interface {
	Book(ctx context.Context, req appointment.BookingRequest) (*appointment.AppointmentDetail, error)
	Get(ctx context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]appointment.Appointment, error)
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date clock.Date) ([]appointment.Appointment, error)
	History(ctx context.Context, id uuid.UUID) ([]appointment.History, error)

	CheckIn(ctx context.Context, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error)
	StartConsultation(ctx context.Context, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error)
	Extend(ctx context.Context, id uuid.UUID, actor appointment.Actor, additionalMinutes int) (*appointment.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, actor appointment.Actor, reason string) (*appointment.Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, actor appointment.Actor, req appointment.RescheduleRequest) (*appointment.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, actor appointment.Actor, notes string) (*appointment.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error)
	RecordPayment(ctx context.Context, id uuid.UUID, actor appointment.Actor, req appointment.PaymentRequest) (*appointment.Payment, *appointment.Appointment, error)
}

type AvailabilityService interface {
	DoctorAvailability(ctx context.Context, doctorID uuid.UUID, from, to *clock.Date) ([]availability.Slot, error)
	DepartmentAvailability(ctx context.Context, departmentID uuid.UUID, from, to *clock.Date) ([]availability.DoctorSlots, error)
}

type FeeService interface {
	CalculateFee(ctx context.Context, doctorID, departmentID uuid.UUID, appointmentType string, durationMinutes int) (pricing.Breakdown, error)
}

type RouterConfig struct {
	Appointments   AppointmentService
	Availability   AvailabilityService
	Fees           FeeService
	Health         *HealthHandler
	MetricsHandler http.Handler
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)

	if cfg.Health != nil {
		r.Get("/health/live", cfg.Health.Liveness)
		r.Get("/health/ready", cfg.Health.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	h := &handlers{
		appointments: cfg.Appointments,
		availability: cfg.Availability,
		fees:         cfg.Fees,
	}

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", h.book)
		r.Get("/", h.list)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Get("/history", h.history)
			r.Post("/check-in", h.checkIn)
			r.Post("/start", h.start)
			r.Post("/extend", h.extend)
			r.Post("/cancel", h.cancel)
			r.Post("/reschedule", h.reschedule)
			r.Post("/complete", h.complete)
			r.Post("/no-show", h.noShow)
			r.Post("/payments", h.recordPayment)
		})
	})

	r.Get("/doctors/{id}/availability", h.doctorAvailability)
	r.Get("/departments/{id}/availability", h.departmentAvailability)
	r.Get("/fees", h.fee)

	return r
}
