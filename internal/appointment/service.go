package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-appointment-engine/internal/apperr"
	"github.com/hackgods/hospital-appointment-engine/internal/clock"
	"github.com/hackgods/hospital-appointment-engine/internal/db"
	"github.com/hackgods/hospital-appointment-engine/internal/metrics"
	"github.com/hackgods/hospital-appointment-engine/internal/notify"
	"github.com/hackgods/hospital-appointment-engine/internal/pricing"
	redisclient "github.com/hackgods/hospital-appointment-engine/internal/redis"
	"github.com/hackgods/hospital-appointment-engine/internal/sequence"
)

const (
	recentHistoryLimit = 5
	defaultListLimit   = 20
	maxListLimit       = 100
)

// FeeRules looks up the pricing rule that applies to a doctor and department.
type FeeRules interface {
	GetPricing(ctx context.Context, doctorID, departmentID uuid.UUID, appointmentType string) (*pricing.Rule, error)
}

// Sequencer issues formatted identifiers, joining the transaction in ctx.
type Sequencer interface {
	Next(ctx context.Context, t sequence.Type) (string, error)
}

type Deps struct {
	Repo      Repository
	Tx        db.Transactor
	Locker    redisclient.Locker
	Pricing   FeeRules
	Sequences Sequencer
	Notifier  notify.Publisher
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger
	// Location interprets appointment dates and times. Defaults to time.Local.
	Location *time.Location
}

type Service struct {
	repo     Repository
	tx       db.Transactor
	locker   redisclient.Locker
	pricing  FeeRules
	seq      Sequencer
	notifier notify.Publisher
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	loc      *time.Location
	now      func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		repo:     d.Repo,
		tx:       d.Tx,
		locker:   d.Locker,
		pricing:  d.Pricing,
		seq:      d.Sequences,
		notifier: d.Notifier,
		metrics:  d.Metrics,
		logger:   d.Logger.With().Str("component", "appointment").Logger(),
		loc:      d.Location,
		now:      time.Now,
	}
	if s.locker == nil {
		s.locker = redisclient.NoopLocker{}
	}
	if s.notifier == nil {
		s.notifier = notify.Discard{}
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	return s
}

// WithClock overrides the time source used for timestamps and elapsed durations.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Book reserves a doctor's slot for a patient. Patient resolution, the
// conflict check, pricing, number issuance and both inserts commit together.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*AppointmentDetail, error) {
	const op = "book appointment"

	in, err := req.normalize()
	if err != nil {
		return nil, s.fail(op, err)
	}

	var detail *AppointmentDetail
	err = s.withSlotLock(ctx, op, in.DoctorID, in.Date, in.Start, func(ctx context.Context) error {
		return s.tx.WithinTx(ctx, func(ctx context.Context) error {
			d, err := s.book(ctx, in)
			if err != nil {
				return err
			}
			detail = d
			return nil
		})
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	s.logger.Info().
		Str("appointment_id", detail.ID.String()).
		Str("appointment_number", detail.AppointmentNumber).
		Str("doctor_id", detail.DoctorID.String()).
		Str("date", detail.Date.String()).
		Str("start_time", detail.StartTime.String()).
		Msg("appointment booked")
	s.succeed(ctx, op, notify.EventBooked, &detail.Appointment)
	return detail, nil
}

func (s *Service) book(ctx context.Context, in bookingInput) (*AppointmentDetail, error) {
	doctor, err := s.repo.GetDoctor(ctx, in.DoctorID)
	if err != nil {
		return nil, err
	}

	departmentID := in.DepartmentID
	if departmentID == uuid.Nil {
		departmentID = doctor.DepartmentID
	}
	department, err := s.repo.GetDepartment(ctx, departmentID)
	if err != nil {
		return nil, err
	}

	patient, err := s.resolvePatient(ctx, in.PatientID, in.Creator)
	if err != nil {
		return nil, err
	}

	if err := s.checkConflict(ctx, doctor.ID, in.Date, in.Start, in.End, uuid.Nil); err != nil {
		return nil, err
	}

	rule, err := s.pricing.GetPricing(ctx, doctor.ID, department.ID, string(in.Type))
	if err != nil {
		return nil, err
	}
	fee := pricing.Calculate(rule.BaseFee, rule.ExtensionFeePer30, in.Duration)

	number, err := s.seq.Next(ctx, sequence.Appointment)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:                uuid.New(),
		AppointmentNumber: number,
		PatientID:         patient.ID,
		DoctorID:          doctor.ID,
		DepartmentID:      department.ID,
		Type:              in.Type,
		Date:              in.Date,
		StartTime:         in.Start,
		EndTime:           in.End,
		DurationMinutes:   in.Duration,
		ExtendedMinutes:   fee.ExtendedMinutes,
		Status:            StatusScheduled,
		Priority:          in.Priority,
		Reason:            in.Reason,
		ConsultationFee:   fee.BaseFee,
		ExtensionFee:      fee.ExtensionFee,
		TotalAmount:       fee.TotalAmount,
		PaymentStatus:     PaymentPending,
		CreatedBy:         in.Creator.ID,
		CreatedByKind:     in.Creator.Kind,
	}
	if err := s.repo.InsertAppointment(ctx, appt); err != nil {
		return nil, err
	}

	status, date, start := appt.Status, appt.Date, appt.StartTime
	err = s.repo.InsertHistory(ctx, &History{
		AppointmentID: appt.ID,
		Action:        ActionCreated,
		NewStatus:     &status,
		NewDate:       &date,
		NewStartTime:  &start,
		ActorID:       in.Creator.ID,
		ActorKind:     in.Creator.Kind,
		Reason:        in.Reason,
	})
	if err != nil {
		return nil, err
	}

	return s.hydrate(ctx, appt, patient, doctor, department)
}

// resolvePatient accepts a patient id or the id of a person who has not
// visited yet. A first visit registers the person as a patient with a new MRN.
func (s *Service) resolvePatient(ctx context.Context, id uuid.UUID, creator Actor) (*Patient, error) {
	p, err := s.repo.GetPatient(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPatientNotFound) {
		return nil, err
	}

	p, err = s.repo.GetPatientByPerson(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrPatientNotFound) {
		return nil, err
	}

	name, err := s.repo.GetPersonName(ctx, id)
	if err != nil {
		return nil, err
	}
	mrn, err := s.seq.Next(ctx, sequence.MRN)
	if err != nil {
		return nil, err
	}

	channel := ChannelFrontDesk
	if creator.Kind == ActorUser {
		channel = ChannelOnline
	}
	p = &Patient{
		ID:                  uuid.New(),
		PersonID:            id,
		MRN:                 mrn,
		Name:                name,
		RegistrationChannel: channel,
	}
	if err := s.repo.CreatePatient(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("patient_id", p.ID.String()).
		Str("mrn", p.MRN).
		Str("channel", string(channel)).
		Msg("patient registered on first visit")
	return p, nil
}

// checkConflict rejects [start, end) when another active appointment of the
// doctor that day starts at the same time or overlaps it. self is ignored.
func (s *Service) checkConflict(ctx context.Context, doctorID uuid.UUID, date clock.Date, start, end clock.TimeOfDay, self uuid.UUID) error {
	existing, err := s.repo.ListActiveForDoctorDate(ctx, doctorID, date)
	if err != nil {
		return err
	}
	for _, a := range existing {
		if a.ID == self {
			continue
		}
		if a.overlaps(start, end) {
			return apperr.Conflict("doctor already has an appointment from %s to %s on %s", a.StartTime, a.EndTime, date)
		}
	}
	return nil
}

func (s *Service) hydrate(ctx context.Context, a *Appointment, patient *Patient, doctor *Doctor, department *Department) (*AppointmentDetail, error) {
	var err error
	if patient == nil {
		if patient, err = s.repo.GetPatient(ctx, a.PatientID); err != nil && !errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
	}
	if doctor == nil {
		if doctor, err = s.repo.GetDoctor(ctx, a.DoctorID); err != nil && !errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
	}
	if department == nil {
		if department, err = s.repo.GetDepartment(ctx, a.DepartmentID); err != nil && !errors.Is(err, ErrDepartmentNotFound) {
			return nil, err
		}
	}

	history, err := s.repo.ListHistory(ctx, a.ID, recentHistoryLimit)
	if err != nil {
		return nil, err
	}
	payments, err := s.repo.ListPayments(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []History{}
	}
	if payments == nil {
		payments = []Payment{}
	}

	return &AppointmentDetail{
		Appointment: *a,
		Patient:     patient,
		Doctor:      doctor,
		Department:  department,
		History:     history,
		Payments:    payments,
	}, nil
}

// Get retrieves a fully hydrated appointment by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	const op = "get appointment"

	a, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, s.fail(op, err)
	}
	detail, err := s.hydrate(ctx, a, nil, nil, nil)
	if err != nil {
		return nil, s.fail(op, err)
	}
	return detail, nil
}

// ListByPatient pages through a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	list, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, s.fail("list appointments by patient", err)
	}
	if list == nil {
		list = []Appointment{}
	}
	return list, nil
}

// ListByDoctorDate returns a doctor's day, cancelled appointments included.
func (s *Service) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date clock.Date) ([]Appointment, error) {
	list, err := s.repo.ListByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, s.fail("list appointments by doctor", err)
	}
	if list == nil {
		list = []Appointment{}
	}
	return list, nil
}

// History returns the full ledger of an appointment, newest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]History, error) {
	const op = "list appointment history"

	if _, err := s.repo.GetAppointment(ctx, id); err != nil {
		return nil, s.fail(op, err)
	}
	history, err := s.repo.ListHistory(ctx, id, 0)
	if err != nil {
		return nil, s.fail(op, err)
	}
	if history == nil {
		history = []History{}
	}
	return history, nil
}

func (s *Service) withSlotLock(ctx context.Context, op string, doctorID uuid.UUID, date clock.Date, start clock.TimeOfDay, fn func(ctx context.Context) error) error {
	key := redisclient.SlotKey(doctorID, date.String(), start.String())

	err := s.locker.WithLock(ctx, key, fn)
	switch {
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		s.metrics.ObserveLockContention(op)
	case errors.Is(err, redisclient.ErrLockUnavailable):
		// the unique index still guards the slot
		s.logger.Warn().Err(err).Str("op", op).Msg("slot lock unavailable, continuing without it")
		return fn(ctx)
	}
	return err
}

// translate maps repository and lock sentinels onto error kinds.
func translate(err error) error {
	switch {
	case errors.Is(err, ErrAppointmentNotFound):
		return apperr.NotFound("appointment")
	case errors.Is(err, ErrDoctorNotFound):
		return apperr.NotFound("doctor")
	case errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrPersonNotFound):
		return apperr.NotFound("patient")
	case errors.Is(err, ErrDepartmentNotFound):
		return apperr.NotFound("department")
	case errors.Is(err, ErrSlotTaken):
		return apperr.Conflict("slot is already booked")
	case errors.Is(err, redisclient.ErrLockNotAcquired):
		return apperr.Conflict("slot is currently being booked, please retry")
	}
	return err
}

func (s *Service) fail(op string, err error) error {
	out := apperr.Boundary(s.logger, op, translate(err))
	s.metrics.ObserveOperation(op, apperr.Code(out))
	return out
}

func (s *Service) succeed(ctx context.Context, op, event string, a *Appointment) {
	s.metrics.ObserveOperation(op, "ok")
	s.publish(ctx, event, a)
}

// publish is best effort. A failed publish is logged and never undoes the committed change.
func (s *Service) publish(ctx context.Context, event string, a *Appointment) {
	ev := notify.Event{
		Type:              event,
		AppointmentID:     a.ID,
		AppointmentNumber: a.AppointmentNumber,
		PatientID:         a.PatientID,
		DoctorID:          a.DoctorID,
		Status:            string(a.Status),
		Date:              a.Date.String(),
		StartTime:         a.StartTime.String(),
		OccurredAt:        s.now().UTC(),
	}
	if err := s.notifier.Publish(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Warn().Err(err).
			Str("event", event).
			Str("appointment_id", a.ID.String()).
			Msg("failed to publish appointment event")
		s.metrics.ObserveNotification(event, false)
		return
	}
	s.metrics.ObserveNotification(event, true)
}
