package appointment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-appointment-engine/internal/apperr"
	"github.com/hackgods/hospital-appointment-engine/internal/clock"
	"github.com/hackgods/hospital-appointment-engine/internal/notify"
	"github.com/hackgods/hospital-appointment-engine/internal/pricing"
)

const noShowBatchSize = 200

// mutation changes a locked appointment and fills in the history row's
// action-specific fields. Status is set by apply afterwards.
type mutation func(ctx context.Context, a *Appointment, h *History) error

// apply runs one transition: lock, check the transition table, mutate,
// persist, append exactly one history row. Any error rolls back all of it.
func (s *Service) apply(ctx context.Context, op, event string, id uuid.UUID, action Action, actor Actor, mutate mutation) (*Appointment, error) {
	if actor.Kind == "" {
		actor.Kind = ActorStaff
	}

	var out *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.LockAppointment(ctx, id)
		if err != nil {
			return err
		}

		prev := a.Status
		next, err := Next(action, prev)
		if err != nil {
			return err
		}

		h := &History{
			AppointmentID:  a.ID,
			Action:         action,
			PreviousStatus: &prev,
			ActorID:        actor.ID,
			ActorKind:      actor.Kind,
		}
		if mutate != nil {
			if err := mutate(ctx, a, h); err != nil {
				return err
			}
		}
		a.Status = next

		if err := s.repo.UpdateAppointment(ctx, a); err != nil {
			return err
		}
		h.NewStatus = &next
		if err := s.repo.InsertHistory(ctx, h); err != nil {
			return err
		}

		out = a
		return nil
	})
	if err != nil {
		return nil, s.fail(op, err)
	}

	s.logger.Info().
		Str("appointment_id", out.ID.String()).
		Str("action", string(action)).
		Str("status", string(out.Status)).
		Str("actor_kind", string(actor.Kind)).
		Msg("appointment updated")
	s.succeed(ctx, op, event, out)
	return out, nil
}

func (s *Service) CheckIn(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.apply(ctx, "check in appointment", notify.EventCheckedIn, id, ActionCheckIn, actor,
		func(_ context.Context, a *Appointment, _ *History) error {
			now := s.now()
			a.CheckedInAt = &now
			return nil
		})
}

// StartConsultation moves a checked-in patient into the consultation.
func (s *Service) StartConsultation(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.apply(ctx, "start consultation", notify.EventConsultationStart, id, ActionStart, actor,
		func(_ context.Context, a *Appointment, _ *History) error {
			now := s.now()
			a.ConsultationStartedAt = &now
			return nil
		})
}

// Extend lengthens a running appointment and reprices it from the stored
// base fee and the current extension rate. The total never decreases.
func (s *Service) Extend(ctx context.Context, id uuid.UUID, actor Actor, additionalMinutes int) (*Appointment, error) {
	const op = "extend appointment"
	if additionalMinutes <= 0 {
		return nil, s.fail(op, apperr.Validation("additional_minutes must be positive"))
	}

	return s.apply(ctx, op, notify.EventExtended, id, ActionExtend, actor,
		func(ctx context.Context, a *Appointment, h *History) error {
			duration := a.DurationMinutes + additionalMinutes
			end, ok := a.StartTime.AddMinutes(duration)
			if !ok {
				return apperr.Validation("extension would run past the end of the day")
			}

			rule, err := s.pricing.GetPricing(ctx, a.DoctorID, a.DepartmentID, string(a.Type))
			if err != nil {
				return err
			}
			fee := pricing.Calculate(a.ConsultationFee, rule.ExtensionFeePer30, duration)

			a.DurationMinutes = duration
			a.EndTime = end
			a.ExtendedMinutes = fee.ExtendedMinutes
			h.Reason = fmt.Sprintf("extended by %d minutes", additionalMinutes)
			if fee.TotalAmount.LessThan(a.TotalAmount) {
				// the charge stands; the extension fee still adds up to it
				h.Reason += fmt.Sprintf(", repriced total %s below charged %s, charge kept",
					fee.TotalAmount.StringFixed(2), a.TotalAmount.StringFixed(2))
				a.ExtensionFee = a.TotalAmount.Sub(a.ConsultationFee)
			} else {
				a.ExtensionFee = fee.ExtensionFee
				a.TotalAmount = fee.TotalAmount
			}

			if a.PaymentStatus == PaymentPaid {
				paid, err := s.repo.SumCompletedPayments(ctx, a.ID)
				if err != nil {
					return err
				}
				if paid.LessThan(a.TotalAmount) {
					a.PaymentStatus = PaymentPending
				}
			}

			return nil
		})
}

// Cancel is terminal. The reason, when given, is appended to the notes.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)

	return s.apply(ctx, "cancel appointment", notify.EventCancelled, id, ActionCancel, actor,
		func(_ context.Context, a *Appointment, h *History) error {
			now := s.now()
			a.PaymentStatus = PaymentCancelled
			a.CancelledAt = &now
			if reason != "" {
				a.Notes = appendNote(a.Notes, "Cancellation reason: "+reason)
			}
			h.Reason = reason
			return nil
		})
}

type RescheduleRequest struct {
	Date      string `json:"appointment_date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	Reason    string `json:"reason,omitempty"`
}

// Reschedule moves the appointment to a new date and start time, keeping its
// duration. A conflict leaves the appointment untouched.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, actor Actor, req RescheduleRequest) (*Appointment, error) {
	const op = "reschedule appointment"

	if err := validate.Struct(req); err != nil {
		return nil, s.fail(op, validationError(err))
	}
	date, err := clock.ParseDate(req.Date)
	if err != nil {
		return nil, s.fail(op, apperr.Validation("appointment_date: %v", err))
	}
	start, err := clock.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return nil, s.fail(op, apperr.Validation("start_time: %v", err))
	}

	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, s.fail(op, err)
	}

	var out *Appointment
	err = s.withSlotLock(ctx, op, current.DoctorID, date, start, func(ctx context.Context) error {
		var err error
		out, err = s.apply(ctx, op, notify.EventRescheduled, id, ActionReschedule, actor,
			func(ctx context.Context, a *Appointment, h *History) error {
				end, ok := start.AddMinutes(a.DurationMinutes)
				if !ok {
					return apperr.Validation("appointment must end on the day it starts")
				}
				if err := s.checkConflict(ctx, a.DoctorID, date, start, end, a.ID); err != nil {
					return err
				}

				prevDate, prevStart := a.Date, a.StartTime
				newDate, newStart := date, start
				h.PreviousDate, h.PreviousStartTime = &prevDate, &prevStart
				h.NewDate, h.NewStartTime = &newDate, &newStart
				h.Reason = strings.TrimSpace(req.Reason)

				a.Date, a.StartTime, a.EndTime = date, start, end
				return nil
			})
		return err
	})
	if err != nil {
		// apply has already passed its errors through the boundary
		if apperr.KindOf(err) != nil {
			return nil, err
		}
		return nil, s.fail(op, err)
	}
	return out, nil
}

// Complete closes the consultation. Duration becomes the whole minutes
// elapsed since the consultation started, or since the scheduled start.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor Actor, notes string) (*Appointment, error) {
	notes = strings.TrimSpace(notes)

	return s.apply(ctx, "complete appointment", notify.EventCompleted, id, ActionComplete, actor,
		func(_ context.Context, a *Appointment, h *History) error {
			now := s.now()
			started := a.Date.At(a.StartTime, s.loc)
			if a.ConsultationStartedAt != nil {
				started = *a.ConsultationStartedAt
			}

			minutes := int(math.Ceil(now.Sub(started).Minutes()))
			if minutes < 1 {
				minutes = 1
			}
			a.DurationMinutes = minutes
			a.CompletedAt = &now
			a.Notes = appendNote(a.Notes, notes)
			h.Reason = notes
			return nil
		})
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.apply(ctx, "mark no-show", notify.EventNoShow, id, ActionNoShow, actor,
		func(_ context.Context, _ *Appointment, h *History) error {
			h.Reason = "patient did not attend"
			return nil
		})
}

// SweepNoShows marks every scheduled or rescheduled appointment dated before
// the given day as no-show and returns how many it marked.
func (s *Service) SweepNoShows(ctx context.Context, before clock.Date) (int, error) {
	const op = "sweep no-shows"

	ids, err := s.repo.FindNoShowCandidates(ctx, before, noShowBatchSize)
	if err != nil {
		return 0, s.fail(op, err)
	}

	marked := 0
	for _, id := range ids {
		if _, err := s.MarkNoShow(ctx, id, SystemActor); err != nil {
			if errors.Is(err, apperr.ErrInvalidState) || errors.Is(err, apperr.ErrNotFound) {
				// checked in or cancelled since the candidate query
				continue
			}
			if ctx.Err() != nil {
				return marked, ctx.Err()
			}
			s.logger.Error().Err(err).Str("appointment_id", id.String()).Msg("failed to mark no-show")
			continue
		}
		marked++
	}

	s.metrics.ObserveNoShows(marked)
	return marked, nil
}

// RecordPayment stores a payment and marks the appointment paid once the
// completed payments cover the total.
func (s *Service) RecordPayment(ctx context.Context, id uuid.UUID, actor Actor, req PaymentRequest) (*Payment, *Appointment, error) {
	const op = "record payment"

	in, err := req.normalize()
	if err != nil {
		return nil, nil, s.fail(op, err)
	}

	var payment *Payment
	appt, err := s.apply(ctx, op, notify.EventPaymentRecorded, id, ActionPayment, actor,
		func(ctx context.Context, a *Appointment, h *History) error {
			p := &Payment{
				ID:              uuid.New(),
				AppointmentID:   a.ID,
				Amount:          in.Amount,
				Method:          in.Method,
				Reference:       in.Reference,
				Status:          in.Status,
				ProcessedBy:     h.ActorID,
				ProcessedByKind: h.ActorKind,
			}
			if err := s.repo.InsertPayment(ctx, p); err != nil {
				return err
			}

			paid, err := s.repo.SumCompletedPayments(ctx, a.ID)
			if err != nil {
				return err
			}
			if !paid.LessThan(a.TotalAmount) {
				a.PaymentStatus = PaymentPaid
			} else {
				a.PaymentStatus = PaymentPending
			}

			h.Reason = fmt.Sprintf("payment %s via %s (%s)", p.Amount.StringFixed(2), p.Method, p.Status)
			payment = p
			return nil
		})
	if err != nil {
		return nil, nil, err
	}
	return payment, appt, nil
}

func appendNote(notes, line string) string {
	switch {
	case line == "":
		return notes
	case notes == "":
		return line
	}
	return notes + "\n" + line
}
