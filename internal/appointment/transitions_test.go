package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-appointment-engine/internal/apperr"
	"github.com/hackgods/hospital-appointment-engine/internal/clock"
	"github.com/hackgods/hospital-appointment-engine/internal/notify"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func (f *fixture) inProgress(t *testing.T) *AppointmentDetail {
	t.Helper()
	d := f.book(t, nil)
	_, err := f.svc.CheckIn(context.Background(), d.ID, f.staff)
	require.NoError(t, err)
	_, err = f.svc.StartConsultation(context.Background(), d.ID, f.staff)
	require.NoError(t, err)
	return d
}

func TestCancelInProgressAppointment(t *testing.T) {
	f := newFixture(t)
	d := f.inProgress(t)
	before := len(f.store.historyFor(d.ID))

	a, err := f.svc.Cancel(context.Background(), d.ID, f.staff, "patient left")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, a.Status)
	assert.Equal(t, PaymentCancelled, a.PaymentStatus)
	assert.Contains(t, a.Notes, "patient left")
	require.NotNil(t, a.CancelledAt)

	history := f.store.historyFor(d.ID)
	require.Len(t, history, before+1)
	last := history[len(history)-1]
	assert.Equal(t, ActionCancel, last.Action)
	assert.Equal(t, StatusInProgress, *last.PreviousStatus)
	assert.Equal(t, StatusCancelled, *last.NewStatus)
	assert.Equal(t, "patient left", last.Reason)
	assert.Equal(t, f.staff.ID, last.ActorID)
}

func TestCancelTwiceFails(t *testing.T) {
	f := newFixture(t)
	d := f.book(t, nil)

	_, err := f.svc.Cancel(context.Background(), d.ID, f.staff, "")
	require.NoError(t, err)
	count := len(f.store.historyFor(d.ID))

	_, err = f.svc.Cancel(context.Background(), d.ID, f.staff, "again")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Len(t, f.store.historyFor(d.ID), count)
}

func TestTransitionUnknownAppointment(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CheckIn(context.Background(), uuid.New(), f.staff)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCheckInGuards(t *testing.T) {
	f := newFixture(t)
	d := f.book(t, nil)

	a, err := f.svc.CheckIn(context.Background(), d.ID, f.staff)
	require.NoError(t, err)
	assert.Equal(t, StatusCheckedIn, a.Status)
	require.NotNil(t, a.CheckedInAt)

	_, err = f.svc.CheckIn(context.Background(), d.ID, f.staff)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.svc.StartConsultation(context.Background(), d.ID, f.staff)
	require.NoError(t, err)
	_, err = f.svc.StartConsultation(context.Background(), d.ID, f.staff)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestExtendRecomputesFee(t *testing.T) {
	f := newFixture(t)
	d := f.inProgress(t)

	a, err := f.svc.Extend(context.Background(), d.ID, f.staff, 45)
	require.NoError(t, err)

	assert.Equal(t, StatusInProgress, a.Status)
	assert.Equal(t, 75, a.DurationMinutes)
	assert.Equal(t, 45, a.ExtendedMinutes)
	assert.Equal(t, clock.MustTime("10:15"), a.EndTime)
	assert.True(t, a.ExtensionFee.Equal(dec("400")), a.ExtensionFee.String())
	assert.True(t, a.TotalAmount.Equal(dec("900")), a.TotalAmount.String())

	history := f.store.historyFor(d.ID)
	last := history[len(history)-1]
	assert.Equal(t, ActionExtend, last.Action)
	assert.Equal(t, StatusInProgress, *last.PreviousStatus)
	assert.Equal(t, StatusInProgress, *last.NewStatus)
}

func TestExtendNeverDecreasesTotal(t *testing.T) {
	f := newFixture(t)
	d := f.inProgress(t)

	a, err := f.svc.Extend(context.Background(), d.ID, f.staff, 30)
	require.NoError(t, err)
	require.True(t, a.TotalAmount.Equal(dec("700")))

	f.rules.setRate("50")
	a, err = f.svc.Extend(context.Background(), d.ID, f.staff, 30)
	require.NoError(t, err)
	assert.Equal(t, 90, a.DurationMinutes)
	assert.Equal(t, 60, a.ExtendedMinutes)
	assert.True(t, a.TotalAmount.Equal(dec("700")), a.TotalAmount.String())
	assert.True(t, a.ConsultationFee.Add(a.ExtensionFee).Equal(a.TotalAmount),
		"base %s + extension %s != total %s", a.ConsultationFee, a.ExtensionFee, a.TotalAmount)

	history := f.store.historyFor(d.ID)
	last := history[len(history)-1]
	assert.Equal(t, ActionExtend, last.Action)
	assert.Contains(t, last.Reason, "repriced total 600.00 below charged 700.00")
}

func TestExtendGuards(t *testing.T) {
	f := newFixture(t)
	d := f.book(t, nil)

	_, err := f.svc.Extend(context.Background(), d.ID, f.staff, 30)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = f.svc.Extend(context.Background(), d.ID, f.staff, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestExtendReopensPaidBalance(t *testing.T) {
	f := newFixture(t)
	d := f.inProgress(t)

	_, a, err := f.svc.RecordPayment(context.Background(), d.ID, f.staff, PaymentRequest{Amount: dec("500"), Method: "cash"})
	require.NoError(t, err)
	require.Equal(t, PaymentPaid, a.PaymentStatus)

	a, err = f.svc.Extend(context.Background(), d.ID, f.staff, 30)
	require.NoError(t, err)
	assert.Equal(t, PaymentPending, a.PaymentStatus)
}

func TestRescheduleMovesAppointment(t *testing.T) {
	f := newFixture(t)
	d := f.book(t, nil)

	a, err := f.svc.Reschedule(context.Background(), d.ID, f.staff, RescheduleRequest{
		Date: "2025-03-12", StartTime: "14:00:00", Reason: "doctor in surgery",
	})
	require.NoError(t, err)

	assert.Equal(t, StatusRescheduled, a.Status)
	assert.Equal(t, clock.MustDate("2025-03-12"), a.Date)
	assert.Equal(t, clock.MustTime("14:00"), a.StartTime)
	assert.Equal(t, clock.MustTime("14:30"), a.EndTime)

	history := f.store.historyFor(d.ID)
	last := history[len(history)-1]
	assert.Equal(t, ActionReschedule, last.Action)
	assert.Equal(t, clock.MustDate("2025-03-10"), *last.PreviousDate)
	assert.Equal(t, clock.MustDate("2025-03-12"), *last.NewDate)
	assert.Equal(t, clock.MustTime("09:00"), *last.PreviousStartTime)
	assert.Equal(t, clock.MustTime("14:00"), *last.NewStartTime)

	// rescheduled appointments can still be checked in
	_, err = f.svc.CheckIn(context.Background(), d.ID, f.staff)
	assert.NoError(t, err)
}

func TestRescheduleConflictLeavesOriginal(t *testing.T) {
	f := newFixture(t)
	original := f.book(t, nil)
	f.book(t, func(r *BookingRequest) { r.StartTime = "11:00:00" })
	count := len(f.store.historyFor(original.ID))

	_, err := f.svc.Reschedule(context.Background(), original.ID, f.staff, RescheduleRequest{
		Date: "2025-03-10", StartTime: "11:00:00",
	})
	require.ErrorIs(t, err, apperr.ErrConflict)

	got, err := f.svc.Get(context.Background(), original.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)
	assert.Equal(t, clock.MustDate("2025-03-10"), got.Date)
	assert.Equal(t, clock.MustTime("09:00"), got.StartTime)
	assert.Len(t, f.store.historyFor(original.ID), count)
}

func TestRescheduleToOwnSlotIsAllowed(t *testing.T) {
	f := newFixture(t)
	d := f.book(t, func(r *BookingRequest) { r.DurationMinutes = 60 })

	a, err := f.svc.Reschedule(context.Background(), d.ID, f.staff, RescheduleRequest{Date: "2025-03-10", StartTime: "09:30:00"})
	require.NoError(t, err)
	assert.Equal(t, clock.MustTime("10:30"), a.EndTime)
}

func TestRescheduleGuards(t *testing.T) {
	f := newFixture(t)
	d := f.book(t, nil)

	_, err := f.svc.Reschedule(context.Background(), d.ID, f.staff, RescheduleRequest{Date: "2025-03-12"})
	assert.ErrorIs(t, err, apperr.ErrMissingField)

	_, err = f.svc.Reschedule(context.Background(), d.ID, f.staff, RescheduleRequest{Date: "12-03-2025", StartTime: "09:00"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.Cancel(context.Background(), d.ID, f.staff, "")
	require.NoError(t, err)
	_, err = f.svc.Reschedule(context.Background(), d.ID, f.staff, RescheduleRequest{Date: "2025-03-12", StartTime: "09:00"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestCompleteUsesElapsedMinutes(t *testing.T) {
	f := newFixture(t)
	d := f.book(t, nil)
	_, err := f.svc.CheckIn(context.Background(), d.ID, f.staff)
	require.NoError(t, err)

	started := time.Date(2025, time.March, 10, 9, 5, 0, 0, time.UTC)
	f.clock.Set(started)
	_, err = f.svc.StartConsultation(context.Background(), d.ID, f.staff)
	require.NoError(t, err)

	f.clock.Set(started.Add(42*time.Minute + 10*time.Second))
	a, err := f.svc.Complete(context.Background(), d.ID, f.staff, "prescribed rest")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, a.Status)
	assert.Equal(t, 43, a.DurationMinutes)
	assert.Contains(t, a.Notes, "prescribed rest")
	require.NotNil(t, a.CompletedAt)

	_, err = f.svc.Cancel(context.Background(), d.ID, f.staff, "")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestCompleteWithoutConsultationStartUsesScheduledStart(t *testing.T) {
	f := newFixture(t)
	d := f.book(t, nil)
	_, err := f.svc.CheckIn(context.Background(), d.ID, f.staff)
	require.NoError(t, err)

	f.clock.Set(time.Date(2025, time.March, 10, 8, 50, 0, 0, time.UTC))
	a, err := f.svc.Complete(context.Background(), d.ID, f.staff, "")
	require.NoError(t, err)
	assert.Equal(t, 1, a.DurationMinutes)
}

func TestRecordPayment(t *testing.T) {
	f := newFixture(t)
	d := f.book(t, nil)

	p, a, err := f.svc.RecordPayment(context.Background(), d.ID, f.staff, PaymentRequest{Amount: dec("200"), Method: "card", Reference: "TXN-1"})
	require.NoError(t, err)
	assert.Equal(t, PaymentRecordCompleted, p.Status)
	assert.Equal(t, PaymentPending, a.PaymentStatus)

	_, a, err = f.svc.RecordPayment(context.Background(), d.ID, f.staff, PaymentRequest{Amount: dec("300"), Method: "pending-free", Status: "pending"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Nil(t, a)

	_, a, err = f.svc.RecordPayment(context.Background(), d.ID, f.staff, PaymentRequest{Amount: dec("300"), Method: "online", Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, PaymentPending, a.PaymentStatus)

	_, a, err = f.svc.RecordPayment(context.Background(), d.ID, f.staff, PaymentRequest{Amount: dec("300"), Method: "insurance"})
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, a.PaymentStatus)
	assert.Equal(t, StatusScheduled, a.Status)

	got, err := f.svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Len(t, got.Payments, 3)

	history := f.store.historyFor(d.ID)
	last := history[len(history)-1]
	assert.Equal(t, ActionPayment, last.Action)
	assert.Equal(t, StatusScheduled, *last.NewStatus)
}

func TestRecordPaymentGuards(t *testing.T) {
	f := newFixture(t)
	d := f.book(t, nil)

	_, _, err := f.svc.RecordPayment(context.Background(), d.ID, f.staff, PaymentRequest{Amount: dec("0"), Method: "cash"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, _, err = f.svc.RecordPayment(context.Background(), d.ID, f.staff, PaymentRequest{Amount: dec("10")})
	assert.ErrorIs(t, err, apperr.ErrMissingField)

	_, err = f.svc.Cancel(context.Background(), d.ID, f.staff, "")
	require.NoError(t, err)
	_, _, err = f.svc.RecordPayment(context.Background(), d.ID, f.staff, PaymentRequest{Amount: dec("10"), Method: "cash"})
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestHistoryFailureRollsBackTransition(t *testing.T) {
	f := newFixture(t)
	d := f.inProgress(t)
	f.store.failHistory = true

	_, err := f.svc.Cancel(context.Background(), d.ID, f.staff, "patient left")
	require.ErrorIs(t, err, apperr.ErrUnexpected)

	f.store.failHistory = false
	got, err := f.svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, got.Status)
	assert.Equal(t, PaymentPending, got.PaymentStatus)
	assert.Empty(t, got.Notes)
}

func TestSweepNoShows(t *testing.T) {
	f := newFixture(t)
	past := f.book(t, nil)
	checkedIn := f.book(t, func(r *BookingRequest) { r.StartTime = "10:00:00" })
	future := f.book(t, func(r *BookingRequest) { r.Date = "2025-03-20" })
	_, err := f.svc.CheckIn(context.Background(), checkedIn.ID, f.staff)
	require.NoError(t, err)

	n, err := f.svc.SweepNoShows(context.Background(), clock.MustDate("2025-03-11"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(context.Background(), past.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, got.Status)
	assert.Equal(t, ActorSystem, got.History[0].ActorKind)

	got, err = f.svc.Get(context.Background(), future.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, got.Status)

	_, err = f.svc.CheckIn(context.Background(), past.ID, f.staff)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestTransitionsPublishEvents(t *testing.T) {
	f := newFixture(t)
	d := f.inProgress(t)
	_, err := f.svc.Complete(context.Background(), d.ID, f.staff, "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		notify.EventBooked,
		notify.EventCheckedIn,
		notify.EventConsultationStart,
		notify.EventCompleted,
	}, f.notifier.types())
}
