package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/hospital-appointment-engine/internal/appointment"
	"github.com/hackgods/hospital-appointment-engine/internal/apperr"
	"github.com/hackgods/hospital-appointment-engine/internal/availability"
	"github.com/hackgods/hospital-appointment-engine/internal/clock"
)

type handlers struct {
	appointments AppointmentService
	availability AvailabilityService
	fees         FeeService
}

func (h *handlers) book(w http.ResponseWriter, r *http.Request) {
	var req appointment.BookingRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if req.CreatedBy == uuid.Nil {
		req.CreatedBy = actor.ID
	}
	if req.CreatedByKind == "" && actor.Kind != appointment.ActorSystem {
		req.CreatedByKind = string(actor.Kind)
	}

	detail, err := h.appointments.Book(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

func (h *handlers) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.appointments.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// list serves either a patient's appointments (paged) or a doctor's day.
func (h *handlers) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var (
		list []appointment.Appointment
		err  error
	)
	switch {
	case q.Get("patient_id") != "":
		patientID, perr := uuid.Parse(q.Get("patient_id"))
		if perr != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "patient_id must be a valid UUID")
			return
		}
		limit, lok := queryInt(w, q.Get("limit"), "limit")
		offset, ook := queryInt(w, q.Get("offset"), "offset")
		if !lok || !ook {
			return
		}
		list, err = h.appointments.ListByPatient(r.Context(), patientID, limit, offset)

	case q.Get("doctor_id") != "":
		doctorID, perr := uuid.Parse(q.Get("doctor_id"))
		if perr != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "doctor_id must be a valid UUID")
			return
		}
		date, perr := clock.ParseDate(q.Get("date"))
		if perr != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "date must be YYYY-MM-DD")
			return
		}
		list, err = h.appointments.ListByDoctorDate(r.Context(), doctorID, date)

	default:
		writeError(w, http.StatusBadRequest, "missing_field", "patient_id or doctor_id is required")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []appointment.Appointment{}
	}
	writeJSON(w, http.StatusOK, ListResponse{Appointments: list, Count: len(list)})
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	history, err := h.appointments.History(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{AppointmentID: id, History: history})
}

// transition decodes the path id and actor, then runs fn.
func (h *handlers) transition(w http.ResponseWriter, r *http.Request, fn func(id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	a, err := fn(id, actor)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *handlers) checkIn(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error) {
		return h.appointments.CheckIn(r.Context(), id, actor)
	})
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error) {
		return h.appointments.StartConsultation(r.Context(), id, actor)
	})
}

func (h *handlers) extend(w http.ResponseWriter, r *http.Request) {
	var req ExtendRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	h.transition(w, r, func(id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error) {
		return h.appointments.Extend(r.Context(), id, actor, req.AdditionalMinutes)
	})
}

func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	h.transition(w, r, func(id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error) {
		return h.appointments.Cancel(r.Context(), id, actor, req.Reason)
	})
}

func (h *handlers) reschedule(w http.ResponseWriter, r *http.Request) {
	var req appointment.RescheduleRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	h.transition(w, r, func(id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error) {
		return h.appointments.Reschedule(r.Context(), id, actor, req)
	})
}

func (h *handlers) complete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	h.transition(w, r, func(id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error) {
		return h.appointments.Complete(r.Context(), id, actor, req.Notes)
	})
}

func (h *handlers) noShow(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id uuid.UUID, actor appointment.Actor) (*appointment.Appointment, error) {
		return h.appointments.MarkNoShow(r.Context(), id, actor)
	})
}

func (h *handlers) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req appointment.PaymentRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	p, a, err := h.appointments.RecordPayment(r.Context(), id, actor, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, PaymentResponse{Payment: p, Appointment: a})
}

func (h *handlers) doctorAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	from, to, ok := dateRange(w, r)
	if !ok {
		return
	}

	slots, err := h.availability.DoctorAvailability(r.Context(), id, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DoctorAvailabilityResponse{
		DoctorID: id,
		Slots:    slots,
		ByDate:   nonNil(availability.GroupByDate(slots)),
	})
}

func (h *handlers) departmentAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	from, to, ok := dateRange(w, r)
	if !ok {
		return
	}

	doctors, err := h.availability.DepartmentAvailability(r.Context(), id, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DepartmentAvailabilityResponse{
		DepartmentID: id,
		Slots:        nonNil(availability.Flatten(doctors)),
		Doctors:      nonNil(doctors),
	})
}

func (h *handlers) fee(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	doctorID, err := uuid.Parse(q.Get("doctor_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "doctor_id must be a valid UUID")
		return
	}
	departmentID, err := uuid.Parse(q.Get("department_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "department_id must be a valid UUID")
		return
	}
	apptType := q.Get("appointment_type")
	if apptType == "" {
		apptType = string(appointment.TypeConsultation)
	}
	duration := appointment.DefaultDurationMinutes
	if raw := q.Get("duration_minutes"); raw != "" {
		if duration, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "duration_minutes must be an integer")
			return
		}
	}

	breakdown, err := h.fees.CalculateFee(r.Context(), doctorID, departmentID, apptType, duration)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, breakdown)
}

// Helpers

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// actorFrom reads the caller identity set by the upstream gateway.
func actorFrom(w http.ResponseWriter, r *http.Request) (appointment.Actor, bool) {
	actor := appointment.Actor{Kind: appointment.ActorStaff}

	if raw := r.Header.Get("X-Actor-ID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "X-Actor-ID must be a valid UUID")
			return actor, false
		}
		actor.ID = id
	}

	switch kind := appointment.ActorKind(strings.ToLower(r.Header.Get("X-Actor-Kind"))); kind {
	case "":
	case appointment.ActorStaff, appointment.ActorUser, appointment.ActorSystem:
		actor.Kind = kind
	default:
		writeError(w, http.StatusBadRequest, "validation_error", "X-Actor-Kind must be staff, user or system")
		return actor, false
	}
	return actor, true
}

func dateRange(w http.ResponseWriter, r *http.Request) (from, to *clock.Date, ok bool) {
	parse := func(key string) (*clock.Date, bool) {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			return nil, true
		}
		d, err := clock.ParseDate(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", key+" must be YYYY-MM-DD")
			return nil, false
		}
		return &d, true
	}

	if from, ok = parse("start_date"); !ok {
		return nil, nil, false
	}
	if to, ok = parse("end_date"); !ok {
		return nil, nil, false
	}
	return from, to, true
}

func queryInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "validation_error", name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

// decodeBody reports false after writing the error response. An empty body
// is accepted only when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
	return false
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.ErrMissingField, apperr.ErrValidation, apperr.ErrInvalidState, apperr.ErrConfiguration:
		return http.StatusBadRequest
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	details := err.Error()
	if status == http.StatusInternalServerError {
		details = "internal server error"
	}
	writeError(w, status, apperr.Code(err), details)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
