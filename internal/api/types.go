package api

import (
	"github.com/google/uuid"

	"github.com/hackgods/hospital-appointment-engine/internal/appointment"
	"github.com/hackgods/hospital-appointment-engine/internal/availability"
)

type ExtendRequest struct {
	AdditionalMinutes int `json:"additional_minutes"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

type CompleteRequest struct {
	Notes string `json:"notes"`
}

type PaymentResponse struct {
	Payment     *appointment.Payment     `json:"payment"`
	Appointment *appointment.Appointment `json:"appointment"`
}

type ListResponse struct {
	Appointments []appointment.Appointment `json:"appointments"`
	Count        int                       `json:"count"`
}

type HistoryResponse struct {
	AppointmentID uuid.UUID             `json:"appointment_id"`
	History       []appointment.History `json:"history"`
}

type DoctorAvailabilityResponse struct {
	DoctorID uuid.UUID               `json:"doctor_id"`
	Slots    []availability.Slot     `json:"slots"`
	ByDate   []availability.DaySlots `json:"by_date"`
}

// DepartmentAvailabilityResponse carries the per-doctor view and the same
// slots concatenated in doctor order, each tagged with its doctor id.
type DepartmentAvailabilityResponse struct {
	DepartmentID uuid.UUID                  `json:"department_id"`
	Slots        []availability.Slot        `json:"slots"`
	Doctors      []availability.DoctorSlots `json:"doctors"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
