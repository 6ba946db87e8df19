package appointment

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/hospital-appointment-engine/internal/clock"
)

type Type string

const (
	TypeConsultation Type = "consultation"
	TypeFollowUp     Type = "follow_up"
	TypeProcedure    Type = "procedure"
	TypeTelemedicine Type = "telemedicine"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

type ActorKind string

const (
	ActorStaff  ActorKind = "staff"
	ActorUser   ActorKind = "user"
	ActorSystem ActorKind = "system"
)

// Actor is whoever initiated an operation.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Kind ActorKind `json:"kind"`
}

// SystemActor attributes work done by background jobs.
var SystemActor = Actor{ID: uuid.Nil, Kind: ActorSystem}

type RegistrationChannel string

const (
	ChannelOnline    RegistrationChannel = "online"
	ChannelFrontDesk RegistrationChannel = "front_desk"
)

type Patient struct {
	ID                  uuid.UUID           `json:"id"`
	PersonID            uuid.UUID           `json:"person_id"`
	MRN                 string              `json:"mrn"`
	Name                string              `json:"name"`
	RegistrationChannel RegistrationChannel `json:"registration_channel"`
	CreatedAt           time.Time           `json:"created_at"`
}

type Doctor struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	DepartmentID   uuid.UUID `json:"department_id"`
	Specialization *string   `json:"specialization,omitempty"`
}

type Department struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Code string    `json:"code"`
}

type Appointment struct {
	ID                    uuid.UUID       `json:"id"`
	AppointmentNumber     string          `json:"appointment_number"`
	PatientID             uuid.UUID       `json:"patient_id"`
	DoctorID              uuid.UUID       `json:"doctor_id"`
	DepartmentID          uuid.UUID       `json:"department_id"`
	Type                  Type            `json:"appointment_type"`
	Date                  clock.Date      `json:"appointment_date"`
	StartTime             clock.TimeOfDay `json:"start_time"`
	EndTime               clock.TimeOfDay `json:"end_time"`
	DurationMinutes       int             `json:"duration_minutes"`
	ExtendedMinutes       int             `json:"extended_minutes"`
	Status                Status          `json:"status"`
	Priority              Priority        `json:"priority"`
	Reason                string          `json:"reason"`
	Notes                 string          `json:"notes,omitempty"`
	ConsultationFee       decimal.Decimal `json:"consultation_fee"`
	ExtensionFee          decimal.Decimal `json:"extension_fee"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	PaymentStatus         PaymentStatus   `json:"payment_status"`
	CreatedBy             uuid.UUID       `json:"created_by"`
	CreatedByKind         ActorKind       `json:"created_by_kind"`
	CheckedInAt           *time.Time      `json:"checked_in_at,omitempty"`
	ConsultationStartedAt *time.Time      `json:"consultation_started_at,omitempty"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
	CancelledAt           *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// overlaps reports whether a occupies any part of [start, end) on its date.
func (a Appointment) overlaps(start, end clock.TimeOfDay) bool {
	if a.StartTime == start {
		return true
	}
	return start < a.EndTime && a.StartTime < end
}

// History is one immutable ledger row. Date and time fields are set only by
// actions that move the appointment.
type History struct {
	ID                int64            `json:"id"`
	AppointmentID     uuid.UUID        `json:"appointment_id"`
	Action            Action           `json:"action_type"`
	PreviousStatus    *Status          `json:"previous_status,omitempty"`
	NewStatus         *Status          `json:"new_status,omitempty"`
	PreviousDate      *clock.Date      `json:"previous_date,omitempty"`
	NewDate           *clock.Date      `json:"new_date,omitempty"`
	PreviousStartTime *clock.TimeOfDay `json:"previous_start_time,omitempty"`
	NewStartTime      *clock.TimeOfDay `json:"new_start_time,omitempty"`
	ActorID           uuid.UUID        `json:"actor_id"`
	ActorKind         ActorKind        `json:"actor_kind"`
	Reason            string           `json:"reason,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

type PaymentMethod string

const (
	MethodCash      PaymentMethod = "cash"
	MethodCard      PaymentMethod = "card"
	MethodInsurance PaymentMethod = "insurance"
	MethodOnline    PaymentMethod = "online"
)

type PaymentRecordStatus string

const (
	PaymentRecordPending   PaymentRecordStatus = "pending"
	PaymentRecordCompleted PaymentRecordStatus = "completed"
	PaymentRecordFailed    PaymentRecordStatus = "failed"
	PaymentRecordRefunded  PaymentRecordStatus = "refunded"
)

type Payment struct {
	ID              uuid.UUID           `json:"id"`
	AppointmentID   uuid.UUID           `json:"appointment_id"`
	Amount          decimal.Decimal     `json:"amount"`
	Method          PaymentMethod       `json:"method"`
	Reference       string              `json:"reference,omitempty"`
	Status          PaymentRecordStatus `json:"status"`
	ProcessedBy     uuid.UUID           `json:"processed_by"`
	ProcessedByKind ActorKind           `json:"processed_by_kind"`
	CreatedAt       time.Time           `json:"created_at"`
}

// AppointmentDetail is an appointment with its related records loaded.
type AppointmentDetail struct {
	Appointment
	Patient    *Patient    `json:"patient,omitempty"`
	Doctor     *Doctor     `json:"doctor,omitempty"`
	Department *Department `json:"department,omitempty"`
	History    []History   `json:"history"`
	Payments   []Payment   `json:"payments"`
}
