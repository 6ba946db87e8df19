package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/hospital-appointment-engine/internal/clock"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrPersonNotFound      = errors.New("person not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrDepartmentNotFound  = errors.New("department not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken is returned when the active-slot unique index rejects a write.
	ErrSlotTaken = errors.New("slot already taken")
)

// Repository contains all DB interactions needed by the service. Every
// method runs on the transaction carried by ctx when there is one.
type Repository interface {
	// Collaborators owned by other contexts. Only CreatePatient writes.
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPatientByPerson(ctx context.Context, personID uuid.UUID) (*Patient, error)
	GetPersonName(ctx context.Context, personID uuid.UUID) (string, error)
	CreatePatient(ctx context.Context, p *Patient) error

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// LockAppointment reads the row FOR UPDATE.
	LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// ListActiveForDoctorDate returns the doctor's non-cancelled appointments on date.
	ListActiveForDoctorDate(ctx context.Context, doctorID uuid.UUID, date clock.Date) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date clock.Date) ([]Appointment, error)
	// FindNoShowCandidates returns scheduled or rescheduled appointments dated before day.
	FindNoShowCandidates(ctx context.Context, before clock.Date, limit int) ([]uuid.UUID, error)
	InsertAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointment(ctx context.Context, a *Appointment) error

	InsertHistory(ctx context.Context, h *History) error
	// ListHistory returns newest first. limit <= 0 returns every row.
	ListHistory(ctx context.Context, appointmentID uuid.UUID, limit int) ([]History, error)

	InsertPayment(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, appointmentID uuid.UUID) ([]Payment, error)
	SumCompletedPayments(ctx context.Context, appointmentID uuid.UUID) (decimal.Decimal, error)
}
