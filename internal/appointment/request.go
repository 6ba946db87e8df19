package appointment

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/hospital-appointment-engine/internal/apperr"
	"github.com/hackgods/hospital-appointment-engine/internal/clock"
)

const DefaultDurationMinutes = 30

// BookingRequest is the input of Book. Date and times are ISO strings
// (YYYY-MM-DD, HH:mm:ss) so that malformed values surface as validation errors.
type BookingRequest struct {
	PatientID       uuid.UUID `json:"patient_id" validate:"required"`
	DepartmentID    uuid.UUID `json:"department_id"`
	DoctorID        uuid.UUID `json:"doctor_id" validate:"required"`
	Date            string    `json:"appointment_date" validate:"required"`
	StartTime       string    `json:"start_time" validate:"required"`
	EndTime         string    `json:"end_time,omitempty"`
	DurationMinutes int       `json:"duration_minutes,omitempty" validate:"omitempty,min=1,max=720"`
	AppointmentType string    `json:"appointment_type,omitempty" validate:"omitempty,oneof=consultation follow_up procedure telemedicine"`
	Reason          string    `json:"reason" validate:"required"`
	Priority        string    `json:"priority,omitempty" validate:"omitempty,oneof=low normal high urgent"`
	CreatedBy       uuid.UUID `json:"created_by"`
	CreatedByKind   string    `json:"created_by_kind,omitempty" validate:"omitempty,oneof=staff user"`
}

type PaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method" validate:"required,oneof=cash card insurance online"`
	Reference string          `json:"reference,omitempty" validate:"max=120"`
	Status    string          `json:"status,omitempty" validate:"omitempty,oneof=pending completed failed refunded"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// validationError turns validator output into an error kind. Missing
// required fields win over other violations and are all named.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation("%v", err)
	}

	var missing []string
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		}
	}
	if len(missing) > 0 {
		return apperr.MissingField(strings.Join(missing, ", "))
	}

	fe := verrs[0]
	if fe.Param() != "" {
		return apperr.Validation("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return apperr.Validation("%s must satisfy %s", fe.Field(), fe.Tag())
}

type bookingInput struct {
	PatientID    uuid.UUID
	DepartmentID uuid.UUID
	DoctorID     uuid.UUID
	Date         clock.Date
	Start        clock.TimeOfDay
	End          clock.TimeOfDay
	Duration     int
	Type         Type
	Priority     Priority
	Reason       string
	Creator      Actor
}

func (r BookingRequest) normalize() (bookingInput, error) {
	r.Reason = strings.TrimSpace(r.Reason)
	r.Date = strings.TrimSpace(r.Date)
	r.StartTime = strings.TrimSpace(r.StartTime)
	if err := validate.Struct(r); err != nil {
		return bookingInput{}, validationError(err)
	}

	in := bookingInput{
		PatientID:    r.PatientID,
		DepartmentID: r.DepartmentID,
		DoctorID:     r.DoctorID,
		Duration:     r.DurationMinutes,
		Type:         Type(r.AppointmentType),
		Priority:     Priority(r.Priority),
		Reason:       r.Reason,
		Creator:      Actor{ID: r.CreatedBy, Kind: ActorKind(r.CreatedByKind)},
	}
	if in.Type == "" {
		in.Type = TypeConsultation
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if in.Creator.Kind == "" {
		in.Creator.Kind = ActorStaff
	}

	var err error
	if in.Date, err = clock.ParseDate(r.Date); err != nil {
		return bookingInput{}, apperr.Validation("appointment_date: %v", err)
	}
	if in.Start, err = clock.ParseTimeOfDay(r.StartTime); err != nil {
		return bookingInput{}, apperr.Validation("start_time: %v", err)
	}

	if end := strings.TrimSpace(r.EndTime); end != "" {
		if in.End, err = clock.ParseTimeOfDay(end); err != nil {
			return bookingInput{}, apperr.Validation("end_time: %v", err)
		}
		if in.End <= in.Start {
			return bookingInput{}, apperr.Validation("end_time must be after start_time")
		}
		span := in.Start.MinutesUntil(in.End)
		if in.Duration != 0 && in.Duration != span {
			return bookingInput{}, apperr.Validation("duration_minutes %d does not match end_time %s (%d minutes after start_time)", in.Duration, in.End, span)
		}
		in.Duration = span
		return in, nil
	}

	if in.Duration == 0 {
		in.Duration = DefaultDurationMinutes
	}
	end, ok := in.Start.AddMinutes(in.Duration)
	if !ok {
		return bookingInput{}, apperr.Validation("appointment must end on the day it starts")
	}
	in.End = end
	return in, nil
}

type paymentInput struct {
	Amount    decimal.Decimal
	Method    PaymentMethod
	Reference string
	Status    PaymentRecordStatus
}

func (r PaymentRequest) normalize() (paymentInput, error) {
	if err := validate.Struct(r); err != nil {
		return paymentInput{}, validationError(err)
	}
	if !r.Amount.IsPositive() {
		return paymentInput{}, apperr.Validation("amount must be positive")
	}

	status := PaymentRecordStatus(r.Status)
	if status == "" {
		status = PaymentRecordCompleted
	}
	return paymentInput{
		Amount:    r.Amount.Round(2),
		Method:    PaymentMethod(r.Method),
		Reference: strings.TrimSpace(r.Reference),
		Status:    status,
	}, nil
}
