package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hackgods/hospital-appointment-engine/internal/clock"
	"github.com/hackgods/hospital-appointment-engine/internal/db"
)

// ActiveSlotConstraint is the partial unique index guarding
// (doctor_id, appointment_date, start_time) among non-cancelled appointments.
const ActiveSlotConstraint = "appointments_active_slot_key"

type PgRepository struct {
	db *db.TxManager
}

func NewPgRepository(txm *db.TxManager) *PgRepository {
	return &PgRepository{db: txm}
}

// Helpers

const appointmentColumns = `
	id, appointment_number, patient_id, doctor_id, department_id, appointment_type,
	appointment_date, start_time, end_time, duration_minutes, extended_minutes,
	status, priority, reason, notes,
	consultation_fee::text, extension_fee::text, total_amount::text, payment_status,
	created_by, created_by_kind,
	checked_in_at, consultation_started_at, completed_at, cancelled_at,
	created_at, updated_at
`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a               Appointment
		fee, ext, total string
	)

	err := row.Scan(
		&a.ID,
		&a.AppointmentNumber,
		&a.PatientID,
		&a.DoctorID,
		&a.DepartmentID,
		&a.Type,
		&a.Date,
		&a.StartTime,
		&a.EndTime,
		&a.DurationMinutes,
		&a.ExtendedMinutes,
		&a.Status,
		&a.Priority,
		&a.Reason,
		&a.Notes,
		&fee,
		&ext,
		&total,
		&a.PaymentStatus,
		&a.CreatedBy,
		&a.CreatedByKind,
		&a.CheckedInAt,
		&a.ConsultationStartedAt,
		&a.CompletedAt,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if !a.Status.Valid() {
		return nil, fmt.Errorf("appointment %s has unknown status %q", a.ID, a.Status)
	}

	if a.ConsultationFee, err = parseMoney("consultation_fee", fee); err != nil {
		return nil, err
	}
	if a.ExtensionFee, err = parseMoney("extension_fee", ext); err != nil {
		return nil, err
	}
	if a.TotalAmount, err = parseMoney("total_amount", total); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func parseMoney(column, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s %q: %w", column, v, err)
	}
	return d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient

	err := row.Scan(
		&p.ID,
		&p.PersonID,
		&p.MRN,
		&p.Name,
		&p.RegistrationChannel,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanHistory(row pgx.Row) (*History, error) {
	var h History

	err := row.Scan(
		&h.ID,
		&h.AppointmentID,
		&h.Action,
		&h.PreviousStatus,
		&h.NewStatus,
		&h.PreviousDate,
		&h.NewDate,
		&h.PreviousStartTime,
		&h.NewStartTime,
		&h.ActorID,
		&h.ActorKind,
		&h.Reason,
		&h.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// Collaborators

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	err := r.db.Conn(ctx).QueryRow(ctx, `
		SELECT s.id, p.first_name || ' ' || p.last_name, s.department_id, s.specialization
		FROM staff s
		JOIN persons p ON p.id = s.person_id
		WHERE s.id = $1 AND s.role = 'doctor' AND s.is_active
	`, id).Scan(&d.ID, &d.Name, &d.DepartmentID, &d.Specialization)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("get doctor: %w", err)
	}
	return &d, nil
}

func (r *PgRepository) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	var d Department
	err := r.db.Conn(ctx).QueryRow(ctx, `
		SELECT id, name, code
		FROM departments
		WHERE id = $1
	`, id).Scan(&d.ID, &d.Name, &d.Code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDepartmentNotFound
		}
		return nil, fmt.Errorf("get department: %w", err)
	}
	return &d, nil
}

const patientSelect = `
	SELECT pt.id, pt.person_id, pt.mrn, p.first_name || ' ' || p.last_name, pt.registration_channel, pt.created_at
	FROM patients pt
	JOIN persons p ON p.id = pt.person_id
`

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(r.db.Conn(ctx).QueryRow(ctx, patientSelect+` WHERE pt.id = $1`, id))
}

func (r *PgRepository) GetPatientByPerson(ctx context.Context, personID uuid.UUID) (*Patient, error) {
	return scanPatient(r.db.Conn(ctx).QueryRow(ctx, patientSelect+` WHERE pt.person_id = $1`, personID))
}

func (r *PgRepository) GetPersonName(ctx context.Context, personID uuid.UUID) (string, error) {
	var name string
	err := r.db.Conn(ctx).QueryRow(ctx, `
		SELECT first_name || ' ' || last_name FROM persons WHERE id = $1
	`, personID).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrPersonNotFound
		}
		return "", fmt.Errorf("get person: %w", err)
	}
	return name, nil
}

func (r *PgRepository) CreatePatient(ctx context.Context, p *Patient) error {
	err := r.db.Conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, person_id, mrn, registration_channel, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING created_at
	`, p.ID, p.PersonID, p.MRN, string(p.RegistrationChannel)).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

// Appointments

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.Conn(ctx).QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListActiveForDoctorDate(ctx context.Context, doctorID uuid.UUID, date clock.Date) ([]Appointment, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status <> 'cancelled'
		ORDER BY start_time
	`, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list active appointments: %w", err)
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return scanAppointments(rows)
}

func (r *PgRepository) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date clock.Date) ([]Appointment, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2
		ORDER BY start_time, created_at
	`, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return scanAppointments(rows)
}

func (r *PgRepository) FindNoShowCandidates(ctx context.Context, before clock.Date, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT id
		FROM appointments
		WHERE status IN ('scheduled', 'rescheduled')
		  AND appointment_date < $1
		ORDER BY appointment_date, start_time
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("find no-show candidates: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	err := r.db.Conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (
			id, appointment_number, patient_id, doctor_id, department_id, appointment_type,
			appointment_date, start_time, end_time, duration_minutes, extended_minutes,
			status, priority, reason, notes,
			consultation_fee, extension_fee, total_amount, payment_status,
			created_by, created_by_kind, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, now(), now())
		RETURNING created_at, updated_at
	`,
		a.ID, a.AppointmentNumber, a.PatientID, a.DoctorID, a.DepartmentID, string(a.Type),
		a.Date, a.StartTime, a.EndTime, a.DurationMinutes, a.ExtendedMinutes,
		string(a.Status), string(a.Priority), a.Reason, a.Notes,
		a.ConsultationFee.StringFixed(2), a.ExtensionFee.StringFixed(2), a.TotalAmount.StringFixed(2), string(a.PaymentStatus),
		a.CreatedBy, string(a.CreatedByKind),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, ActiveSlotConstraint) {
			return ErrSlotTaken
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	err := r.db.Conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date = $2,
		    start_time = $3,
		    end_time = $4,
		    duration_minutes = $5,
		    extended_minutes = $6,
		    status = $7,
		    notes = $8,
		    extension_fee = $9,
		    total_amount = $10,
		    payment_status = $11,
		    checked_in_at = $12,
		    consultation_started_at = $13,
		    completed_at = $14,
		    cancelled_at = $15,
		    updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`,
		a.ID, a.Date, a.StartTime, a.EndTime, a.DurationMinutes, a.ExtendedMinutes,
		string(a.Status), a.Notes, a.ExtensionFee.StringFixed(2), a.TotalAmount.StringFixed(2), string(a.PaymentStatus),
		a.CheckedInAt, a.ConsultationStartedAt, a.CompletedAt, a.CancelledAt,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, ActiveSlotConstraint) {
			return ErrSlotTaken
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return fmt.Errorf("update appointment: %w", err)
	}
	return nil
}

// History

func (r *PgRepository) InsertHistory(ctx context.Context, h *History) error {
	err := r.db.Conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_history (
			appointment_id, action_type, previous_status, new_status,
			previous_date, new_date, previous_start_time, new_start_time,
			actor_id, actor_kind, reason, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		RETURNING id, created_at
	`,
		h.AppointmentID, string(h.Action), h.PreviousStatus, h.NewStatus,
		h.PreviousDate, h.NewDate, h.PreviousStartTime, h.NewStartTime,
		h.ActorID, string(h.ActorKind), h.Reason,
	).Scan(&h.ID, &h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment history: %w", err)
	}
	return nil
}

func (r *PgRepository) ListHistory(ctx context.Context, appointmentID uuid.UUID, limit int) ([]History, error) {
	q := `
		SELECT id, appointment_id, action_type, previous_status, new_status,
		       previous_date, new_date, previous_start_time, new_start_time,
		       actor_id, actor_kind, reason, created_at
		FROM appointment_history
		WHERE appointment_id = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []any{appointmentID}
	if limit > 0 {
		q += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointment history: %w", err)
	}
	defer rows.Close()

	var result []History
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *h)
	}
	return result, rows.Err()
}

// Payments

func (r *PgRepository) InsertPayment(ctx context.Context, p *Payment) error {
	err := r.db.Conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_payments (
			id, appointment_id, amount, method, reference, status,
			processed_by, processed_by_kind, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING created_at
	`,
		p.ID, p.AppointmentID, p.Amount.StringFixed(2), string(p.Method), p.Reference, string(p.Status),
		p.ProcessedBy, string(p.ProcessedByKind),
	).Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PgRepository) ListPayments(ctx context.Context, appointmentID uuid.UUID) ([]Payment, error) {
	rows, err := r.db.Conn(ctx).Query(ctx, `
		SELECT id, appointment_id, amount::text, method, reference, status,
		       processed_by, processed_by_kind, created_at
		FROM appointment_payments
		WHERE appointment_id = $1
		ORDER BY created_at
	`, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var result []Payment
	for rows.Next() {
		var (
			p      Payment
			amount string
		)
		if err := rows.Scan(&p.ID, &p.AppointmentID, &amount, &p.Method, &p.Reference, &p.Status,
			&p.ProcessedBy, &p.ProcessedByKind, &p.CreatedAt); err != nil {
			return nil, err
		}
		if p.Amount, err = parseMoney("amount", amount); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *PgRepository) SumCompletedPayments(ctx context.Context, appointmentID uuid.UUID) (decimal.Decimal, error) {
	var sum string
	err := r.db.Conn(ctx).QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM appointment_payments
		WHERE appointment_id = $1 AND status = 'completed'
	`, appointmentID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum payments: %w", err)
	}
	return parseMoney("sum", sum)
}
