package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hackgods/hospital-appointment-engine/internal/clock"
	"github.com/hackgods/hospital-appointment-engine/internal/db"
)

type PgSource struct {
	db *db.TxManager
}

func NewPgSource(txm *db.TxManager) *PgSource {
	return &PgSource{db: txm}
}

func (s *PgSource) Doctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	const q = `
		SELECT s.id, p.first_name || ' ' || p.last_name, s.department_id
		FROM staff s
		JOIN persons p ON p.id = s.person_id
		WHERE s.id = $1 AND s.role = 'doctor' AND s.is_active
	`
	var d Doctor
	err := s.db.Conn(ctx).QueryRow(ctx, q, id).Scan(&d.ID, &d.Name, &d.DepartmentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get doctor %s: %w", id, err)
	}
	return &d, nil
}

func (s *PgSource) DepartmentExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var ok bool
	err := s.db.Conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM departments WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check department %s: %w", id, err)
	}
	return ok, nil
}

func (s *PgSource) ActiveDoctors(ctx context.Context, departmentID uuid.UUID) ([]Doctor, error) {
	const q = `
		SELECT s.id, p.first_name || ' ' || p.last_name AS full_name, s.department_id
		FROM staff s
		JOIN persons p ON p.id = s.person_id
		WHERE s.department_id = $1 AND s.role = 'doctor' AND s.is_active
		ORDER BY full_name, s.id
	`
	rows, err := s.db.Conn(ctx).Query(ctx, q, departmentID)
	if err != nil {
		return nil, fmt.Errorf("list doctors of department %s: %w", departmentID, err)
	}
	defer rows.Close()

	var out []Doctor
	for rows.Next() {
		var d Doctor
		if err := rows.Scan(&d.ID, &d.Name, &d.DepartmentID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PgSource) Templates(ctx context.Context, doctorID uuid.UUID) ([]Template, error) {
	const q = `
		SELECT day_of_week, start_time, end_time
		FROM doctor_schedules
		WHERE doctor_id = $1 AND is_active
		ORDER BY day_of_week, start_time
	`
	rows, err := s.db.Conn(ctx).Query(ctx, q, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list schedules of doctor %s: %w", doctorID, err)
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var (
			dow int
			t   = Template{Active: true}
		)
		if err := rows.Scan(&dow, &t.Start, &t.End); err != nil {
			return nil, err
		}
		t.DayOfWeek = time.Weekday(dow)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PgSource) ApprovedLeaves(ctx context.Context, doctorID uuid.UUID, from, to clock.Date) ([]Leave, error) {
	const q = `
		SELECT start_date, end_date, status
		FROM doctor_leaves
		WHERE doctor_id = $1
		  AND status = 'approved'
		  AND start_date <= $3
		  AND end_date >= $2
	`
	rows, err := s.db.Conn(ctx).Query(ctx, q, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list leave of doctor %s: %w", doctorID, err)
	}
	defer rows.Close()

	var out []Leave
	for rows.Next() {
		var l Leave
		if err := rows.Scan(&l.Start, &l.End, &l.Status); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *PgSource) BookedStarts(ctx context.Context, doctorID uuid.UUID, from, to clock.Date) (Booked, error) {
	const q = `
		SELECT appointment_date, start_time
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date BETWEEN $2 AND $3
		  AND status <> 'cancelled'
	`
	rows, err := s.db.Conn(ctx).Query(ctx, q, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list booked slots of doctor %s: %w", doctorID, err)
	}
	defer rows.Close()

	booked := make(Booked)
	for rows.Next() {
		var (
			d clock.Date
			t clock.TimeOfDay
		)
		if err := rows.Scan(&d, &t); err != nil {
			return nil, err
		}
		booked.Add(d, t)
	}
	return booked, rows.Err()
}
