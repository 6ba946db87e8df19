package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/hackgods/hospital-appointment-engine/internal/db"
)

type PgRepository struct {
	db *db.TxManager
}

func NewPgRepository(txm *db.TxManager) *PgRepository {
	return &PgRepository{db: txm}
}

const findRuleSQL = `
	SELECT id, doctor_id IS NOT NULL, department_id, appointment_type,
	       base_fee::text, extension_fee_per_30min::text
	FROM appointment_pricing
	WHERE is_active
	  AND appointment_type = $3
	  AND (doctor_id = $1 OR (doctor_id IS NULL AND department_id = $2))
	ORDER BY doctor_id NULLS LAST
	LIMIT 1
`

func (r *PgRepository) FindRule(ctx context.Context, doctorID, departmentID uuid.UUID, appointmentType string) (*Rule, error) {
	var (
		rule      Rule
		base, ext string
	)
	err := r.db.Conn(ctx).QueryRow(ctx, findRuleSQL, doctorID, departmentID, appointmentType).
		Scan(&rule.ID, &rule.DoctorSpecific, &rule.DepartmentID, &rule.AppointmentType, &base, &ext)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find pricing rule: %w", err)
	}

	if rule.BaseFee, err = decimal.NewFromString(base); err != nil {
		return nil, fmt.Errorf("parse base_fee %q: %w", base, err)
	}
	if rule.ExtensionFeePer30, err = decimal.NewFromString(ext); err != nil {
		return nil, fmt.Errorf("parse extension_fee_per_30min %q: %w", ext, err)
	}
	return &rule, nil
}
