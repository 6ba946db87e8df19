// Package pricing computes consultation fees from pricing rules.
package pricing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/hospital-appointment-engine/internal/apperr"
)

// BaseSlotMinutes is the length covered by the base fee. Every started
// block of this length beyond it is charged at the extension rate.
const BaseSlotMinutes = 30

type Rule struct {
	ID                uuid.UUID       `json:"id"`
	DoctorSpecific    bool            `json:"doctor_specific"`
	DepartmentID      uuid.UUID       `json:"department_id"`
	AppointmentType   string          `json:"appointment_type"`
	BaseFee           decimal.Decimal `json:"base_fee"`
	ExtensionFeePer30 decimal.Decimal `json:"extension_fee_per_30min"`
}

type Breakdown struct {
	BaseFee         decimal.Decimal `json:"base_fee"`
	ExtendedMinutes int             `json:"extended_minutes"`
	ExtensionFee    decimal.Decimal `json:"extension_fee"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
}

// Calculate prices a visit of durationMinutes.
func Calculate(base, ratePer30 decimal.Decimal, durationMinutes int) Breakdown {
	extended := durationMinutes - BaseSlotMinutes
	if extended < 0 {
		extended = 0
	}
	blocks := (extended + BaseSlotMinutes - 1) / BaseSlotMinutes
	extensionFee := ratePer30.Mul(decimal.NewFromInt(int64(blocks))).Round(2)
	base = base.Round(2)

	return Breakdown{
		BaseFee:         base,
		ExtendedMinutes: extended,
		ExtensionFee:    extensionFee,
		TotalAmount:     base.Add(extensionFee),
	}
}

// RuleSource finds the active rule for a doctor, falling back to the
// department default. It returns nil, nil when neither exists.
type RuleSource interface {
	FindRule(ctx context.Context, doctorID, departmentID uuid.UUID, appointmentType string) (*Rule, error)
}

type Calculator struct {
	rules RuleSource
}

func NewCalculator(rules RuleSource) *Calculator {
	return &Calculator{rules: rules}
}

func (c *Calculator) GetPricing(ctx context.Context, doctorID, departmentID uuid.UUID, appointmentType string) (*Rule, error) {
	rule, err := c.rules.FindRule(ctx, doctorID, departmentID, appointmentType)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, apperr.Configuration("failed to calculate fee: no pricing for %s in department %s", appointmentType, departmentID)
	}
	return rule, nil
}

func (c *Calculator) CalculateFee(ctx context.Context, doctorID, departmentID uuid.UUID, appointmentType string, durationMinutes int) (Breakdown, error) {
	if durationMinutes <= 0 {
		return Breakdown{}, apperr.Validation("duration_minutes must be positive")
	}
	rule, err := c.GetPricing(ctx, doctorID, departmentID, appointmentType)
	if err != nil {
		return Breakdown{}, err
	}
	return Calculate(rule.BaseFee, rule.ExtensionFeePer30, durationMinutes), nil
}
