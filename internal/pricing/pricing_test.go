package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-appointment-engine/internal/apperr"
	"github.com/hackgods/hospital-appointment-engine/internal/db"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculate(t *testing.T) {
	cases := []struct {
		name      string
		duration  int
		extended  int
		extension string
		total     string
	}{
		{"base slot only", 30, 0, "0", "500"},
		{"shorter than base", 15, 0, "0", "500"},
		{"one started block", 31, 1, "200", "700"},
		{"exactly one block", 60, 30, "200", "700"},
		{"seventy five minutes", 75, 45, "400", "900"},
		{"two hours", 120, 90, "600", "1100"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := Calculate(dec("500"), dec("200"), tc.duration)
			assert.True(t, b.BaseFee.Equal(dec("500")))
			assert.Equal(t, tc.extended, b.ExtendedMinutes)
			assert.True(t, b.ExtensionFee.Equal(dec(tc.extension)), "extension fee %s", b.ExtensionFee)
			assert.True(t, b.TotalAmount.Equal(dec(tc.total)), "total %s", b.TotalAmount)
		})
	}
}

func TestCalculateTotalNeverDecreasesWithDuration(t *testing.T) {
	prev := decimal.Zero
	for d := 1; d <= 240; d++ {
		b := Calculate(dec("350.50"), dec("120.25"), d)
		assert.False(t, b.TotalAmount.LessThan(prev), "duration %d", d)
		prev = b.TotalAmount
	}
}

type stubSource struct {
	rule *Rule
	err  error
}

func (s stubSource) FindRule(context.Context, uuid.UUID, uuid.UUID, string) (*Rule, error) {
	return s.rule, s.err
}

func TestCalculateFee(t *testing.T) {
	calc := NewCalculator(stubSource{rule: &Rule{BaseFee: dec("500"), ExtensionFeePer30: dec("200")}})

	b, err := calc.CalculateFee(context.Background(), uuid.New(), uuid.New(), "consultation", 75)
	require.NoError(t, err)
	assert.Equal(t, 45, b.ExtendedMinutes)
	assert.True(t, b.ExtensionFee.Equal(dec("400")))
	assert.True(t, b.TotalAmount.Equal(dec("900")))
}

func TestCalculateFeeMissingRule(t *testing.T) {
	calc := NewCalculator(stubSource{})

	_, err := calc.CalculateFee(context.Background(), uuid.New(), uuid.New(), "procedure", 30)
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
	assert.Contains(t, err.Error(), "failed to calculate fee")
}

func TestCalculateFeeRejectsNonPositiveDuration(t *testing.T) {
	calc := NewCalculator(stubSource{rule: &Rule{}})

	_, err := calc.CalculateFee(context.Background(), uuid.New(), uuid.New(), "consultation", 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestCalculateFeePropagatesSourceError(t *testing.T) {
	boom := errors.New("pool closed")
	calc := NewCalculator(stubSource{err: boom})

	_, err := calc.CalculateFee(context.Background(), uuid.New(), uuid.New(), "consultation", 30)
	assert.ErrorIs(t, err, boom)
}

func TestPgRepositoryFindRule(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ruleID, doctorID, deptID := uuid.New(), uuid.New(), uuid.New()
	mock.ExpectQuery("FROM appointment_pricing").
		WithArgs(doctorID, deptID, "consultation").
		WillReturnRows(pgxmock.NewRows([]string{"id", "doctor_specific", "department_id", "appointment_type", "base_fee", "extension_fee_per_30min"}).
			AddRow(ruleID, true, deptID, "consultation", "650.00", "150.00"))

	repo := NewPgRepository(db.NewTxManager(mock))
	rule, err := repo.FindRule(context.Background(), doctorID, deptID, "consultation")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, ruleID, rule.ID)
	assert.True(t, rule.DoctorSpecific)
	assert.True(t, rule.BaseFee.Equal(dec("650")))
	assert.True(t, rule.ExtensionFeePer30.Equal(dec("150")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgRepositoryFindRuleNone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery("FROM appointment_pricing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "doctor_specific", "department_id", "appointment_type", "base_fee", "extension_fee_per_30min"}))

	repo := NewPgRepository(db.NewTxManager(mock))
	rule, err := repo.FindRule(context.Background(), uuid.New(), uuid.New(), "telemedicine")
	require.NoError(t, err)
	assert.Nil(t, rule)
	require.NoError(t, mock.ExpectationsWereMet())
}
