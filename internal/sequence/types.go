package sequence

import (
	"fmt"
	"time"

	"github.com/hackgods/hospital-appointment-engine/internal/apperr"
)

// Type is a numbering category. Each category has its own counter row.
type Type string

const (
	Appointment  Type = "appointment"
	Admission    Type = "admission"
	LabOrder     Type = "lab_order"
	MRN          Type = "mrn"
	TempMRN      Type = "temp_mrn"
	ERVisit      Type = "er_visit"
	Prescription Type = "prescription"
	Invoice      Type = "invoice"
)

type ResetPolicy string

const (
	ResetYearly ResetPolicy = "yearly"
	ResetDaily  ResetPolicy = "daily"
	ResetNever  ResetPolicy = "never"
)

// EpochKey names the reset window now falls in. Counters restart when it changes.
func (p ResetPolicy) EpochKey(now time.Time) (string, error) {
	switch p {
	case ResetYearly:
		return now.Format("2006"), nil
	case ResetDaily:
		return now.Format("20060102"), nil
	case ResetNever:
		return "", nil
	}
	return "", apperr.Configuration("unknown reset policy %q", string(p))
}

// Definition seeds a counter row on first use.
type Definition struct {
	Prefix  string
	Padding int
	Reset   ResetPolicy
}

var definitions = map[Type]Definition{
	Appointment:  {Prefix: "APT", Padding: 6, Reset: ResetYearly},
	Admission:    {Prefix: "ADM", Padding: 6, Reset: ResetYearly},
	LabOrder:     {Prefix: "LAB", Padding: 5, Reset: ResetDaily},
	MRN:          {Prefix: "MRN", Padding: 8, Reset: ResetNever},
	TempMRN:      {Prefix: "TEMP", Padding: 4, Reset: ResetDaily},
	ERVisit:      {Prefix: "ER", Padding: 5, Reset: ResetDaily},
	Prescription: {Prefix: "RX", Padding: 6, Reset: ResetYearly},
	Invoice:      {Prefix: "INV", Padding: 6, Reset: ResetYearly},
}

// Lookup returns the seed definition of t.
func Lookup(t Type) (Definition, error) {
	def, ok := definitions[t]
	if !ok {
		return Definition{}, apperr.Configuration("unknown sequence type %q", string(t))
	}
	return def, nil
}

// Format renders {prefix}-{epoch}-{value}, dropping the epoch segment for never-reset counters.
func Format(def Definition, epoch string, value int64) string {
	n := fmt.Sprintf("%0*d", def.Padding, value)
	if epoch == "" {
		return def.Prefix + "-" + n
	}
	return def.Prefix + "-" + epoch + "-" + n
}
