// Package clock holds the civil date and time-of-day values appointments are keyed on.
// Neither type carries a location: the service runs in a single facility timezone.
package clock

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout    = "2006-01-02"
	timeLayout    = "15:04:05"
	secondsPerDay = 24 * 60 * 60
)

// Date is a calendar day.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func MustDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) IsZero() bool { return d == Date{} }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.time().Format(dateLayout)
}

// Compact renders the date as yyyymmdd.
func (d Date) Compact() string { return d.time().Format("20060102") }

func (d Date) Weekday() time.Weekday { return d.time().Weekday() }

func (d Date) AddDays(n int) Date { return DateOf(d.time().AddDate(0, 0, n)) }

func (d Date) AddMonths(n int) Date { return DateOf(d.time().AddDate(0, n, 0)) }

func (d Date) Before(o Date) bool { return d.time().Before(o.time()) }

func (d Date) After(o Date) bool { return d.time().After(o.time()) }

// DaysUntil returns the number of days from d to o, negative when o is earlier.
func (d Date) DaysUntil(o Date) int {
	return int(o.time().Sub(d.time()).Hours() / 24)
}

// At combines the date with a time of day in loc.
func (d Date) At(t TimeOfDay, loc *time.Location) time.Time {
	h, m, s := t.Clock()
	return time.Date(d.Year, d.Month, d.Day, h, m, s, 0, loc)
}

func (d Date) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Scan accepts the values pgx and database/sql produce for a date column.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = Date{}
		return nil
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		parsed, err := ParseDate(v)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	case []byte:
		return d.Scan(string(v))
	}
	return fmt.Errorf("clock: cannot scan %T into Date", src)
}

func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// TimeOfDay is a wall-clock time within a day, stored as seconds after midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute, second int) TimeOfDay {
	return TimeOfDay(hour*3600 + minute*60 + second)
}

// ParseTimeOfDay accepts HH:mm:ss or HH:mm.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	layout := timeLayout
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("parse time %q: %w", s, err)
	}
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second()), nil
}

func MustTime(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeOf returns the wall-clock time of t.
func TimeOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute(), t.Second())
}

func (t TimeOfDay) Clock() (hour, minute, second int) {
	s := int(t)
	return s / 3600, (s % 3600) / 60, s % 60
}

func (t TimeOfDay) String() string {
	h, m, s := t.Clock()
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// AddMinutes returns t shifted by n minutes and false when the result leaves the day.
func (t TimeOfDay) AddMinutes(n int) (TimeOfDay, bool) {
	r := int(t) + n*60
	if r < 0 || r > secondsPerDay {
		return 0, false
	}
	return TimeOfDay(r), true
}

// MinutesUntil returns the whole minutes from t to o.
func (t TimeOfDay) MinutesUntil(o TimeOfDay) int {
	return (int(o) - int(t)) / 60
}

func (t TimeOfDay) Valid() bool { return t >= 0 && t <= secondsPerDay }

func (t TimeOfDay) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Scan accepts the values pgx and database/sql produce for a time column.
func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case string:
		// postgres may render fractional seconds
		if i := strings.IndexByte(v, '.'); i >= 0 {
			v = v[:i]
		}
		if v == "24:00:00" {
			*t = TimeOfDay(secondsPerDay)
			return nil
		}
		parsed, err := ParseTimeOfDay(v)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case []byte:
		return t.Scan(string(v))
	case time.Time:
		*t = TimeOf(v)
		return nil
	case int64:
		// microseconds since midnight
		*t = TimeOfDay(v / 1_000_000)
		return nil
	}
	return fmt.Errorf("clock: cannot scan %T into TimeOfDay", src)
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}
