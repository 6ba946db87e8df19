// Package availability derives free booking slots from weekly schedule
// templates, approved leave and existing appointments. Nothing is cached;
// every query reads the current source data.
package availability

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/hospital-appointment-engine/internal/clock"
)

const DefaultGranularity = 30 * time.Minute

// Template is one recurring weekly block of a doctor's schedule.
type Template struct {
	DayOfWeek time.Weekday
	Start     clock.TimeOfDay
	End       clock.TimeOfDay
	Active    bool
}

// Leave is an absence covering Start..End inclusive.
type Leave struct {
	Start  clock.Date
	End    clock.Date
	Status string
}

const LeaveApproved = "approved"

func (l Leave) covers(d clock.Date) bool {
	return l.Status == LeaveApproved && !d.Before(l.Start) && !d.After(l.End)
}

type Slot struct {
	Date      clock.Date      `json:"date"`
	Time      clock.TimeOfDay `json:"time"`
	DayOfWeek string          `json:"day_of_week"`
	DoctorID  *uuid.UUID      `json:"doctor_id,omitempty"`
}

// Booked holds the start times already taken per day.
type Booked map[clock.Date][]clock.TimeOfDay

func (b Booked) Add(d clock.Date, t clock.TimeOfDay) {
	b[d] = append(b[d], t)
}

func (b Booked) has(d clock.Date, t clock.TimeOfDay) bool {
	for _, s := range b[d] {
		if s == t {
			return true
		}
	}
	return false
}

// Derive lists the free slots between from and to inclusive.
func Derive(from, to clock.Date, templates []Template, leaves []Leave, booked Booked, granularity time.Duration) []Slot {
	step := int(granularity / time.Minute)
	if step <= 0 {
		step = int(DefaultGranularity / time.Minute)
	}

	byDay := make(map[time.Weekday][]Template)
	for _, t := range templates {
		if t.Active {
			byDay[t.DayOfWeek] = append(byDay[t.DayOfWeek], t)
		}
	}

	var slots []Slot
	for d := from; !d.After(to); d = d.AddDays(1) {
		dayTemplates := byDay[d.Weekday()]
		if len(dayTemplates) == 0 || onLeave(d, leaves) {
			continue
		}

		seen := make(map[clock.TimeOfDay]bool)
		var times []clock.TimeOfDay
		for _, tpl := range dayTemplates {
			for t := tpl.Start; t < tpl.End; {
				if !seen[t] && !booked.has(d, t) {
					seen[t] = true
					times = append(times, t)
				}
				next, ok := t.AddMinutes(step)
				if !ok {
					break
				}
				t = next
			}
		}
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

		day := strings.ToLower(d.Weekday().String())
		for _, t := range times {
			slots = append(slots, Slot{Date: d, Time: t, DayOfWeek: day})
		}
	}
	return slots
}

func onLeave(d clock.Date, leaves []Leave) bool {
	for _, l := range leaves {
		if l.covers(d) {
			return true
		}
	}
	return false
}

type DaySlots struct {
	Date      clock.Date        `json:"date"`
	DayOfWeek string            `json:"day_of_week"`
	Times     []clock.TimeOfDay `json:"times"`
}

// GroupByDate folds an ordered slot list into one entry per day.
func GroupByDate(slots []Slot) []DaySlots {
	var out []DaySlots
	for _, s := range slots {
		if n := len(out); n > 0 && out[n-1].Date == s.Date {
			out[n-1].Times = append(out[n-1].Times, s.Time)
			continue
		}
		out = append(out, DaySlots{Date: s.Date, DayOfWeek: s.DayOfWeek, Times: []clock.TimeOfDay{s.Time}})
	}
	return out
}
