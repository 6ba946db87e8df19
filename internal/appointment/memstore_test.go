package appointment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/hospital-appointment-engine/internal/clock"
	"github.com/hackgods/hospital-appointment-engine/internal/notify"
	"github.com/hackgods/hospital-appointment-engine/internal/pricing"
	"github.com/hackgods/hospital-appointment-engine/internal/sequence"
)

// memStore is an in-memory Repository, Transactor and Sequencer. Transactions
// are serialised and roll back to a snapshot on error.
type memStore struct {
	mu  sync.Mutex
	now func() time.Time

	doctors      map[uuid.UUID]Doctor
	departments  map[uuid.UUID]Department
	persons      map[uuid.UUID]string
	patients     map[uuid.UUID]Patient
	appointments map[uuid.UUID]Appointment
	history      []History
	payments     []Payment
	counters     map[sequence.Type]int64
	historySeq   int64

	failHistory bool
}

type memTxKey struct{}

type memSnapshot struct {
	patients     map[uuid.UUID]Patient
	appointments map[uuid.UUID]Appointment
	history      []History
	payments     []Payment
	counters     map[sequence.Type]int64
	historySeq   int64
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:          now,
		doctors:      map[uuid.UUID]Doctor{},
		departments:  map[uuid.UUID]Department{},
		persons:      map[uuid.UUID]string{},
		patients:     map[uuid.UUID]Patient{},
		appointments: map[uuid.UUID]Appointment{},
		counters:     map[sequence.Type]int64{},
	}
}

func (m *memStore) snapshot() memSnapshot {
	s := memSnapshot{
		patients:     make(map[uuid.UUID]Patient, len(m.patients)),
		appointments: make(map[uuid.UUID]Appointment, len(m.appointments)),
		history:      append([]History(nil), m.history...),
		payments:     append([]Payment(nil), m.payments...),
		counters:     make(map[sequence.Type]int64, len(m.counters)),
		historySeq:   m.historySeq,
	}
	for k, v := range m.patients {
		s.patients[k] = v
	}
	for k, v := range m.appointments {
		s.appointments[k] = v
	}
	for k, v := range m.counters {
		s.counters[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.patients = s.patients
	m.appointments = s.appointments
	m.history = s.history
	m.payments = s.payments
	m.counters = s.counters
	m.historySeq = s.historySeq
}

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *memStore) guard(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

// Sequencer

func (m *memStore) Next(ctx context.Context, t sequence.Type) (string, error) {
	defer m.guard(ctx)()

	def, err := sequence.Lookup(t)
	if err != nil {
		return "", err
	}
	epoch, err := def.Reset.EpochKey(m.now())
	if err != nil {
		return "", err
	}
	m.counters[t]++
	return sequence.Format(def, epoch, m.counters[t]), nil
}

// Collaborators

func (m *memStore) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	defer m.guard(ctx)()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *memStore) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	defer m.guard(ctx)()
	d, ok := m.departments[id]
	if !ok {
		return nil, ErrDepartmentNotFound
	}
	return &d, nil
}

func (m *memStore) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	defer m.guard(ctx)()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *memStore) GetPatientByPerson(ctx context.Context, personID uuid.UUID) (*Patient, error) {
	defer m.guard(ctx)()
	for _, p := range m.patients {
		if p.PersonID == personID {
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (m *memStore) GetPersonName(ctx context.Context, personID uuid.UUID) (string, error) {
	defer m.guard(ctx)()
	name, ok := m.persons[personID]
	if !ok {
		return "", ErrPersonNotFound
	}
	return name, nil
}

func (m *memStore) CreatePatient(ctx context.Context, p *Patient) error {
	defer m.guard(ctx)()
	p.CreatedAt = m.now()
	m.patients[p.ID] = *p
	return nil
}

// Appointments

func (m *memStore) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	defer m.guard(ctx)()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memStore) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return m.GetAppointment(ctx, id)
}

func (m *memStore) filter(keep func(Appointment) bool) []Appointment {
	var out []Appointment
	for _, a := range m.appointments {
		if keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out
}

func (m *memStore) ListActiveForDoctorDate(ctx context.Context, doctorID uuid.UUID, date clock.Date) ([]Appointment, error) {
	defer m.guard(ctx)()
	return m.filter(func(a Appointment) bool {
		return a.DoctorID == doctorID && a.Date == date && a.Status != StatusCancelled
	}), nil
}

func (m *memStore) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	defer m.guard(ctx)()
	all := m.filter(func(a Appointment) bool { return a.PatientID == patientID })
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (m *memStore) ListByDoctorDate(ctx context.Context, doctorID uuid.UUID, date clock.Date) ([]Appointment, error) {
	defer m.guard(ctx)()
	return m.filter(func(a Appointment) bool { return a.DoctorID == doctorID && a.Date == date }), nil
}

func (m *memStore) FindNoShowCandidates(ctx context.Context, before clock.Date, limit int) ([]uuid.UUID, error) {
	defer m.guard(ctx)()
	var ids []uuid.UUID
	for _, a := range m.filter(func(a Appointment) bool {
		return (a.Status == StatusScheduled || a.Status == StatusRescheduled) && a.Date.Before(before)
	}) {
		if len(ids) == limit {
			break
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

func (m *memStore) slotTaken(a *Appointment) bool {
	for _, other := range m.appointments {
		if other.ID != a.ID && other.Status != StatusCancelled && a.Status != StatusCancelled &&
			other.DoctorID == a.DoctorID && other.Date == a.Date && other.StartTime == a.StartTime {
			return true
		}
	}
	return false
}

func (m *memStore) InsertAppointment(ctx context.Context, a *Appointment) error {
	defer m.guard(ctx)()
	if m.slotTaken(a) {
		return ErrSlotTaken
	}
	a.CreatedAt, a.UpdatedAt = m.now(), m.now()
	m.appointments[a.ID] = *a
	return nil
}

func (m *memStore) UpdateAppointment(ctx context.Context, a *Appointment) error {
	defer m.guard(ctx)()
	if _, ok := m.appointments[a.ID]; !ok {
		return ErrAppointmentNotFound
	}
	if m.slotTaken(a) {
		return ErrSlotTaken
	}
	a.UpdatedAt = m.now()
	m.appointments[a.ID] = *a
	return nil
}

// History

func (m *memStore) InsertHistory(ctx context.Context, h *History) error {
	defer m.guard(ctx)()
	if m.failHistory {
		return errors.New("appointment_history: disk full")
	}
	m.historySeq++
	h.ID = m.historySeq
	h.CreatedAt = m.now()
	m.history = append(m.history, *h)
	return nil
}

func (m *memStore) ListHistory(ctx context.Context, appointmentID uuid.UUID, limit int) ([]History, error) {
	defer m.guard(ctx)()
	var out []History
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].AppointmentID != appointmentID {
			continue
		}
		out = append(out, m.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Payments

func (m *memStore) InsertPayment(ctx context.Context, p *Payment) error {
	defer m.guard(ctx)()
	p.CreatedAt = m.now()
	m.payments = append(m.payments, *p)
	return nil
}

func (m *memStore) ListPayments(ctx context.Context, appointmentID uuid.UUID) ([]Payment, error) {
	defer m.guard(ctx)()
	var out []Payment
	for _, p := range m.payments {
		if p.AppointmentID == appointmentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) SumCompletedPayments(ctx context.Context, appointmentID uuid.UUID) (decimal.Decimal, error) {
	defer m.guard(ctx)()
	sum := decimal.Zero
	for _, p := range m.payments {
		if p.AppointmentID == appointmentID && p.Status == PaymentRecordCompleted {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (m *memStore) historyFor(id uuid.UUID) []History {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []History
	for _, h := range m.history {
		if h.AppointmentID == id {
			out = append(out, h)
		}
	}
	return out
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appointments)
}

// ruleBook is a pricing.RuleSource whose rate can change between calls.
type ruleBook struct {
	mu   sync.Mutex
	base decimal.Decimal
	rate decimal.Decimal
	none bool
}

func (r *ruleBook) FindRule(_ context.Context, _, departmentID uuid.UUID, appointmentType string) (*pricing.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.none {
		return nil, nil
	}
	return &pricing.Rule{
		ID:                uuid.New(),
		DepartmentID:      departmentID,
		AppointmentType:   appointmentType,
		BaseFee:           r.base,
		ExtensionFeePer30: r.rate,
	}, nil
}

func (r *ruleBook) setRate(rate string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = decimal.RequireFromString(rate)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Publish(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type stubLocker struct {
	err error
}

func (l stubLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if l.err != nil {
		return l.err
	}
	return fn(ctx)
}
