package appointment

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/timebok/timebok/pkg/interval"
)

// RepositoryStub is an in-memory Repository. Transactions are serialized and roll back
// on error; practitioners must be registered with AddPractitioner before they can be locked.
type RepositoryStub struct {
	txMu          sync.Mutex
	mu            sync.RWMutex
	appointments  map[int64]Appointment
	practitioners map[int]bool
	nextId        int64
	failNext      error
	now           func() time.Time
}

func NewRepositoryStub() *RepositoryStub {
	return &RepositoryStub{
		appointments:  make(map[int64]Appointment),
		practitioners: make(map[int]bool),
		nextId:        1,
		now:           time.Now,
	}
}

func (r *RepositoryStub) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appointments = make(map[int64]Appointment)
	r.practitioners = make(map[int]bool)
	r.nextId = 1
	r.failNext = nil
}

func (r *RepositoryStub) AddPractitioner(ids ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.practitioners[id] = true
	}
}

// FailNextWrite makes the next Insert, Update or Delete return err.
func (r *RepositoryStub) FailNextWrite(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

func (r *RepositoryStub) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()

	r.mu.RLock()
	originalAppointments := maps.Clone(r.appointments)
	originalNextId := r.nextId
	r.mu.RUnlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.appointments = originalAppointments
		r.nextId = originalNextId
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *RepositoryStub) LockPractitioners(ctx context.Context, practitionerIds ...int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range practitionerIds {
		if !r.practitioners[id] {
			return ErrPractitionerNotFound
		}
	}
	return nil
}

func (r *RepositoryStub) takeFailure() error {
	err := r.failNext
	r.failNext = nil
	return err
}

func (r *RepositoryStub) Insert(ctx context.Context, appointment Appointment) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return Appointment{}, err
	}
	if !r.practitioners[appointment.PractitionerId] {
		return Appointment{}, ErrPractitionerNotFound
	}

	appointment.Id = r.nextId
	r.nextId++
	appointment.CreatedAt = r.now()
	appointment.UpdatedAt = appointment.CreatedAt
	r.appointments[appointment.Id] = appointment
	return appointment, nil
}

func (r *RepositoryStub) Get(ctx context.Context, id int64) (Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	appointment, ok := r.appointments[id]
	if !ok {
		return Appointment{}, ErrAppointmentNotFound
	}
	return appointment, nil
}

func (r *RepositoryStub) ListByRange(ctx context.Context, from, to time.Time, practitionerId int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Appointment, 0)
	for _, appointment := range r.appointments {
		if appointment.StartTime.Before(from) || !appointment.StartTime.Before(to) {
			continue
		}
		if practitionerId != 0 && appointment.PractitionerId != practitionerId {
			continue
		}
		result = append(result, appointment)
	}
	sortByStart(result)
	return result, nil
}

func (r *RepositoryStub) ListOverlapping(
	ctx context.Context,
	practitionerId int,
	candidate interval.Interval,
	excludeId int64,
) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Appointment, 0)
	for id, appointment := range r.appointments {
		if id == excludeId || appointment.PractitionerId != practitionerId {
			continue
		}
		if interval.Overlaps(appointment.Interval(), candidate) {
			result = append(result, appointment)
		}
	}
	sortByStart(result)
	return result, nil
}

func (r *RepositoryStub) Update(ctx context.Context, appointment Appointment) (Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return Appointment{}, err
	}
	existing, ok := r.appointments[appointment.Id]
	if !ok {
		return Appointment{}, ErrAppointmentNotFound
	}
	if !r.practitioners[appointment.PractitionerId] {
		return Appointment{}, ErrPractitionerNotFound
	}
	appointment.CreatedAt = existing.CreatedAt
	appointment.UpdatedAt = r.now()
	r.appointments[appointment.Id] = appointment
	return appointment, nil
}

func (r *RepositoryStub) Delete(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.takeFailure(); err != nil {
		return false, err
	}
	if _, ok := r.appointments[id]; !ok {
		return false, nil
	}
	delete(r.appointments, id)
	return true, nil
}

func (r *RepositoryStub) CountFrom(ctx context.Context, practitionerId int, from time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, appointment := range r.appointments {
		if appointment.PractitionerId == practitionerId && appointment.EndTime.After(from) {
			count++
		}
	}
	return count, nil
}

func sortByStart(appointments []Appointment) {
	slices.SortFunc(appointments, func(a, b Appointment) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return cmp.Compare(a.Id, b.Id)
	})
}
