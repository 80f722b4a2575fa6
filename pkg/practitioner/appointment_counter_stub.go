package practitioner

import (
	"context"
	"sync"
	"time"
)

// AppointmentCounterStub counts appointment end times registered with Add.
type AppointmentCounterStub struct {
	mu   sync.Mutex
	ends map[int][]time.Time
}

func NewAppointmentCounterStub() *AppointmentCounterStub {
	return &AppointmentCounterStub{ends: make(map[int][]time.Time)}
}

func (s *AppointmentCounterStub) Add(practitionerId int, end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends[practitionerId] = append(s.ends[practitionerId], end)
}

func (s *AppointmentCounterStub) CountFrom(ctx context.Context, practitionerId int, from time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, end := range s.ends[practitionerId] {
		if end.After(from) {
			count++
		}
	}
	return count, nil
}
