package calendar

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timebok/timebok/internal/utils"
	"github.com/timebok/timebok/pkg/appointment"
	"github.com/timebok/timebok/pkg/practitioner"
)

const unknownPractitioner = "Unknown"

type AppointmentLister interface {
	ListAppointments(ctx context.Context, from, to time.Time, practitionerId int) ([]appointment.Appointment, error)
}

type PractitionerLister interface {
	ListPractitioners(ctx context.Context) ([]practitioner.Practitioner, error)
}

type WeekEntry struct {
	Entry
	PractitionerName  string
	PractitionerColor string
}

type Week struct {
	Start   time.Time
	Days    []time.Time
	Window  Window
	Entries []WeekEntry
	Now     *NowIndicator
}

type Service struct {
	appointments  AppointmentLister
	practitioners PractitionerLister
	clock         utils.Clock
	loc           *time.Location
	slot          time.Duration
}

func NewService(appointments AppointmentLister, practitioners PractitionerLister, clock utils.Clock, loc *time.Location, slot time.Duration) *Service {
	return &Service{
		appointments:  appointments,
		practitioners: practitioners,
		clock:         clock,
		loc:           loc,
		slot:          slot,
	}
}

// Week builds the grid of the week containing date, optionally limited to one practitioner.
func (s *Service) Week(ctx context.Context, date time.Time, practitionerId int, window Window) (Week, error) {
	if err := window.Validate(); err != nil {
		return Week{}, err
	}

	start := WeekStart(date, s.loc)
	end := start.AddDate(0, 0, DaysPerWeek)
	appointments, err := s.appointments.ListAppointments(ctx, start, end, practitionerId)
	if err != nil {
		return Week{}, fmt.Errorf("failed to list appointments: %w", err)
	}
	practitioners, err := s.practitioners.ListPractitioners(ctx)
	if err != nil {
		return Week{}, fmt.Errorf("failed to list practitioners: %w", err)
	}
	byId := make(map[int]practitioner.Practitioner, len(practitioners))
	for _, p := range practitioners {
		byId[p.Id] = p
	}

	week := Week{
		Start:   start,
		Days:    make([]time.Time, 0, DaysPerWeek),
		Window:  window,
		Entries: make([]WeekEntry, 0, len(appointments)),
	}
	for i := range DaysPerWeek {
		week.Days = append(week.Days, start.AddDate(0, 0, i))
	}
	for _, entry := range Project(appointments, window, s.loc, s.slot) {
		weekEntry := WeekEntry{Entry: entry, PractitionerName: unknownPractitioner}
		if p, ok := byId[entry.Appointment.PractitionerId]; ok {
			weekEntry.PractitionerName = p.Name
			weekEntry.PractitionerColor = p.Color
		} else {
			log.Warnf("appointment %d references missing practitioner %d", entry.Appointment.Id, entry.Appointment.PractitionerId)
		}
		week.Entries = append(week.Entries, weekEntry)
	}

	now := s.clock.Now()
	if !now.Before(start) && now.Before(end) {
		if indicator, visible := Now(now, window, s.loc); visible {
			week.Now = &indicator
		}
	}
	return week, nil
}
