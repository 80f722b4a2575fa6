package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/timebok/timebok/pkg/appointment"
	"github.com/timebok/timebok/pkg/interval"
)

const DaysPerWeek = 7

var ErrInvalidWindow = errors.New("invalid calendar window")

// Window is the visible part of each day, in whole hours of local time.
type Window struct {
	StartHour int
	EndHour   int
}

func (w Window) Validate() error {
	if w.StartHour < 0 || w.EndHour > 24 || w.StartHour >= w.EndHour {
		return fmt.Errorf("%w: start hour %d must be before end hour %d within 0-24", ErrInvalidWindow, w.StartHour, w.EndHour)
	}
	return nil
}

// Entry places one appointment in the week grid. TopOffsetMinutes is measured from the
// window start and may be negative or exceed the window for appointments outside it.
type Entry struct {
	Appointment      appointment.Appointment
	DayIndex         int
	TopOffsetMinutes int
	HeightMinutes    int
	// SlotIndex is the row of the slot the appointment starts in, counted from the window start.
	SlotIndex int
}

// DayIndex maps a weekday to its column, Monday being 0 and Sunday 6.
func DayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// WeekStart returns Monday 00:00 of the week containing t, in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return midnight.AddDate(0, 0, -DayIndex(local))
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Project converts appointments into grid entries. Times are interpreted in loc and
// slot is the row granularity used for SlotIndex.
func Project(appointments []appointment.Appointment, window Window, loc *time.Location, slot time.Duration) []Entry {
	entries := make([]Entry, 0, len(appointments))
	for _, a := range appointments {
		start := a.StartTime.In(loc)
		top := minuteOfDay(start) - window.StartHour*60

		slotIndex := 0
		if slot > 0 {
			snapped := interval.Snap(start, slot)
			slotIndex = int((time.Duration(minuteOfDay(snapped)-window.StartHour*60) * time.Minute) / slot)
		}

		entries = append(entries, Entry{
			Appointment:      a,
			DayIndex:         DayIndex(start),
			TopOffsetMinutes: top,
			HeightMinutes:    int(a.EndTime.Sub(a.StartTime) / time.Minute),
			SlotIndex:        slotIndex,
		})
	}
	return entries
}

type NowIndicator struct {
	DayIndex      int
	OffsetMinutes int
}

// Now positions the current-time line. It is hidden when now falls outside the window hours.
func Now(now time.Time, window Window, loc *time.Location) (NowIndicator, bool) {
	local := now.In(loc)
	if local.Hour() < window.StartHour || local.Hour() >= window.EndHour {
		return NowIndicator{}, false
	}
	return NowIndicator{
		DayIndex:      DayIndex(local),
		OffsetMinutes: minuteOfDay(local) - window.StartHour*60,
	}, true
}
