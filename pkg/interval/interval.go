// Package interval models half-open time intervals [Start, End).
package interval

import (
	"errors"
	"fmt"
	"time"
)

var ErrEmptyInterval = errors.New("interval start must be before end")

type Interval struct {
	Start time.Time
	End   time.Time
}

// New returns the interval [start, end) or ErrEmptyInterval when start is not before end.
func New(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: %s >= %s", ErrEmptyInterval, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{Start: start, End: end}, nil
}

// Overlaps reports whether a and b share any instant. Intervals that only touch
// (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

func (i Interval) Overlaps(other Interval) bool {
	return Overlaps(i, other)
}

// Contains reports whether t lies in [Start, End).
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) IsEmpty() bool {
	return !i.Start.Before(i.End)
}

func (i Interval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start.Format(time.RFC3339), i.End.Format(time.RFC3339))
}

// Snap rounds t down to the previous multiple of granularity counted from the start
// of t's day in t's location. A non-positive granularity returns t unchanged.
func Snap(t time.Time, granularity time.Duration) time.Time {
	if granularity <= 0 {
		return t
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	sinceMidnight := t.Sub(midnight)
	return midnight.Add(sinceMidnight - sinceMidnight%granularity)
}
