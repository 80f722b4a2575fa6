package appointment

import (
	"fmt"
	"time"

	"github.com/timebok/timebok/pkg/interval"
)

type Kind string

const (
	KindInClinic Kind = "in-clinic"
	KindVideo    Kind = "video-consultation"
	KindPhone    Kind = "phone-consultation"
)

var kinds = []Kind{KindInClinic, KindVideo, KindPhone}

func ParseKind(s string) (Kind, error) {
	for _, k := range kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown appointment type %q", s)}
}

// AllowsVideoLink reports whether appointments of this kind may carry a video link.
func (k Kind) AllowsVideoLink() bool {
	return k == KindVideo
}

type Appointment struct {
	Id             int64
	PractitionerId int
	StartTime      time.Time
	EndTime        time.Time
	Patient        string
	Kind           Kind
	// VideoLink is empty when the appointment has no link.
	VideoLink string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a Appointment) Interval() interval.Interval {
	return interval.Interval{Start: a.StartTime, End: a.EndTime}
}

// Changes holds the fields of an update request. Nil fields keep the stored value.
type Changes struct {
	PractitionerId *int
	StartTime      *time.Time
	EndTime        *time.Time
	Patient        *string
	Kind           *Kind
	VideoLink      *string
}

// applyTo merges the changes into a copy of a. Switching to a kind without video links
// drops the stored link unless a new one is given explicitly.
func (c Changes) applyTo(a Appointment) Appointment {
	if c.PractitionerId != nil {
		a.PractitionerId = *c.PractitionerId
	}
	if c.StartTime != nil {
		a.StartTime = *c.StartTime
	}
	if c.EndTime != nil {
		a.EndTime = *c.EndTime
	}
	if c.Patient != nil {
		a.Patient = *c.Patient
	}
	if c.Kind != nil {
		a.Kind = *c.Kind
		if !a.Kind.AllowsVideoLink() && c.VideoLink == nil {
			a.VideoLink = ""
		}
	}
	if c.VideoLink != nil {
		a.VideoLink = *c.VideoLink
	}
	return a
}
