package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timebok/timebok/internal/event_bus"
	"github.com/timebok/timebok/internal/rest"
	"github.com/timebok/timebok/pkg/auth"
)

const maxUpdateAttempts = 3

var errPractitionerChanged = errors.New("appointment moved to another practitioner concurrently")

type Service interface {
	ListAppointments(ctx context.Context, from, to time.Time, practitionerId int) ([]Appointment, error)
	GetAppointment(ctx context.Context, id int64) (Appointment, error)
	CreateAppointment(ctx context.Context, candidate Appointment) (Appointment, error)
	UpdateAppointment(ctx context.Context, id int64, changes Changes) (Appointment, error)
	DeleteAppointment(ctx context.Context, id int64) error
}

type ServiceImpl struct {
	repo        Repository
	eventBus    *event_bus.EventBus
	locks       *practitionerLocks
	minDuration time.Duration
}

func NewService(repo Repository, eventBus *event_bus.EventBus, minDuration time.Duration) *ServiceImpl {
	return &ServiceImpl{
		repo:        repo,
		eventBus:    eventBus,
		locks:       newPractitionerLocks(),
		minDuration: minDuration,
	}
}

func (s *ServiceImpl) ListAppointments(ctx context.Context, from, to time.Time, practitionerId int) ([]Appointment, error) {
	if practitionerId < 0 {
		return nil, &ValidationError{Field: "practitionerId", Reason: "must not be negative"}
	}
	if !from.Before(to) {
		return []Appointment{}, nil
	}
	return s.repo.ListByRange(ctx, from, to, practitionerId)
}

func (s *ServiceImpl) GetAppointment(ctx context.Context, id int64) (Appointment, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) CreateAppointment(ctx context.Context, candidate Appointment) (Appointment, error) {
	caller, err := auth.CurrentCaller(ctx)
	if err != nil {
		return Appointment{}, err
	}

	candidate.Id = 0
	candidate.Patient = strings.TrimSpace(candidate.Patient)
	if err := s.validate(candidate); err != nil {
		return Appointment{}, err
	}

	unlock := s.locks.Lock(candidate.PractitionerId)
	defer unlock()

	var created Appointment
	err = s.repo.WithTransaction(ctx, func(repo Repository) error {
		if err := repo.LockPractitioners(ctx, candidate.PractitionerId); err != nil {
			return err
		}
		if err := CheckAdmit(ctx, repo, candidate.PractitionerId, candidate.Interval(), 0); err != nil {
			return err
		}
		created, err = repo.Insert(ctx, candidate)
		return err
	})
	if err != nil {
		log.Debugf("appointment for practitioner %d rejected: %v", candidate.PractitionerId, err)
		return Appointment{}, mapPractitionerError(err)
	}

	s.publish(ctx, event_bus.AppointmentCreatedType, created, caller, Appointment{})
	return created, nil
}

func (s *ServiceImpl) UpdateAppointment(ctx context.Context, id int64, changes Changes) (Appointment, error) {
	caller, err := auth.CurrentCaller(ctx)
	if err != nil {
		return Appointment{}, err
	}
	if changes.Patient != nil {
		trimmed := strings.TrimSpace(*changes.Patient)
		changes.Patient = &trimmed
	}
	if err := validateChanges(changes); err != nil {
		return Appointment{}, err
	}

	// The target practitioner is only known after reading the record. If it changes
	// between the read and the lock, start over with the fresh record.
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		current, err := s.repo.Get(ctx, id)
		if err != nil {
			return Appointment{}, err
		}
		target := changes.applyTo(current)
		if err := s.validate(target); err != nil {
			return Appointment{}, err
		}

		updated, previous, err := s.updateLocked(ctx, id, changes, target.PractitionerId)
		if errors.Is(err, errPractitionerChanged) {
			log.Debugf("retrying update of appointment %d (attempt %d)", id, attempt)
			continue
		}
		if err != nil {
			log.Debugf("update of appointment %d rejected: %v", id, err)
			return Appointment{}, mapPractitionerError(err)
		}

		s.publish(ctx, event_bus.AppointmentUpdatedType, updated, caller, previous)
		return updated, nil
	}
	return Appointment{}, fmt.Errorf("%w: update of appointment %d: %w", ErrStorage, id, errPractitionerChanged)
}

func (s *ServiceImpl) updateLocked(ctx context.Context, id int64, changes Changes, practitionerId int) (Appointment, Appointment, error) {
	unlock := s.locks.Lock(practitionerId)
	defer unlock()

	var updated, previous Appointment
	err := s.repo.WithTransaction(ctx, func(repo Repository) error {
		if err := repo.LockPractitioners(ctx, practitionerId); err != nil {
			return err
		}
		current, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		merged := changes.applyTo(current)
		if merged.PractitionerId != practitionerId {
			return errPractitionerChanged
		}
		if err := s.validate(merged); err != nil {
			return err
		}
		if err := CheckAdmit(ctx, repo, practitionerId, merged.Interval(), id); err != nil {
			return err
		}
		previous = current
		updated, err = repo.Update(ctx, merged)
		return err
	})
	return updated, previous, err
}

func (s *ServiceImpl) DeleteAppointment(ctx context.Context, id int64) error {
	caller, err := auth.CurrentCaller(ctx)
	if err != nil {
		return err
	}

	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrAppointmentNotFound
	}

	s.publish(ctx, event_bus.AppointmentDeletedType, existing, caller, Appointment{})
	return nil
}

func (s *ServiceImpl) validate(a Appointment) error {
	if a.PractitionerId <= 0 {
		return &ValidationError{Field: "practitioner_id", Reason: "is required"}
	}
	if a.StartTime.IsZero() {
		return &ValidationError{Field: "start_time", Reason: "is required"}
	}
	if a.EndTime.IsZero() {
		return &ValidationError{Field: "end_time", Reason: "is required"}
	}
	if !a.StartTime.Before(a.EndTime) {
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	if d := a.EndTime.Sub(a.StartTime); d < s.minDuration {
		return &ValidationError{Field: "end_time", Reason: fmt.Sprintf("appointment must last at least %s", s.minDuration)}
	}
	if strings.TrimSpace(a.Patient) == "" {
		return &ValidationError{Field: "patient", Reason: "is required"}
	}
	if _, err := ParseKind(string(a.Kind)); err != nil {
		return err
	}
	if a.VideoLink != "" {
		if !a.Kind.AllowsVideoLink() {
			return &ValidationError{Field: "video_link", Reason: fmt.Sprintf("is not allowed for %s appointments", a.Kind)}
		}
		if err := rest.ValidateVar(a.VideoLink, "http_url"); err != nil {
			return &ValidationError{Field: "video_link", Reason: "must be an http(s) URL"}
		}
	}
	return nil
}

func validateChanges(c Changes) error {
	if c.PractitionerId != nil && *c.PractitionerId <= 0 {
		return &ValidationError{Field: "practitioner_id", Reason: "must be positive"}
	}
	if c.Patient != nil && *c.Patient == "" {
		return &ValidationError{Field: "patient", Reason: "must not be blank"}
	}
	if c.Kind != nil {
		if _, err := ParseKind(string(*c.Kind)); err != nil {
			return err
		}
	}
	if c.StartTime != nil && c.StartTime.IsZero() {
		return &ValidationError{Field: "start_time", Reason: "must not be zero"}
	}
	if c.EndTime != nil && c.EndTime.IsZero() {
		return &ValidationError{Field: "end_time", Reason: "must not be zero"}
	}
	return nil
}

// mapPractitionerError reports an unknown practitioner as invalid input.
func mapPractitionerError(err error) error {
	if errors.Is(err, ErrPractitionerNotFound) {
		return &ValidationError{Field: "practitioner_id", Reason: "refers to an unknown practitioner"}
	}
	return err
}

// publish notifies subscribers about a committed change. Failures are logged only:
// the mutation already happened.
func (s *ServiceImpl) publish(ctx context.Context, eventType event_bus.EventType, a Appointment, caller auth.Caller, previous Appointment) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.Publish(event_bus.NewEvent(context.WithoutCancel(ctx), eventType, event_bus.AppointmentChanged{
		Id:                a.Id,
		PractitionerId:    a.PractitionerId,
		StartTime:         a.StartTime,
		EndTime:           a.EndTime,
		Type:              string(a.Kind),
		ActorId:           caller.PractitionerId,
		PreviousStartTime: previous.StartTime,
		PreviousEndTime:   previous.EndTime,
	}))
	if err != nil {
		log.Errorf("failed to publish %s for appointment %d: %v", eventType, a.Id, err)
	}
}
