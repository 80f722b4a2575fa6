package practitioner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/timebok/timebok/internal/event_bus"
	"github.com/timebok/timebok/internal/utils"
	"github.com/timebok/timebok/pkg/auth"
)

const minUsernameLength = 3

type Service interface {
	ListPractitioners(ctx context.Context) ([]Practitioner, error)
	GetPractitioner(ctx context.Context, id int) (Practitioner, error)
	CreatePractitioner(ctx context.Context, practitioner Practitioner, password string) (Practitioner, error)
	UpdatePractitioner(ctx context.Context, id int, changes Changes) (Practitioner, error)
	DeletePractitioner(ctx context.Context, id int) error
}

// AppointmentCounter reports how many appointments of a practitioner end after a point in time.
type AppointmentCounter interface {
	CountFrom(ctx context.Context, practitionerId int, from time.Time) (int, error)
}

type ServiceImpl struct {
	repo         Repository
	appointments AppointmentCounter
	eventBus     *event_bus.EventBus
	clock        utils.Clock
}

func NewService(repo Repository, appointments AppointmentCounter, eventBus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{
		repo:         repo,
		appointments: appointments,
		eventBus:     eventBus,
		clock:        clock,
	}
}

func (s *ServiceImpl) ListPractitioners(ctx context.Context) ([]Practitioner, error) {
	return s.repo.List(ctx)
}

func (s *ServiceImpl) GetPractitioner(ctx context.Context, id int) (Practitioner, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) CreatePractitioner(ctx context.Context, practitioner Practitioner, password string) (Practitioner, error) {
	caller, err := auth.CurrentCaller(ctx)
	if err != nil {
		return Practitioner{}, err
	}
	created, err := s.create(ctx, practitioner, password)
	if err != nil {
		return Practitioner{}, err
	}
	s.publishChanged(ctx, event_bus.PractitionerCreatedType, created, caller.PractitionerId, created.Username != "")
	return created, nil
}

func (s *ServiceImpl) create(ctx context.Context, practitioner Practitioner, password string) (Practitioner, error) {
	practitioner.Id = 0
	practitioner.Name = strings.TrimSpace(practitioner.Name)
	practitioner.Username = strings.TrimSpace(practitioner.Username)
	if practitioner.Name == "" {
		return Practitioner{}, fmt.Errorf("%w: name is required", ErrInvalidPractitioner)
	}
	if err := s.setCredentials(&practitioner, practitioner.Username, password); err != nil {
		return Practitioner{}, err
	}

	created, err := s.repo.Create(ctx, practitioner)
	if err != nil {
		return Practitioner{}, err
	}
	log.Infof("practitioner %d (%s) created", created.Id, created.Name)
	return created, nil
}

func (s *ServiceImpl) UpdatePractitioner(ctx context.Context, id int, changes Changes) (Practitioner, error) {
	caller, err := auth.CurrentCaller(ctx)
	if err != nil {
		return Practitioner{}, err
	}

	var updated Practitioner
	credentialsChanged := false
	err = s.repo.WithTransaction(ctx, func(repo Repository) error {
		if err := repo.Lock(ctx, id); err != nil {
			return err
		}
		current, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}

		if changes.Name != nil {
			current.Name = strings.TrimSpace(*changes.Name)
			if current.Name == "" {
				return fmt.Errorf("%w: name must not be blank", ErrInvalidPractitioner)
			}
		}
		if changes.Role != nil {
			current.Role = *changes.Role
		}
		if changes.Color != nil {
			current.Color = *changes.Color
		}
		if changes.Username != nil || changes.Password != nil {
			username := current.Username
			if changes.Username != nil {
				username = strings.TrimSpace(*changes.Username)
			}
			password := ""
			if changes.Password != nil {
				password = *changes.Password
			}
			previousUsername, previousHash := current.Username, current.PasswordHash
			if err := s.setCredentials(&current, username, password); err != nil {
				return err
			}
			credentialsChanged = current.Username != previousUsername || current.PasswordHash != previousHash
		}

		updated, err = repo.Update(ctx, current)
		return err
	})
	if err != nil {
		return Practitioner{}, err
	}
	s.publishChanged(ctx, event_bus.PractitionerUpdatedType, updated, caller.PractitionerId, credentialsChanged)
	return updated, nil
}

func (s *ServiceImpl) publishChanged(ctx context.Context, eventType event_bus.EventType, p Practitioner, actorId int, credentialsChanged bool) {
	if s.eventBus == nil {
		return
	}
	err := s.eventBus.Publish(event_bus.NewEvent(context.WithoutCancel(ctx), eventType, event_bus.PractitionerChanged{
		Id:                 p.Id,
		Name:               p.Name,
		Username:           p.Username,
		ActorId:            actorId,
		CredentialsChanged: credentialsChanged,
	}))
	if err != nil {
		log.Errorf("failed to publish %s: %v", eventType, err)
	}
}

// setCredentials applies username and password to p. A new login needs a password;
// keeping the username with an empty password keeps the stored hash.
func (s *ServiceImpl) setCredentials(p *Practitioner, username, password string) error {
	if username == "" {
		if password != "" {
			return fmt.Errorf("%w: password given without username", ErrInvalidPractitioner)
		}
		p.Username = ""
		p.PasswordHash = ""
		return nil
	}

	if len(username) < minUsernameLength {
		return fmt.Errorf("%w: username must be at least %d characters", ErrInvalidPractitioner, minUsernameLength)
	}
	if password == "" {
		if p.PasswordHash == "" {
			return fmt.Errorf("%w: password is required to enable login", ErrInvalidPractitioner)
		}
		p.Username = username
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPractitioner, err)
	}
	p.Username = username
	p.PasswordHash = hash
	return nil
}

// DeletePractitioner removes a practitioner unless they still have appointments ending
// in the future. Past appointments are removed with them.
func (s *ServiceImpl) DeletePractitioner(ctx context.Context, id int) error {
	caller, err := auth.CurrentCaller(ctx)
	if err != nil {
		return err
	}

	var deleted Practitioner
	err = s.repo.WithTransaction(ctx, func(repo Repository) error {
		// Holding the row lock keeps new bookings for this practitioner out until commit.
		if err := repo.Lock(ctx, id); err != nil {
			return err
		}
		current, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		upcoming, err := s.appointments.CountFrom(ctx, id, s.clock.Now())
		if err != nil {
			return err
		}
		if upcoming > 0 {
			log.Debugf("practitioner %d still has %d upcoming appointment(s)", id, upcoming)
			return fmt.Errorf("%w: %d remaining", ErrPractitionerHasAppointments, upcoming)
		}
		ok, err := repo.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPractitionerNotFound
		}
		deleted = current
		return nil
	})
	if err != nil {
		return err
	}

	if s.eventBus != nil {
		err := s.eventBus.Publish(event_bus.NewEvent(context.WithoutCancel(ctx), event_bus.PractitionerDeletedType, event_bus.PractitionerDeleted{
			Id:      deleted.Id,
			Name:    deleted.Name,
			ActorId: caller.PractitionerId,
		}))
		if err != nil {
			log.Errorf("failed to publish practitioner deletion: %v", err)
		}
	}
	return nil
}

// FindAccount looks up login credentials for the session handler.
func (s *ServiceImpl) FindAccount(ctx context.Context, username string) (auth.Account, error) {
	p, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, ErrPractitionerNotFound) {
		return auth.Account{}, auth.ErrAccountNotFound
	}
	if err != nil {
		return auth.Account{}, err
	}
	return auth.Account{
		Caller:       auth.Caller{PractitionerId: p.Id, Username: p.Username, Name: p.Name},
		PasswordHash: p.PasswordHash,
	}, nil
}

// EnsureBootstrap creates a practitioner with the given login when no practitioner uses
// that username yet. It lets a fresh installation log in for the first time.
func (s *ServiceImpl) EnsureBootstrap(ctx context.Context, username, password string) error {
	if username == "" {
		return nil
	}
	_, err := s.repo.GetByUsername(ctx, username)
	if err == nil {
		log.Debugf("bootstrap practitioner %s already exists", username)
		return nil
	}
	if !errors.Is(err, ErrPractitionerNotFound) {
		return err
	}

	created, err := s.create(ctx, Practitioner{Name: username, Role: "Administrator", Username: username}, password)
	if err != nil {
		return fmt.Errorf("failed to create bootstrap practitioner: %w", err)
	}
	s.publishChanged(ctx, event_bus.PractitionerCreatedType, created, 0, true)
	log.Warnf("created bootstrap practitioner %q with id %d, change its password", username, created.Id)
	return nil
}
