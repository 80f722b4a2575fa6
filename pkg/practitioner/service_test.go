package practitioner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timebok/timebok/internal/event_bus"
	"github.com/timebok/timebok/internal/test_utils"
	"github.com/timebok/timebok/internal/utils"
	"github.com/timebok/timebok/pkg/auth"
)

var ctx = test_utils.CallerContext(1)

var now = time.Date(2025, 3, 12, 12, 0, 0, 0, time.UTC)

func collectChanges(bus *event_bus.EventBus, eventType event_bus.EventType) *[]event_bus.PractitionerChanged {
	received := &[]event_bus.PractitionerChanged{}
	event_bus.SubscribeTyped(bus, eventType, func(e event_bus.EventT[event_bus.PractitionerChanged]) error {
		*received = append(*received, e.Data)
		return nil
	})
	return received
}

func setupService(t *testing.T) (*ServiceImpl, *RepositoryStub, *AppointmentCounterStub, *event_bus.EventBus) {
	repo := NewRepositoryStub()
	counter := NewAppointmentCounterStub()
	bus := event_bus.NewEventBus()
	clock := &utils.MockClock{FixedNow: now}
	return NewService(repo, counter, bus, clock), repo, counter, bus
}

func TestServiceImpl_CreatePractitioner(t *testing.T) {
	t.Run("should create practitioner without login", func(t *testing.T) {
		// given
		service, _, _, _ := setupService(t)

		// when
		created, err := service.CreatePractitioner(ctx, Practitioner{Name: "  Anna Berg ", Role: "Physiotherapist", Color: "#ff0000"}, "")

		// then
		require.NoError(t, err)
		assert.NotZero(t, created.Id)
		assert.Equal(t, "Anna Berg", created.Name)
		assert.False(t, created.HasCredentials())
	})

	t.Run("should hash the password", func(t *testing.T) {
		// given
		service, _, _, _ := setupService(t)

		// when
		created, err := service.CreatePractitioner(ctx, Practitioner{Name: "Anna", Username: "anna"}, "correct-horse")

		// then
		require.NoError(t, err)
		assert.True(t, created.HasCredentials())
		assert.NotEqual(t, "correct-horse", created.PasswordHash)
		assert.True(t, auth.CheckPassword(created.PasswordHash, "correct-horse"))
	})

	t.Run("should reject duplicate username", func(t *testing.T) {
		// given
		service, _, _, _ := setupService(t)
		_, err := service.CreatePractitioner(ctx, Practitioner{Name: "Anna", Username: "anna"}, "correct-horse")
		require.NoError(t, err)

		// when
		_, err = service.CreatePractitioner(ctx, Practitioner{Name: "Other Anna", Username: "anna"}, "battery-staple")

		// then
		require.ErrorIs(t, err, ErrUsernameTaken)
	})

	testCases := []struct {
		name         string
		practitioner Practitioner
		password     string
	}{
		{name: "blank name", practitioner: Practitioner{Name: "  "}},
		{name: "username without password", practitioner: Practitioner{Name: "Anna", Username: "anna"}},
		{name: "password without username", practitioner: Practitioner{Name: "Anna"}, password: "correct-horse"},
		{name: "short password", practitioner: Practitioner{Name: "Anna", Username: "anna"}, password: "short"},
		{name: "short username", practitioner: Practitioner{Name: "Anna", Username: "an"}, password: "correct-horse"},
	}
	for _, tc := range testCases {
		t.Run("should reject "+tc.name, func(t *testing.T) {
			service, _, _, _ := setupService(t)

			_, err := service.CreatePractitioner(ctx, tc.practitioner, tc.password)

			require.ErrorIs(t, err, ErrInvalidPractitioner)
		})
	}

	t.Run("should publish creation with the acting caller", func(t *testing.T) {
		// given
		service, _, _, bus := setupService(t)
		received := collectChanges(bus, event_bus.PractitionerCreatedType)

		// when
		created, err := service.CreatePractitioner(ctx, Practitioner{Name: "Anna", Username: "anna"}, "correct-horse")

		// then
		require.NoError(t, err)
		require.Len(t, *received, 1)
		assert.Equal(t, created.Id, (*received)[0].Id)
		assert.Equal(t, "anna", (*received)[0].Username)
		assert.Equal(t, 1, (*received)[0].ActorId)
		assert.True(t, (*received)[0].CredentialsChanged)
	})

	t.Run("should not publish rejected creation", func(t *testing.T) {
		service, _, _, bus := setupService(t)
		received := collectChanges(bus, event_bus.PractitionerCreatedType)

		_, err := service.CreatePractitioner(ctx, Practitioner{Name: " "}, "")

		require.ErrorIs(t, err, ErrInvalidPractitioner)
		assert.Empty(t, *received)
	})

	t.Run("should require an authenticated caller", func(t *testing.T) {
		service, _, _, _ := setupService(t)

		_, err := service.CreatePractitioner(context.Background(), Practitioner{Name: "Anna"}, "")

		require.ErrorIs(t, err, auth.ErrUnauthorized)
	})
}

func TestServiceImpl_UpdatePractitioner(t *testing.T) {
	t.Run("should update only given fields", func(t *testing.T) {
		// given
		service, _, _, _ := setupService(t)
		created, err := service.CreatePractitioner(ctx, Practitioner{Name: "Anna", Role: "Physiotherapist", Color: "#111111"}, "")
		require.NoError(t, err)
		color := "#222222"

		// when
		updated, err := service.UpdatePractitioner(ctx, created.Id, Changes{Color: &color})

		// then
		require.NoError(t, err)
		assert.Equal(t, "Anna", updated.Name)
		assert.Equal(t, "Physiotherapist", updated.Role)
		assert.Equal(t, color, updated.Color)
	})

	t.Run("should keep password hash when renaming login", func(t *testing.T) {
		// given
		service, _, _, _ := setupService(t)
		created, err := service.CreatePractitioner(ctx, Practitioner{Name: "Anna", Username: "anna"}, "correct-horse")
		require.NoError(t, err)
		username := "anna.berg"

		// when
		updated, err := service.UpdatePractitioner(ctx, created.Id, Changes{Username: &username})

		// then
		require.NoError(t, err)
		assert.Equal(t, "anna.berg", updated.Username)
		assert.Equal(t, created.PasswordHash, updated.PasswordHash)
	})

	t.Run("should remove login with empty username", func(t *testing.T) {
		// given
		service, _, _, _ := setupService(t)
		created, err := service.CreatePractitioner(ctx, Practitioner{Name: "Anna", Username: "anna"}, "correct-horse")
		require.NoError(t, err)
		empty := ""

		// when
		updated, err := service.UpdatePractitioner(ctx, created.Id, Changes{Username: &empty})

		// then
		require.NoError(t, err)
		assert.False(t, updated.HasCredentials())
		assert.Empty(t, updated.PasswordHash)
	})

	t.Run("should publish update and flag credential changes", func(t *testing.T) {
		// given
		service, _, _, bus := setupService(t)
		created, err := service.CreatePractitioner(ctx, Practitioner{Name: "Anna", Username: "anna"}, "correct-horse")
		require.NoError(t, err)
		received := collectChanges(bus, event_bus.PractitionerUpdatedType)
		color := "#222222"
		password := "battery-staple"

		// when
		_, errColor := service.UpdatePractitioner(ctx, created.Id, Changes{Color: &color})
		_, errPassword := service.UpdatePractitioner(test_utils.CallerContext(7), created.Id, Changes{Password: &password})

		// then
		require.NoError(t, errColor)
		require.NoError(t, errPassword)
		require.Len(t, *received, 2)
		assert.False(t, (*received)[0].CredentialsChanged)
		assert.Equal(t, 1, (*received)[0].ActorId)
		assert.True(t, (*received)[1].CredentialsChanged)
		assert.Equal(t, 7, (*received)[1].ActorId)
	})

	t.Run("should report missing practitioner", func(t *testing.T) {
		service, _, _, _ := setupService(t)
		name := "Ghost"

		_, err := service.UpdatePractitioner(ctx, 42, Changes{Name: &name})

		require.ErrorIs(t, err, ErrPractitionerNotFound)
	})
}

func TestServiceImpl_DeletePractitioner(t *testing.T) {
	t.Run("should refuse while future appointments exist", func(t *testing.T) {
		// given
		service, repo, counter, _ := setupService(t)
		created, err := service.CreatePractitioner(ctx, Practitioner{Name: "Anna"}, "")
		require.NoError(t, err)
		counter.Add(created.Id, now.Add(time.Hour))

		// when
		err = service.DeletePractitioner(ctx, created.Id)

		// then
		require.ErrorIs(t, err, ErrPractitionerHasAppointments)
		_, err = repo.Get(context.Background(), created.Id)
		require.NoError(t, err)
	})

	t.Run("should delete when only past appointments exist", func(t *testing.T) {
		// given
		service, repo, counter, bus := setupService(t)
		created, err := service.CreatePractitioner(ctx, Practitioner{Name: "Anna"}, "")
		require.NoError(t, err)
		counter.Add(created.Id, now.Add(-time.Hour))
		counter.Add(created.Id, now)
		var received []event_bus.PractitionerDeleted
		event_bus.SubscribeTyped(bus, event_bus.PractitionerDeletedType, func(e event_bus.EventT[event_bus.PractitionerDeleted]) error {
			received = append(received, e.Data)
			return nil
		})

		// when
		err = service.DeletePractitioner(ctx, created.Id)

		// then
		require.NoError(t, err)
		_, err = repo.Get(context.Background(), created.Id)
		require.ErrorIs(t, err, ErrPractitionerNotFound)
		require.Len(t, received, 1)
		assert.Equal(t, "Anna", received[0].Name)
		assert.Equal(t, 1, received[0].ActorId)
	})

	t.Run("should report missing practitioner", func(t *testing.T) {
		service, _, _, _ := setupService(t)

		err := service.DeletePractitioner(ctx, 42)

		require.ErrorIs(t, err, ErrPractitionerNotFound)
	})
}

func TestServiceImpl_FindAccount(t *testing.T) {
	t.Run("should return caller and hash", func(t *testing.T) {
		// given
		service, _, _, _ := setupService(t)
		created, err := service.CreatePractitioner(ctx, Practitioner{Name: "Anna", Username: "anna"}, "correct-horse")
		require.NoError(t, err)

		// when
		account, err := service.FindAccount(context.Background(), "anna")

		// then
		require.NoError(t, err)
		assert.Equal(t, created.Id, account.Caller.PractitionerId)
		assert.Equal(t, "Anna", account.Caller.Name)
		assert.Equal(t, created.PasswordHash, account.PasswordHash)
	})

	t.Run("should map unknown username", func(t *testing.T) {
		service, _, _, _ := setupService(t)

		_, err := service.FindAccount(context.Background(), "nobody")

		require.ErrorIs(t, err, auth.ErrAccountNotFound)
	})
}

func TestServiceImpl_EnsureBootstrap(t *testing.T) {
	t.Run("should create bootstrap practitioner once", func(t *testing.T) {
		// given
		service, repo, _, bus := setupService(t)
		received := collectChanges(bus, event_bus.PractitionerCreatedType)

		// when
		require.NoError(t, service.EnsureBootstrap(context.Background(), "admin", "change-me-now"))
		require.NoError(t, service.EnsureBootstrap(context.Background(), "admin", "change-me-now"))

		// then
		all, err := repo.List(context.Background())
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "admin", all[0].Username)
		require.Len(t, *received, 1)
		assert.Zero(t, (*received)[0].ActorId)
	})

	t.Run("should do nothing without username", func(t *testing.T) {
		service, repo, _, _ := setupService(t)

		require.NoError(t, service.EnsureBootstrap(context.Background(), "", ""))

		all, _ := repo.List(context.Background())
		assert.Empty(t, all)
	})
}
