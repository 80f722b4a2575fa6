package appointment

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/timebok/timebok/internal/test_utils"
	"github.com/timebok/timebok/pkg/interval"
)

var pgContainer *postgres.PostgresContainer
var openDb func() *pgxpool.Pool

func TestMain(m *testing.M) {
	pgContainer, openDb = test_utils.TestWithDB()
	defer func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			log.Errorf("failed to terminate container: %s", err)
		}
	}()
	code := m.Run()
	os.Exit(code)
}

func setupTestRepository(t *testing.T) (context.Context, Repository, *pgxpool.Pool) {
	ctx := context.Background()
	db := openDb()
	repository := NewRepo(db)
	t.Cleanup(func() {
		db.Close()
		err := pgContainer.Restore(ctx)
		require.NoError(t, err)
	})
	return ctx, repository, db
}

func TestRepositoryImpl_Insert(t *testing.T) {
	t.Run("should assign increasing ids", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)
		practitionerId := test_utils.InsertPractitioner(t, db, "Anna")

		// when
		first, err1 := repo.Insert(ctx, booking(practitionerId, at(9, 0), at(10, 0)))
		second, err2 := repo.Insert(ctx, booking(practitionerId, at(10, 0), at(11, 0)))

		// then
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Greater(t, second.Id, first.Id)
		assert.True(t, at(9, 0).Equal(first.StartTime))
		assert.Empty(t, first.VideoLink)
		assert.False(t, first.CreatedAt.IsZero())
	})

	t.Run("should store video link", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)
		practitionerId := test_utils.InsertPractitioner(t, db, "Anna")
		a := booking(practitionerId, at(9, 0), at(10, 0))
		a.Kind = KindVideo
		a.VideoLink = "https://meet.example.com/a"

		// when
		created, err := repo.Insert(ctx, a)

		// then
		require.NoError(t, err)
		fetched, err := repo.Get(ctx, created.Id)
		require.NoError(t, err)
		assert.Equal(t, KindVideo, fetched.Kind)
		assert.Equal(t, "https://meet.example.com/a", fetched.VideoLink)
	})

	t.Run("should enforce non-overlap in the schema", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)
		practitionerId := test_utils.InsertPractitioner(t, db, "Anna")
		_, err := repo.Insert(ctx, booking(practitionerId, at(9, 0), at(10, 0)))
		require.NoError(t, err)

		// when
		_, err = repo.Insert(ctx, booking(practitionerId, at(9, 59), at(10, 30)))

		// then
		require.ErrorIs(t, err, ErrTimeConflict)
	})

	t.Run("should report unknown practitioner", func(t *testing.T) {
		// given
		ctx, repo, _ := setupTestRepository(t)

		// when
		_, err := repo.Insert(ctx, booking(4242, at(9, 0), at(10, 0)))

		// then
		require.ErrorIs(t, err, ErrPractitionerNotFound)
	})
}

func TestRepositoryImpl_ListByRange(t *testing.T) {
	t.Run("should list half-open range ordered by start", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)
		anna := test_utils.InsertPractitioner(t, db, "Anna")
		ben := test_utils.InsertPractitioner(t, db, "Ben")
		late, _ := repo.Insert(ctx, booking(anna, at(14, 0), at(15, 0)))
		early, _ := repo.Insert(ctx, booking(ben, at(8, 0), at(9, 0)))
		_, _ = repo.Insert(ctx, booking(anna, at(16, 0), at(17, 0)))

		// when
		all, err := repo.ListByRange(ctx, at(8, 0), at(16, 0), 0)
		onlyAnna, errAnna := repo.ListByRange(ctx, at(8, 0), at(16, 0), anna)

		// then
		require.NoError(t, err)
		require.NoError(t, errAnna)
		assert.Equal(t, []int64{early.Id, late.Id}, ids(all))
		assert.Equal(t, []int64{late.Id}, ids(onlyAnna))
	})

	t.Run("should return empty slice when nothing matches", func(t *testing.T) {
		// given
		ctx, repo, _ := setupTestRepository(t)

		// when
		result, err := repo.ListByRange(ctx, at(8, 0), at(16, 0), 0)

		// then
		require.NoError(t, err)
		assert.NotNil(t, result)
		assert.Empty(t, result)
	})
}

func TestRepositoryImpl_ListOverlapping(t *testing.T) {
	t.Run("should find overlaps and skip excluded and touching", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)
		anna := test_utils.InsertPractitioner(t, db, "Anna")
		ben := test_utils.InsertPractitioner(t, db, "Ben")
		morning, _ := repo.Insert(ctx, booking(anna, at(9, 0), at(10, 0)))
		noon, _ := repo.Insert(ctx, booking(anna, at(11, 0), at(12, 0)))
		_, _ = repo.Insert(ctx, booking(anna, at(12, 0), at(13, 0)))
		_, _ = repo.Insert(ctx, booking(ben, at(9, 30), at(10, 30)))
		candidate := interval.Interval{Start: at(9, 30), End: at(12, 0)}

		// when
		overlapping, err := repo.ListOverlapping(ctx, anna, candidate, 0)
		excluding, errExcl := repo.ListOverlapping(ctx, anna, candidate, morning.Id)

		// then
		require.NoError(t, err)
		require.NoError(t, errExcl)
		assert.Equal(t, []int64{morning.Id, noon.Id}, ids(overlapping))
		assert.Equal(t, []int64{noon.Id}, ids(excluding))
	})
}

func TestRepositoryImpl_Update(t *testing.T) {
	t.Run("should update in place keeping the id", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)
		anna := test_utils.InsertPractitioner(t, db, "Anna")
		ben := test_utils.InsertPractitioner(t, db, "Ben")
		created, err := repo.Insert(ctx, booking(anna, at(9, 0), at(10, 0)))
		require.NoError(t, err)
		moved := created
		moved.PractitionerId = ben
		moved.StartTime = at(13, 0)
		moved.EndTime = at(14, 30)
		moved.Patient = "Ola"

		// when
		updated, err := repo.Update(ctx, moved)

		// then
		require.NoError(t, err)
		assert.Equal(t, created.Id, updated.Id)
		assert.Equal(t, ben, updated.PractitionerId)
		assert.True(t, at(14, 30).Equal(updated.EndTime))
		assert.Equal(t, "Ola", updated.Patient)
		assert.True(t, created.CreatedAt.Equal(updated.CreatedAt))
	})

	t.Run("should report missing appointment", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)
		anna := test_utils.InsertPractitioner(t, db, "Anna")
		missing := booking(anna, at(9, 0), at(10, 0))
		missing.Id = 999

		// when
		_, err := repo.Update(ctx, missing)

		// then
		require.ErrorIs(t, err, ErrAppointmentNotFound)
	})
}

func TestRepositoryImpl_Delete(t *testing.T) {
	t.Run("should delete once", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)
		anna := test_utils.InsertPractitioner(t, db, "Anna")
		created, _ := repo.Insert(ctx, booking(anna, at(9, 0), at(10, 0)))

		// when
		first, err1 := repo.Delete(ctx, created.Id)
		second, err2 := repo.Delete(ctx, created.Id)

		// then
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.True(t, first)
		assert.False(t, second)
		_, err := repo.Get(ctx, created.Id)
		require.ErrorIs(t, err, ErrAppointmentNotFound)
	})
}

func TestRepositoryImpl_WithTransaction(t *testing.T) {
	t.Run("should lock known practitioners and roll back on error", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)
		anna := test_utils.InsertPractitioner(t, db, "Anna")

		// when
		err := repo.WithTransaction(ctx, func(txRepo Repository) error {
			require.NoError(t, txRepo.LockPractitioners(ctx, anna))
			_, err := txRepo.Insert(ctx, booking(anna, at(9, 0), at(10, 0)))
			require.NoError(t, err)
			return txRepo.LockPractitioners(ctx, anna, 31337)
		})

		// then
		require.ErrorIs(t, err, ErrPractitionerNotFound)
		all, err := repo.ListByRange(ctx, at(0, 0), at(23, 0), 0)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("should refuse locking outside a transaction", func(t *testing.T) {
		ctx, repo, db := setupTestRepository(t)
		anna := test_utils.InsertPractitioner(t, db, "Anna")

		err := repo.LockPractitioners(ctx, anna)

		require.Error(t, err)
	})

	t.Run("should count appointments ending after a point in time", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)
		anna := test_utils.InsertPractitioner(t, db, "Anna")
		_, _ = repo.Insert(ctx, booking(anna, at(9, 0), at(10, 0)))
		_, _ = repo.Insert(ctx, booking(anna, at(11, 0), at(12, 0)))

		// when
		count, err := repo.CountFrom(ctx, anna, at(10, 0).Add(-time.Minute))

		// then
		require.NoError(t, err)
		assert.Equal(t, 2, count)
		count, err = repo.CountFrom(ctx, anna, at(10, 0))
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}

func TestServiceImpl_ConcurrentCreateOnDatabase(t *testing.T) {
	t.Run("should admit exactly one of many identical bookings across services", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)
		anna := test_utils.InsertPractitioner(t, db, "Anna")
		callerCtx := test_utils.CallerContext(anna)
		// separate instances do not share the in-process practitioner lock
		services := []*ServiceImpl{
			NewService(NewRepo(db), nil, 15*time.Minute),
			NewService(NewRepo(db), nil, 15*time.Minute),
		}
		const attempts = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			created   int
			conflicts int
			others    []error
		)

		// when
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func(service *ServiceImpl) {
				defer wg.Done()
				_, err := service.CreateAppointment(callerCtx, booking(anna, at(9, 0), at(10, 0)))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					created++
				case errors.Is(err, ErrTimeConflict):
					conflicts++
				default:
					others = append(others, err)
				}
			}(services[i%len(services)])
		}
		wg.Wait()

		// then
		assert.Empty(t, others)
		assert.Equal(t, 1, created)
		assert.Equal(t, attempts-1, conflicts)
		all, err := repo.ListByRange(ctx, at(0, 0), at(23, 0), anna)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("should admit every booking of a back-to-back day created in parallel", func(t *testing.T) {
		// given
		ctx, repo, db := setupTestRepository(t)
		anna := test_utils.InsertPractitioner(t, db, "Anna")
		callerCtx := test_utils.CallerContext(anna)
		service := NewService(NewRepo(db), nil, 15*time.Minute)
		var wg sync.WaitGroup
		errs := make([]error, 8)

		// when
		for i := range errs {
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()
				start := at(8+slot, 0)
				_, errs[slot] = service.CreateAppointment(callerCtx, booking(anna, start, start.Add(time.Hour)))
			}(i)
		}
		wg.Wait()

		// then
		for _, err := range errs {
			assert.NoError(t, err)
		}
		all, err := repo.ListByRange(ctx, at(0, 0), at(23, 0), anna)
		require.NoError(t, err)
		assert.Len(t, all, len(errs))
	})
}
