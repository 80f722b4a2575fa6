package appointment

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
	"github.com/timebok/timebok/pkg/interval"
)

const (
	pgExclusionViolation  = "23P01"
	pgForeignKeyViolation = "23503"
)

var errNoTransaction = errors.New("practitioner lock requires a transaction")

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	// LockPractitioners row-locks the given practitioners until the surrounding transaction ends.
	// Locks are taken in ascending id order. Only valid inside WithTransaction.
	LockPractitioners(ctx context.Context, practitionerIds ...int) error
	Insert(ctx context.Context, appointment Appointment) (Appointment, error)
	Get(ctx context.Context, id int64) (Appointment, error)
	// ListByRange returns appointments starting in [from, to) ordered by start time, then id.
	// A practitionerId of 0 matches every practitioner.
	ListByRange(ctx context.Context, from, to time.Time, practitionerId int) ([]Appointment, error)
	// ListOverlapping returns the practitioner's appointments overlapping candidate, skipping excludeId.
	ListOverlapping(ctx context.Context, practitionerId int, candidate interval.Interval, excludeId int64) ([]Appointment, error)
	Update(ctx context.Context, appointment Appointment) (Appointment, error)
	Delete(ctx context.Context, id int64) (bool, error)
	// CountFrom counts the practitioner's appointments ending after from.
	CountFrom(ctx context.Context, practitionerId int, from time.Time) (int, error)
}

type repositoryImpl struct {
	db *pgxpool.Pool
	tx pgx.Tx
}

func NewRepo(db *pgxpool.Pool) Repository {
	return &repositoryImpl{db: db}
}

// getQueryer returns the appropriate database interface for queries (either tx or db)
func (r *repositoryImpl) getQueryer() interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
} {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *repositoryImpl) WithTransaction(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", ErrStorage, err)
	}
	defer func() {
		// no-op once committed
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	txRepo := &repositoryImpl{db: r.db, tx: tx}
	if err := fn(txRepo); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapWriteError("commit transaction", err)
	}
	return nil
}

func (r *repositoryImpl) LockPractitioners(ctx context.Context, practitionerIds ...int) error {
	if r.tx == nil {
		return errNoTransaction
	}
	ids := slices.Clone(practitionerIds)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	query := `SELECT id FROM practitioner WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	rows, err := r.tx.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("%w: lock practitioners: %w", ErrStorage, err)
	}
	defer rows.Close()

	locked := 0
	for rows.Next() {
		locked++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: lock practitioners: %w", ErrStorage, err)
	}
	if locked != len(ids) {
		log.Debugf("locked %d of practitioners %v", locked, ids)
		return ErrPractitionerNotFound
	}
	return nil
}

const appointmentColumns = `id, practitioner_id, start_time, end_time, patient, type, video_link, created_at, updated_at`

func (r *repositoryImpl) Insert(ctx context.Context, appointment Appointment) (Appointment, error) {
	query := `INSERT INTO appointment (practitioner_id, start_time, end_time, patient, type, video_link)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING ` + appointmentColumns
	created, err := scanAppointment(r.getQueryer().QueryRow(ctx, query,
		appointment.PractitionerId,
		appointment.StartTime,
		appointment.EndTime,
		appointment.Patient,
		string(appointment.Kind),
		nullableString(appointment.VideoLink),
	))
	if err != nil {
		log.Errorf("failed to insert appointment: %v", err)
		return Appointment{}, mapWriteError("insert appointment", err)
	}
	return created, nil
}

func (r *repositoryImpl) Get(ctx context.Context, id int64) (Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointment WHERE id = $1`
	appointment, err := scanAppointment(r.getQueryer().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrAppointmentNotFound
	}
	if err != nil {
		return Appointment{}, fmt.Errorf("%w: get appointment %d: %w", ErrStorage, id, err)
	}
	return appointment, nil
}

func (r *repositoryImpl) ListByRange(ctx context.Context, from, to time.Time, practitionerId int) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
			  FROM appointment
			  WHERE start_time >= $1 AND start_time < $2 AND ($3 = 0 OR practitioner_id = $3)
			  ORDER BY start_time, id`
	rows, err := r.getQueryer().Query(ctx, query, from, to, practitionerId)
	if err != nil {
		return nil, fmt.Errorf("%w: list appointments: %w", ErrStorage, err)
	}
	return collectAppointments(rows)
}

func (r *repositoryImpl) ListOverlapping(
	ctx context.Context,
	practitionerId int,
	candidate interval.Interval,
	excludeId int64,
) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
			  FROM appointment
			  WHERE practitioner_id = $1 AND start_time < $3 AND end_time > $2 AND id <> $4
			  ORDER BY start_time, id`
	rows, err := r.getQueryer().Query(ctx, query, practitionerId, candidate.Start, candidate.End, excludeId)
	if err != nil {
		return nil, fmt.Errorf("%w: list overlapping appointments: %w", ErrStorage, err)
	}
	return collectAppointments(rows)
}

func (r *repositoryImpl) Update(ctx context.Context, appointment Appointment) (Appointment, error) {
	query := `UPDATE appointment
			  SET practitioner_id = $1, start_time = $2, end_time = $3, patient = $4, type = $5, video_link = $6,
			      updated_at = now()
			  WHERE id = $7
			  RETURNING ` + appointmentColumns
	updated, err := scanAppointment(r.getQueryer().QueryRow(ctx, query,
		appointment.PractitionerId,
		appointment.StartTime,
		appointment.EndTime,
		appointment.Patient,
		string(appointment.Kind),
		nullableString(appointment.VideoLink),
		appointment.Id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Appointment{}, ErrAppointmentNotFound
	}
	if err != nil {
		log.Errorf("failed to update appointment %d: %v", appointment.Id, err)
		return Appointment{}, mapWriteError("update appointment", err)
	}
	return updated, nil
}

func (r *repositoryImpl) Delete(ctx context.Context, id int64) (bool, error) {
	result, err := r.getQueryer().Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("%w: delete appointment %d: %w", ErrStorage, id, err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *repositoryImpl) CountFrom(ctx context.Context, practitionerId int, from time.Time) (int, error) {
	var count int
	err := r.getQueryer().QueryRow(ctx,
		`SELECT count(*) FROM appointment WHERE practitioner_id = $1 AND end_time > $2`,
		practitionerId, from,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: count appointments: %w", ErrStorage, err)
	}
	return count, nil
}

func scanAppointment(row pgx.Row) (Appointment, error) {
	var appointment Appointment
	var kind string
	var videoLink *string
	err := row.Scan(
		&appointment.Id,
		&appointment.PractitionerId,
		&appointment.StartTime,
		&appointment.EndTime,
		&appointment.Patient,
		&kind,
		&videoLink,
		&appointment.CreatedAt,
		&appointment.UpdatedAt,
	)
	if err != nil {
		return Appointment{}, err
	}
	appointment.Kind = Kind(kind)
	if videoLink != nil {
		appointment.VideoLink = *videoLink
	}
	return appointment, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	appointments := make([]Appointment, 0)
	for rows.Next() {
		appointment, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan appointment: %w", ErrStorage, err)
		}
		appointments = append(appointments, appointment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read appointments: %w", ErrStorage, err)
	}
	return appointments, nil
}

// mapWriteError translates constraint violations into domain errors.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgExclusionViolation:
			log.Warnf("%s rejected by %s", op, pgErr.ConstraintName)
			return &ConflictError{}
		case pgForeignKeyViolation:
			return ErrPractitionerNotFound
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
