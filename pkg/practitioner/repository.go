package practitioner

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

const pgUniqueViolation = "23505"

type Repository interface {
	WithTransaction(ctx context.Context, fn func(repo Repository) error) error
	// Lock row-locks the practitioner until the surrounding transaction ends.
	Lock(ctx context.Context, id int) error
	Create(ctx context.Context, practitioner Practitioner) (Practitioner, error)
	Get(ctx context.Context, id int) (Practitioner, error)
	GetByUsername(ctx context.Context, username string) (Practitioner, error)
	// List returns all practitioners ordered by name, then id.
	List(ctx context.Context) ([]Practitioner, error)
	Update(ctx context.Context, practitioner Practitioner) (Practitioner, error)
	Delete(ctx context.Context, id int) (bool, error)
}

type repositoryImpl struct {
	db *pgxpool.Pool
	tx pgx.Tx
}

func NewRepo(db *pgxpool.Pool) Repository {
	return &repositoryImpl{db: db}
}

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
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Errorf("rollback error: %v", rbErr)
		}
	}()

	if err := fn(&repositoryImpl{db: r.db, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (r *repositoryImpl) Lock(ctx context.Context, id int) error {
	var locked int
	err := r.getQueryer().QueryRow(ctx, `SELECT id FROM practitioner WHERE id = $1 FOR UPDATE`, id).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrPractitionerNotFound
	}
	return err
}

const practitionerColumns = `id, name, role, color, username, password_hash, created_at`

func (r *repositoryImpl) Create(ctx context.Context, practitioner Practitioner) (Practitioner, error) {
	query := `INSERT INTO practitioner (name, role, color, username, password_hash)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING ` + practitionerColumns
	created, err := scanPractitioner(r.getQueryer().QueryRow(ctx, query,
		practitioner.Name,
		practitioner.Role,
		practitioner.Color,
		nullable(practitioner.Username),
		nullable(practitioner.PasswordHash),
	))
	if err != nil {
		log.Errorf("failed to create practitioner: %v", err)
		return Practitioner{}, mapWriteError(err)
	}
	return created, nil
}

func (r *repositoryImpl) Get(ctx context.Context, id int) (Practitioner, error) {
	query := `SELECT ` + practitionerColumns + ` FROM practitioner WHERE id = $1`
	practitioner, err := scanPractitioner(r.getQueryer().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Practitioner{}, ErrPractitionerNotFound
	}
	return practitioner, err
}

func (r *repositoryImpl) GetByUsername(ctx context.Context, username string) (Practitioner, error) {
	query := `SELECT ` + practitionerColumns + ` FROM practitioner WHERE username = $1`
	practitioner, err := scanPractitioner(r.getQueryer().QueryRow(ctx, query, username))
	if errors.Is(err, pgx.ErrNoRows) {
		log.Debugf("practitioner with username %s not found", username)
		return Practitioner{}, ErrPractitionerNotFound
	}
	return practitioner, err
}

func (r *repositoryImpl) List(ctx context.Context) ([]Practitioner, error) {
	rows, err := r.getQueryer().Query(ctx, `SELECT `+practitionerColumns+` FROM practitioner ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	practitioners := make([]Practitioner, 0)
	for rows.Next() {
		practitioner, err := scanPractitioner(rows)
		if err != nil {
			return nil, err
		}
		practitioners = append(practitioners, practitioner)
	}
	return practitioners, rows.Err()
}

func (r *repositoryImpl) Update(ctx context.Context, practitioner Practitioner) (Practitioner, error) {
	query := `UPDATE practitioner SET name = $1, role = $2, color = $3, username = $4, password_hash = $5
			  WHERE id = $6
			  RETURNING ` + practitionerColumns
	updated, err := scanPractitioner(r.getQueryer().QueryRow(ctx, query,
		practitioner.Name,
		practitioner.Role,
		practitioner.Color,
		nullable(practitioner.Username),
		nullable(practitioner.PasswordHash),
		practitioner.Id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Practitioner{}, ErrPractitionerNotFound
	}
	if err != nil {
		log.Errorf("failed to update practitioner %d: %v", practitioner.Id, err)
		return Practitioner{}, mapWriteError(err)
	}
	return updated, nil
}

func (r *repositoryImpl) Delete(ctx context.Context, id int) (bool, error) {
	result, err := r.getQueryer().Exec(ctx, `DELETE FROM practitioner WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	if result.RowsAffected() == 0 {
		log.Info("no rows affected of deleting practitioner")
		return false, nil
	}
	return true, nil
}

func scanPractitioner(row pgx.Row) (Practitioner, error) {
	var practitioner Practitioner
	var username, passwordHash *string
	err := row.Scan(
		&practitioner.Id,
		&practitioner.Name,
		&practitioner.Role,
		&practitioner.Color,
		&username,
		&passwordHash,
		&practitioner.CreatedAt,
	)
	if err != nil {
		return Practitioner{}, err
	}
	if username != nil {
		practitioner.Username = *username
	}
	if passwordHash != nil {
		practitioner.PasswordHash = *passwordHash
	}
	return practitioner, nil
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrUsernameTaken
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
