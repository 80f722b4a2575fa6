package test_utils

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/timebok/timebok/pkg/auth"
)

// CallerContext returns a context authenticated as the given practitioner.
func CallerContext(practitionerId int) context.Context {
	return auth.WithCaller(context.Background(), auth.Caller{
		PractitionerId: practitionerId,
		Username:       fmt.Sprintf("practitioner-%d", practitionerId),
		Name:           fmt.Sprintf("Practitioner %d", practitionerId),
	})
}

// InsertPractitioner stores a practitioner without credentials and returns its id.
func InsertPractitioner(t *testing.T, db *pgxpool.Pool, name string) int {
	t.Helper()
	var id int
	err := db.QueryRow(context.Background(),
		`INSERT INTO practitioner (name, role, color) VALUES ($1, 'Physiotherapist', '#3b82f6') RETURNING id`,
		name,
	).Scan(&id)
	require.NoError(t, err)
	return id
}
