package auth

import (
	"context"
	"errors"
)

var ErrAccountNotFound = errors.New("account not found")

// Account is a caller together with the bcrypt hash of their password.
type Account struct {
	Caller       Caller
	PasswordHash string
}

type AccountFinder interface {
	FindAccount(ctx context.Context, username string) (Account, error)
}
