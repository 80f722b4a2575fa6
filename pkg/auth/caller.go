package auth

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
)

type contextKey string

const callerKey contextKey = "caller"

// ErrUnauthorized is returned when an operation needs an authenticated caller and there is none.
var ErrUnauthorized = errors.New("unauthorized")

// Caller is the authenticated identity behind a request. Every caller is a practitioner
// with credentials.
type Caller struct {
	PractitionerId int
	Username       string
	Name           string
}

func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// CurrentCaller returns the caller stored in ctx, or ErrUnauthorized for anonymous requests.
func CurrentCaller(ctx context.Context) (Caller, error) {
	caller, ok := ctx.Value(callerKey).(Caller)
	if !ok || caller.PractitionerId == 0 {
		log.Trace("caller not found in context")
		return Caller{}, ErrUnauthorized
	}
	return caller, nil
}
