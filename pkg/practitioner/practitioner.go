package practitioner

import (
	"errors"
	"time"
)

var (
	ErrPractitionerNotFound        = errors.New("practitioner not found")
	ErrPractitionerHasAppointments = errors.New("practitioner has upcoming appointments")
	ErrUsernameTaken               = errors.New("username is already taken")
	ErrInvalidPractitioner         = errors.New("invalid practitioner data")
)

type Practitioner struct {
	Id    int
	Name  string
	Role  string
	Color string
	// Username and PasswordHash are both empty for practitioners who cannot log in.
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

func (p Practitioner) HasCredentials() bool {
	return p.Username != ""
}

// Changes holds the fields of an update request. Nil fields keep the stored value.
// An empty Username removes the login.
type Changes struct {
	Name     *string
	Role     *string
	Color    *string
	Username *string
	Password *string
}
