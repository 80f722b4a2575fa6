package appointment

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrTimeConflict         = errors.New("time conflict")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrStorage              = errors.New("storage failure")
)

// ValidationError names the offending field of a rejected appointment.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// ConflictError lists the appointments a candidate interval collides with. The list is
// empty when the conflict was detected by the database constraint.
type ConflictError struct {
	ConflictingIds []int64
}

func (e *ConflictError) Error() string {
	if len(e.ConflictingIds) == 0 {
		return ErrTimeConflict.Error()
	}
	ids := make([]string, 0, len(e.ConflictingIds))
	for _, id := range e.ConflictingIds {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return fmt.Sprintf("%s with appointment(s) %s", ErrTimeConflict, strings.Join(ids, ", "))
}

func (e *ConflictError) Unwrap() error {
	return ErrTimeConflict
}
