package appointments

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"clinicflow/backend/internal/domain"
	"clinicflow/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// ConflictError reports the appointment or blocked slot a request overlaps.
type ConflictError struct {
	Conflict Conflict
}

func (e *ConflictError) Error() string {
	return "time slot unavailable: overlaps " + e.Conflict.String()
}

// PastTimeError reports a request for a date or time that has already passed
// in the clinic's zone.
type PastTimeError struct {
	Date domain.Date
	Time string
}

func (e *PastTimeError) Error() string {
	if e.Time == "" {
		return fmt.Sprintf("date %s is in the past", e.Date)
	}
	return fmt.Sprintf("%s %s is in the past", e.Date, e.Time)
}

// NotFoundError names a missing appointment, or a blocked slot when Entity
// says so.
type NotFoundError struct {
	ID     uuid.UUID
	Entity string
}

func (e *NotFoundError) Error() string {
	entity := e.Entity
	if entity == "" {
		entity = "appointment"
	}
	return fmt.Sprintf("%s %s not found", entity, e.ID)
}

// ErrNotApplied is returned when the store keeps answering with a different
// date or time than the one requested, even after one corrective update.
var ErrNotApplied = errors.New("reschedule was not applied by the store")

// storeError translates store sentinels into the service's error kinds.
func storeError(id uuid.UUID, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &NotFoundError{ID: id}
	case errors.Is(err, store.ErrInvalidTransition):
		return validationError("status transition not allowed")
	default:
		return err
	}
}
