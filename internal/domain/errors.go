package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation              = errors.New("first name and last name are required")
	ErrVerificationUnavailable = errors.New("verification service unavailable")
	ErrPersistenceFailed       = errors.New("saving user failed")
)

// PersistenceError carries the reason the storage endpoint gave.
type PersistenceError struct {
	Status int
	Reason string
}

func (e *PersistenceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%v: %s (status %d)", ErrPersistenceFailed, e.Reason, e.Status)
	}
	return fmt.Sprintf("%v: %s", ErrPersistenceFailed, e.Reason)
}

func (e *PersistenceError) Unwrap() error { return ErrPersistenceFailed }
