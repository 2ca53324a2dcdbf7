package email

import (
	"errors"
	"fmt"
)

// ErrTransient and ErrPermanent classify provider failures. Transient
// failures (network hiccups, greylisting) may be retried within one
// claim; permanent failures (bad recipient, auth) must not be.
var (
	ErrTransient = errors.New("transient send error")
	ErrPermanent = errors.New("permanent send error")
)

// WrapTransient annotates an error so callers can detect transient failures.
func WrapTransient(err error) error {
	if err == nil {
		return ErrTransient
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

// WrapPermanent annotates an error as permanent.
func WrapPermanent(err error) error {
	if err == nil {
		return ErrPermanent
	}
	return fmt.Errorf("%w: %v", ErrPermanent, err)
}
