// Package apperr defines the error kinds every public operation reports.
package apperr

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	ErrMissingField  = errors.New("missing required field")
	ErrValidation    = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidState  = errors.New("invalid state transition")
	ErrConfiguration = errors.New("configuration error")
	ErrUnexpected    = errors.New("unexpected error")
)

var known = []error{
	ErrMissingField,
	ErrValidation,
	ErrNotFound,
	ErrConflict,
	ErrInvalidState,
	ErrConfiguration,
	ErrUnexpected,
}

func MissingField(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(what string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, what)
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func InvalidState(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}

func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// KindOf returns the sentinel err wraps, or nil for errors of no known kind.
func KindOf(err error) error {
	for _, k := range known {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Boundary is applied to every error leaving a public operation. Known kinds
// pass through unchanged; anything else is logged in full and replaced with a
// generic failure that carries no internal detail.
func Boundary(logger zerolog.Logger, op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	logger.Error().Err(err).Str("op", op).Msg("operation failed")
	return fmt.Errorf("%s failed: %w", op, ErrUnexpected)
}

var codes = map[error]string{
	ErrMissingField:  "missing_field",
	ErrValidation:    "validation_error",
	ErrNotFound:      "not_found",
	ErrConflict:      "conflict",
	ErrInvalidState:  "invalid_state",
	ErrConfiguration: "configuration_error",
	ErrUnexpected:    "unexpected_error",
}

// Code is the stable machine-readable name of err's kind.
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	if k := KindOf(err); k != nil {
		return codes[k]
	}
	return codes[ErrUnexpected]
}
