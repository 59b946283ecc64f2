// Package common defines shared sentinel errors and helpers used across
// the accountgate server and client. Callers should use errors.Is / errors.As
// to match these values.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Repository-level errors.
	ErrorNotFound          = errors.New("not found")
	ErrorDuplicateUsername = errors.New("duplicate username")

	// Service-level errors.
	ErrorInternal              = errors.New("internal error")
	ErrorInvalidCredentials    = errors.New("invalid credentials")
	ErrorAccountLocked         = errors.New("account locked")
	ErrorInvalidOrExpiredToken = errors.New("invalid or expired token")

	// Request-shape errors. ErrorPasswordTooLong matches ErrorValidation.
	ErrorValidation      = errors.New("validation error")
	ErrorPasswordTooLong = fmt.Errorf("%w: password longer than 72 bytes", ErrorValidation)

	// Credential token errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// LockedError is returned by login while the lockout window is still open.
// It matches ErrorAccountLocked.
type LockedError struct {
	RemainingMinutes int
	UnlockAt         time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %d minutes", e.RemainingMinutes)
}

func (e *LockedError) Is(target error) bool { return target == ErrorAccountLocked }

// LoginFailedError reports a wrong password. Locked is true when this very
// attempt reached the threshold and locked the account for LockDuration.
// It matches ErrorInvalidCredentials so callers cannot tell it apart from an
// unknown username unless they ask for the details.
type LoginFailedError struct {
	Attempts     int
	Locked       bool
	LockDuration time.Duration
}

func (e *LoginFailedError) Error() string {
	if e.Locked {
		return fmt.Sprintf("invalid credentials, account locked for %s", e.LockDuration)
	}
	return "invalid credentials"
}

func (e *LoginFailedError) Is(target error) bool { return target == ErrorInvalidCredentials }
