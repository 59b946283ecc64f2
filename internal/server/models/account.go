// Package models holds the server-side persistence types.
package models

import "time"

// Account is one row of the users table.
//
// IsLocked implies LastAttempt is set and LoginAttempts reached the lockout
// threshold. ResetToken and ResetTokenExpires are set together.
type Account struct {
	ID                string
	UserName          string
	PasswordHash      string
	LoginAttempts     int
	LastAttempt       *time.Time
	IsLocked          bool
	ResetToken        *string
	ResetTokenExpires *time.Time
	CreatedAt         time.Time
}

// UnlockTime is the moment a locked account becomes eligible for a login
// attempt again. ok is false when there is no recorded failed attempt.
func (a *Account) UnlockTime(lockDuration time.Duration) (t time.Time, ok bool) {
	if a.LastAttempt == nil {
		return time.Time{}, false
	}
	return a.LastAttempt.Add(lockDuration), true
}

// ResetTokenValid reports whether a pending reset token exists and has not
// expired at now.
func (a *Account) ResetTokenValid(now time.Time) bool {
	if a.ResetToken == nil || a.ResetTokenExpires == nil {
		return false
	}
	return !now.After(*a.ResetTokenExpires)
}
