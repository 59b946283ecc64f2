package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accountgate/internal/server/models"
)

// Repository is the account store. Lookups return common.ErrorNotFound when
// no row matches; Create returns common.ErrorDuplicateUsername on a username
// clash.
type Repository interface {
	Create(ctx context.Context, username, passwordHash string) (string, error)
	GetByUsername(ctx context.Context, username string) (*models.Account, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error)
	GetByResetToken(ctx context.Context, token string) (*models.Account, error)
	// GetByResetTokenForUpdate is GetByResetToken taking the row lock. A
	// waiter that wakes after the token was consumed sees no row.
	GetByResetTokenForUpdate(ctx context.Context, token string) (*models.Account, error)

	// UpdateAttempts writes the attempt counter, last attempt and lock flag
	// in one statement.
	UpdateAttempts(ctx context.Context, id string, attempts int, lastAttempt time.Time, locked bool) error
	// ResetAttempts restores the unlocked baseline and returns the updated row.
	ResetAttempts(ctx context.Context, id string) (*models.Account, error)

	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	SetResetToken(ctx context.Context, id string, token string, expires time.Time) error
	ClearResetToken(ctx context.Context, id string) error
}
