// Package services contains server-side business logic. This file implements
// AccountService: registration, login with per-account lockout, and the
// forgot/reset password flow.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/accountgate/internal/common"
	"github.com/dmitrijs2005/accountgate/internal/dbx"
	"github.com/dmitrijs2005/accountgate/internal/logging"
	"github.com/dmitrijs2005/accountgate/internal/server/auth"
	"github.com/dmitrijs2005/accountgate/internal/server/config"
	"github.com/dmitrijs2005/accountgate/internal/server/models"
	"github.com/dmitrijs2005/accountgate/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/accountgate/internal/timex"
)

// resetTokenBytes is the amount of entropy in a reset token; the token
// itself is hex encoded and twice as long.
const resetTokenBytes = 32

// dummyPassword is hashed once at construction. Unknown usernames are
// verified against it so both login failure paths cost one bcrypt compare.
const dummyPassword = "accountgate-dummy-password"

// LoginResult is what a successful login hands back.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *models.Account
}

// ResetTicket carries a freshly issued password reset token.
type ResetTicket struct {
	Token     string
	ExpiresAt time.Time
}

// AccountService decides every credential operation. Its only shared state
// is the database; all methods are safe for concurrent use.
type AccountService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      auth.Hasher
	issuer      auth.TokenIssuer
	log         logging.Logger

	maxLoginAttempts    int
	lockDuration        time.Duration
	accessTokenValidity time.Duration
	resetTokenValidity  time.Duration

	dummyHash     string
	now           func() time.Time
	newResetToken func() (string, error)
}

// NewAccountService wires the service from its collaborators and the
// lockout/token settings in cfg.
func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, hasher auth.Hasher,
	issuer auth.TokenIssuer, cfg *config.Config, log logging.Logger) *AccountService {

	s := &AccountService{
		db:                  db,
		repomanager:         m,
		hasher:              hasher,
		issuer:              issuer,
		log:                 log.With("module", "accounts"),
		maxLoginAttempts:    cfg.MaxLoginAttempts,
		lockDuration:        cfg.LockDuration,
		accessTokenValidity: cfg.AccessTokenValidityDuration,
		resetTokenValidity:  cfg.ResetTokenValidityDuration,
		now:                 time.Now,
		newResetToken: func() (string, error) {
			return common.MakeRandHexString(resetTokenBytes)
		},
	}

	if h, err := hasher.Hash(dummyPassword); err == nil {
		s.dummyHash = h
	} else {
		s.log.Warn(context.Background(), "dummy hash unavailable", "error", err)
	}

	return s
}

// Register stores a new unlocked account with zero failed attempts.
func (s *AccountService) Register(ctx context.Context, username, password string) (*models.Account, error) {
	if len(password) > auth.MaxPasswordBytes {
		return nil, common.ErrorPasswordTooLong
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.log.Error(ctx, "hash password", "error", err)
		return nil, common.ErrorInternal
	}

	repo := s.repomanager.Accounts(s.db)
	id, err := repo.Create(ctx, username, hash)
	if err != nil {
		if errors.Is(err, common.ErrorDuplicateUsername) {
			return nil, common.ErrorDuplicateUsername
		}
		s.log.Error(ctx, "create account", "username", username, "error", err)
		return nil, common.ErrorInternal
	}

	s.log.Info(ctx, "account registered", "username", username, "id", id)
	return &models.Account{ID: id, UserName: username, PasswordHash: hash, CreatedAt: s.now()}, nil
}

// Login evaluates, in order: unknown user, open lockout window, lapsed
// lockout (reset and carry on), password check. A wrong password is counted
// and may lock the account; a right one clears the counter and yields a
// credential token.
//
// Errors: common.ErrorInvalidCredentials (unknown user), *common.LockedError
// (matches common.ErrorAccountLocked), *common.LoginFailedError (matches
// common.ErrorInvalidCredentials), common.ErrorInternal.
func (s *AccountService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	repo := s.repomanager.Accounts(s.db)

	acc, err := repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(password, s.dummyHash)
			return nil, common.ErrorInvalidCredentials
		}
		s.log.Error(ctx, "get account", "username", username, "error", err)
		return nil, common.ErrorInternal
	}

	now := s.now()

	if acc.IsLocked {
		unlockAt, ok := acc.UnlockTime(s.lockDuration)
		if ok && now.Before(unlockAt) {
			return nil, &common.LockedError{
				RemainingMinutes: timex.CeilMinutes(unlockAt.Sub(now)),
				UnlockAt:         unlockAt,
			}
		}

		fresh, err := repo.ResetAttempts(ctx, acc.ID)
		if err != nil {
			s.log.Error(ctx, "reset expired lock", "id", acc.ID, "error", err)
			return nil, common.ErrorInternal
		}
		s.log.Info(ctx, "lock expired", "username", username)
		acc = fresh
	}

	if !s.hasher.Verify(password, acc.PasswordHash) {
		return nil, s.recordFailedAttempt(ctx, acc.ID, now)
	}

	acc, err = repo.ResetAttempts(ctx, acc.ID)
	if err != nil {
		s.log.Error(ctx, "reset attempts", "username", username, "error", err)
		return nil, common.ErrorInternal
	}

	token, expiresAt, err := s.issuer.Issue(acc.ID, acc.UserName, s.accessTokenValidity)
	if err != nil {
		s.log.Error(ctx, "issue token", "username", username, "error", err)
		return nil, common.ErrorInternal
	}

	return &LoginResult{Token: token, ExpiresAt: expiresAt, Account: acc}, nil
}

// recordFailedAttempt increments the counter under a row lock so that
// concurrent failures for the same account are all counted.
func (s *AccountService) recordFailedAttempt(ctx context.Context, id string, now time.Time) error {
	failed, err := dbx.InTx(ctx, s.db, func(ctx context.Context, tx dbx.DBTX) (*common.LoginFailedError, error) {
		repo := s.repomanager.Accounts(tx)

		cur, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}

		attempts := cur.LoginAttempts + 1
		locked := attempts >= s.maxLoginAttempts

		if err := repo.UpdateAttempts(ctx, id, attempts, now, locked); err != nil {
			return nil, err
		}
		return &common.LoginFailedError{Attempts: attempts, Locked: locked, LockDuration: s.lockDuration}, nil
	})
	if err != nil {
		s.log.Error(ctx, "record failed attempt", "id", id, "error", err)
		return common.ErrorInternal
	}

	if failed.Locked {
		s.log.Warn(ctx, "account locked", "id", id, "attempts", failed.Attempts)
	}
	return failed
}

// ForgotPassword issues a reset token for username, replacing any pending one.
func (s *AccountService) ForgotPassword(ctx context.Context, username string) (*ResetTicket, error) {
	repo := s.repomanager.Accounts(s.db)

	acc, err := repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		s.log.Error(ctx, "get account", "username", username, "error", err)
		return nil, common.ErrorInternal
	}

	token, err := s.newResetToken()
	if err != nil {
		s.log.Error(ctx, "generate reset token", "error", err)
		return nil, common.ErrorInternal
	}
	expiresAt := s.now().Add(s.resetTokenValidity)

	if err := repo.SetResetToken(ctx, acc.ID, token, expiresAt); err != nil {
		s.log.Error(ctx, "store reset token", "username", username, "error", err)
		return nil, common.ErrorInternal
	}

	return &ResetTicket{Token: token, ExpiresAt: expiresAt}, nil
}

// ResetPassword consumes a valid reset token and replaces the password.
// The token is checked once up front, so dead tokens cost no hashing, and
// again under the row lock, so only one of two concurrent resets wins.
// The lockout state of the account is left as it is.
func (s *AccountService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return common.ErrorInvalidOrExpiredToken
	}
	if len(newPassword) > auth.MaxPasswordBytes {
		return common.ErrorPasswordTooLong
	}

	repo := s.repomanager.Accounts(s.db)

	acc, err := repo.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorInvalidOrExpiredToken
		}
		s.log.Error(ctx, "get account by reset token", "error", err)
		return common.ErrorInternal
	}

	if !acc.ResetTokenValid(s.now()) {
		return common.ErrorInvalidOrExpiredToken
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		s.log.Error(ctx, "hash password", "error", err)
		return common.ErrorInternal
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		r := s.repomanager.Accounts(tx)

		cur, err := r.GetByResetTokenForUpdate(ctx, token)
		if err != nil {
			return err
		}
		if !cur.ResetTokenValid(s.now()) {
			return common.ErrorInvalidOrExpiredToken
		}

		if err := r.UpdatePassword(ctx, cur.ID, hash); err != nil {
			return err
		}
		return r.ClearResetToken(ctx, cur.ID)
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorInvalidOrExpiredToken) {
			return common.ErrorInvalidOrExpiredToken
		}
		s.log.Error(ctx, "reset password", "id", acc.ID, "error", err)
		return common.ErrorInternal
	}

	s.log.Info(ctx, "password reset", "username", acc.UserName)
	return nil
}
