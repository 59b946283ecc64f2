package services

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/accountgate/internal/common"
	"github.com/dmitrijs2005/accountgate/internal/logging"
	"github.com/dmitrijs2005/accountgate/internal/server/auth"
	"github.com/dmitrijs2005/accountgate/internal/server/config"
	"github.com/dmitrijs2005/accountgate/internal/server/models"
	"github.com/dmitrijs2005/accountgate/internal/server/repositories/accounts/accountstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

// --- helpers ---

type fakeHasher struct {
	mu       sync.Mutex
	hashErr  error
	onHash   func()
	verified []string
}

func (h *fakeHasher) Hash(password string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	if h.onHash != nil {
		h.onHash()
	}
	return "hash:" + password, nil
}

func (h *fakeHasher) Verify(password, hash string) bool {
	h.mu.Lock()
	h.verified = append(h.verified, hash)
	h.mu.Unlock()
	return hash == "hash:"+password
}

type fakeIssuer struct {
	err error
	now func() time.Time
}

func (i *fakeIssuer) Issue(userID, userName string, ttl time.Duration) (string, time.Time, error) {
	if i.err != nil {
		return "", time.Time{}, i.err
	}
	return "token-for-" + userName, i.now().Add(ttl), nil
}

func (i *fakeIssuer) Parse(token string) (*auth.Claims, error) {
	return nil, common.ErrInvalidToken
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func (c *clock) Set(t time.Time)         { c.t = t }

type fixture struct {
	svc    *AccountService
	store  *accountstest.Store
	hasher *fakeHasher
	issuer *fakeIssuer
	clock  *clock
	mock   sqlmock.Sqlmock
}

func testConfig() *config.Config {
	var cfg config.Config
	cfg.LoadDefaults()
	return &cfg
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := accountstest.NewManager()
	h := &fakeHasher{}
	iss := &fakeIssuer{now: c.Now}

	svc := NewAccountService(db, m, h, iss, testConfig(), logging.Nop{})
	svc.now = c.Now

	return &fixture{svc: svc, store: m.Store, hasher: h, issuer: iss, clock: c, mock: mock}
}

// expectTx queues n successful transactions.
func (f *fixture) expectTx(n int) {
	for i := 0; i < n; i++ {
		f.mock.ExpectBegin()
		f.mock.ExpectCommit()
	}
}

func (f *fixture) register(t *testing.T, name, password string) *models.Account {
	t.Helper()
	acc, err := f.svc.Register(context.Background(), name, password)
	require.NoError(t, err)
	return acc
}

func (f *fixture) assertTxDone(t *testing.T) {
	t.Helper()
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

// barrierHasher parks Hash and Verify callers once armed, so a test can let
// several requests read the same row before any of them writes.
type barrierHasher struct {
	*fakeHasher
	arrive  chan struct{}
	release chan struct{}
}

func (h *barrierHasher) arm() {
	h.arrive = make(chan struct{})
	h.release = make(chan struct{})
}

func (h *barrierHasher) wait() {
	if h.arrive != nil {
		h.arrive <- struct{}{}
		<-h.release
	}
}

func (h *barrierHasher) Hash(password string) (string, error) {
	h.wait()
	return h.fakeHasher.Hash(password)
}

func (h *barrierHasher) Verify(password, hash string) bool {
	h.wait()
	return h.fakeHasher.Verify(password, hash)
}

// openWaitingRoom lets n armed callers through together.
func (h *barrierHasher) openWaitingRoom(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.arrive:
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d callers arrived", i, n)
		}
	}
	close(h.release)
}

// newConcurrentFixture runs the service over a real *sql.DB so that
// transactions overlap. The sqlite handle only hosts BEGIN/COMMIT; rows live
// in the in-memory store.
func newConcurrentFixture(t *testing.T) (*AccountService, *accountstest.Store, *barrierHasher) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	m := accountstest.NewManager()
	h := &barrierHasher{fakeHasher: &fakeHasher{}}

	svc := NewAccountService(db, m, h, &fakeIssuer{now: c.Now}, testConfig(), logging.Nop{})
	svc.now = c.Now

	return svc, m.Store, h
}

// --- Register ---

func TestRegister_Success(t *testing.T) {
	f := newFixture(t)

	acc := f.register(t, "alice", "pw1")

	assert.NotEmpty(t, acc.ID)
	assert.Equal(t, "alice", acc.UserName)

	stored := f.store.Get("alice")
	require.NotNil(t, stored)
	assert.Equal(t, "hash:pw1", stored.PasswordHash)
	assert.Zero(t, stored.LoginAttempts)
	assert.False(t, stored.IsLocked)
	assert.Nil(t, stored.LastAttempt)
	assert.Nil(t, stored.ResetToken)
}

func TestRegister_Duplicate(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw1")

	_, err := f.svc.Register(context.Background(), "alice", "other")
	assert.ErrorIs(t, err, common.ErrorDuplicateUsername)
	assert.Equal(t, "hash:pw1", f.store.Get("alice").PasswordHash)
}

func TestRegister_Errors(t *testing.T) {
	t.Run("hash failure", func(t *testing.T) {
		f := newFixture(t)
		f.hasher.hashErr = errors.New("boom")

		_, err := f.svc.Register(context.Background(), "alice", "pw1")
		assert.ErrorIs(t, err, common.ErrorInternal)
		assert.Nil(t, f.store.Get("alice"))
	})

	t.Run("store failure", func(t *testing.T) {
		f := newFixture(t)
		f.store.Fail("Create", errors.New("db error: connection reset"))

		_, err := f.svc.Register(context.Background(), "alice", "pw1")
		assert.ErrorIs(t, err, common.ErrorInternal)
	})
}

func TestRegister_PasswordTooLong(t *testing.T) {
	t.Run("rejected before hashing", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Register(context.Background(), "bob", strings.Repeat("a", 80))
		require.ErrorIs(t, err, common.ErrorPasswordTooLong)
		assert.ErrorIs(t, err, common.ErrorValidation)
		assert.Nil(t, f.store.Get("bob"))
		assert.Zero(t, f.store.Calls("Create"))
	})

	t.Run("72 bytes is accepted", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "bob", strings.Repeat("a", 72))
	})

	t.Run("real bcrypt", func(t *testing.T) {
		db, _, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		svc := NewAccountService(db, accountstest.NewManager(), auth.NewBcryptHasher(4),
			&fakeIssuer{now: time.Now}, testConfig(), logging.Nop{})

		_, err = svc.Register(context.Background(), "bob", strings.Repeat("a", 80))
		assert.ErrorIs(t, err, common.ErrorPasswordTooLong)
		assert.NotErrorIs(t, err, common.ErrorInternal)
	})
}

// --- Login ---

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw1")

	res, err := f.svc.Login(context.Background(), "alice", "pw1")
	require.NoError(t, err)

	assert.Equal(t, "token-for-alice", res.Token)
	assert.Equal(t, f.clock.Now().Add(time.Hour), res.ExpiresAt)
	assert.Equal(t, "alice", res.Account.UserName)
	assert.Equal(t, 1, f.store.Calls("ResetAttempts"))
}

func TestLogin_UnknownUser(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Login(context.Background(), "ghost", "pw")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, common.ErrorInvalidCredentials)

	var failed *common.LoginFailedError
	assert.False(t, errors.As(err, &failed), "unknown user must not carry attempt details")

	require.Len(t, f.hasher.verified, 1, "unknown user must still pay for one hash comparison")
	assert.Equal(t, "hash:"+dummyPassword, f.hasher.verified[0])
	assert.Zero(t, f.store.Calls("UpdateAttempts"))
	f.assertTxDone(t)
}

func TestLogin_WrongPasswordCountsAndLocks(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw1")
	f.expectTx(3)

	for attempt := 1; attempt <= 3; attempt++ {
		res, err := f.svc.Login(context.Background(), "alice", "wrong")
		assert.Nil(t, res)
		require.ErrorIs(t, err, common.ErrorInvalidCredentials)

		var failed *common.LoginFailedError
		require.ErrorAs(t, err, &failed)
		assert.Equal(t, attempt, failed.Attempts)
		assert.Equal(t, attempt == 3, failed.Locked)

		stored := f.store.Get("alice")
		assert.Equal(t, attempt, stored.LoginAttempts)
		assert.Equal(t, attempt == 3, stored.IsLocked)
		require.NotNil(t, stored.LastAttempt)
		assert.True(t, stored.LastAttempt.Equal(f.clock.Now()))

		f.clock.Advance(time.Second)
	}

	f.assertTxDone(t)
}

func TestLogin_LockedRejectsEvenCorrectPassword(t *testing.T) {
	f := newFixture(t)
	acc := f.register(t, "alice", "pw1")

	lastAttempt := f.clock.Now()
	f.store.Put(models.Account{ID: acc.ID, UserName: "alice", PasswordHash: "hash:pw1",
		LoginAttempts: 3, LastAttempt: &lastAttempt, IsLocked: true})

	tests := []struct {
		name    string
		elapsed time.Duration
		minutes int
	}{
		{name: "immediately", elapsed: 0, minutes: 5},
		{name: "after 30s", elapsed: 30 * time.Second, minutes: 5},
		{name: "after exactly one minute", elapsed: time.Minute, minutes: 4},
		{name: "after 4m1s", elapsed: 4*time.Minute + time.Second, minutes: 1},
		{name: "one nanosecond before unlock", elapsed: 5*time.Minute - time.Nanosecond, minutes: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.clock.Set(lastAttempt.Add(tt.elapsed))

			res, err := f.svc.Login(context.Background(), "alice", "pw1")
			assert.Nil(t, res)
			require.ErrorIs(t, err, common.ErrorAccountLocked)

			var locked *common.LockedError
			require.ErrorAs(t, err, &locked)
			assert.Equal(t, tt.minutes, locked.RemainingMinutes)
			assert.True(t, locked.UnlockAt.Equal(lastAttempt.Add(5*time.Minute)))
		})
	}

	stored := f.store.Get("alice")
	assert.Equal(t, 3, stored.LoginAttempts)
	assert.True(t, stored.IsLocked)
	assert.Zero(t, f.store.Calls("UpdateAttempts"))
	assert.Zero(t, f.store.Calls("ResetAttempts"))
	f.assertTxDone(t)
}

func TestLogin_LockLapses(t *testing.T) {
	t.Run("correct password after the window", func(t *testing.T) {
		f := newFixture(t)
		acc := f.register(t, "alice", "pw1")
		lastAttempt := f.clock.Now()
		f.store.Put(models.Account{ID: acc.ID, UserName: "alice", PasswordHash: "hash:pw1",
			LoginAttempts: 3, LastAttempt: &lastAttempt, IsLocked: true})

		f.clock.Advance(5 * time.Minute)

		res, err := f.svc.Login(context.Background(), "alice", "pw1")
		require.NoError(t, err)
		assert.NotEmpty(t, res.Token)

		stored := f.store.Get("alice")
		assert.Zero(t, stored.LoginAttempts)
		assert.False(t, stored.IsLocked)
		assert.Nil(t, stored.LastAttempt)
	})

	t.Run("wrong password after the window starts a fresh count", func(t *testing.T) {
		f := newFixture(t)
		acc := f.register(t, "alice", "pw1")
		lastAttempt := f.clock.Now()
		f.store.Put(models.Account{ID: acc.ID, UserName: "alice", PasswordHash: "hash:pw1",
			LoginAttempts: 3, LastAttempt: &lastAttempt, IsLocked: true})
		f.expectTx(1)

		f.clock.Advance(6 * time.Minute)

		_, err := f.svc.Login(context.Background(), "alice", "nope")
		var failed *common.LoginFailedError
		require.ErrorAs(t, err, &failed)
		assert.Equal(t, 1, failed.Attempts)
		assert.False(t, failed.Locked)

		stored := f.store.Get("alice")
		assert.Equal(t, 1, stored.LoginAttempts)
		assert.False(t, stored.IsLocked)
		f.assertTxDone(t)
	})

	t.Run("locked row without a recorded attempt is treated as lapsed", func(t *testing.T) {
		f := newFixture(t)
		acc := f.register(t, "alice", "pw1")
		f.store.Put(models.Account{ID: acc.ID, UserName: "alice", PasswordHash: "hash:pw1",
			LoginAttempts: 3, IsLocked: true})

		_, err := f.svc.Login(context.Background(), "alice", "pw1")
		require.NoError(t, err)
		assert.False(t, f.store.Get("alice").IsLocked)
	})
}

func TestLogin_SuccessClearsEarlierFailures(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw1")
	f.expectTx(2)

	for i := 0; i < 2; i++ {
		_, err := f.svc.Login(context.Background(), "alice", "wrong")
		require.ErrorIs(t, err, common.ErrorInvalidCredentials)
	}
	require.Equal(t, 2, f.store.Get("alice").LoginAttempts)

	_, err := f.svc.Login(context.Background(), "alice", "pw1")
	require.NoError(t, err)

	stored := f.store.Get("alice")
	assert.Zero(t, stored.LoginAttempts)
	assert.Nil(t, stored.LastAttempt)
	assert.False(t, stored.IsLocked)
	f.assertTxDone(t)
}

func TestLogin_InternalErrors(t *testing.T) {
	t.Run("lookup fails", func(t *testing.T) {
		f := newFixture(t)
		f.store.Fail("GetByUsername", errors.New("db error: timeout"))

		_, err := f.svc.Login(context.Background(), "alice", "pw1")
		assert.ErrorIs(t, err, common.ErrorInternal)
	})

	t.Run("token issue fails", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice", "pw1")
		f.issuer.err = errors.New("sign")

		res, err := f.svc.Login(context.Background(), "alice", "pw1")
		assert.Nil(t, res)
		assert.ErrorIs(t, err, common.ErrorInternal)
	})

	t.Run("reset on success fails", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice", "pw1")
		f.store.Fail("ResetAttempts", errors.New("db error"))

		_, err := f.svc.Login(context.Background(), "alice", "pw1")
		assert.ErrorIs(t, err, common.ErrorInternal)
	})

	t.Run("reset of lapsed lock fails", func(t *testing.T) {
		f := newFixture(t)
		acc := f.register(t, "alice", "pw1")
		last := f.clock.Now().Add(-time.Hour)
		f.store.Put(models.Account{ID: acc.ID, UserName: "alice", PasswordHash: "hash:pw1",
			LoginAttempts: 3, LastAttempt: &last, IsLocked: true})
		f.store.Fail("ResetAttempts", errors.New("db error"))

		_, err := f.svc.Login(context.Background(), "alice", "pw1")
		assert.ErrorIs(t, err, common.ErrorInternal)
	})

	t.Run("begin fails", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice", "pw1")
		f.mock.ExpectBegin().WillReturnError(errors.New("no conn"))

		_, err := f.svc.Login(context.Background(), "alice", "wrong")
		assert.ErrorIs(t, err, common.ErrorInternal)
		assert.Zero(t, f.store.Get("alice").LoginAttempts)
		f.assertTxDone(t)
	})

	t.Run("attempt update fails and rolls back", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice", "pw1")
		f.store.Fail("UpdateAttempts", errors.New("db error"))
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		_, err := f.svc.Login(context.Background(), "alice", "wrong")
		assert.ErrorIs(t, err, common.ErrorInternal)
		assert.NotErrorIs(t, err, common.ErrorInvalidCredentials)
		f.assertTxDone(t)
	})
}

func TestLogin_ConcurrentFailuresAreAllCounted(t *testing.T) {
	const n = 8
	svc, store, h := newConcurrentFixture(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	h.arm()

	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := svc.Login(ctx, "alice", "wrong")
			errs <- err
		}()
	}
	h.openWaitingRoom(t, n)

	seen := map[int]bool{}
	for i := 0; i < n; i++ {
		var failed *common.LoginFailedError
		require.ErrorAs(t, <-errs, &failed)
		assert.Equal(t, failed.Attempts >= 3, failed.Locked)
		seen[failed.Attempts] = true
	}

	// every increment saw the previous one
	for i := 1; i <= n; i++ {
		assert.True(t, seen[i], "no attempt returned count %d", i)
	}

	stored := store.Get("alice")
	assert.Equal(t, n, stored.LoginAttempts)
	assert.True(t, stored.IsLocked)
}

// --- ForgotPassword ---

func TestForgotPassword_Success(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw1")

	ticket, err := f.svc.ForgotPassword(context.Background(), "alice")
	require.NoError(t, err)

	assert.Len(t, ticket.Token, 64)
	_, err = hex.DecodeString(ticket.Token)
	assert.NoError(t, err)
	assert.Equal(t, f.clock.Now().Add(time.Hour), ticket.ExpiresAt)

	stored := f.store.Get("alice")
	require.NotNil(t, stored.ResetToken)
	assert.Equal(t, ticket.Token, *stored.ResetToken)
	assert.True(t, stored.ResetTokenExpires.Equal(ticket.ExpiresAt))
}

func TestForgotPassword_ReplacesPendingToken(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw1")

	first, err := f.svc.ForgotPassword(context.Background(), "alice")
	require.NoError(t, err)
	second, err := f.svc.ForgotPassword(context.Background(), "alice")
	require.NoError(t, err)

	assert.NotEqual(t, first.Token, second.Token)
	assert.Equal(t, second.Token, *f.store.Get("alice").ResetToken)
}

func TestForgotPassword_Errors(t *testing.T) {
	t.Run("unknown user", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ForgotPassword(context.Background(), "ghost")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("token generation fails", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice", "pw1")
		f.svc.newResetToken = func() (string, error) { return "", errors.New("entropy") }

		_, err := f.svc.ForgotPassword(context.Background(), "alice")
		assert.ErrorIs(t, err, common.ErrorInternal)
		assert.Nil(t, f.store.Get("alice").ResetToken)
	})

	t.Run("store fails", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice", "pw1")
		f.store.Fail("SetResetToken", errors.New("db error"))

		_, err := f.svc.ForgotPassword(context.Background(), "alice")
		assert.ErrorIs(t, err, common.ErrorInternal)
	})
}

// --- ResetPassword ---

func TestResetPassword_Success(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw1")
	f.expectTx(1)

	ticket, err := f.svc.ForgotPassword(context.Background(), "alice")
	require.NoError(t, err)

	require.NoError(t, f.svc.ResetPassword(context.Background(), ticket.Token, "pw2"))

	stored := f.store.Get("alice")
	assert.Equal(t, "hash:pw2", stored.PasswordHash)
	assert.Nil(t, stored.ResetToken)
	assert.Nil(t, stored.ResetTokenExpires)

	// single use
	err = f.svc.ResetPassword(context.Background(), ticket.Token, "pw3")
	assert.ErrorIs(t, err, common.ErrorInvalidOrExpiredToken)
	f.assertTxDone(t)
}

func TestResetPassword_Expiry(t *testing.T) {
	t.Run("valid at the expiry instant", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice", "pw1")
		f.expectTx(1)

		ticket, err := f.svc.ForgotPassword(context.Background(), "alice")
		require.NoError(t, err)
		f.clock.Set(ticket.ExpiresAt)

		assert.NoError(t, f.svc.ResetPassword(context.Background(), ticket.Token, "pw2"))
	})

	t.Run("rejected after expiry", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice", "pw1")

		ticket, err := f.svc.ForgotPassword(context.Background(), "alice")
		require.NoError(t, err)
		f.clock.Set(ticket.ExpiresAt.Add(time.Second))

		err = f.svc.ResetPassword(context.Background(), ticket.Token, "pw2")
		assert.ErrorIs(t, err, common.ErrorInvalidOrExpiredToken)
		assert.Equal(t, "hash:pw1", f.store.Get("alice").PasswordHash)
		f.assertTxDone(t)
	})
}

func TestResetPassword_LeavesLockoutAlone(t *testing.T) {
	f := newFixture(t)
	acc := f.register(t, "alice", "pw1")
	f.expectTx(1)

	ticket, err := f.svc.ForgotPassword(context.Background(), "alice")
	require.NoError(t, err)

	stored := f.store.Get("alice")
	last := f.clock.Now()
	stored.LoginAttempts, stored.LastAttempt, stored.IsLocked = 3, &last, true
	f.store.Put(*stored)

	require.NoError(t, f.svc.ResetPassword(context.Background(), ticket.Token, "pw2"))

	after := f.store.Get("alice")
	assert.Equal(t, acc.ID, after.ID)
	assert.True(t, after.IsLocked)
	assert.Equal(t, 3, after.LoginAttempts)

	_, err = f.svc.Login(context.Background(), "alice", "pw2")
	assert.ErrorIs(t, err, common.ErrorAccountLocked)
}

func TestResetPassword_Errors(t *testing.T) {
	t.Run("empty token", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.ResetPassword(context.Background(), "", "pw2")
		assert.ErrorIs(t, err, common.ErrorInvalidOrExpiredToken)
		assert.Zero(t, f.store.Calls("GetByResetToken"))
	})

	t.Run("unknown token", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.ResetPassword(context.Background(), "deadbeef", "pw2")
		assert.ErrorIs(t, err, common.ErrorInvalidOrExpiredToken)
	})

	t.Run("lookup fails", func(t *testing.T) {
		f := newFixture(t)
		f.store.Fail("GetByResetToken", errors.New("db error"))
		err := f.svc.ResetPassword(context.Background(), "deadbeef", "pw2")
		assert.ErrorIs(t, err, common.ErrorInternal)
	})

	t.Run("clear fails and rolls back", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice", "pw1")
		ticket, err := f.svc.ForgotPassword(context.Background(), "alice")
		require.NoError(t, err)

		f.store.Fail("ClearResetToken", errors.New("db error"))
		f.mock.ExpectBegin()
		f.mock.ExpectRollback()

		err = f.svc.ResetPassword(context.Background(), ticket.Token, "pw2")
		assert.ErrorIs(t, err, common.ErrorInternal)
		f.assertTxDone(t)
	})

	t.Run("hash fails", func(t *testing.T) {
		f := newFixture(t)
		f.register(t, "alice", "pw1")
		ticket, err := f.svc.ForgotPassword(context.Background(), "alice")
		require.NoError(t, err)
		f.hasher.hashErr = errors.New("boom")

		err = f.svc.ResetPassword(context.Background(), ticket.Token, "pw2")
		assert.ErrorIs(t, err, common.ErrorInternal)
	})
}

func TestResetPassword_PasswordTooLong(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw1")
	ticket, err := f.svc.ForgotPassword(context.Background(), "alice")
	require.NoError(t, err)

	err = f.svc.ResetPassword(context.Background(), ticket.Token, strings.Repeat("a", 73))
	require.ErrorIs(t, err, common.ErrorPasswordTooLong)

	stored := f.store.Get("alice")
	assert.Equal(t, "hash:pw1", stored.PasswordHash)
	require.NotNil(t, stored.ResetToken)
	assert.Equal(t, ticket.Token, *stored.ResetToken)
	f.assertTxDone(t)
}

func TestResetPassword_TokenConsumedAfterCheck(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "pw1")
	ticket, err := f.svc.ForgotPassword(context.Background(), "alice")
	require.NoError(t, err)

	// another reset lands while this one is hashing
	f.hasher.onHash = func() {
		stored := f.store.Get("alice")
		stored.PasswordHash = "hash:other"
		stored.ResetToken, stored.ResetTokenExpires = nil, nil
		f.store.Put(*stored)
	}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	err = f.svc.ResetPassword(context.Background(), ticket.Token, "pw2")
	assert.ErrorIs(t, err, common.ErrorInvalidOrExpiredToken)
	assert.Equal(t, "hash:other", f.store.Get("alice").PasswordHash)
	assert.Zero(t, f.store.Calls("UpdatePassword"))
	f.assertTxDone(t)
}

func TestResetPassword_ConcurrentUseOfOneToken(t *testing.T) {
	svc, store, h := newConcurrentFixture(t)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "alice", "pw1")
	require.NoError(t, err)
	ticket, err := svc.ForgotPassword(ctx, "alice")
	require.NoError(t, err)
	h.arm()

	passwords := []string{"pw-a", "pw-b"}
	errs := make([]error, len(passwords))
	var wg sync.WaitGroup
	for i, pw := range passwords {
		i, pw := i, pw
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = svc.ResetPassword(ctx, ticket.Token, pw)
		}()
	}
	h.openWaitingRoom(t, len(passwords))
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			require.Equal(t, -1, winner, "token consumed twice")
			winner = i
			continue
		}
		assert.ErrorIs(t, err, common.ErrorInvalidOrExpiredToken)
	}
	require.NotEqual(t, -1, winner)

	stored := store.Get("alice")
	assert.Equal(t, acc.ID, stored.ID)
	assert.Equal(t, "hash:"+passwords[winner], stored.PasswordHash)
	assert.Nil(t, stored.ResetToken)
	assert.Equal(t, 1, store.Calls("UpdatePassword"))
}

// --- end to end ---

func TestAliceScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.expectTx(3)

	f.register(t, "alice", "pw1")

	_, err := f.svc.Login(ctx, "alice", "x")
	var failed *common.LoginFailedError
	require.ErrorAs(t, err, &failed)
	assert.False(t, failed.Locked)

	_, err = f.svc.Login(ctx, "alice", "y")
	require.ErrorAs(t, err, &failed)
	assert.False(t, failed.Locked)

	lockedAt := f.clock.Now()
	_, err = f.svc.Login(ctx, "alice", "z")
	require.ErrorAs(t, err, &failed)
	assert.True(t, failed.Locked)
	assert.Equal(t, 5*time.Minute, failed.LockDuration)

	f.clock.Advance(time.Second)
	_, err = f.svc.Login(ctx, "alice", "pw1")
	var locked *common.LockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, 5, locked.RemainingMinutes)

	f.clock.Set(lockedAt.Add(5*time.Minute + time.Second))
	res, err := f.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)

	stored := f.store.Get("alice")
	assert.Zero(t, stored.LoginAttempts)
	assert.False(t, stored.IsLocked)
	f.assertTxDone(t)
}

func TestNewAccountService_RealBcryptDummyHash(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	svc := NewAccountService(db, accountstest.NewManager(), auth.NewBcryptHasher(4),
		&fakeIssuer{now: time.Now}, testConfig(), logging.Nop{})

	assert.NotEmpty(t, svc.dummyHash)

	_, err = svc.Login(context.Background(), "ghost", "pw")
	assert.ErrorIs(t, err, common.ErrorInvalidCredentials)
}
