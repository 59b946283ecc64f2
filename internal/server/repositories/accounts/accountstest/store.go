// Package accountstest provides an in-memory accounts.Repository and a
// matching repository manager for tests of code built on top of the store.
package accountstest

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dmitrijs2005/accountgate/internal/common"
	"github.com/dmitrijs2005/accountgate/internal/dbx"
	"github.com/dmitrijs2005/accountgate/internal/server/models"
	"github.com/dmitrijs2005/accountgate/internal/server/repositories/accounts"
	"github.com/google/uuid"
)

// Store keeps accounts in a map. It is safe for concurrent use, returns
// copies, and lets tests force an error out of any method by name.
//
// The ...ForUpdate lookups model Postgres row locks when called through a
// Session: the lock is held until that session writes the row's closing
// statement (UpdateAttempts or ClearResetToken) or one of its calls fails,
// which is where the service's transactions commit or roll back.
type Store struct {
	mu       sync.Mutex
	byID     map[string]*models.Account
	failures map[string]error
	calls    map[string]int
	rowLocks map[string]chan struct{}
}

var _ accounts.Repository = (*Store)(nil)

func NewStore() *Store {
	return &Store{
		byID:     map[string]*models.Account{},
		failures: map[string]error{},
		calls:    map[string]int{},
		rowLocks: map[string]chan struct{}{},
	}
}

// rowLock returns the lock channel for id; a value in the channel means held.
func (s *Store) rowLock(id string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rowLocks[id]
	if !ok {
		l = make(chan struct{}, 1)
		s.rowLocks[id] = l
	}
	return l
}

func (s *Store) findByToken(token string) *models.Account {
	for _, a := range s.byID {
		if a.ResetToken != nil && *a.ResetToken == token {
			return a
		}
	}
	return nil
}

// Fail makes every later call of method return err. A nil err clears it.
func (s *Store) Fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, method)
		return
	}
	s.failures[method] = err
}

// Calls reports how many times method was invoked.
func (s *Store) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Put inserts or replaces a row as is.
func (s *Store) Put(a models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[a.ID] = clone(&a)
}

// Get returns a copy of the row for username, or nil.
func (s *Store) Get(username string) *models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a := s.findByUsername(username); a != nil {
		return clone(a)
	}
	return nil
}

func (s *Store) enter(method string) error {
	s.calls[method]++
	return s.failures[method]
}

func (s *Store) findByUsername(username string) *models.Account {
	for _, a := range s.byID {
		if a.UserName == username {
			return a
		}
	}
	return nil
}

func (s *Store) Create(ctx context.Context, username, passwordHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("Create"); err != nil {
		return "", err
	}
	if s.findByUsername(username) != nil {
		return "", common.ErrorDuplicateUsername
	}
	id := uuid.NewString()
	s.byID[id] = &models.Account{ID: id, UserName: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	return id, nil
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetByUsername"); err != nil {
		return nil, err
	}
	a := s.findByUsername(username)
	if a == nil {
		return nil, common.ErrorNotFound
	}
	return clone(a), nil
}

func (s *Store) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetByIDForUpdate"); err != nil {
		return nil, err
	}
	a, ok := s.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(a), nil
}

func (s *Store) GetByResetToken(ctx context.Context, token string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetByResetToken"); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, common.ErrorNotFound
	}
	if a := s.findByToken(token); a != nil {
		return clone(a), nil
	}
	return nil, common.ErrorNotFound
}

// GetByResetTokenForUpdate called on the Store itself takes no lock.
func (s *Store) GetByResetTokenForUpdate(ctx context.Context, token string) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetByResetTokenForUpdate"); err != nil {
		return nil, err
	}
	if token == "" {
		return nil, common.ErrorNotFound
	}
	if a := s.findByToken(token); a != nil {
		return clone(a), nil
	}
	return nil, common.ErrorNotFound
}

func (s *Store) UpdateAttempts(ctx context.Context, id string, attempts int, lastAttempt time.Time, locked bool) error {
	return s.update("UpdateAttempts", id, func(a *models.Account) {
		a.LoginAttempts = attempts
		a.LastAttempt = &lastAttempt
		a.IsLocked = locked
	})
}

func (s *Store) ResetAttempts(ctx context.Context, id string) (*models.Account, error) {
	var out *models.Account
	err := s.update("ResetAttempts", id, func(a *models.Account) {
		a.LoginAttempts = 0
		a.LastAttempt = nil
		a.IsLocked = false
		out = clone(a)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	return s.update("UpdatePassword", id, func(a *models.Account) {
		a.PasswordHash = passwordHash
	})
}

func (s *Store) SetResetToken(ctx context.Context, id string, token string, expires time.Time) error {
	return s.update("SetResetToken", id, func(a *models.Account) {
		a.ResetToken = &token
		a.ResetTokenExpires = &expires
	})
}

func (s *Store) ClearResetToken(ctx context.Context, id string) error {
	return s.update("ClearResetToken", id, func(a *models.Account) {
		a.ResetToken = nil
		a.ResetTokenExpires = nil
	})
}

func (s *Store) update(method, id string, fn func(a *models.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(method); err != nil {
		return err
	}
	a, ok := s.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(a)
	return nil
}

func clone(a *models.Account) *models.Account {
	c := *a
	if a.LastAttempt != nil {
		t := *a.LastAttempt
		c.LastAttempt = &t
	}
	if a.ResetToken != nil {
		t := *a.ResetToken
		c.ResetToken = &t
	}
	if a.ResetTokenExpires != nil {
		t := *a.ResetTokenExpires
		c.ResetTokenExpires = &t
	}
	return &c
}

// Session is the Store as seen by one connection or transaction. It owns the
// row locks its ...ForUpdate calls take.
type Session struct {
	*Store

	mu   sync.Mutex
	held map[string]chan struct{}
}

var _ accounts.Repository = (*Session)(nil)

func (s *Store) Session() *Session {
	return &Session{Store: s, held: map[string]chan struct{}{}}
}

func (ss *Session) acquire(ctx context.Context, id string) error {
	ss.mu.Lock()
	_, mine := ss.held[id]
	ss.mu.Unlock()
	if mine {
		return nil
	}

	l := ss.rowLock(id)
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	ss.mu.Lock()
	ss.held[id] = l
	ss.mu.Unlock()
	return nil
}

func (ss *Session) release(id string) {
	ss.mu.Lock()
	l, ok := ss.held[id]
	delete(ss.held, id)
	ss.mu.Unlock()
	if ok {
		<-l
	}
}

func (ss *Session) releaseAll() {
	ss.mu.Lock()
	ids := make([]string, 0, len(ss.held))
	for id := range ss.held {
		ids = append(ids, id)
	}
	ss.mu.Unlock()
	for _, id := range ids {
		ss.release(id)
	}
}

// done releases every lock when err is not nil, the rollback path.
func (ss *Session) done(err error) error {
	if err != nil {
		ss.releaseAll()
	}
	return err
}

func (ss *Session) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	if err := ss.acquire(ctx, id); err != nil {
		return nil, err
	}
	a, err := ss.Store.GetByIDForUpdate(ctx, id)
	return a, ss.done(err)
}

// GetByResetTokenForUpdate locks the row the token points at, then reads it
// again by token: a waiter that wakes after the token was cleared finds no row.
func (ss *Session) GetByResetTokenForUpdate(ctx context.Context, token string) (*models.Account, error) {
	ss.Store.mu.Lock()
	var id string
	if a := ss.Store.findByToken(token); a != nil && token != "" {
		id = a.ID
	}
	ss.Store.mu.Unlock()

	if id != "" {
		if err := ss.acquire(ctx, id); err != nil {
			return nil, err
		}
	}

	a, err := ss.Store.GetByResetTokenForUpdate(ctx, token)
	if err == nil && a.ID != id {
		err = common.ErrorNotFound
	}
	if err != nil {
		return nil, ss.done(err)
	}
	return a, nil
}

func (ss *Session) UpdateAttempts(ctx context.Context, id string, attempts int, lastAttempt time.Time, locked bool) error {
	defer ss.release(id)
	return ss.done(ss.Store.UpdateAttempts(ctx, id, attempts, lastAttempt, locked))
}

func (ss *Session) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	return ss.done(ss.Store.UpdatePassword(ctx, id, passwordHash))
}

func (ss *Session) ClearResetToken(ctx context.Context, id string) error {
	defer ss.release(id)
	return ss.done(ss.Store.ClearResetToken(ctx, id))
}

// Manager hands every caller a fresh Session over one shared Store.
type Manager struct {
	Store         *Store
	MigrationsErr error
}

func NewManager() *Manager {
	return &Manager{Store: NewStore()}
}

func (m *Manager) RunMigrations(ctx context.Context, db *sql.DB) error { return m.MigrationsErr }

func (m *Manager) Accounts(db dbx.DBTX) accounts.Repository { return m.Store.Session() }
