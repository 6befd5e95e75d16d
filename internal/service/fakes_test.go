package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/auth-core/internal/model"
	"github.com/iliyamo/auth-core/internal/queue"
	"github.com/iliyamo/auth-core/internal/repository"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) { c.Set(c.Now().Add(d)) }

type memUsers struct {
	mu    sync.Mutex
	users map[string]*model.User
	err   error
}

func newMemUsers(users ...model.User) *memUsers {
	m := &memUsers{users: map[string]*model.User{}}
	for i := range users {
		u := users[i]
		m.users[u.ID] = &u
	}
	return m
}

func (m *memUsers) GetActiveByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return model.User{}, m.err
	}
	for _, u := range m.users {
		if u.Email == email && u.Active {
			return *u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetActiveByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok && u.Active {
		return *u, nil
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) setPassword(id, hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.Active {
		return false
	}
	u.PasswordHash = hash
	return true
}

func (m *memUsers) passwordHash(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].PasswordHash
}

// memRefreshTokens mirrors RefreshTokenRepo: Rotate flips revoked under the
// lock before inserting the successor.
type memRefreshTokens struct {
	mu        sync.Mutex
	rows      map[string]*model.RefreshToken
	createErr error
}

func newMemRefreshTokens() *memRefreshTokens {
	return &memRefreshTokens{rows: map[string]*model.RefreshToken{}}
}

func (m *memRefreshTokens) Create(_ context.Context, t *model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.rows[t.Token]; ok {
		return repository.ErrConflict
	}
	cp := *t
	m.rows[t.Token] = &cp
	return nil
}

func (m *memRefreshTokens) Rotate(_ context.Context, presented string, now time.Time, next *model.RefreshToken, keepSession bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[presented]
	if !ok || !row.UsableAt(now) {
		return repository.ErrNotFound
	}
	row.Revoked = true
	next.UserID = row.UserID
	if keepSession {
		next.SessionID = row.SessionID
	}
	cp := *next
	m.rows[next.Token] = &cp
	return nil
}

func (m *memRefreshTokens) Revoke(_ context.Context, token string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[token]; ok {
		row.Revoked = true
	}
	return nil
}

func (m *memRefreshTokens) RevokeAllForUser(_ context.Context, userID string, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.UserID == userID && !row.Revoked {
			row.Revoked = true
			n++
		}
	}
	return n, nil
}

func (m *memRefreshTokens) get(digest string) (model.RefreshToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[digest]
	if !ok {
		return model.RefreshToken{}, false
	}
	return *row, true
}

func (m *memRefreshTokens) active(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.UserID == userID && !row.Revoked {
			n++
		}
	}
	return n
}

type memResetTokens struct {
	mu    sync.Mutex
	rows  map[string]*model.PasswordResetToken
	users *memUsers
}

func newMemResetTokens(users *memUsers) *memResetTokens {
	return &memResetTokens{rows: map[string]*model.PasswordResetToken{}, users: users}
}

func (m *memResetTokens) Create(_ context.Context, t *model.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.rows[t.Token] = &cp
	return nil
}

func (m *memResetTokens) InvalidateUnused(_ context.Context, userID string, _ time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.UserID == userID && !row.Used {
			row.Used = true
			n++
		}
	}
	return n, nil
}

func (m *memResetTokens) Redeem(_ context.Context, token string, now time.Time, hash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[token]
	if !ok || !row.RedeemableAt(now) {
		return "", repository.ErrNotFound
	}
	if !m.users.setPassword(row.UserID, hash) {
		return "", repository.ErrNotFound
	}
	row.Used = true
	return row.UserID, nil
}

func (m *memResetTokens) unused(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if row.UserID == userID && !row.Used {
			n++
		}
	}
	return n
}

type memAttempts struct {
	mu   sync.Mutex
	rows []model.LoginAttempt
	err  error
}

func (m *memAttempts) Insert(_ context.Context, a *model.LoginAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, *a)
	return nil
}

func (m *memAttempts) CountFailedSince(_ context.Context, email string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, a := range m.rows {
		if a.Email == email && !a.Successful && !a.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memAttempts) LatestFailed(_ context.Context, email string) (model.LoginAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []model.LoginAttempt
	for _, a := range m.rows {
		if a.Email == email && !a.Successful {
			failed = append(failed, a)
		}
	}
	if len(failed) == 0 {
		return model.LoginAttempt{}, repository.ErrNotFound
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].CreatedAt.After(failed[j].CreatedAt) })
	return failed[0], nil
}

func (m *memAttempts) DeleteFailed(_ context.Context, email string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var n int64
	for _, a := range m.rows {
		if a.Email == email && !a.Successful {
			n++
			continue
		}
		kept = append(kept, a)
	}
	m.rows = kept
	return n, nil
}

func (m *memAttempts) count(email string, successful bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.rows {
		if a.Email == email && a.Successful == successful {
			n++
		}
	}
	return n
}

type recordingPublisher struct {
	mu     sync.Mutex
	audits []queue.AuditEvent
	resets []queue.PasswordResetRequested
	err    error
}

func (p *recordingPublisher) PublishAudit(_ context.Context, e queue.AuditEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.audits = append(p.audits, e)
	return p.err
}

func (p *recordingPublisher) PublishPasswordReset(_ context.Context, e queue.PasswordResetRequested) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets = append(p.resets, e)
	return p.err
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.audits))
	for _, a := range p.audits {
		out = append(out, a.Action)
	}
	return out
}

var errStore = errors.New("store unreachable")
