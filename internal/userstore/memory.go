package userstore

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gateward/gateward/internal/access"
)

// Memory is an in-process Store. Lookups are case-insensitive on email.
type Memory struct {
	mu    sync.RWMutex
	users map[string]*User // keyed by lowercased email
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{users: make(map[string]*User)}
}

// Add registers a user, assigning an ID when none is set.
func (m *Memory) Add(u User) *User {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[strings.ToLower(u.Email)] = &u
	return &u
}

// FindByEmail implements Store.
func (m *Memory) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// SeedDemo populates the store with one demo account per non-public
// level, all sharing the given password. Intended for local development
// and tests.
func SeedDemo(m *Memory, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	for _, l := range []access.Level{access.Member, access.Premium, access.Admin} {
		m.Add(User{
			Email:        string(l) + "@example.com",
			Name:         "Demo " + capitalize(string(l)),
			Level:        l,
			PasswordHash: hash,
		})
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
