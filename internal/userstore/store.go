// Package userstore provides credential lookup for the authenticator.
package userstore

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/gateward/gateward/internal/access"
)

// ErrNotFound is returned when no user exists for an email. Callers must
// collapse it with bad-password failures before responding so the two are
// indistinguishable to a client.
var ErrNotFound = errors.New("userstore: user not found")

// User is a stored account record.
type User struct {
	ID           string
	Email        string
	Name         string
	Level        access.Level
	PasswordHash []byte
}

// Store looks up users by email.
type Store interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// HashPassword bcrypt-hashes a plaintext password for seeding stores.
func HashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
}

// CheckPassword reports whether password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) == nil
}
