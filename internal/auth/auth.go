// Package auth resolves HTTP Basic credentials to an account principal.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/JakeFAU/assignment-webapp/internal/domain"
	"github.com/JakeFAU/assignment-webapp/internal/store"
)

// Principal is the verified identity attached to a request.
type Principal struct {
	AccountID uuid.UUID
	Email     string
}

// Authenticator checks email/password pairs against stored bcrypt hashes.
type Authenticator struct {
	accounts store.AccountRepository
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(accounts store.AccountRepository) *Authenticator {
	return &Authenticator{accounts: accounts}
}

// Authenticate returns the principal for valid credentials. Unknown emails and
// wrong passwords both yield domain.ErrUnauthenticated.
func (a *Authenticator) Authenticate(ctx context.Context, email, password string) (Principal, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return Principal{}, fmt.Errorf("missing credentials: %w", domain.ErrUnauthenticated)
	}
	acct, err := a.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Principal{}, fmt.Errorf("unknown account: %w", domain.ErrUnauthenticated)
		}
		return Principal{}, fmt.Errorf("load account: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return Principal{}, fmt.Errorf("password mismatch: %w", domain.ErrUnauthenticated)
	}
	return Principal{AccountID: acct.ID, Email: acct.Email}, nil
}

// HashPassword bcrypt-hashes a plaintext password. cost <= 0 uses bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the principal set by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
