package ports

import (
	"context"

	"github.com/magstore/email-receipts/internal/core/domain"
)

type AuthService interface {
	// Authenticate checks credentials for a login coming from origin.
	// Unknown user, inactive account and wrong password all return
	// domain.ErrInvalidCredentials; a throttled origin gets domain.ErrRateLimited.
	Authenticate(ctx context.Context, origin, username, password string) (*domain.User, error)
	EnsureAdmin(ctx context.Context, username, password, email string) (bool, error)
}

// SessionStore issues and revokes login sessions.
type SessionStore interface {
	Issue(user *domain.User) (token string, err error)
	Verify(ctx context.Context, token string) (*SessionClaims, error)
	Revoke(ctx context.Context, token string) error
}

// SessionClaims is what a verified session exposes to handlers.
type SessionClaims struct {
	UserID   string
	Username string
}
