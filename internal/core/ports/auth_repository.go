package ports

import (
	"context"
	"time"

	"github.com/magstore/email-receipts/internal/core/domain"
)

// UserRepository defines persistence for login accounts.
type UserRepository interface {
	// FindByUsername is a case-sensitive exact match.
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	Count(ctx context.Context) (int64, error)
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}
