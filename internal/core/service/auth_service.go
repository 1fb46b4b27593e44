package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/magstore/email-receipts/internal/api/metrics"
	"github.com/magstore/email-receipts/internal/core/domain"
	"github.com/magstore/email-receipts/internal/core/ports"
)

// dummyHash is compared against when the username is unknown so every
// rejected login costs one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("receipts-dummy-password"), bcrypt.DefaultCost)

// AuthService implements login and admin bootstrap.
type AuthService struct {
	repo    ports.UserRepository
	limiter *LoginLimiter
	log     zerolog.Logger
	now     func() time.Time
}

func NewAuthService(repo ports.UserRepository, limiter *LoginLimiter, log zerolog.Logger) *AuthService {
	if limiter == nil {
		limiter = NewLoginLimiter(defaultLoginMaxFailures, defaultLoginWindow)
	}
	return &AuthService{repo: repo, limiter: limiter, log: log, now: time.Now}
}

func (s *AuthService) Authenticate(ctx context.Context, origin, username, password string) (*domain.User, error) {
	if !s.limiter.Allow(origin) {
		metrics.LoginAttemptsTotal.WithLabelValues("rate_limited").Inc()
		s.log.Warn().Str("origin", origin).Msg("login rejected: rate limited")
		return nil, domain.ErrRateLimited
	}

	user, err := s.verify(ctx, username, password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			s.limiter.Fail(origin)
			metrics.LoginAttemptsTotal.WithLabelValues("invalid_credentials").Inc()
			s.log.Info().Str("origin", origin).Str("username", username).Msg("login failed")
		}
		return nil, err
	}

	now := s.now().UTC()
	if err := s.repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	user.LastLogin = &now

	s.limiter.Reset(origin)
	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("login succeeded")
	return user, nil
}

// verify resolves the user and checks the password. Unknown, inactive and
// mismatched accounts all collapse into ErrInvalidCredentials.
func (s *AuthService) verify(ctx context.Context, username, password string) (*domain.User, error) {
	if username == "" || password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.Active {
		return nil, domain.ErrInvalidCredentials
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap admin account when no users exist yet.
// It reports whether an account was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, password, email string) (bool, error) {
	count, err := s.repo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		s.log.Info().Int64("users", count).Msg("users present, skipping admin bootstrap")
		return false, nil
	}

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return false, domain.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return false, err
	}

	_, err = s.repo.Create(ctx, &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
		Active:       true,
	})
	if err != nil {
		return false, err
	}

	s.log.Info().Str("username", username).Msg("bootstrap admin user created")
	return true, nil
}
