package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/magstore/email-receipts/internal/core/domain"
	"github.com/magstore/email-receipts/internal/infrastructure/db/memory"
)

type stubAuthRepo struct {
	users    map[string]*domain.User
	touched  map[string]time.Time
	countErr error
}

func newStubAuthRepo() *stubAuthRepo {
	return &stubAuthRepo{users: make(map[string]*domain.User), touched: make(map[string]time.Time)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (r *stubAuthRepo) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	if _, exists := r.users[user.Username]; exists {
		return nil, domain.ErrUserExists
	}
	r.users[user.Username] = cloneUser(user)
	return cloneUser(user), nil
}

func (r *stubAuthRepo) FindByUsername(_ context.Context, username string) (*domain.User, error) {
	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (r *stubAuthRepo) Count(_ context.Context) (int64, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	return int64(len(r.users)), nil
}

func (r *stubAuthRepo) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	r.touched[userID] = at
	return nil
}

func (r *stubAuthRepo) addUser(t *testing.T, username, password string, active bool) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &domain.User{ID: "id-" + username, Username: username, PasswordHash: string(hash), Active: active}
	r.users[username] = u
	return u
}

func newTestAuthService(repo *stubAuthRepo) *AuthService {
	return NewAuthService(repo, NewLoginLimiter(5, 5*time.Minute), zerolog.Nop())
}

func TestAuthService_Authenticate_Success(t *testing.T) {
	repo := newStubAuthRepo()
	repo.addUser(t, "alice", "pass123", true)
	svc := newTestAuthService(repo)

	user, err := svc.Authenticate(context.Background(), "10.0.0.1", "alice", "pass123")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.LastLogin == nil {
		t.Fatalf("expected last login to be set")
	}
	if _, ok := repo.touched["id-alice"]; !ok {
		t.Fatalf("expected last login to be persisted")
	}
}

func TestAuthService_Authenticate_RejectionsAreIndistinguishable(t *testing.T) {
	repo := newStubAuthRepo()
	repo.addUser(t, "alice", "pass123", true)
	repo.addUser(t, "bob", "pass123", false)
	svc := newTestAuthService(repo)

	cases := []struct {
		name, username, password string
	}{
		{"unknown user", "ghost", "pass123"},
		{"wrong password", "alice", "nope"},
		{"inactive account", "bob", "pass123"},
		{"empty password", "alice", ""},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Distinct origins so the limiter stays out of the way.
			origin := "10.0.1." + string(rune('0'+i))
			_, err := svc.Authenticate(context.Background(), origin, tc.username, tc.password)
			if !errors.Is(err, domain.ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestAuthService_Authenticate_UsernameIsCaseSensitive(t *testing.T) {
	repo := newStubAuthRepo()
	repo.addUser(t, "alice", "pass123", true)
	svc := newTestAuthService(repo)

	if _, err := svc.Authenticate(context.Background(), "10.0.0.1", "Alice", "pass123"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Authenticate_RateLimitedBeforeStore(t *testing.T) {
	repo := newStubAuthRepo()
	repo.addUser(t, "alice", "pass123", true)
	svc := newTestAuthService(repo)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := svc.Authenticate(ctx, "10.0.0.9", "alice", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// Sixth attempt is rejected even with the right password.
	if _, err := svc.Authenticate(ctx, "10.0.0.9", "alice", "pass123"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// Other origins are unaffected.
	if _, err := svc.Authenticate(ctx, "10.0.0.10", "alice", "pass123"); err != nil {
		t.Fatalf("expected other origin to log in, got %v", err)
	}
}

func TestAuthService_Authenticate_SuccessResetsFailures(t *testing.T) {
	repo := newStubAuthRepo()
	repo.addUser(t, "alice", "pass123", true)
	svc := newTestAuthService(repo)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = svc.Authenticate(ctx, "10.0.0.2", "alice", "wrong")
	}
	if _, err := svc.Authenticate(ctx, "10.0.0.2", "alice", "pass123"); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	for i := 0; i < 4; i++ {
		_, _ = svc.Authenticate(ctx, "10.0.0.2", "alice", "wrong")
	}
	if _, err := svc.Authenticate(ctx, "10.0.0.2", "alice", "pass123"); err != nil {
		t.Fatalf("expected the counter to have been reset, got %v", err)
	}
}

func TestAuthService_EnsureAdmin_CreatesOnEmptyStore(t *testing.T) {
	repo := newStubAuthRepo()
	svc := newTestAuthService(repo)

	created, err := svc.EnsureAdmin(context.Background(), " admin ", "admin123", "admin@example.com")
	if err != nil {
		t.Fatalf("EnsureAdmin returned error: %v", err)
	}
	if !created {
		t.Fatalf("expected admin to be created")
	}

	u := repo.users["admin"]
	if u == nil || !u.Active || u.ID == "" {
		t.Fatalf("unexpected admin: %+v", u)
	}
	if u.PasswordHash == "admin123" {
		t.Fatalf("expected password to be hashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("admin123")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}

	if _, err := svc.Authenticate(context.Background(), "10.0.0.1", "admin", "admin123"); err != nil {
		t.Fatalf("bootstrap admin cannot log in: %v", err)
	}
}

func TestAuthService_EnsureAdmin_SkipsWhenUsersExist(t *testing.T) {
	repo := newStubAuthRepo()
	repo.addUser(t, "alice", "pass123", true)
	svc := newTestAuthService(repo)

	created, err := svc.EnsureAdmin(context.Background(), "admin", "admin123", "")
	if err != nil || created {
		t.Fatalf("expected skip, got created=%v err=%v", created, err)
	}
	if _, ok := repo.users["admin"]; ok {
		t.Fatalf("admin must not be created when users exist")
	}
}

func TestAuthService_EnsureAdmin_Errors(t *testing.T) {
	repo := newStubAuthRepo()
	svc := newTestAuthService(repo)

	if _, err := svc.EnsureAdmin(context.Background(), "admin", "", ""); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for empty password, got %v", err)
	}

	repo.countErr = errors.New("db down")
	if _, err := svc.EnsureAdmin(context.Background(), "admin", "pw", ""); err == nil {
		t.Fatalf("expected count error to propagate")
	}
}

func TestAuthService_Authenticate_DeactivatedInStore(t *testing.T) {
	store := memory.NewStore()
	svc := NewAuthService(store, NewLoginLimiter(5, 5*time.Minute), zerolog.Nop())
	ctx := context.Background()

	if _, err := svc.EnsureAdmin(ctx, "admin", "admin123", ""); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	admin, err := svc.Authenticate(ctx, "10.0.0.1", "admin", "admin123")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if err := store.SetActive(admin.ID, false); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if _, err := svc.Authenticate(ctx, "10.0.0.1", "admin", "admin123"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for a deactivated account, got %v", err)
	}
}
