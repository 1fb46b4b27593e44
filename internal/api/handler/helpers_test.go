package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/magstore/email-receipts/internal/api/view"
	"github.com/magstore/email-receipts/internal/core/domain"
	"github.com/magstore/email-receipts/internal/core/ports"
)

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	r, err := view.NewRenderer()
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	e.Renderer = r
	e.Validator = NewValidator()
	return e
}

// signedIn returns a context carrying the identity the Session middleware sets.
func signedIn(e *echo.Echo, req *http.Request) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", "user-1")
	c.Set("username", "admin")
	c.Set("csrf", "csrf-token")
	return c, rec
}

type stubAuthService struct {
	authenticateFn func(ctx context.Context, origin, username, password string) (*domain.User, error)
}

func (s *stubAuthService) Authenticate(ctx context.Context, origin, username, password string) (*domain.User, error) {
	return s.authenticateFn(ctx, origin, username, password)
}

func (s *stubAuthService) EnsureAdmin(context.Context, string, string, string) (bool, error) {
	return false, nil
}

type stubSessions struct {
	issued  []string
	revoked []string
	valid   map[string]bool
}

func (s *stubSessions) Issue(user *domain.User) (string, error) {
	token := "token-" + user.ID
	s.issued = append(s.issued, token)
	return token, nil
}

func (s *stubSessions) Verify(_ context.Context, token string) (*ports.SessionClaims, error) {
	if !s.valid[token] {
		return nil, domain.ErrInvalidCredentials
	}
	return &ports.SessionClaims{UserID: "user-1", Username: "admin"}, nil
}

func (s *stubSessions) Revoke(_ context.Context, token string) error {
	s.revoked = append(s.revoked, token)
	return nil
}

type stubDispatchService struct {
	configured   bool
	sendSingleFn func(ctx context.Context, userID string, in ports.ReceiptInput) (*domain.DispatchRecord, error)
	sendBulkFn   func(ctx context.Context, userID string, rows []ports.BulkRow) (*ports.BulkResult, error)
	historyFn    func(ctx context.Context, in ports.HistoryInput) (*ports.HistoryResult, error)
	exportFn     func(ctx context.Context, filter ports.SentEmailFilter) ([]domain.DispatchRecord, error)
}

func (s *stubDispatchService) SendSingle(ctx context.Context, userID string, in ports.ReceiptInput) (*domain.DispatchRecord, error) {
	return s.sendSingleFn(ctx, userID, in)
}

func (s *stubDispatchService) SendBulk(ctx context.Context, userID string, rows []ports.BulkRow) (*ports.BulkResult, error) {
	return s.sendBulkFn(ctx, userID, rows)
}

func (s *stubDispatchService) History(ctx context.Context, in ports.HistoryInput) (*ports.HistoryResult, error) {
	return s.historyFn(ctx, in)
}

func (s *stubDispatchService) Export(ctx context.Context, filter ports.SentEmailFilter) ([]domain.DispatchRecord, error) {
	return s.exportFn(ctx, filter)
}

func (s *stubDispatchService) ProviderConfigured() bool { return s.configured }

func strPtr(s string) *string { return &s }
