package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/magstore/email-receipts/internal/core/domain"
	"github.com/magstore/email-receipts/internal/core/ports"
)

func formRequest(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("csv_file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte(content))
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPost, "/send-bulk", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func TestDispatchHandler_SendSingle_Success(t *testing.T) {
	svc := &stubDispatchService{configured: true, sendSingleFn: func(_ context.Context, userID string, in ports.ReceiptInput) (*domain.DispatchRecord, error) {
		if userID != "user-1" || in.Email != "john@example.com" || in.Edition != "print" {
			t.Fatalf("unexpected args: %s %+v", userID, in)
		}
		return &domain.DispatchRecord{ID: "r1", RecipientEmail: in.Email, Status: domain.StatusSuccess, TransactionID: strPtr("tx1")}, nil
	}}
	h := NewDispatchHandler(svc, 0, zerolog.Nop())
	e := newTestEcho(t)

	c, rec := signedIn(e, formRequest("/send-single", url.Values{
		"email": {" john@example.com "}, "name": {"John Doe"}, "edition": {"print"}, "purchase_date": {"2025-01-15"},
	}))
	if err := h.SendSingle(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Email successfully sent to john@example.com") || !strings.Contains(body, "tx1") {
		t.Fatalf("unexpected body: %s", body)
	}
	if strings.Contains(body, `value="John Doe"`) {
		t.Fatalf("form should be cleared after a successful send")
	}
}

func TestDispatchHandler_SendSingle_ValidationError(t *testing.T) {
	svc := &stubDispatchService{sendSingleFn: func(context.Context, string, ports.ReceiptInput) (*domain.DispatchRecord, error) {
		return nil, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}}
	h := NewDispatchHandler(svc, 0, zerolog.Nop())
	e := newTestEcho(t)

	c, rec := signedIn(e, formRequest("/send-single", url.Values{"name": {"John Doe"}, "edition": {"print"}}))
	if err := h.SendSingle(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "email is required") || strings.Contains(body, "validation failed") {
		t.Fatalf("expected bare validation message, got %s", body)
	}
	if !strings.Contains(body, `value="John Doe"`) {
		t.Fatalf("form values should be kept on validation errors")
	}
}

func TestDispatchHandler_SendSingle_ProviderFailure(t *testing.T) {
	svc := &stubDispatchService{sendSingleFn: func(_ context.Context, _ string, in ports.ReceiptInput) (*domain.DispatchRecord, error) {
		return &domain.DispatchRecord{RecipientEmail: in.Email, Status: domain.StatusFailed, ErrorMessage: strPtr("brevo: 401 unauthorized: key not found")}, nil
	}}
	h := NewDispatchHandler(svc, 0, zerolog.Nop())
	e := newTestEcho(t)

	c, rec := signedIn(e, formRequest("/send-single", url.Values{"email": {"a@b.co"}}))
	if err := h.SendSingle(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	body := rec.Body.String()
	if rec.Code != http.StatusOK || !strings.Contains(body, "Failed to send email to a@b.co") || !strings.Contains(body, "key not found") {
		t.Fatalf("unexpected response %d: %s", rec.Code, body)
	}
}

func TestDispatchHandler_SendSingle_RequiresSession(t *testing.T) {
	h := NewDispatchHandler(&stubDispatchService{}, 0, zerolog.Nop())
	e := newTestEcho(t)
	c := e.NewContext(formRequest("/send-single", url.Values{}), httptest.NewRecorder())

	err := h.SendSingle(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestDispatchHandler_APISendEmail(t *testing.T) {
	cases := []struct {
		name     string
		body     string
		ctype    string
		result   *domain.DispatchRecord
		err      error
		wantCode int
		wantKey  string
		wantVal  any
	}{
		{
			name:     "success",
			body:     `{"email":"john@example.com","name":"John","edition":"print","purchase_date":"2025-01-15"}`,
			result:   &domain.DispatchRecord{ID: "r1", Status: domain.StatusSuccess, MessageID: strPtr("<abc@relay>"), TransactionID: strPtr("abc")},
			wantCode: http.StatusOK,
			wantKey:  "transaction_id",
			wantVal:  "abc",
		},
		{
			name:     "validation",
			body:     `{"email":"nope"}`,
			err:      fmt.Errorf("%w: invalid email address format", domain.ErrValidation),
			wantCode: http.StatusBadRequest,
			wantKey:  "error",
			wantVal:  "invalid email address format",
		},
		{
			name:     "provider failure",
			body:     `{"email":"john@example.com"}`,
			result:   &domain.DispatchRecord{ID: "r2", Status: domain.StatusFailed, ErrorMessage: strPtr("email provider timed out")},
			wantCode: http.StatusBadGateway,
			wantKey:  "error",
			wantVal:  "email provider timed out",
		},
		{
			name:     "malformed json",
			body:     `{"email":`,
			wantCode: http.StatusBadRequest,
			wantKey:  "error",
			wantVal:  "invalid JSON",
		},
		{
			name:     "json with charset",
			body:     `{"email":"john@example.com"}`,
			ctype:    "application/json; charset=utf-8",
			result:   &domain.DispatchRecord{ID: "r3", Status: domain.StatusSuccess},
			wantCode: http.StatusOK,
			wantKey:  "status",
			wantVal:  "success",
		},
		{
			name:     "form encoded",
			body:     "email=john%40example.com&name=John&edition=print&purchase_date=2025-01-15",
			ctype:    echo.MIMEApplicationForm,
			wantCode: http.StatusUnsupportedMediaType,
			wantKey:  "error",
			wantVal:  "Content-Type must be application/json",
		},
		{
			name:     "text plain",
			body:     `{"email":"john@example.com"}`,
			ctype:    echo.MIMETextPlain,
			wantCode: http.StatusUnsupportedMediaType,
			wantKey:  "error",
			wantVal:  "Content-Type must be application/json",
		},
		{
			name:     "missing content type",
			body:     `{"email":"john@example.com"}`,
			ctype:    "-",
			wantCode: http.StatusUnsupportedMediaType,
			wantKey:  "error",
			wantVal:  "Content-Type must be application/json",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			called := false
			svc := &stubDispatchService{sendSingleFn: func(context.Context, string, ports.ReceiptInput) (*domain.DispatchRecord, error) {
				called = true
				return tc.result, tc.err
			}}
			h := NewDispatchHandler(svc, 0, zerolog.Nop())
			e := newTestEcho(t)

			req := httptest.NewRequest(http.MethodPost, "/api/send-email", strings.NewReader(tc.body))
			switch tc.ctype {
			case "":
				req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			case "-":
			default:
				req.Header.Set(echo.HeaderContentType, tc.ctype)
			}
			c, rec := signedIn(e, req)
			if err := h.APISendEmail(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
			var resp map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if resp[tc.wantKey] != tc.wantVal {
				t.Fatalf("expected %s=%v, got %+v", tc.wantKey, tc.wantVal, resp)
			}
			if tc.wantCode == http.StatusUnsupportedMediaType && called {
				t.Fatalf("service must not be called for a non-JSON body")
			}
		})
	}
}

func TestDispatchHandler_SendBulk(t *testing.T) {
	var got []ports.BulkRow
	svc := &stubDispatchService{sendBulkFn: func(_ context.Context, _ string, rows []ports.BulkRow) (*ports.BulkResult, error) {
		got = rows
		return &ports.BulkResult{Total: 2, Success: 1, Failed: 1, Rows: []ports.BulkRowResult{
			{Line: 2, Email: "a@example.com", Status: domain.StatusSuccess, MessageID: "<m@relay>"},
			{Line: 3, Status: domain.StatusFailed, Error: "email is required"},
		}}, nil
	}}
	h := NewDispatchHandler(svc, 0, zerolog.Nop())
	e := newTestEcho(t)

	csv := "email,name,purchase_date,edition\na@example.com,A,2025-01-15,print\n,B,2025-01-15,print\n"
	c, rec := signedIn(e, uploadRequest(t, "recipients.CSV", csv))
	if err := h.SendBulk(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows passed to the service, got %d", len(got))
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Bulk email completed: 1 sent, 1 failed") || !strings.Contains(body, "flash-info") {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestDispatchHandler_SendBulk_RejectsUploads(t *testing.T) {
	cases := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		maxBytes int64
		want     string
	}{
		{"no file", func(*testing.T) *http.Request { return formRequest("/send-bulk", url.Values{}) }, 0, "No file uploaded"},
		{"wrong extension", func(t *testing.T) *http.Request { return uploadRequest(t, "list.txt", "email\n") }, 0, "Only CSV files are allowed"},
		{"too large", func(t *testing.T) *http.Request {
			return uploadRequest(t, "list.csv", strings.Repeat("x", 2048))
		}, 1024, "too large"},
		{"bad header", func(t *testing.T) *http.Request { return uploadRequest(t, "list.csv", "foo,bar\n1,2\n") }, 0, "missing column"},
		{"header only", func(t *testing.T) *http.Request {
			return uploadRequest(t, "list.csv", "email,name,purchase_date,edition\n")
		}, 0, "no recipient rows"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubDispatchService{sendBulkFn: func(context.Context, string, []ports.BulkRow) (*ports.BulkResult, error) {
				t.Fatalf("service must not be called")
				return nil, nil
			}}
			h := NewDispatchHandler(svc, tc.maxBytes, zerolog.Nop())
			e := newTestEcho(t)

			c, rec := signedIn(e, tc.req(t))
			if err := h.SendBulk(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.want) {
				t.Fatalf("expected %q in body", tc.want)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	if got := sanitize("  hi  ", 10); got != "hi" {
		t.Fatalf("expected trim, got %q", got)
	}
	if got := sanitize("ñandú-ñandú", 5); got != "ñandú" {
		t.Fatalf("expected rune-aware cap, got %q", got)
	}
}
