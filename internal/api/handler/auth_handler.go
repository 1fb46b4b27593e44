package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/magstore/email-receipts/internal/api/view"
	"github.com/magstore/email-receipts/internal/core/domain"
	"github.com/magstore/email-receipts/internal/core/ports"
)

const SessionCookieName = "receipts_session"

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Secure bool
	TTL    time.Duration
}

type AuthHandler struct {
	auth     ports.AuthService
	sessions ports.SessionStore
	cookie   CookieConfig
	log      zerolog.Logger
}

func NewAuthHandler(auth ports.AuthService, sessions ports.SessionStore, cookie CookieConfig, log zerolog.Logger) *AuthHandler {
	if cookie.TTL <= 0 {
		cookie.TTL = 2 * time.Hour
	}
	return &AuthHandler{auth: auth, sessions: sessions, cookie: cookie, log: log}
}

type loginRequest struct {
	Username string `form:"username" validate:"required,max=100"`
	Password string `form:"password" validate:"required,max=500"`
	Next     string `form:"next"`
}

type loginView struct {
	Username string
	Next     string
}

// LoginForm renders the sign-in page.
//
// @Summary      Sign-in page
// @Tags         auth
// @Produce      html
// @Param        next  query  string  false  "Local path to return to after sign-in"
// @Success      200
// @Success      303   "Already signed in"
// @Router       /login [get]
func (h *AuthHandler) LoginForm(c echo.Context) error {
	if h.hasSession(c) {
		return c.Redirect(http.StatusSeeOther, "/")
	}
	return c.Render(http.StatusOK, view.PageLogin, newPage(c, "Sign in", loginView{Next: safeNext(c.QueryParam("next"))}))
}

// Login checks credentials and starts a session.
//
// @Summary      Sign in
// @Tags         auth
// @Accept       x-www-form-urlencoded
// @Produce      html
// @Param        username     formData  string  true   "Username"
// @Param        password     formData  string  true   "Password"
// @Param        next         formData  string  false  "Local path to return to"
// @Param        _csrf_token  formData  string  true   "CSRF token"
// @Success      303
// @Failure      400
// @Failure      401
// @Failure      429
// @Router       /login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return h.renderLogin(c, http.StatusBadRequest, req, "Invalid login request")
	}
	req.Username = sanitize(req.Username, maxUsernameLen)
	req.Next = safeNext(req.Next)

	if err := c.Validate(&req); err != nil {
		return h.renderLogin(c, http.StatusBadRequest, req, "Username and password are required")
	}

	user, err := h.auth.Authenticate(c.Request().Context(), c.RealIP(), req.Username, req.Password)
	switch {
	case errors.Is(err, domain.ErrRateLimited):
		return h.renderLogin(c, http.StatusTooManyRequests, req, "Too many login attempts. Please try again later.")
	case errors.Is(err, domain.ErrInvalidCredentials):
		return h.renderLogin(c, http.StatusUnauthorized, req, "Invalid username or password")
	case err != nil:
		return err
	}

	token, err := h.sessions.Issue(user)
	if err != nil {
		return err
	}
	c.SetCookie(h.sessionCookie(token, h.cookie.TTL))
	return c.Redirect(http.StatusSeeOther, req.Next)
}

// Logout revokes the current session and clears the cookie.
//
// @Summary      Sign out
// @Tags         auth
// @Param        _csrf_token  formData  string  true  "CSRF token"
// @Success      303
// @Router       /logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	if ck, err := c.Cookie(SessionCookieName); err == nil && ck.Value != "" {
		if err := h.sessions.Revoke(c.Request().Context(), ck.Value); err != nil {
			h.log.Warn().Err(err).Msg("session revocation failed")
		}
	}
	c.SetCookie(h.sessionCookie("", -1))
	return c.Redirect(http.StatusSeeOther, "/login")
}

func (h *AuthHandler) renderLogin(c echo.Context, code int, req loginRequest, msg string) error {
	return c.Render(code, view.PageLogin, newPage(c, "Sign in",
		loginView{Username: req.Username, Next: req.Next},
		flashError(msg),
	))
}

func (h *AuthHandler) hasSession(c echo.Context) bool {
	ck, err := c.Cookie(SessionCookieName)
	if err != nil || ck.Value == "" {
		return false
	}
	_, err = h.sessions.Verify(c.Request().Context(), ck.Value)
	return err == nil
}

// sessionCookie builds the session cookie. A negative ttl deletes it.
func (h *AuthHandler) sessionCookie(value string, ttl time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl < 0 {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		return ck
	}
	ck.MaxAge = int(ttl.Seconds())
	ck.Expires = time.Now().Add(ttl)
	return ck
}

// safeNext keeps next only when it is a local absolute path.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") ||
		strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return "/"
	}
	return next
}
