package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/magstore/email-receipts/internal/core/ports"
)

// Session validates the session cookie and injects user_id and username
// into the context. Pages without a valid session are redirected to the
// sign-in page; /api routes get a 401.
func Session(sessions ports.SessionStore, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ck, err := c.Cookie(cookieName)
			if err != nil || ck.Value == "" {
				return unauthenticated(c)
			}

			claims, err := sessions.Verify(c.Request().Context(), ck.Value)
			if err != nil {
				return unauthenticated(c)
			}

			c.Set("user_id", claims.UserID)
			c.Set("username", claims.Username)

			return next(c)
		}
	}
}

func unauthenticated(c echo.Context) error {
	req := c.Request()
	if strings.HasPrefix(req.URL.Path, "/api/") {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(req.URL.RequestURI()))
}
