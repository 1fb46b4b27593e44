package handler

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
)

const (
	maxInputLen    = 500
	maxUsernameLen = 100
)

// sessionUser extracts the identity injected by the Session middleware.
// An empty user id means the middleware did not run.
func sessionUser(c echo.Context) (userID, username string, err error) {
	userID, _ = c.Get("user_id").(string)
	if userID == "" {
		return "", "", echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	username, _ = c.Get("username").(string)
	return userID, username, nil
}

// csrfToken is the token set by echo's CSRF middleware, if any.
func csrfToken(c echo.Context) string {
	token, _ := c.Get("csrf").(string)
	return token
}

// sanitize trims s and caps it at limit runes.
func sanitize(s string, limit int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
