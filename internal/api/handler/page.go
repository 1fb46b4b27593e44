package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/magstore/email-receipts/internal/api/view"
)

func newPage(c echo.Context, title string, content any, flashes ...view.Flash) view.Page {
	_, username, _ := sessionUser(c)
	return view.Page{
		Title:     title,
		User:      username,
		CSRFToken: csrfToken(c),
		Flashes:   flashes,
		Content:   content,
	}
}

func flashError(msg string) view.Flash   { return view.Flash{Kind: "error", Message: msg} }
func flashSuccess(msg string) view.Flash { return view.Flash{Kind: "success", Message: msg} }
func flashInfo(msg string) view.Flash    { return view.Flash{Kind: "info", Message: msg} }
