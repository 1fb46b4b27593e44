// Package view renders the server-side HTML pages.
package view

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names accepted by Render.
const (
	PageLogin      = "login"
	PageIndex      = "index"
	PageSendSingle = "send_single"
	PageSendBulk   = "send_bulk"
	PageSentEmails = "sent_emails"
	PageError      = "error"
)

var pageNames = []string{PageLogin, PageIndex, PageSendSingle, PageSendBulk, PageSentEmails, PageError}

// Flash is a one-off message shown above the page content.
type Flash struct {
	Kind    string // success, error, info
	Message string
}

// Page is the data every template receives. Content holds the page-specific
// view model.
type Page struct {
	Title              string
	User               string
	CSRFToken          string
	ProviderConfigured bool
	Flashes            []Flash
	Content            any
}

// Renderer implements echo.Renderer over the embedded templates.
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format("2006-01-02 15:04:05")
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

func NewRenderer() (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = t
	}
	return &Renderer{pages: pages}, nil
}

func (r *Renderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	t, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("view: unknown page %q", name)
	}
	return t.ExecuteTemplate(w, "layout.html", data)
}
