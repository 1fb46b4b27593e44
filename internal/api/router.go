package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/magstore/email-receipts/internal/api/handler"
	"github.com/magstore/email-receipts/internal/api/middleware"
	"github.com/magstore/email-receipts/internal/api/view"
	"github.com/magstore/email-receipts/internal/core/ports"
)

const bodyLimit = "16M"

// Dependencies is everything the HTTP layer needs from the outside.
type Dependencies struct {
	Auth     ports.AuthService
	Sessions ports.SessionStore
	Dispatch ports.DispatchService
	// Pingers are checked by the readiness probe, keyed by dependency name.
	Pingers map[string]handler.Pinger
	Log     zerolog.Logger

	// Registerer and Gatherer back the request metrics and /metrics.
	// They default to the global Prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer

	SecureCookies bool
	SessionTTL    time.Duration
	MaxCSVBytes   int64
	// TrustedProxies are IPs or CIDRs whose X-Forwarded-For is honoured.
	TrustedProxies []string
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies) (*echo.Echo, error) {
	renderer, err := view.NewRenderer()
	if err != nil {
		return nil, err
	}
	if deps.Registerer == nil {
		deps.Registerer = prometheus.DefaultRegisterer
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	ipExtractor, err := clientIPExtractor(deps.TrustedProxies)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.IPExtractor = ipExtractor
	e.HideBanner = true
	e.HidePort = true
	e.Renderer = renderer
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log)

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(requestLogger(deps.Log))
	e.Use(middleware.SecurityHeaders(hstsMaxAge(deps.SecureCookies)))
	e.Use(echomiddleware.BodyLimit(bodyLimit))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:  "receipts",
		Registerer: deps.Registerer,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	}))
	e.Use(echomiddleware.CSRFWithConfig(echomiddleware.CSRFConfig{
		TokenLookup:    "form:_csrf_token",
		CookieName:     "_csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   deps.SecureCookies,
		CookieSameSite: http.SameSiteLaxMode,
		Skipper: func(c echo.Context) bool {
			p := c.Request().URL.Path
			return strings.HasPrefix(p, "/api/") || p == "/metrics"
		},
	}))

	// --- Dependencies ---
	authHandler := handler.NewAuthHandler(deps.Auth, deps.Sessions, handler.CookieConfig{
		Secure: deps.SecureCookies,
		TTL:    deps.SessionTTL,
	}, deps.Log)
	dispatchHandler := handler.NewDispatchHandler(deps.Dispatch, deps.MaxCSVBytes, deps.Log)
	historyHandler := handler.NewHistoryHandler(deps.Dispatch, deps.Log)
	healthHandler := handler.NewHealthHandler(deps.Dispatch.ProviderConfigured, deps.Pingers)
	requireSession := middleware.Session(deps.Sessions, handler.SessionCookieName)

	// --- Auth routes ---
	e.GET("/login", authHandler.LoginForm)
	e.POST("/login", authHandler.Login)
	e.POST("/logout", authHandler.Logout)

	// --- Pages ---
	e.GET("/", dispatchHandler.Index, requireSession)
	e.GET("/send-single", dispatchHandler.SendSingleForm, requireSession)
	e.POST("/send-single", dispatchHandler.SendSingle, requireSession)
	e.GET("/send-bulk", dispatchHandler.SendBulkForm, requireSession)
	e.POST("/send-bulk", dispatchHandler.SendBulk, requireSession)
	e.GET("/sent-emails", historyHandler.List, requireSession)
	e.GET("/sent-emails/export", historyHandler.Export, requireSession)

	// --- JSON API ---
	e.POST("/api/send-email", dispatchHandler.APISendEmail, requireSession)

	// --- Health probes and metrics (no auth required) ---
	e.GET("/api/health", healthHandler.Liveness)        // liveness: is the process alive?
	e.GET("/api/health/ready", healthHandler.Readiness) // readiness: are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: deps.Gatherer}))

	return e, nil
}

func hstsMaxAge(secure bool) int {
	if secure {
		return 31536000
	}
	return 0
}

func requestLogger(log zerolog.Logger) echo.MiddlewareFunc {
	return echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			ev := log.Info()
			if v.Error != nil {
				ev = log.Warn().Err(v.Error)
			}
			ev.Str("method", v.Method).
				Str("path", v.URIPath).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("request_id", v.RequestID).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
