package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Skotchmaster/notes_service/internal/middleware/auth"
	"github.com/Skotchmaster/notes_service/internal/transport"
	loggingmw "github.com/Skotchmaster/notes_service/pkg/middleware/logging"
)

type Deps struct {
	Logger       *slog.Logger
	AuthHandler  *AuthHTTP
	NotesHandler *NotesHTTP
	JWTSecret    []byte
	FrontendURL  string

	GeneralLimit RateLimit
	AuthLimit    RateLimit

	// IPExtractor decides the client address rate limits are keyed by.
	// Nil means the socket peer; forwarding headers are then ignored.
	IPExtractor echo.IPExtractor

	// Ready reports whether dependencies such as the database are reachable.
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.HTTPErrorHandler = ErrorHandler
	e.IPExtractor = d.IPExtractor
	if e.IPExtractor == nil {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(loggingmw.RequestLogger(logger))
	for _, m := range Common(d.FrontendURL) {
		e.Use(m)
	}

	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return transport.NewError(http.StatusServiceUnavailable, "Service unavailable").Wrap(err)
			}
		}
		return c.NoContent(http.StatusOK)
	})

	api := e.Group("/api/v1", d.GeneralLimit.Middleware())

	authLimit := d.AuthLimit.Middleware()
	users := api.Group("/users")
	users.POST("/register", d.AuthHandler.Register, authLimit)
	users.POST("/login", d.AuthHandler.Login, authLimit)
	users.POST("/google", d.AuthHandler.Google)
	users.POST("/refresh", d.AuthHandler.Refresh)
	users.POST("/logout", d.AuthHandler.Logout)

	authMw := auth.NewRequireLogin(d.JWTSecret)
	notes := api.Group("/notes", authMw.RequireAuth)
	notes.GET("", d.NotesHandler.List)
	notes.GET("/", d.NotesHandler.List)
	notes.POST("", d.NotesHandler.Create)
	notes.POST("/", d.NotesHandler.Create)
	notes.PUT("/:id", d.NotesHandler.Update)
	notes.DELETE("/:id", d.NotesHandler.Delete)
}
