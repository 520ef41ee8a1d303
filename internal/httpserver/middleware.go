package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Skotchmaster/notes_service/internal/transport"
)

const bodyLimit = "10M"

// RateLimit allows Requests per client IP in every Window. The zero value disables limiting.
type RateLimit struct {
	Requests int
	Window   time.Duration
	Message  string
}

var (
	DefaultGeneralLimit = RateLimit{Requests: 100, Window: 15 * time.Minute, Message: "Too many requests, try again later"}
	DefaultAuthLimit    = RateLimit{Requests: 5, Window: 15 * time.Minute, Message: "Too many login attempts, try again later"}
)

func (r RateLimit) enabled() bool {
	return r.Requests > 0 && r.Window > 0
}

func (r RateLimit) Middleware() echo.MiddlewareFunc {
	if !r.enabled() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:      rate.Every(r.Window / time.Duration(r.Requests)),
		Burst:     r.Requests,
		ExpiresIn: r.Window,
	})
	msg := r.Message
	if msg == "" {
		msg = DefaultGeneralLimit.Message
	}
	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return transport.NewError(http.StatusTooManyRequests, msg).WithCode(transport.CodeRateLimited)
		},
	})
}

func Common(frontendURL string) []echo.MiddlewareFunc {
	return []echo.MiddlewareFunc{
		echomw.Secure(),
		echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins:     []string{frontendURL},
			AllowCredentials: true,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAccept},
		}),
		echomw.BodyLimit(bodyLimit),
	}
}
