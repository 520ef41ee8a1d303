package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/notes_service/internal/transport"
	"github.com/Skotchmaster/notes_service/pkg/logging"
	loggingmw "github.com/Skotchmaster/notes_service/pkg/middleware/logging"
	"github.com/Skotchmaster/notes_service/pkg/tokens"
)

type Identity struct {
	UserID uint
}

type RequireLogin struct {
	JWTSecret []byte
}

func NewRequireLogin(secret []byte) *RequireLogin {
	return &RequireLogin{JWTSecret: secret}
}

// RequireAuth accepts the request only with a valid access token cookie and
// puts the caller's identity on the context.
func (m *RequireLogin) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		l := logging.FromContext(ctx)

		cookie, err := c.Cookie(tokens.AccessCookie)
		if err != nil || cookie.Value == "" {
			return transport.Unauthorized("Authentication required")
		}

		claims, err := tokens.AccessClaimsFromToken(cookie.Value, m.JWTSecret)
		if err != nil {
			apiErr := classify(err)
			if apiErr.Code == "" {
				l.Warn("auth_error", "status", 401, "reason", "token rejected", "error", err)
			}
			return apiErr
		}

		userID, err := tokens.UserID(claims.RegisteredClaims)
		if err != nil {
			l.Warn("auth_error", "status", 401, "reason", "bad subject", "error", err)
			return transport.Unauthorized("Authentication failed").Wrap(err)
		}

		c.Set(loggingmw.UserIDKey, userID)
		c.SetRequest(c.Request().WithContext(logging.WithUser(ctx, userID)))

		return next(c)
	}
}

func classify(err error) *transport.APIError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return transport.Unauthorized("Token expired").WithCode(transport.CodeTokenExpired).Wrap(err)
	case errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return transport.Unauthorized("Invalid token").WithCode(transport.CodeInvalidToken).Wrap(err)
	default:
		return transport.Unauthorized("Authentication failed").Wrap(err)
	}
}

// IdentityFrom returns the identity stored by RequireAuth.
func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(loggingmw.UserIDKey).(uint)
	if !ok || id == 0 {
		return Identity{}, false
	}
	return Identity{UserID: id}, true
}
