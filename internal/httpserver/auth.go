package httpserver

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/notes_service/internal/service"
	"github.com/Skotchmaster/notes_service/internal/transport"
	"github.com/Skotchmaster/notes_service/pkg/logging"
	"github.com/Skotchmaster/notes_service/pkg/tokens"
)

type AuthHTTP struct {
	Svc           *service.AuthService
	SecureCookies bool
}

func validationMessage(err error) (string, bool) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return ve.Msg, true
	}
	return "", false
}

func (h *AuthHTTP) setSession(c echo.Context, res *service.LoginResult) {
	c.SetCookie(tokens.CreateCookie(tokens.AccessCookie, res.AccessToken, h.Svc.AccessTTLOrDefault(), h.SecureCookies))
	c.SetCookie(tokens.CreateCookie(tokens.RefreshCookie, res.RefreshToken, h.Svc.RefreshTTLOrDefault(), h.SecureCookies))
}

func (h *AuthHTTP) Register(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users.register")

	var req transport.CredentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_error", "status", 400, "reason", "invalid body", "error", err)
		return transport.BadRequest("Invalid request body")
	}

	user, err := h.Svc.Register(ctx, req.Email, req.Password)
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			l.Warn("register_error", "status", 400, "reason", msg)
			return transport.BadRequest(msg)
		}
		if errors.Is(err, service.ErrConflict) {
			l.Warn("register_error", "status", 409, "reason", "email already registered")
			return transport.Conflict("Email already registered")
		}
		l.Error("register_error", "status", 500, "reason", "cannot create user", "error", err)
		return transport.Internal("Registration failed").Wrap(err)
	}

	l.Info("register_success", "user_id", user.ID)
	return c.JSON(http.StatusCreated, transport.OK(transport.RegisterResponse{ID: user.ID, Email: user.Email}))
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users.login")

	var req transport.CredentialsRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "reason", "invalid body", "error", err)
		return transport.BadRequest("Invalid request body")
	}

	res, err := h.Svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			return transport.BadRequest(msg)
		}
		if errors.Is(err, service.ErrInvalidCredentials) {
			return transport.Unauthorized("Invalid credentials")
		}
		l.Error("login_error", "status", 500, "error", err)
		return transport.Internal("Login failed").Wrap(err)
	}

	h.setSession(c, res)
	l.Info("login_successful", "user_id", res.User.ID)
	return c.JSON(http.StatusOK, transport.OK(transport.Message{Message: "Login successful"}))
}

func (h *AuthHTTP) Google(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users.google")

	var req transport.GoogleLoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("google_login_error", "status", 400, "reason", "invalid body", "error", err)
		return transport.BadRequest("Invalid request body")
	}

	res, err := h.Svc.GoogleLogin(ctx, req.Credential)
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			return transport.BadRequest(msg)
		}
		if errors.Is(err, service.ErrGoogleEmail) {
			l.Warn("google_login_error", "status", 400, "reason", "invalid email from google")
			return transport.BadRequest("Invalid email from Google")
		}
		l.Warn("google_login_error", "status", 401, "error", err)
		return transport.Unauthorized("Google authentication failed").Wrap(err)
	}

	h.setSession(c, res)
	l.Info("google_login_successful", "user_id", res.User.ID)
	return c.JSON(http.StatusOK, transport.OK(transport.Message{Message: "Google login successful"}))
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users.refresh")

	cookie, err := c.Cookie(tokens.RefreshCookie)
	if err != nil || cookie.Value == "" {
		return transport.Unauthorized("Refresh token required")
	}

	res, err := h.Svc.Refresh(ctx, cookie.Value)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRefreshExpired):
			return transport.Unauthorized("Refresh token expired, please login again").WithCode(transport.CodeRefreshExpired)
		case errors.Is(err, service.ErrUserNotFound):
			l.Warn("refresh_error", "status", 404, "reason", "user not found")
			return transport.NotFound("User not found")
		case errors.Is(err, service.ErrInvalidRefreshToken):
			l.Warn("refresh_error", "status", 401, "error", err)
			return transport.Unauthorized("Token refresh failed").Wrap(err)
		}
		l.Error("refresh_error", "status", 500, "error", err)
		return transport.Internal("Token refresh failed").Wrap(err)
	}

	c.SetCookie(tokens.CreateCookie(tokens.AccessCookie, res.AccessToken, h.Svc.AccessTTLOrDefault(), h.SecureCookies))
	return c.JSON(http.StatusOK, transport.OK(transport.Message{Message: "Token refreshed successfully"}))
}

func (h *AuthHTTP) Logout(c echo.Context) error {
	c.SetCookie(tokens.DeleteCookie(tokens.AccessCookie, h.SecureCookies))
	c.SetCookie(tokens.DeleteCookie(tokens.RefreshCookie, h.SecureCookies))

	logging.FromContext(c.Request().Context()).Info("logout_successful")
	return c.JSON(http.StatusOK, transport.OK(transport.Message{Message: "Logged out"}))
}
