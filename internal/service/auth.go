package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/Skotchmaster/notes_service/internal/events"
	"github.com/Skotchmaster/notes_service/internal/models"
	"github.com/Skotchmaster/notes_service/internal/oauth"
	"github.com/Skotchmaster/notes_service/internal/repo"
	"github.com/Skotchmaster/notes_service/internal/validation"
	pkghash "github.com/Skotchmaster/notes_service/pkg/hash"
	"github.com/Skotchmaster/notes_service/pkg/logging"
	"github.com/Skotchmaster/notes_service/pkg/tokens"
)

type GoogleVerifier interface {
	Verify(ctx context.Context, credential string) (*oauth.GoogleIdentity, error)
}

type AuthService struct {
	Repo          repo.UserRepository
	Google        GoogleVerifier
	Events        events.Publisher
	JWTSecret     []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
	User         *models.User
}

type RefreshResult struct {
	AccessToken string
	AccessExp   time.Time
}

func (s *AuthService) AccessTTLOrDefault() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return tokens.AccessTTL
}

func (s *AuthService) RefreshTTLOrDefault() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return tokens.RefreshTTL
}

func (s *AuthService) issue(user *models.User) (*LoginResult, error) {
	now := time.Now()
	accessExp := now.Add(s.AccessTTLOrDefault())
	accessToken, err := tokens.CreateAccessToken(s.JWTSecret, user.ID, user.Email, accessExp)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshExp := now.Add(s.RefreshTTLOrDefault())
	refreshToken, err := tokens.CreateRefreshToken(s.RefreshSecret, user.ID, refreshExp)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
		User:         user,
	}, nil
}

func checkCredentialsInput(email, password string) (string, error) {
	if email == "" || password == "" {
		return "", invalid("Email and password required")
	}
	email = strings.TrimSpace(email)
	if !validation.ValidateEmail(email) {
		return "", invalid("Invalid email format")
	}
	return email, nil
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	email, err := checkCredentialsInput(email, password)
	if err != nil {
		return nil, err
	}
	if res := validation.ValidatePasswordStrength(password); !res.IsValid {
		return nil, invalid("Password requirements: " + res.Join(", "))
	}

	if _, err := s.Repo.UserByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	pwHash, err := pkghash.HashPassword(password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := &models.User{
		Email:        email,
		PasswordHash: &pwHash,
		AuthProvider: models.ProviderLocal,
	}
	if err := s.Repo.CreateUserIfNotExists(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	events.Emit(ctx, s.Events, events.TopicUsers, events.New(events.UserRegistered, user.ID))
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email, err := checkCredentialsInput(email, password)
	if err != nil {
		return nil, err
	}
	l := logging.FromContext(ctx).With("svc", "auth.login", "email", email)

	user, err := s.Repo.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			l.Warn("login failed", "status", 401, "reason", "unknown email")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user.PasswordHash == nil || !pkghash.CheckPassword(*user.PasswordHash, password) {
		l.Warn("login failed", "status", 401, "reason", "password mismatch")
		return nil, ErrInvalidCredentials
	}

	res, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	ev := events.New(events.UserLoggedIn, user.ID)
	ev.Provider = models.ProviderLocal
	events.Emit(ctx, s.Events, events.TopicUsers, ev)
	return res, nil
}

// GoogleLogin signs in with a Google ID token, linking the Google subject to an
// existing account with the same email or creating a password-less account.
func (s *AuthService) GoogleLogin(ctx context.Context, credential string) (*LoginResult, error) {
	if credential == "" {
		return nil, invalid("Google credential required")
	}
	l := logging.FromContext(ctx).With("svc", "auth.google")

	if s.Google == nil {
		return nil, fmt.Errorf("%w: verifier not configured", ErrGoogleAuth)
	}
	ident, err := s.Google.Verify(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGoogleAuth, err)
	}
	if !validation.ValidateEmail(ident.Email) {
		return nil, ErrGoogleEmail
	}

	// the Google subject is stable across email changes, so it wins over the email
	user, err := s.Repo.UserByGoogleID(ctx, ident.Subject)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user, err = s.Repo.UserByEmail(ctx, ident.Email)
	}
	switch {
	case err == nil:
		if user.GoogleID == nil {
			if err := s.Repo.LinkGoogle(ctx, user.ID, ident.Subject); err != nil {
				return nil, fmt.Errorf("%w: link account: %w", ErrGoogleAuth, err)
			}
			sub := ident.Subject
			user.GoogleID = &sub
			user.AuthProvider = models.ProviderGoogle
			l.Info("google_account_linked", "user_id", user.ID)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		sub := ident.Subject
		user = &models.User{
			Email:        ident.Email,
			GoogleID:     &sub,
			AuthProvider: models.ProviderGoogle,
		}
		if err := s.Repo.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("%w: create user: %w", ErrGoogleAuth, err)
		}
		events.Emit(ctx, s.Events, events.TopicUsers, events.New(events.UserRegistered, user.ID))
	default:
		return nil, fmt.Errorf("%w: lookup user: %w", ErrGoogleAuth, err)
	}

	res, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	ev := events.New(events.UserLoggedIn, user.ID)
	ev.Provider = models.ProviderGoogle
	events.Emit(ctx, s.Events, events.TopicUsers, ev)
	return res, nil
}

// Refresh issues a new access token. The refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	claims, err := tokens.RefreshClaimsFromToken(refreshToken, s.RefreshSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrRefreshExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}
	userID, err := tokens.UserID(claims.RegisteredClaims)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}

	user, err := s.Repo.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	accessExp := time.Now().Add(s.AccessTTLOrDefault())
	accessToken, err := tokens.CreateAccessToken(s.JWTSecret, user.ID, user.Email, accessExp)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &RefreshResult{AccessToken: accessToken, AccessExp: accessExp}, nil
}
