package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmailNotVerified = errors.New("google email is not verified")
	ErrBadIssuer        = errors.New("unexpected google token issuer")
	ErrMissingSubject   = errors.New("google token has no subject")
)

var googleIssuers = map[string]bool{
	"accounts.google.com":         true,
	"https://accounts.google.com": true,
}

// GoogleIdentity is what the login flow needs from a verified ID token.
type GoogleIdentity struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// GoogleIDTokenClaims represents the claims in Google's ID token
type GoogleIDTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (c GoogleIDTokenClaims) emailVerified() bool {
	switch v := c.EmailVerified.(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// GoogleVerifier checks Google Sign-In credentials against the published key set.
// The key set is fetched once (eagerly via Warm or on first use) and refreshed
// in the background afterwards.
type GoogleVerifier struct {
	ClientID string
	CertsURL string
	Client   *http.Client

	mu      sync.Mutex
	jwks    *keyfunc.JWKS
	loading chan struct{}
	loadErr error
	closed  bool
}

func NewGoogleVerifier(clientID, certsURL string) *GoogleVerifier {
	return &GoogleVerifier{
		ClientID: clientID,
		CertsURL: certsURL,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Warm fetches the key set ahead of the first login.
func (g *GoogleVerifier) Warm(ctx context.Context) error {
	_, err := g.keys(ctx)
	return err
}

// keys returns the key set, starting a fetch when none is loaded. The fetch runs
// without the lock held and callers stop waiting when their context ends.
func (g *GoogleVerifier) keys(ctx context.Context) (*keyfunc.JWKS, error) {
	g.mu.Lock()
	if g.jwks != nil {
		jwks := g.jwks
		g.mu.Unlock()
		return jwks, nil
	}
	if g.closed {
		g.mu.Unlock()
		return nil, errors.New("google verifier closed")
	}
	if g.loading == nil {
		g.loading = make(chan struct{})
		go g.load(g.loading)
	}
	done := g.loading
	g.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch google certs: %w", ctx.Err())
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.jwks == nil {
		return nil, g.loadErr
	}
	return g.jwks, nil
}

func (g *GoogleVerifier) load(done chan struct{}) {
	jwks, err := keyfunc.Get(g.CertsURL, keyfunc.Options{
		Client:            g.Client,
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	defer close(done)
	// a failed fetch is retried by the next caller
	g.loading = nil
	switch {
	case err != nil:
		g.loadErr = fmt.Errorf("fetch google certs: %w", err)
	case g.closed:
		jwks.EndBackground()
	default:
		g.jwks, g.loadErr = jwks, nil
	}
}

// Verify validates signature, audience, issuer and expiry of a Google ID token.
func (g *GoogleVerifier) Verify(ctx context.Context, credential string) (*GoogleIdentity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	jwks, err := g.keys(ctx)
	if err != nil {
		return nil, err
	}

	var claims GoogleIDTokenClaims
	if _, err := jwt.ParseWithClaims(credential, &claims, jwks.Keyfunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(g.ClientID),
		jwt.WithExpirationRequired(),
	); err != nil {
		return nil, fmt.Errorf("verify google id token: %w", err)
	}

	if !googleIssuers[claims.Issuer] {
		return nil, fmt.Errorf("%w: %q", ErrBadIssuer, claims.Issuer)
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	if !claims.emailVerified() {
		return nil, ErrEmailNotVerified
	}

	return &GoogleIdentity{
		Subject: claims.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}

func (g *GoogleVerifier) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	if g.jwks != nil {
		g.jwks.EndBackground()
		g.jwks = nil
	}
}
