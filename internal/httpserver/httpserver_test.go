package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/notes_service/internal/events"
	"github.com/Skotchmaster/notes_service/internal/oauth"
	"github.com/Skotchmaster/notes_service/internal/oauth/oauthtest"
	"github.com/Skotchmaster/notes_service/internal/repo"
	"github.com/Skotchmaster/notes_service/internal/repo/repotest"
	"github.com/Skotchmaster/notes_service/internal/service"
	"github.com/Skotchmaster/notes_service/pkg/tokens"
)

const (
	frontend = "http://localhost:5173"
	password = "Secret123!"
)

var (
	jwtSecret     = []byte("test-jwt-secret")
	refreshSecret = []byte("test-refresh-secret")
)

type testEnv struct {
	t      *testing.T
	e      *echo.Echo
	google *oauthtest.Google
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
	Code    string          `json:"code"`
}

type response struct {
	Status  int
	Env     envelope
	Cookies []*http.Cookie
}

func newEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()

	db := repotest.InitTestDB(t)
	r := repo.New(db, 5*time.Second)
	g := oauthtest.NewGoogle(t)
	verifier := oauth.NewGoogleVerifier(oauthtest.ClientID, g.URL)
	t.Cleanup(verifier.Close)

	authSvc := &service.AuthService{
		Repo:          r,
		Google:        verifier,
		Events:        events.Nop{},
		JWTSecret:     jwtSecret,
		RefreshSecret: refreshSecret,
	}
	notesSvc := &service.NotesService{Repo: r, Events: events.Nop{}}

	d := &Deps{
		Logger:       slog.New(slog.NewJSONHandler(io.Discard, nil)),
		AuthHandler:  &AuthHTTP{Svc: authSvc},
		NotesHandler: &NotesHTTP{Svc: notesSvc},
		JWTSecret:    jwtSecret,
		FrontendURL:  frontend,
		Ready:        func(context.Context) error { return nil },
	}
	for _, m := range mutate {
		m(d)
	}

	e := echo.New()
	Register(e, d)
	return &testEnv{t: t, e: e, google: g}
}

func (env *testEnv) do(method, path string, body any, cookies ...*http.Cookie) response {
	env.t.Helper()

	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(env.t, err)
		rd = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	res := response{Status: rec.Code, Cookies: rec.Result().Cookies()}
	if rec.Body.Len() > 0 {
		require.NoError(env.t, json.Unmarshal(rec.Body.Bytes(), &res.Env), rec.Body.String())
	}
	return res
}

func (r response) cookie(name string) *http.Cookie {
	for _, c := range r.Cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (r response) errMsg() string {
	if r.Env.Error == nil {
		return ""
	}
	return *r.Env.Error
}

func (env *testEnv) login(email string) (*http.Cookie, *http.Cookie) {
	env.t.Helper()

	res := env.do(http.MethodPost, "/api/v1/users/register", map[string]string{"email": email, "password": password})
	require.Equal(env.t, http.StatusCreated, res.Status, res.errMsg())
	res = env.do(http.MethodPost, "/api/v1/users/login", map[string]string{"email": email, "password": password})
	require.Equal(env.t, http.StatusOK, res.Status, res.errMsg())

	access, refresh := res.cookie(tokens.AccessCookie), res.cookie(tokens.RefreshCookie)
	require.NotNil(env.t, access)
	require.NotNil(env.t, refresh)
	return access, refresh
}

func TestRegister(t *testing.T) {
	env := newEnv(t)

	res := env.do(http.MethodPost, "/api/v1/users/register", map[string]string{"email": " a@b.io ", "password": password})
	require.Equal(t, http.StatusCreated, res.Status)
	assert.True(t, res.Env.Success)
	assert.Nil(t, res.Env.Error)
	var data struct {
		ID    uint   `json:"id"`
		Email string `json:"email"`
	}
	require.NoError(t, json.Unmarshal(res.Env.Data, &data))
	assert.NotZero(t, data.ID)
	assert.Equal(t, "a@b.io", data.Email)

	tests := []struct {
		name   string
		body   any
		status int
		msg    string
	}{
		{name: "duplicate", body: map[string]string{"email": "a@b.io", "password": password}, status: 409, msg: "Email already registered"},
		{name: "missing fields", body: map[string]string{"email": "a@b.io"}, status: 400, msg: "Email and password required"},
		{name: "bad email", body: map[string]string{"email": "nope", "password": password}, status: 400, msg: "Invalid email format"},
		{name: "weak password", body: map[string]string{"email": "c@b.io", "password": "short"}, status: 400,
			msg: "Password requirements: Password must be at least 8 characters, Password must contain uppercase letters, Password must contain numbers, Password must contain special characters (!@#$%^&*)"},
		{name: "broken json", body: "{", status: 400, msg: "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.do(http.MethodPost, "/api/v1/users/register", tt.body)
			assert.Equal(t, tt.status, res.Status)
			assert.False(t, res.Env.Success)
			assert.Equal(t, "null", string(res.Env.Data))
			assert.Equal(t, tt.msg, res.errMsg())
		})
	}
}

func TestLogin_SetsCookies(t *testing.T) {
	env := newEnv(t)
	access, refresh := env.login("me@x.io")

	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, access.SameSite)
	assert.Equal(t, 3600, access.MaxAge)
	assert.False(t, access.Secure)
	assert.Equal(t, 7*24*3600, refresh.MaxAge)

	res := env.do(http.MethodPost, "/api/v1/users/login", map[string]string{"email": "me@x.io", "password": "Wrong123!"})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "Invalid credentials", res.errMsg())
	assert.Empty(t, res.Cookies)

	res = env.do(http.MethodPost, "/api/v1/users/login", map[string]string{"email": "ghost@x.io", "password": password})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "Invalid credentials", res.errMsg())
}

func TestLogin_SecureCookiesInProduction(t *testing.T) {
	env := newEnv(t, func(d *Deps) { d.AuthHandler.SecureCookies = true })
	access, refresh := env.login("prod@x.io")
	assert.True(t, access.Secure)
	assert.True(t, refresh.Secure)
}

func TestGoogleLogin(t *testing.T) {
	env := newEnv(t)

	res := env.do(http.MethodPost, "/api/v1/users/google", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "Google credential required", res.errMsg())

	cred := env.google.Sign(t, oauthtest.Claims("g-1", "user@gmail.com"))
	res = env.do(http.MethodPost, "/api/v1/users/google", map[string]string{"credential": cred})
	require.Equal(t, http.StatusOK, res.Status, res.errMsg())
	assert.JSONEq(t, `{"message":"Google login successful"}`, string(res.Env.Data))
	require.NotNil(t, res.cookie(tokens.AccessCookie))

	notes := env.do(http.MethodGet, "/api/v1/notes", nil, res.cookie(tokens.AccessCookie))
	assert.Equal(t, http.StatusOK, notes.Status)

	claims := oauthtest.Claims("g-2", "user@gmail.com")
	claims["aud"] = "another-client"
	res = env.do(http.MethodPost, "/api/v1/users/google", map[string]string{"credential": env.google.Sign(t, claims)})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "Google authentication failed", res.errMsg())

	claims = oauthtest.Claims("g-3", "not-an-email")
	res = env.do(http.MethodPost, "/api/v1/users/google", map[string]string{"credential": env.google.Sign(t, claims)})
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "Invalid email from Google", res.errMsg())
}

func TestRefresh(t *testing.T) {
	env := newEnv(t)
	_, refresh := env.login("r@x.io")

	res := env.do(http.MethodPost, "/api/v1/users/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "Refresh token required", res.errMsg())

	res = env.do(http.MethodPost, "/api/v1/users/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `{"message":"Token refreshed successfully"}`, string(res.Env.Data))
	access := res.cookie(tokens.AccessCookie)
	require.NotNil(t, access)
	assert.Nil(t, res.cookie(tokens.RefreshCookie))

	notes := env.do(http.MethodGet, "/api/v1/notes", nil, access)
	assert.Equal(t, http.StatusOK, notes.Status)

	expired, err := tokens.CreateRefreshToken(refreshSecret, 1, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	res = env.do(http.MethodPost, "/api/v1/users/refresh", nil, &http.Cookie{Name: tokens.RefreshCookie, Value: expired})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "Refresh token expired, please login again", res.errMsg())
	assert.Equal(t, "REFRESH_EXPIRED", res.Env.Code)

	res = env.do(http.MethodPost, "/api/v1/users/refresh", nil, &http.Cookie{Name: tokens.RefreshCookie, Value: "garbage"})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "Token refresh failed", res.errMsg())

	ghost, err := tokens.CreateRefreshToken(refreshSecret, 999, time.Now().Add(time.Hour))
	require.NoError(t, err)
	res = env.do(http.MethodPost, "/api/v1/users/refresh", nil, &http.Cookie{Name: tokens.RefreshCookie, Value: ghost})
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "User not found", res.errMsg())
}

func TestLogout_ClearsCookies(t *testing.T) {
	env := newEnv(t)

	res := env.do(http.MethodPost, "/api/v1/users/logout", nil)
	require.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `{"message":"Logged out"}`, string(res.Env.Data))
	for _, name := range []string{tokens.AccessCookie, tokens.RefreshCookie} {
		c := res.cookie(name)
		require.NotNil(t, c, name)
		assert.Empty(t, c.Value)
		assert.Equal(t, -1, c.MaxAge)
	}
}

func TestNotes_RequireAuth(t *testing.T) {
	env := newEnv(t)

	res := env.do(http.MethodGet, "/api/v1/notes", nil)
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "Authentication required", res.errMsg())

	expired, err := tokens.CreateAccessToken(jwtSecret, 1, "a@b.io", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	res = env.do(http.MethodGet, "/api/v1/notes", nil, &http.Cookie{Name: tokens.AccessCookie, Value: expired})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "Token expired", res.errMsg())
	assert.Equal(t, "TOKEN_EXPIRED", res.Env.Code)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1", "exp": time.Now().Add(time.Hour).Unix()})
	s, err := forged.SignedString([]byte("not-the-secret"))
	require.NoError(t, err)
	res = env.do(http.MethodDelete, "/api/v1/notes/1", nil, &http.Cookie{Name: tokens.AccessCookie, Value: s})
	assert.Equal(t, http.StatusUnauthorized, res.Status)
	assert.Equal(t, "INVALID_TOKEN", res.Env.Code)
}

type notePayload struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	Contents  string    `json:"contents"`
	UserID    *uint     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type pagePayload struct {
	Notes       []notePayload `json:"notes"`
	Page        int           `json:"page"`
	Limit       int           `json:"limit"`
	TotalNotes  int64         `json:"totalNotes"`
	HasNextPage bool          `json:"hasNextPage"`
	NextPage    *int          `json:"nextPage"`
}

func TestNotes_CRUD(t *testing.T) {
	env := newEnv(t)
	access, _ := env.login("owner@x.io")

	res := env.do(http.MethodPost, "/api/v1/notes", map[string]string{"title": "  First ", "contents": " body "}, access)
	require.Equal(t, http.StatusCreated, res.Status, res.errMsg())
	var created notePayload
	require.NoError(t, json.Unmarshal(res.Env.Data, &created))
	assert.Equal(t, "First", created.Title)
	assert.Equal(t, "body", created.Contents)
	assert.Nil(t, created.UserID)
	assert.False(t, created.CreatedAt.IsZero())

	res = env.do(http.MethodPost, "/api/v1/notes", map[string]string{"title": "", "contents": strings.Repeat("x", 50001)}, access)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "Title is required; Note content must not exceed 50,000 characters", res.errMsg())

	path := fmt.Sprintf("/api/v1/notes/%d", created.ID)
	res = env.do(http.MethodPut, path, map[string]string{"title": "Edited", "contents": "new"}, access)
	require.Equal(t, http.StatusOK, res.Status)
	var first notePayload
	require.NoError(t, json.Unmarshal(res.Env.Data, &first))
	assert.Equal(t, "Edited", first.Title)

	res = env.do(http.MethodPut, path, map[string]string{"title": "Edited", "contents": "new"}, access)
	require.Equal(t, http.StatusOK, res.Status)
	var second notePayload
	require.NoError(t, json.Unmarshal(res.Env.Data, &second))
	assert.Equal(t, first, second)

	for _, bad := range []string{"abc", "0", "-1", "1.5"} {
		res = env.do(http.MethodPut, "/api/v1/notes/"+bad, map[string]string{"title": "x"}, access)
		assert.Equal(t, http.StatusBadRequest, res.Status, bad)
		assert.Equal(t, "Invalid note ID", res.errMsg())
		res = env.do(http.MethodDelete, "/api/v1/notes/"+bad, nil, access)
		assert.Equal(t, http.StatusBadRequest, res.Status, bad)
		assert.Equal(t, "Invalid note ID", res.errMsg())
	}

	res = env.do(http.MethodPut, "/api/v1/notes/9999", map[string]string{"title": "x"}, access)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "Note not found", res.errMsg())

	res = env.do(http.MethodDelete, path, nil, access)
	require.Equal(t, http.StatusOK, res.Status)
	assert.JSONEq(t, `{"message":"Note deleted successfully"}`, string(res.Env.Data))

	res = env.do(http.MethodDelete, path, nil, access)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.Equal(t, "Note not found", res.errMsg())
}

func TestNotes_OwnershipIsolation(t *testing.T) {
	env := newEnv(t)
	alice, _ := env.login("alice@x.io")
	bob, _ := env.login("bob@x.io")

	res := env.do(http.MethodPost, "/api/v1/notes", map[string]string{"title": "alice secret"}, alice)
	require.Equal(t, http.StatusCreated, res.Status)
	var n notePayload
	require.NoError(t, json.Unmarshal(res.Env.Data, &n))
	path := fmt.Sprintf("/api/v1/notes/%d", n.ID)

	res = env.do(http.MethodGet, "/api/v1/notes?q=secret", nil, bob)
	require.Equal(t, http.StatusOK, res.Status)
	var page pagePayload
	require.NoError(t, json.Unmarshal(res.Env.Data, &page))
	assert.Empty(t, page.Notes)
	assert.Zero(t, page.TotalNotes)

	res = env.do(http.MethodPut, path, map[string]string{"title": "pwned"}, bob)
	assert.Equal(t, http.StatusNotFound, res.Status)
	res = env.do(http.MethodDelete, path, nil, bob)
	assert.Equal(t, http.StatusNotFound, res.Status)

	res = env.do(http.MethodGet, "/api/v1/notes", nil, alice)
	require.NoError(t, json.Unmarshal(res.Env.Data, &page))
	require.Len(t, page.Notes, 1)
	assert.Equal(t, "alice secret", page.Notes[0].Title)
}

func TestNotes_ListPagination(t *testing.T) {
	env := newEnv(t)
	access, _ := env.login("pager@x.io")

	for i := 0; i < 25; i++ {
		res := env.do(http.MethodPost, "/api/v1/notes", map[string]string{"title": fmt.Sprintf("note %02d", i)}, access)
		require.Equal(t, http.StatusCreated, res.Status)
	}

	var page pagePayload
	res := env.do(http.MethodGet, "/api/v1/notes", nil, access)
	require.Equal(t, http.StatusOK, res.Status)
	require.NoError(t, json.Unmarshal(res.Env.Data, &page))
	assert.Len(t, page.Notes, 20)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Limit)
	assert.EqualValues(t, 25, page.TotalNotes)
	assert.True(t, page.HasNextPage)
	require.NotNil(t, page.NextPage)
	assert.Equal(t, 2, *page.NextPage)
	assert.Equal(t, "note 24", page.Notes[0].Title)

	res = env.do(http.MethodGet, "/api/v1/notes?page=2", nil, access)
	require.NoError(t, json.Unmarshal(res.Env.Data, &page))
	assert.Len(t, page.Notes, 5)
	assert.False(t, page.HasNextPage)
	assert.Nil(t, page.NextPage)
	assert.Contains(t, string(res.Env.Data), `"nextPage":null`)

	res = env.do(http.MethodGet, "/api/v1/notes?limit=150&title=NOTE%2007", nil, access)
	require.NoError(t, json.Unmarshal(res.Env.Data, &page))
	assert.Equal(t, 100, page.Limit)
	require.Len(t, page.Notes, 1)
	assert.Equal(t, "note 07", page.Notes[0].Title)

	res = env.do(http.MethodGet, "/api/v1/notes?page=0", nil, access)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "Page must be >= 1", res.errMsg())

	res = env.do(http.MethodGet, "/api/v1/notes?page=50", nil, access)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Contains(t, string(res.Env.Data), `"notes":[]`)
}

func TestRateLimits(t *testing.T) {
	env := newEnv(t, func(d *Deps) {
		d.AuthLimit = RateLimit{Requests: 2, Window: time.Hour, Message: DefaultAuthLimit.Message}
	})

	body := map[string]string{"email": "x@x.io", "password": "nope"}
	for i := 0; i < 2; i++ {
		res := env.do(http.MethodPost, "/api/v1/users/login", body)
		assert.Equal(t, http.StatusUnauthorized, res.Status)
	}
	res := env.do(http.MethodPost, "/api/v1/users/login", body)
	assert.Equal(t, http.StatusTooManyRequests, res.Status)
	assert.Equal(t, "Too many login attempts, try again later", res.errMsg())

	// the strict limiter does not apply to other routes
	res = env.do(http.MethodPost, "/api/v1/users/logout", nil)
	assert.Equal(t, http.StatusOK, res.Status)
}

func loginFrom(env *testEnv, remoteAddr string, headers map[string]string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login",
		strings.NewReader(`{"email":"x@x.io","password":"nope"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.RemoteAddr = remoteAddr
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec.Code
}

func TestRateLimits_IgnoreForwardingHeadersFromClients(t *testing.T) {
	env := newEnv(t, func(d *Deps) {
		d.AuthLimit = RateLimit{Requests: 2, Window: time.Hour, Message: DefaultAuthLimit.Message}
	})

	var codes []int
	for i := 1; i <= 6; i++ {
		codes = append(codes, loginFrom(env, "192.0.2.1:4000", map[string]string{
			echo.HeaderXForwardedFor: fmt.Sprintf("10.0.0.%d", i),
			echo.HeaderXRealIP:       fmt.Sprintf("10.0.1.%d", i),
		}))
	}
	assert.Equal(t, []int{401, 401, 429, 429, 429, 429}, codes)

	// another peer has its own bucket
	assert.Equal(t, http.StatusUnauthorized, loginFrom(env, "192.0.2.2:4000", nil))
}

func TestRateLimits_TrustedProxyKeysByForwardedClient(t *testing.T) {
	env := newEnv(t, func(d *Deps) {
		d.AuthLimit = RateLimit{Requests: 1, Window: time.Hour, Message: DefaultAuthLimit.Message}
		d.IPExtractor = echo.ExtractIPFromXFFHeader()
	})

	for i := 1; i <= 3; i++ {
		code := loginFrom(env, "10.0.0.1:4000", map[string]string{
			echo.HeaderXForwardedFor: fmt.Sprintf("203.0.113.%d", i),
		})
		assert.Equal(t, http.StatusUnauthorized, code, "client %d", i)
	}
	code := loginFrom(env, "10.0.0.1:4000", map[string]string{echo.HeaderXForwardedFor: "203.0.113.1"})
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestFrameworkErrorsUseEnvelope(t *testing.T) {
	env := newEnv(t)

	res := env.do(http.MethodGet, "/api/v1/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, res.Status)
	assert.False(t, res.Env.Success)
	assert.Equal(t, "Not found", res.errMsg())
}

func TestHealth(t *testing.T) {
	env := newEnv(t, func(d *Deps) {
		d.Ready = func(context.Context) error { return errors.New("db down") }
	})

	res := env.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, res.Status)

	res = env.do(http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Equal(t, "Service unavailable", res.errMsg())
}

func TestCORS(t *testing.T) {
	env := newEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/notes", nil)
	req.Header.Set(echo.HeaderOrigin, frontend)
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	assert.Equal(t, frontend, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Equal(t, "true", rec.Header().Get(echo.HeaderAccessControlAllowCredentials))
}
