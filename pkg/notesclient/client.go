package notesclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	usersPath = "/api/v1/users"
	notesPath = "/api/v1/notes"
)

// APIError is a non-2xx response decoded from the envelope.
type APIError struct {
	Status  int
	Message string
	Code    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%d %s (%s)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type Note struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	Contents  string    `json:"contents"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NotePage struct {
	Notes       []Note `json:"notes"`
	Page        int    `json:"page"`
	Limit       int    `json:"limit"`
	TotalNotes  int64  `json:"totalNotes"`
	HasNextPage bool   `json:"hasNextPage"`
	NextPage    *int   `json:"nextPage"`
}

type ListParams struct {
	Page  int
	Limit int
	Title string
	Q     string
}

type User struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
	Code    string          `json:"code"`
}

// Client talks to the notes API. Session cookies are kept in its jar.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Jar:     jar,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Jar exposes the cookie jar so callers can seed or inspect session cookies.
func (c *Client) Jar() http.CookieJar {
	return c.httpClient.Jar
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Register(ctx context.Context, email, password string) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodPost, usersPath+"/register", map[string]string{"email": email, "password": password}, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) Login(ctx context.Context, email, password string) error {
	return c.do(ctx, http.MethodPost, usersPath+"/login", map[string]string{"email": email, "password": password}, nil)
}

func (c *Client) GoogleLogin(ctx context.Context, credential string) error {
	return c.do(ctx, http.MethodPost, usersPath+"/google", map[string]string{"credential": credential}, nil)
}

func (c *Client) Refresh(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, usersPath+"/refresh", nil, nil)
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, usersPath+"/logout", nil, nil)
}

func (c *Client) ListNotes(ctx context.Context, p ListParams) (*NotePage, error) {
	q := url.Values{}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Title != "" {
		q.Set("title", p.Title)
	}
	if p.Q != "" {
		q.Set("q", p.Q)
	}
	path := notesPath
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	var page NotePage
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	if page.Notes == nil {
		page.Notes = []Note{}
	}
	return &page, nil
}

func (c *Client) CreateNote(ctx context.Context, title, contents string) (*Note, error) {
	var n Note
	if err := c.do(ctx, http.MethodPost, notesPath, map[string]string{"title": title, "contents": contents}, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) UpdateNote(ctx context.Context, id uint, title, contents string) (*Note, error) {
	var n Note
	path := notesPath + "/" + strconv.FormatUint(uint64(id), 10)
	if err := c.do(ctx, http.MethodPut, path, map[string]string{"title": title, "contents": contents}, &n); err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *Client) DeleteNote(ctx context.Context, id uint) error {
	return c.do(ctx, http.MethodDelete, notesPath+"/"+strconv.FormatUint(uint64(id), 10), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 300 || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode, Code: env.Code, Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Message = *env.Error
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
