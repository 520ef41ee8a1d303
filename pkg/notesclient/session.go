package notesclient

import (
	"context"
	"errors"
	"strings"
	"sync"
)

const PageSize = 20

// API is the subset of Client a Session drives.
type API interface {
	Register(ctx context.Context, email, password string) (*User, error)
	Login(ctx context.Context, email, password string) error
	GoogleLogin(ctx context.Context, credential string) error
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	ListNotes(ctx context.Context, p ListParams) (*NotePage, error)
	CreateNote(ctx context.Context, title, contents string) (*Note, error)
	UpdateNote(ctx context.Context, id uint, title, contents string) (*Note, error)
	DeleteNote(ctx context.Context, id uint) error
}

type View int

const (
	ViewChecking View = iota
	ViewLogin
	ViewNotes
)

func (v View) String() string {
	switch v {
	case ViewChecking:
		return "checking"
	case ViewNotes:
		return "notes"
	default:
		return "login"
	}
}

// State is what the shell renders.
type State struct {
	CheckingAuth bool
	LoggedIn     bool
	Notes        []Note
	CurrentPage  int
	HasNextPage  bool
	Query        string
	Email        string
	Password     string
	Title        string
	Contents     string
	EditingID    *uint
	Error        string
}

// Session holds the shell state between calls. Safe for concurrent use.
type Session struct {
	api API

	mu sync.Mutex
	st State
}

func NewSession(api API) *Session {
	return &Session{api: api, st: State{CheckingAuth: true, Notes: []Note{}}}
}

// Init checks the session cookies by fetching the first page.
func (s *Session) Init(ctx context.Context) error {
	return s.FetchNotes(ctx, 1, "")
}

func (s *Session) Guard() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.st.CheckingAuth:
		return ViewChecking
	case s.st.LoggedIn:
		return ViewNotes
	default:
		return ViewLogin
	}
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.st
	out.Notes = append([]Note(nil), s.st.Notes...)
	if s.st.EditingID != nil {
		id := *s.st.EditingID
		out.EditingID = &id
	}
	return out
}

// FetchNotes loads a page. Page 1 replaces the list, later pages append.
// An expired access token is refreshed once before giving up.
func (s *Session) FetchNotes(ctx context.Context, page int, q string) error {
	if page < 1 {
		page = 1
	}
	params := ListParams{Page: page, Limit: PageSize, Q: q}

	res, err := s.api.ListNotes(ctx, params)
	if IsUnauthorized(err) {
		if rerr := s.api.Refresh(ctx); rerr == nil {
			res, err = s.api.ListNotes(ctx, params)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.CheckingAuth = false
	if err != nil {
		s.st.Notes = []Note{}
		s.st.LoggedIn = false
		s.st.CurrentPage = 0
		s.st.HasNextPage = false
		return err
	}
	if page == 1 {
		s.st.Notes = append([]Note{}, res.Notes...)
	} else {
		s.st.Notes = append(s.st.Notes, res.Notes...)
	}
	s.st.Query = q
	s.st.CurrentPage = res.Page
	s.st.HasNextPage = res.HasNextPage
	s.st.LoggedIn = true
	return nil
}

func (s *Session) NextPage(ctx context.Context) error {
	s.mu.Lock()
	more, page, q := s.st.HasNextPage, s.st.CurrentPage+1, s.st.Query
	s.mu.Unlock()
	if !more {
		return nil
	}
	return s.FetchNotes(ctx, page, q)
}

func (s *Session) Search(ctx context.Context, q string) error {
	return s.FetchNotes(ctx, 1, strings.TrimSpace(q))
}

func (s *Session) ClearSearch(ctx context.Context) error {
	return s.FetchNotes(ctx, 1, "")
}

// Refresh renews the access cookie and reloads the first page, logging out on failure.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.api.Refresh(ctx); err != nil {
		s.Logout(ctx)
		return err
	}
	return s.FetchNotes(ctx, 1, "")
}

func (s *Session) SetCredentials(email, password string) {
	s.mu.Lock()
	s.st.Email, s.st.Password = email, password
	s.mu.Unlock()
}

func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	email, password := s.st.Email, s.st.Password
	s.mu.Unlock()
	if strings.TrimSpace(email) == "" || password == "" {
		return nil
	}

	// a rejected login never falls back to refreshing an older session
	if err := s.api.Login(ctx, email, password); err != nil {
		s.setError(err, "Login failed")
		return err
	}
	s.clearError()
	return s.FetchNotes(ctx, 1, "")
}

func (s *Session) Register(ctx context.Context) error {
	s.mu.Lock()
	email, password := s.st.Email, s.st.Password
	s.mu.Unlock()

	if _, err := s.api.Register(ctx, email, password); err != nil {
		s.setError(err, "Registration failed")
		return err
	}
	if err := s.api.Login(ctx, email, password); err != nil {
		s.setError(err, "Registration failed")
		return err
	}
	s.clearError()
	return s.FetchNotes(ctx, 1, "")
}

func (s *Session) GoogleLogin(ctx context.Context, credential string) error {
	if err := s.api.GoogleLogin(ctx, credential); err != nil {
		s.setError(err, "Google login failed")
		return err
	}
	s.clearError()
	return s.FetchNotes(ctx, 1, "")
}

// Logout clears local state even when the server call fails.
func (s *Session) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = State{Notes: []Note{}}
	return err
}

func (s *Session) SetForm(title, contents string) {
	s.mu.Lock()
	s.st.Title, s.st.Contents = title, contents
	s.mu.Unlock()
}

func (s *Session) StartEdit(n Note) {
	s.mu.Lock()
	id := n.ID
	s.st.Title, s.st.Contents, s.st.EditingID = n.Title, n.Contents, &id
	s.mu.Unlock()
}

func (s *Session) CancelEdit() {
	s.mu.Lock()
	s.st.Title, s.st.Contents, s.st.EditingID = "", "", nil
	s.mu.Unlock()
}

// Submit creates a note, or updates the one being edited.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	title, contents := strings.TrimSpace(s.st.Title), strings.TrimSpace(s.st.Contents)
	var editing *uint
	if s.st.EditingID != nil {
		id := *s.st.EditingID
		editing = &id
	}
	s.mu.Unlock()

	if title == "" || contents == "" {
		return nil
	}

	var (
		n   *Note
		err error
	)
	if editing != nil {
		n, err = s.api.UpdateNote(ctx, *editing, title, contents)
	} else {
		n, err = s.api.CreateNote(ctx, title, contents)
	}
	if err != nil {
		s.setError(err, "Failed to save note")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if editing != nil {
		for i := range s.st.Notes {
			if s.st.Notes[i].ID == n.ID {
				s.st.Notes[i] = *n
			}
		}
		s.st.EditingID = nil
	} else {
		s.st.Notes = append([]Note{*n}, s.st.Notes...)
	}
	s.st.Title, s.st.Contents, s.st.Error = "", "", ""
	return nil
}

func (s *Session) Delete(ctx context.Context, id uint) error {
	if err := s.api.DeleteNote(ctx, id); err != nil {
		s.setError(err, "Failed to delete note")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.st.Notes[:0]
	for _, n := range s.st.Notes {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	s.st.Notes = kept
	return nil
}

func (s *Session) setError(err error, fallback string) {
	msg := fallback
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	s.mu.Lock()
	s.st.Error = msg
	s.mu.Unlock()
}

func (s *Session) clearError() {
	s.mu.Lock()
	s.st.Error = ""
	s.mu.Unlock()
}
