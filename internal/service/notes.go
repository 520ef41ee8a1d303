package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/notes_service/internal/events"
	"github.com/Skotchmaster/notes_service/internal/models"
	"github.com/Skotchmaster/notes_service/internal/repo"
	"github.com/Skotchmaster/notes_service/internal/validation"
)

type NotesService struct {
	Repo   repo.NoteRepository
	Events events.Publisher
}

type ListQuery struct {
	Page  string
	Limit string
	Title string
	Q     string
}

type NotePage struct {
	Notes       []models.Note `json:"notes"`
	Page        int           `json:"page"`
	Limit       int           `json:"limit"`
	TotalNotes  int64         `json:"totalNotes"`
	HasNextPage bool          `json:"hasNextPage"`
	NextPage    *int          `json:"nextPage"`
}

func (s *NotesService) List(ctx context.Context, userID uint, q ListQuery) (*NotePage, error) {
	p := validation.ValidatePagination(q.Page, q.Limit)
	if !p.IsValid {
		return nil, invalid(p.Join("; "))
	}

	total, items, err := s.Repo.ListNotes(ctx, userID, repo.NoteFilter{
		Title:  validation.TruncateFilter(q.Title),
		Query:  validation.TruncateFilter(q.Q),
		Offset: p.Offset(),
		Limit:  p.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	if items == nil {
		items = []models.Note{}
	}

	page := &NotePage{
		Notes:       items,
		Page:        p.Page,
		Limit:       p.Limit,
		TotalNotes:  total,
		HasNextPage: int64(p.Offset()+len(items)) < total,
	}
	if page.HasNextPage {
		next := p.Page + 1
		page.NextPage = &next
	}
	return page, nil
}

func (s *NotesService) Create(ctx context.Context, userID uint, title, contents string) (*models.Note, error) {
	if res := validation.ValidateNoteInput(title, contents); !res.IsValid {
		return nil, invalid(res.Join("; "))
	}

	note := &models.Note{
		Title:    strings.TrimSpace(title),
		Contents: strings.TrimSpace(contents),
		UserID:   userID,
	}
	if err := s.Repo.CreateNote(ctx, note); err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}

	s.emit(ctx, events.NoteCreated, userID, note.ID)
	return note, nil
}

func (s *NotesService) Update(ctx context.Context, userID, id uint, title, contents string) (*models.Note, error) {
	if res := validation.ValidateNoteInput(title, contents); !res.IsValid {
		return nil, invalid(res.Join("; "))
	}

	note, err := s.Repo.UpdateNote(ctx, userID, id, strings.TrimSpace(title), strings.TrimSpace(contents))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update note: %w", err)
	}

	s.emit(ctx, events.NoteUpdated, userID, note.ID)
	return note, nil
}

func (s *NotesService) Delete(ctx context.Context, userID, id uint) error {
	if err := s.Repo.DeleteNote(ctx, userID, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete note: %w", err)
	}

	s.emit(ctx, events.NoteDeleted, userID, id)
	return nil
}

func (s *NotesService) emit(ctx context.Context, typ string, userID, noteID uint) {
	ev := events.New(typ, userID)
	ev.NoteID = noteID
	events.Emit(ctx, s.Events, events.TopicNotes, ev)
}
