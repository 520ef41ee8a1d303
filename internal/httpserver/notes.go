package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/notes_service/internal/middleware/auth"
	"github.com/Skotchmaster/notes_service/internal/service"
	"github.com/Skotchmaster/notes_service/internal/transport"
	"github.com/Skotchmaster/notes_service/pkg/logging"
)

type NotesHTTP struct {
	Svc *service.NotesService
}

func noteID(c echo.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func (h *NotesHTTP) List(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "notes.list")

	ident, ok := auth.IdentityFrom(c)
	if !ok {
		return transport.Unauthorized("Authentication required")
	}

	page, err := h.Svc.List(ctx, ident.UserID, service.ListQuery{
		Page:  c.QueryParam("page"),
		Limit: c.QueryParam("limit"),
		Title: c.QueryParam("title"),
		Q:     c.QueryParam("q"),
	})
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			l.Warn("list_notes_error", "status", 400, "reason", msg)
			return transport.BadRequest(msg)
		}
		l.Error("list_notes_error", "status", 500, "reason", "cannot fetch notes", "error", err)
		return transport.Internal("Failed to fetch notes").Wrap(err)
	}

	return c.JSON(http.StatusOK, transport.OK(page))
}

func (h *NotesHTTP) Create(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "notes.create")

	ident, ok := auth.IdentityFrom(c)
	if !ok {
		return transport.Unauthorized("Authentication required")
	}

	var req transport.NoteRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("create_note_error", "status", 400, "reason", "invalid body", "error", err)
		return transport.BadRequest("Invalid request body")
	}

	note, err := h.Svc.Create(ctx, ident.UserID, req.Title, req.Contents)
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			l.Warn("create_note_error", "status", 400, "reason", msg)
			return transport.BadRequest(msg)
		}
		l.Error("create_note_error", "status", 500, "reason", "cannot insert note", "error", err)
		return transport.Internal("Failed to create note").Wrap(err)
	}

	l.Info("create_note_success", "note_id", note.ID)
	return c.JSON(http.StatusCreated, transport.OK(note))
}

func (h *NotesHTTP) Update(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "notes.update")

	ident, ok := auth.IdentityFrom(c)
	if !ok {
		return transport.Unauthorized("Authentication required")
	}
	id, ok := noteID(c)
	if !ok {
		l.Warn("update_note_error", "status", 400, "reason", "invalid note id", "id", c.Param("id"))
		return transport.BadRequest("Invalid note ID")
	}

	var req transport.NoteRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_note_error", "status", 400, "reason", "invalid body", "error", err)
		return transport.BadRequest("Invalid request body")
	}

	note, err := h.Svc.Update(ctx, ident.UserID, id, req.Title, req.Contents)
	if err != nil {
		if msg, ok := validationMessage(err); ok {
			l.Warn("update_note_error", "status", 400, "reason", msg)
			return transport.BadRequest(msg)
		}
		if errors.Is(err, service.ErrNotFound) {
			l.Warn("update_note_error", "status", 404, "reason", "note not found", "note_id", id)
			return transport.NotFound("Note not found")
		}
		l.Error("update_note_error", "status", 500, "reason", "cannot update note", "error", err)
		return transport.Internal("Failed to update note").Wrap(err)
	}

	l.Info("update_note_success", "note_id", note.ID)
	return c.JSON(http.StatusOK, transport.OK(note))
}

func (h *NotesHTTP) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "notes.delete")

	ident, ok := auth.IdentityFrom(c)
	if !ok {
		return transport.Unauthorized("Authentication required")
	}
	id, ok := noteID(c)
	if !ok {
		l.Warn("delete_note_error", "status", 400, "reason", "invalid note id", "id", c.Param("id"))
		return transport.BadRequest("Invalid note ID")
	}

	if err := h.Svc.Delete(ctx, ident.UserID, id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			l.Warn("delete_note_error", "status", 404, "reason", "note not found", "note_id", id)
			return transport.NotFound("Note not found")
		}
		l.Error("delete_note_error", "status", 500, "reason", "cannot delete note", "error", err)
		return transport.Internal("Failed to delete note").Wrap(err)
	}

	l.Info("delete_note_success", "note_id", id)
	return c.JSON(http.StatusOK, transport.OK(transport.Message{Message: "Note deleted successfully"}))
}
