package repo

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/Skotchmaster/notes_service/internal/models"
)

type NoteFilter struct {
	Title  string
	Query  string
	Offset int
	Limit  int
}

type NoteRepository interface {
	ListNotes(ctx context.Context, userID uint, f NoteFilter) (int64, []models.Note, error)
	CreateNote(ctx context.Context, note *models.Note) error
	UpdateNote(ctx context.Context, userID, id uint, title, contents string) (*models.Note, error)
	DeleteNote(ctx context.Context, userID, id uint) error
}

var _ NoteRepository = (*GormRepo)(nil)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func noteScope(userID uint, f NoteFilter) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		db = db.Where("user_id = ?", userID)
		if f.Title != "" {
			db = db.Where(`LOWER(title) LIKE LOWER(?) ESCAPE '\'`, containsPattern(f.Title))
		}
		if f.Query != "" {
			p := containsPattern(f.Query)
			db = db.Where(`(LOWER(title) LIKE LOWER(?) ESCAPE '\' OR LOWER(contents) LIKE LOWER(?) ESCAPE '\')`, p, p)
		}
		return db
	}
}

func (r *GormRepo) ListNotes(ctx context.Context, userID uint, f NoteFilter) (int64, []models.Note, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Note{}).Scopes(noteScope(userID, f)).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	items := make([]models.Note, 0, f.Limit)
	if total == 0 {
		return 0, items, nil
	}
	if err := r.DB.WithContext(ctx).
		Model(&models.Note{}).
		Scopes(noteScope(userID, f)).
		Order("created_at DESC").
		Order("id DESC").
		Offset(f.Offset).
		Limit(f.Limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}

	return total, items, nil
}

func (r *GormRepo) CreateNote(ctx context.Context, note *models.Note) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	return r.DB.WithContext(ctx).Create(note).Error
}

// UpdateNote only moves updated_at when the title or contents differ from the
// stored row, so repeating the same update leaves the row unchanged.
func (r *GormRepo) UpdateNote(ctx context.Context, userID, id uint, title, contents string) (*models.Note, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var note models.Note
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Note{}).
			Where("id = ? AND user_id = ?", id, userID).
			UpdateColumns(map[string]any{
				"title":    title,
				"contents": contents,
				"updated_at": gorm.Expr(
					"CASE WHEN title = ? AND contents = ? THEN updated_at ELSE ? END",
					title, contents, tx.NowFunc(),
				),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).First(&note).Error
	})
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *GormRepo) DeleteNote(ctx context.Context, userID, id uint) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Note{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
