package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/notes_service/internal/models"
)

type GormRepo struct {
	DB *gorm.DB
	// Timeout bounds every query, including the wait for a free pool connection.
	Timeout time.Duration
}

func New(db *gorm.DB, timeout time.Duration) *GormRepo {
	return &GormRepo{DB: db, Timeout: timeout}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

func (r *GormRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.Timeout)
}
