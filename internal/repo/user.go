package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Skotchmaster/notes_service/internal/models"
)

var ErrUserAlreadyExist = errors.New("user already exist")

type UserRepository interface {
	CreateUserIfNotExists(ctx context.Context, u *models.User) error
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	UserByID(ctx context.Context, id uint) (*models.User, error)
	UserByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	LinkGoogle(ctx context.Context, id uint, googleID string) error
}

var _ UserRepository = (*GormRepo)(nil)

func (r *GormRepo) CreateUserIfNotExists(ctx context.Context, u *models.User) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx := r.DB.WithContext(ctx).Where("email = ?", u.Email).FirstOrCreate(u)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrDuplicatedKey) {
			return ErrUserAlreadyExist
		}
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return ErrUserAlreadyExist
	}
	return nil
}

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.DB.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrUserAlreadyExist
		}
		return err
	}
	return nil
}

func (r *GormRepo) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var user models.User
	if err := r.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) UserByID(ctx context.Context, id uint) (*models.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) UserByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var user models.User
	if err := r.DB.WithContext(ctx).Where("google_id = ?", googleID).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// LinkGoogle attaches a Google subject to an existing account. Accounts that
// already carry a Google id are left untouched.
func (r *GormRepo) LinkGoogle(ctx context.Context, id uint, googleID string) error {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	res := r.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND google_id IS NULL", id).
		UpdateColumns(map[string]any{
			"google_id":     googleID,
			"auth_provider": models.ProviderGoogle,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrUserAlreadyExist
		}
		return res.Error
	}
	return nil
}
