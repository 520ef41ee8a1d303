package models

import (
	"time"
)

const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"                 json:"id"`
	Email        string    `gorm:"type:varchar(254);uniqueIndex;not null"   json:"email"`
	PasswordHash *string   `gorm:"column:password"                          json:"-"`
	GoogleID     *string   `gorm:"uniqueIndex"                              json:"-"`
	AuthProvider string    `gorm:"type:varchar(20);not null;default:local"  json:"auth_provider"`
	CreatedAt    time.Time `                                                json:"created_at"`
}

type Note struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"                        json:"id"`
	Title     string    `gorm:"type:varchar(500);not null"                      json:"title"`
	Contents  string    `gorm:"type:text;not null;default:''"                   json:"contents"`
	UserID    uint      `gorm:"index;not null"                                  json:"-"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE"                     json:"-"`
	CreatedAt time.Time `gorm:"index"                                           json:"created_at"`
	UpdatedAt time.Time `                                                       json:"updated_at"`
}

func All() []any {
	return []any{&User{}, &Note{}}
}
