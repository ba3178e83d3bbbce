package model

import (
	"time"
)

// User is the stored credential record. It is created once on registration
// and never mutated afterwards.
type User struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Username     string `gorm:"size:50;not null;uniqueIndex"`
	Email        string `gorm:"size:100;not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	Salt         string `gorm:"not null"`
	CreatedAt    time.Time
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// ValidationResult is the outcome of an access token check. UserID is only
// meaningful when Valid is true.
type ValidationResult struct {
	Valid  bool
	UserID int64
}
