package model

import "time"

// Subscriber stores Telegram chat metadata and digest preference.
type Subscriber struct {
	ID            uint  `gorm:"primaryKey"`
	ChatID        int64 `gorm:"uniqueIndex"`
	FirstName     string
	LastName      string
	Username      string
	DigestEnabled bool `gorm:"default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
