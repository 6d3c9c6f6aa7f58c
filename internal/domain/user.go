package domain

import "time"

// User is a registered player. Name is the display name used by rule engines
// and in "@name" mentions, so it is unique and case-sensitive.
type User struct {
	ID                   uint       `gorm:"primaryKey"`
	Name                 string     `gorm:"type:varchar(191);uniqueIndex:idx_user_name;not null"`
	Password             string     `gorm:"type:text;not null"` // bcrypt hash
	Email                string     `gorm:"type:varchar(191);index"`
	NotificationsEnabled bool       `gorm:"not null"`
	LastNotifiedAt       *time.Time // last turn email sent, used for throttling
	CreatedAt            time.Time  `gorm:"autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime"`
}
