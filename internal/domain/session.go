package domain

import "time"

// Session is a login. UpdatedAt doubles as the user's last activity and is
// what presence checks look at.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    uint      `gorm:"index;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"index"`
}
