package models

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const (
	StatusActive   = "ACTIVE"
	StatusPending  = "PENDING"
	StatusInactive = "INACTIVE"
	StatusBanned   = "BANNED"
)

type User struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name               string    `json:"name"`
	Username           string    `gorm:"uniqueIndex;not null"     json:"username"`
	Email              string    `gorm:"uniqueIndex;not null"     json:"email"`
	PasswordHash       string    `gorm:"not null"                 json:"-"`
	Role               string    `gorm:"not null;default:user"    json:"role"`
	Status             string    `gorm:"not null;default:ACTIVE"  json:"status"`
	AccessTokenVersion int       `gorm:"not null;default:0"       json:"-"`
	CreatedAt          time.Time `json:"created_at"`
}

type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"           json:"id"`
	Token     string    `gorm:"uniqueIndex;not null" json:"token"`
	UserID    uint      `gorm:"index;not null"       json:"user_id"`
	ExpiresAt time.Time `gorm:"not null"             json:"expires_at"`
}

type Note struct {
	ID        uint      `gorm:"primaryKey"     json:"id"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	Title     string    `gorm:"not null"       json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StatusDisallowed reports whether a user in this status may hold a session.
func StatusDisallowed(status string) bool {
	switch status {
	case StatusPending, StatusInactive, StatusBanned:
		return true
	}
	return false
}

func ValidStatus(status string) bool {
	switch status {
	case StatusActive, StatusPending, StatusInactive, StatusBanned:
		return true
	}
	return false
}

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}
