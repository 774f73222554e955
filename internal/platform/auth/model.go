package auth

import "time"

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

type Admin struct {
	ID           int64
	Username     string
	Name         string
	PasswordHash string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
