package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultRoleName — роль, назначаемая при регистрации.
const DefaultRoleName = "user"

// User — модель пользователя в системе.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Verified     bool
	Deleted      bool
	RoleID       uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UserUpdate — частичное обновление пользователя; nil-поля не меняются.
type UserUpdate struct {
	Verified     *bool
	PasswordHash *string
}

// Role — роль пользователя.
type Role struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
}
