package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — запись о сессии пользователя.
// На одного пользователя хранится не более одной записи.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired сообщает, истёк ли срок действия токена на момент now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
