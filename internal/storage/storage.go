// storage описывает контракты хранилищ auth-сервиса.
// Реализации: memory (эталонная, in-process), postgres, mongo (только refresh-токены).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-auth-service/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/роль/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/хэш refresh-токена).
	ErrAlreadyExists = errors.New("already exists")
)

//go:generate mockgen -destination=../mocks/mock_storage.go -package=mocks . UserStorage,RoleStorage,RefreshTokenStorage

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создаёт нового пользователя.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email (без учёта регистра).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// UpdateUser применяет частичное обновление и возвращает новую версию.
	UpdateUser(ctx context.Context, id uuid.UUID, upd models.UserUpdate) (*models.User, error)
}

// RoleStorage выполняет операции над ролями.
type RoleStorage interface {
	// RoleByNameOrCreate возвращает роль по имени, создавая её при отсутствии.
	RoleByNameOrCreate(ctx context.Context, name string) (*models.Role, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
// На пользователя хранится не более одной записи.
type RefreshTokenStorage interface {
	// RefreshTokenByUser находит запись пользователя.
	RefreshTokenByUser(ctx context.Context, userID uuid.UUID) (*models.RefreshToken, error)
	// RefreshTokenByHash находит запись по хэшу токена.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// UpsertRefreshToken создаёт запись пользователя или заменяет в ней
	// хэш и срок действия. ErrAlreadyExists — хэш занят другой записью.
	UpsertRefreshToken(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error)
	// RotateRefreshToken заменяет хэш и срок действия только если запись
	// всё ещё хранит oldHash. ErrNotFound — запись уже ротирована или удалена.
	RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) (*models.RefreshToken, error)
	// DeleteRefreshToken удаляет запись по хэшу; возвращает, была ли она удалена.
	DeleteRefreshToken(ctx context.Context, hash string) (bool, error)
	// DeleteUserRefreshToken удаляет запись пользователя, если она есть.
	DeleteUserRefreshToken(ctx context.Context, userID uuid.UUID) error
	// DeleteExpiredTokens удаляет просроченные записи и возвращает их число.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// Storage — полное хранилище сервиса.
type Storage interface {
	UserStorage
	RoleStorage
	RefreshTokenStorage
	Close()
}
