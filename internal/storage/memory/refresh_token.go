package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-auth-service/internal/models"
	"github.com/pribylovaa/go-auth-service/internal/storage"
)

// RefreshTokenByUser находит запись пользователя.
func (s *Storage) RefreshTokenByUser(ctx context.Context, userID uuid.UUID) (*models.RefreshToken, error) {
	const op = "storage.memory.RefreshTokenByUser"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[userID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return &t, nil
}

// RefreshTokenByHash находит запись по хэшу токена.
func (s *Storage) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const op = "storage.memory.RefreshTokenByHash"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uid, ok := s.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	t := s.tokens[uid]
	return &t, nil
}

// UpsertRefreshToken создаёт или заменяет запись пользователя.
func (s *Storage) UpsertRefreshToken(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	const op = "storage.memory.UpsertRefreshToken"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byHash[token.TokenHash]; ok && owner != token.UserID {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	now := s.now()
	rec, ok := s.tokens[token.UserID]
	if ok {
		delete(s.byHash, rec.TokenHash)
	} else {
		rec = models.RefreshToken{ID: token.ID, UserID: token.UserID, CreatedAt: now}
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
	}

	rec.TokenHash = token.TokenHash
	rec.ExpiresAt = token.ExpiresAt
	rec.UpdatedAt = now

	s.tokens[token.UserID] = rec
	s.byHash[rec.TokenHash] = token.UserID

	return &rec, nil
}

// RotateRefreshToken заменяет хэш, только если запись всё ещё хранит oldHash.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) (*models.RefreshToken, error) {
	const op = "storage.memory.RotateRefreshToken"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uid, ok := s.byHash[oldHash]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	if _, taken := s.byHash[next.TokenHash]; taken {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	rec := s.tokens[uid]
	delete(s.byHash, oldHash)

	rec.TokenHash = next.TokenHash
	rec.ExpiresAt = next.ExpiresAt
	rec.UpdatedAt = s.now()

	s.tokens[uid] = rec
	s.byHash[rec.TokenHash] = uid

	return &rec, nil
}

// DeleteRefreshToken удаляет запись по хэшу.
func (s *Storage) DeleteRefreshToken(ctx context.Context, hash string) (bool, error) {
	const op = "storage.memory.DeleteRefreshToken"

	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	uid, ok := s.byHash[hash]
	if !ok {
		return false, nil
	}

	delete(s.byHash, hash)
	delete(s.tokens, uid)

	return true, nil
}

// DeleteUserRefreshToken удаляет запись пользователя, если она есть.
func (s *Storage) DeleteUserRefreshToken(ctx context.Context, userID uuid.UUID) error {
	const op = "storage.memory.DeleteUserRefreshToken"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.tokens[userID]; ok {
		delete(s.byHash, rec.TokenHash)
		delete(s.tokens, userID)
	}

	return nil
}

// DeleteExpiredTokens удаляет просроченные записи.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.memory.DeleteExpiredTokens"

	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for uid, rec := range s.tokens {
		if rec.Expired(now) {
			delete(s.byHash, rec.TokenHash)
			delete(s.tokens, uid)
			n++
		}
	}

	return n, nil
}
