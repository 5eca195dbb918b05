package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pribylovaa/go-auth-service/internal/models"
	"github.com/pribylovaa/go-auth-service/internal/storage"
)

const refreshColumns = `id, user_id, token_hash, expires_at, created_at, updated_at`

func scanRefresh(row pgx.Row) (*models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.ExpiresAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// mapErr переводит ошибки pgx в ошибки пакета storage.
func mapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	return fmt.Errorf("%s: %w", op, err)
}

// RefreshTokenByUser находит запись пользователя.
func (s *Storage) RefreshTokenByUser(ctx context.Context, userID uuid.UUID) (*models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByUser"

	query := `SELECT ` + refreshColumns + ` FROM refresh_tokens WHERE user_id = $1`

	t, err := scanRefresh(s.db.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, mapErr(op, err)
	}

	return t, nil
}

// RefreshTokenByHash находит refresh-токен по его хэшу.
func (s *Storage) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByHash"

	query := `SELECT ` + refreshColumns + ` FROM refresh_tokens WHERE token_hash = $1`

	t, err := scanRefresh(s.db.QueryRow(ctx, query, hash))
	if err != nil {
		return nil, mapErr(op, err)
	}

	return t, nil
}

// UpsertRefreshToken создаёт запись пользователя или обновляет её на месте.
func (s *Storage) UpsertRefreshToken(ctx context.Context, token *models.RefreshToken) (*models.RefreshToken, error) {
	const op = "storage.postgres.UpsertRefreshToken"

	query := `
		INSERT INTO refresh_tokens(id, user_id, token_hash, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (user_id) DO UPDATE
		SET token_hash = EXCLUDED.token_hash,
		    expires_at = EXCLUDED.expires_at,
		    updated_at = now()
		RETURNING ` + refreshColumns

	id := token.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	t, err := scanRefresh(s.db.QueryRow(ctx, query, id, token.UserID, token.TokenHash, token.ExpiresAt))
	if err != nil {
		return nil, mapErr(op, err)
	}

	return t, nil
}

// RotateRefreshToken заменяет хэш и срок действия, только если запись
// всё ещё хранит oldHash. Конкурентный UPDATE по той же строке ждёт
// блокировку и после коммита первого не находит совпадения.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) (*models.RefreshToken, error) {
	const op = "storage.postgres.RotateRefreshToken"

	query := `
		UPDATE refresh_tokens
		SET token_hash = $2,
		    expires_at = $3,
		    updated_at = now()
		WHERE token_hash = $1
		RETURNING ` + refreshColumns

	t, err := scanRefresh(s.db.QueryRow(ctx, query, oldHash, next.TokenHash, next.ExpiresAt))
	if err != nil {
		return nil, mapErr(op, err)
	}

	return t, nil
}

// DeleteRefreshToken удаляет запись по хэшу.
func (s *Storage) DeleteRefreshToken(ctx context.Context, hash string) (bool, error) {
	const op = "storage.postgres.DeleteRefreshToken"

	tag, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, hash)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected() > 0, nil
}

// DeleteUserRefreshToken удаляет запись пользователя.
func (s *Storage) DeleteUserRefreshToken(ctx context.Context, userID uuid.UUID) error {
	const op = "storage.postgres.DeleteUserRefreshToken"

	if _, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteExpiredTokens удаляет все просроченные токены.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	const op = "storage.postgres.DeleteExpiredTokens"

	tag, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return tag.RowsAffected(), nil
}
