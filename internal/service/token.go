package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pribylovaa/go-auth-service/internal/config"
	"github.com/pribylovaa/go-auth-service/internal/cryptox"
	"github.com/pribylovaa/go-auth-service/internal/models"
	"github.com/pribylovaa/go-auth-service/internal/pkg/log"
	"github.com/pribylovaa/go-auth-service/internal/storage"
)

// maxRefreshAttempts — сколько раз генерировать refresh-значение при коллизии хэша.
const maxRefreshAttempts = 5

type accessClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// TokenManager выпускает и ротирует пары токенов.
//
// Refresh-токен — 32 случайных байта (base64url). В хранилище лежит только
// sha256 от значения, клиент получает значение, зашифрованное ключом
// auth.refresh_secret. На пользователя хранится одна запись: выпуск
// перезаписывает её, ротация заменяет хэш только при совпадении старого.
type TokenManager struct {
	tokens storage.RefreshTokenStorage
	cipher *cryptox.Cipher
	cfg    config.AuthConfig
	now    func() time.Time
}

// NewTokenManager создаёт TokenManager; ключ и IV проверяются сразу.
func NewTokenManager(tokens storage.RefreshTokenStorage, cfg config.AuthConfig) (*TokenManager, error) {
	const op = "service.token.NewTokenManager"

	c, err := cryptox.New(cfg.RefreshSecret, cfg.RefreshIV)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &TokenManager{
		tokens: tokens,
		cipher: c,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IssueTokenPair выпускает новую пару и заменяет сессию пользователя.
func (m *TokenManager) IssueTokenPair(ctx context.Context, userID uuid.UUID) (*models.TokenPair, error) {
	const op = "service.token.IssueTokenPair"

	lg := log.From(ctx)
	now := m.now()

	for attempt := 0; attempt < maxRefreshAttempts; attempt++ {
		plain, err := randomToken()
		if err != nil {
			lg.Error("refresh_rand_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		rec, err := m.tokens.UpsertRefreshToken(ctx, &models.RefreshToken{
			UserID:    userID,
			TokenHash: hashToken(plain),
			ExpiresAt: now.Add(m.cfg.RefreshTokenTTL),
		})
		if err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия — пробуем сгенерировать заново.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return m.pair(ctx, userID, plain, rec.ExpiresAt, now)
	}

	lg.Error("refresh_collision_exceeded", slog.String("op", op))

	return nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// RotateTokenPair обменивает зашифрованный refresh-токен на новую пару.
// Из двух конкурентных ротаций одного токена успешна ровно одна:
// хранилище заменяет хэш только если запись всё ещё хранит старый.
func (m *TokenManager) RotateTokenPair(ctx context.Context, encrypted string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.token.RotateTokenPair"

	lg := log.From(ctx)

	plain, err := m.cipher.Decrypt(encrypted)
	if err != nil {
		lg.Warn("refresh_decrypt_failed", slog.String("op", op))
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}
	oldHash := hashToken(plain)

	rec, err := m.tokens.RefreshTokenByHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found", slog.String("op", op))
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		lg.Error("refresh_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	now := m.now()
	if rec.Expired(now) {
		if _, err := m.tokens.DeleteRefreshToken(ctx, oldHash); err != nil {
			lg.Error("refresh_expired_delete_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
		}
		lg.Warn("refresh_expired",
			slog.String("op", op),
			slog.String("user_id", rec.UserID.String()),
		)
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	for attempt := 0; attempt < maxRefreshAttempts; attempt++ {
		next, err := randomToken()
		if err != nil {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
		}

		rotated, err := m.tokens.RotateRefreshToken(ctx, oldHash, &models.RefreshToken{
			TokenHash: hashToken(next),
			ExpiresAt: now.Add(m.cfg.RefreshTokenTTL),
		})
		switch {
		case err == nil:
			pair, err := m.pair(ctx, rotated.UserID, next, rotated.ExpiresAt, now)
			if err != nil {
				return nil, uuid.Nil, err
			}
			return pair, rotated.UserID, nil
		case errors.Is(err, storage.ErrAlreadyExists):
			continue
		case errors.Is(err, storage.ErrNotFound):
			// Токен уже ротирован конкурентным запросом или отозван.
			lg.Warn("refresh_rotate_lost_race",
				slog.String("op", op),
				slog.String("user_id", rec.UserID.String()),
			)
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		default:
			lg.Error("refresh_rotate_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// Revoke удаляет сессию по зашифрованному refresh-токену.
// Нерасшифровываемый токен не ошибка: отзывать просто нечего.
func (m *TokenManager) Revoke(ctx context.Context, encrypted string) (bool, error) {
	const op = "service.token.Revoke"

	plain, err := m.cipher.Decrypt(encrypted)
	if err != nil {
		log.From(ctx).Warn("refresh_decrypt_failed", slog.String("op", op))
		return false, nil
	}

	ok, err := m.tokens.DeleteRefreshToken(ctx, hashToken(plain))
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

// RevokeUser удаляет сессию пользователя, если она есть.
func (m *TokenManager) RevokeUser(ctx context.Context, userID uuid.UUID) error {
	const op = "service.token.RevokeUser"

	if err := m.tokens.DeleteUserRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// pair подписывает access-токен и шифрует refresh-значение для клиента.
func (m *TokenManager) pair(ctx context.Context, userID uuid.UUID, refreshPlain string, refreshExp, now time.Time) (*models.TokenPair, error) {
	access, accessExp, err := m.generateAccessToken(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:      access,
		RefreshToken:     m.cipher.Encrypt(refreshPlain),
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// generateAccessToken генерирует access-токен.
func (m *TokenManager) generateAccessToken(ctx context.Context, userID uuid.UUID, now time.Time) (string, time.Time, error) {
	const op = "service.token.generateAccessToken"

	exp := now.Add(m.cfg.AccessTokenTTL)
	claims := accessClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.cfg.Issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings(m.cfg.Audience),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.JWTSecret))
	if err != nil {
		log.From(ctx).Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp, nil
}

// ValidateAccessToken проверяет подпись, издателя, аудиторию и срок
// access-токена и возвращает идентификатор пользователя.
func (m *TokenManager) ValidateAccessToken(tokenStr string) (uuid.UUID, error) {
	const op = "service.token.ValidateAccessToken"

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(5 * time.Second),
		jwt.WithIssuer(m.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	}
	if len(m.cfg.Audience) > 0 {
		opts = append(opts, jwt.WithAudience(m.cfg.Audience...))
	}

	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			return []byte(m.cfg.JWTSecret), nil
		},
		opts...,
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil || claims.Subject != claims.UserID {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return uid, nil
}
