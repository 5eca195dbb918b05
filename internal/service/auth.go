package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-auth-service/internal/links"
	"github.com/pribylovaa/go-auth-service/internal/mail"
	"github.com/pribylovaa/go-auth-service/internal/models"
	"github.com/pribylovaa/go-auth-service/internal/pkg/log"
	"github.com/pribylovaa/go-auth-service/internal/pkg/redact"
	"github.com/pribylovaa/go-auth-service/internal/storage"
)

const (
	msgLogout       = "Logout success."
	msgVerified     = "User has been verified."
	msgResetSent    = "Email for reset password sent."
	msgPasswordSet  = "Password has been changed."
	msgVerifyResent = "Verification email sent."
)

// deterministicMarkTTL — срок отметки о погашении для ссылок без TTL.
const deterministicMarkTTL = time.Hour

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register создаёт пользователя с ролью по умолчанию, выпускает пару
// токенов и отправляет письмо подтверждения.
// Пользователь и токены не откатываются, если письмо не ушло:
// ошибка почты логируется, повторная отправка — ResendVerification.
func (s *Service) Register(ctx context.Context, email, password string) (_ *models.TokenPair, err error) {
	const op = "service.auth.Register"
	defer s.observe("register", &err)

	email = normalizeEmail(email)
	lg := log.From(ctx).With(slog.String("email", redact.Email(email)))

	_, err = s.users.UserByEmail(ctx, email)
	switch {
	case err == nil:
		lg.Warn("register_email_taken", slog.String("op", op))
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	case !errors.Is(err, storage.ErrNotFound):
		lg.Error("register_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	role, err := s.roles.RoleByNameOrCreate(ctx, models.DefaultRoleName)
	if err != nil {
		lg.Error("register_role_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		lg.Error("password_hash_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		RoleID:       role.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err = s.users.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Конкурентная регистрация с тем же email.
			lg.Warn("register_email_taken", slog.String("op", op))
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		lg.Error("save_user_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.tokens.IssueTokenPair(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if mailErr := s.sendVerification(ctx, user); mailErr != nil {
		s.metrics.AuthEvent("verification_mail", "failed")
		lg.Error("verification_mail_failed",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
			slog.String("err", mailErr.Error()),
		)
	}

	lg.Info("user_registered", slog.String("user_id", user.ID.String()))

	return pair, nil
}

// Login проверяет учётные данные и выпускает новую пару токенов.
// Неизвестный email, удалённый пользователь и неверный пароль
// неразличимы для клиента.
func (s *Service) Login(ctx context.Context, email, password string) (_ *models.TokenPair, err error) {
	const op = "service.auth.Login"
	defer s.observe("login", &err)

	email = normalizeEmail(email)
	lg := log.From(ctx).With(slog.String("email", redact.Email(email)))

	user, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("login_unknown_email", slog.String("op", op))
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		lg.Error("login_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if user.Deleted || !s.hasher.Compare(user.PasswordHash, password) {
		lg.Warn("login_invalid_credentials",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.tokens.IssueTokenPair(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("user_logged_in", slog.String("user_id", user.ID.String()))

	return pair, nil
}

// Logout отзывает сессию по refresh-токену.
func (s *Service) Logout(ctx context.Context, refreshToken string) (_ *models.Message, err error) {
	const op = "service.auth.Logout"
	defer s.observe("logout", &err)

	if refreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrLogoutFailed)
	}

	ok, err := s.tokens.Revoke(ctx, refreshToken)
	if err != nil {
		log.From(ctx).Error("logout_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !ok {
		log.From(ctx).Warn("logout_nothing_revoked",
			slog.String("op", op),
			slog.String("token", redact.Fingerprint(refreshToken)),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrLogoutFailed)
	}

	return &models.Message{Data: msgLogout}, nil
}

// Refresh ротирует пару токенов.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (_ *models.TokenPair, err error) {
	const op = "service.auth.Refresh"
	defer s.observe("refresh", &err)

	if refreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	pair, userID, err := s.tokens.RotateTokenPair(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Debug("token_refreshed", slog.String("user_id", userID.String()))

	return pair, nil
}

// VerifyUser подтверждает email по ссылке из письма. Повторное
// подтверждение уже подтверждённого пользователя успешно.
func (s *Service) VerifyUser(ctx context.Context, link string) (_ *models.Message, err error) {
	const op = "service.auth.VerifyUser"
	defer s.observe("verify", &err)

	userID, err := s.decodeLink(ctx, link, links.ActionVerify)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err = s.activeUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	verified := true
	if _, err = s.users.UpdateUser(ctx, userID, models.UserUpdate{Verified: &verified}); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		log.From(ctx).Error("verify_update_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_verified", slog.String("user_id", userID.String()))

	return &models.Message{Data: msgVerified}, nil
}

// ResendVerification повторно отправляет письмо подтверждения.
func (s *Service) ResendVerification(ctx context.Context, email string) (_ *models.Message, err error) {
	const op = "service.auth.ResendVerification"
	defer s.observe("resend_verification", &err)

	user, err := s.userByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if user.Verified {
		return nil, fmt.Errorf("%s: %w", op, ErrAlreadyVerified)
	}

	if err = s.sendVerification(ctx, user); err != nil {
		log.From(ctx).Error("verification_mail_failed",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.Message{Data: msgVerifyResent}, nil
}

// ForgotPassword отправляет письмо со ссылкой сброса пароля.
// Для неизвестного email письмо не отправляется.
func (s *Service) ForgotPassword(ctx context.Context, email string) (_ *models.Message, err error) {
	const op = "service.auth.ForgotPassword"
	defer s.observe("forgot_password", &err)

	user, err := s.userByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	link, err := s.links.Encode(user.ID, links.ActionReset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	msg, err := mail.PasswordResetMessage(user.Email, s.appURL+"/auth/password-reset/"+link)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = s.mailer.Send(ctx, msg); err != nil {
		log.From(ctx).Error("reset_mail_failed",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.Message{Data: msgResetSent}, nil
}

// PasswordReset устанавливает новый пароль по ссылке из письма.
// Ссылка одноразовая, сессия пользователя после сброса отзывается.
func (s *Service) PasswordReset(ctx context.Context, link, password string) (_ *models.Message, err error) {
	const op = "service.auth.PasswordReset"
	defer s.observe("password_reset", &err)

	userID, err := s.decodeLink(ctx, link, links.ActionReset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	key := s.usedLinkKey(link, user.PasswordHash)

	fresh, err := s.usedLinks.MarkUsed(ctx, key, s.usedLinkTTL())
	if err != nil {
		log.From(ctx).Error("mark_link_used_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !fresh {
		log.From(ctx).Warn("reset_link_reused",
			slog.String("op", op),
			slog.String("user_id", userID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrLinkUsed)
	}

	if _, err = s.users.UpdateUser(ctx, userID, models.UserUpdate{PasswordHash: &hash}); err != nil {
		// Пароль не сменился: ссылка остаётся пригодной для повтора.
		if rerr := s.usedLinks.Release(context.WithoutCancel(ctx), key); rerr != nil {
			log.From(ctx).Error("release_link_failed",
				slog.String("op", op),
				slog.String("err", rerr.Error()),
			)
		}

		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err = s.tokens.RevokeUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("password_changed", slog.String("user_id", userID.String()))

	return &models.Message{Data: msgPasswordSet}, nil
}

// ValidateToken проверяет access-токен и возвращает идентификатор пользователя.
func (s *Service) ValidateToken(ctx context.Context, accessToken string) (_ uuid.UUID, err error) {
	const op = "service.auth.ValidateToken"
	defer s.observe("validate", &err)

	uid, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		log.From(ctx).Debug("access_token_rejected",
			slog.String("op", op),
			slog.String("token", redact.Fingerprint(accessToken)),
		)
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return uid, nil
}

func (s *Service) sendVerification(ctx context.Context, user *models.User) error {
	link, err := s.links.Encode(user.ID, links.ActionVerify)
	if err != nil {
		return err
	}

	msg, err := mail.VerificationMessage(user.Email, s.appURL+"/auth/verify/"+link)
	if err != nil {
		return err
	}

	return s.mailer.Send(ctx, msg)
}

// decodeLink переводит ошибки кодека ссылок в ошибки сервиса.
func (s *Service) decodeLink(ctx context.Context, link string, action links.Action) (uuid.UUID, error) {
	uid, err := s.links.Decode(link, action)
	switch {
	case err == nil:
		return uid, nil
	case errors.Is(err, links.ErrLinkExpired):
		log.From(ctx).Warn("link_expired", slog.String("action", string(action)))
		return uuid.Nil, ErrLinkExpired
	default:
		log.From(ctx).Warn("link_invalid", slog.String("action", string(action)))
		return uuid.Nil, ErrInvalidLink
	}
}

func (s *Service) userByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if user.Deleted {
		return nil, ErrUserNotFound
	}

	return user, nil
}

func (s *Service) activeUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if user.Deleted {
		return nil, ErrUserNotFound
	}

	return user, nil
}

// usedLinkKey — ключ отметки о погашении ссылки.
// Бессрочные ссылки детерминированы: новая ссылка совпадает со старой,
// поэтому отметка привязывается к текущему хэшу пароля. После смены
// пароля ключ уже не совпадёт, и та же ссылка снова пригодна.
func (s *Service) usedLinkKey(link, passwordHash string) string {
	material := link
	if s.links.TTL() == 0 {
		material += "|" + passwordHash
	}

	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

// usedLinkTTL — время жизни отметки. Для бессрочных ссылок отметка нужна
// только пока не сменился хэш пароля, поэтому хватает deterministicMarkTTL.
func (s *Service) usedLinkTTL() time.Duration {
	if ttl := s.links.TTL(); ttl > 0 {
		return ttl
	}

	return deterministicMarkTTL
}
