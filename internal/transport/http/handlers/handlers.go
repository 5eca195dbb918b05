// handlers содержит HTTP-обработчики auth API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-auth-service/internal/models"
	apierrors "github.com/pribylovaa/go-auth-service/internal/transport/http/errors"
)

// RefreshCookie — имя cookie с refresh-токеном.
const RefreshCookie = "refreshToken"

// maxBodyBytes — предел тела запроса.
const maxBodyBytes = 1 << 20

// AuthService — операции сервиса, которые нужны транспорту.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*models.TokenPair, error)
	Login(ctx context.Context, email, password string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) (*models.Message, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	VerifyUser(ctx context.Context, link string) (*models.Message, error)
	ResendVerification(ctx context.Context, email string) (*models.Message, error)
	ForgotPassword(ctx context.Context, email string) (*models.Message, error)
	PasswordReset(ctx context.Context, link, password string) (*models.Message, error)
	ValidateToken(ctx context.Context, accessToken string) (uuid.UUID, error)
}

// Handlers агрегирует зависимости обработчиков.
type Handlers struct {
	svc          AuthService
	secureCookie bool
}

// New создаёт обработчики. secureCookie выставляет флаг Secure
// у cookie с refresh-токеном (везде, кроме env=local).
func New(svc AuthService, secureCookie bool) *Handlers {
	return &Handlers{svc: svc, secureCookie: secureCookie}
}

// writeJSON — единый JSON-ответ с нужным Content-Type.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: неизвестные поля запрещены.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil {
		return fmt.Errorf("%w: malformed json", apierrors.ErrInvalidArgument)
	}

	return nil
}

// decodeOptional — как decodeStrict, но пустое тело допустимо.
func decodeOptional(w http.ResponseWriter, r *http.Request, value any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(value); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: malformed json", apierrors.ErrInvalidArgument)
	}

	return nil
}

// validate оборачивает ошибку валидации в ErrInvalidArgument.
func validate(v interface{ Validate() error }) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %s", apierrors.ErrInvalidArgument, err.Error())
	}

	return nil
}

func (h *Handlers) setRefreshCookie(w http.ResponseWriter, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    value,
		Path:     "/auth",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookie,
		Value:    "",
		Path:     "/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// refreshFrom берёт refresh-токен из тела, иначе из cookie.
func refreshFrom(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}

	if c, err := r.Cookie(RefreshCookie); err == nil {
		return c.Value
	}

	return ""
}
