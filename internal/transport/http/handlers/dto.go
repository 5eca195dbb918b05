package handlers

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/pribylovaa/go-auth-service/internal/models"
)

// bcrypt учитывает только первые 72 байта пароля.
const maxPasswordBytes = 72

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r registerRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, maxPasswordBytes)),
	)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254)),
		validation.Field(&r.Password, validation.Required, validation.Length(1, maxPasswordBytes)),
	)
}

type emailRequest struct {
	Email string `json:"email"`
}

func (r emailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
	)
}

type passwordResetRequest struct {
	Password string `json:"password"`
}

func (r passwordResetRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required, validation.Length(6, maxPasswordBytes)),
	)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type validateRequest struct {
	AccessToken string `json:"accessToken"`
}

func (r validateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AccessToken, validation.Required),
	)
}

type tokenResponse struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

func tokenResponseFrom(p *models.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

type messageResponse struct {
	Data string `json:"data"`
}

type validateResponse struct {
	UserID string `json:"userId"`
}
