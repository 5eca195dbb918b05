package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pribylovaa/go-auth-service/internal/models"
	apierrors "github.com/pribylovaa/go-auth-service/internal/transport/http/errors"
)

func (h *Handlers) writeTokens(w http.ResponseWriter, status int, pair *models.TokenPair) {
	h.setRefreshCookie(w, pair.RefreshToken, pair.RefreshExpiresAt)
	writeJSON(w, status, tokenResponseFrom(pair))
}

func writeMessage(w http.ResponseWriter, msg *models.Message) {
	writeJSON(w, http.StatusOK, messageResponse{Data: msg.Data})
}

// Registration — POST /auth/registration.
func (h *Handlers) Registration(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := validate(in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, err := h.svc.Register(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.writeTokens(w, http.StatusCreated, pair)
}

// Login — POST /auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := validate(in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	pair, err := h.svc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.writeTokens(w, http.StatusOK, pair)
}

// Logout — POST /auth/logout; токен из тела или cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if err := decodeOptional(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	msg, err := h.svc.Logout(r.Context(), refreshFrom(r, in.RefreshToken))
	// Cookie чистим в любом случае: неотзываемый токен клиенту не нужен.
	h.clearRefreshCookie(w)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeMessage(w, msg)
}

// Refresh — GET|POST /auth/refresh; токен из тела или cookie.
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshRequest
	if r.Method == http.MethodPost {
		if err := decodeOptional(w, r, &in); err != nil {
			apierrors.WriteError(w, r, err)
			return
		}
	}

	pair, err := h.svc.Refresh(r.Context(), refreshFrom(r, in.RefreshToken))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.writeTokens(w, http.StatusOK, pair)
}

// VerifyUser — GET /auth/verify/{link}.
func (h *Handlers) VerifyUser(w http.ResponseWriter, r *http.Request) {
	msg, err := h.svc.VerifyUser(r.Context(), chi.URLParam(r, "link"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeMessage(w, msg)
}

// ResendVerification — POST /auth/verify/resend.
func (h *Handlers) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := validate(in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	msg, err := h.svc.ResendVerification(r.Context(), in.Email)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeMessage(w, msg)
}

// ForgotPassword — POST /auth/forgot-password.
func (h *Handlers) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := validate(in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	msg, err := h.svc.ForgotPassword(r.Context(), in.Email)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeMessage(w, msg)
}

// PasswordReset — POST /auth/password-reset/{link}.
func (h *Handlers) PasswordReset(w http.ResponseWriter, r *http.Request) {
	var in passwordResetRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := validate(in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	msg, err := h.svc.PasswordReset(r.Context(), chi.URLParam(r, "link"), in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.clearRefreshCookie(w)
	writeMessage(w, msg)
}

// ValidateToken — POST /auth/validate.
func (h *Handlers) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var in validateRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}
	if err := validate(in); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	uid, err := h.svc.ValidateToken(r.Context(), in.AccessToken)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, validateResponse{UserID: uid.String()})
}
