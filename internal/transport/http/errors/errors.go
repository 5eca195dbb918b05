// errors стандартизирует ответы об ошибках HTTP API.
// На вход принимает ошибку сервиса или транспорта, на выход даёт
// HTTP-статус и безопасное сообщение без утечки внутренних деталей.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/pribylovaa/go-auth-service/internal/cryptox"
	"github.com/pribylovaa/go-auth-service/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

var (
	// ErrInvalidArgument — тело запроса не разбирается или не прошло валидацию.
	ErrInvalidArgument = stderrors.New("invalid argument")
	// ErrRateLimited — клиент превысил лимит запросов.
	ErrRateLimited = stderrors.New("too many requests")
)

// APIError — единый формат ошибки для клиента.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse — корневой объект в ответе.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

func internal() (int, ErrorResponse) {
	return http.StatusInternalServerError, ErrorResponse{
		Error: APIError{Code: "internal", Message: "internal error"},
	}
}

// ToHTTP конвертирует ошибку в HTTP-статус и тело ответа.
//
//   - Unauthorized → 401, Forbidden и Crypto → 403 с сообщением сервиса;
//   - ErrInvalidArgument → 400 с текстом валидации;
//   - ErrRateLimited → 429;
//   - context.DeadlineExceeded → 504, context.Canceled → 499;
//   - прочее (в т.ч. err == nil) → 500 без деталей.
func ToHTTP(err error) (int, ErrorResponse) {
	if err == nil {
		return internal()
	}

	var se *service.Error
	if stderrors.As(err, &se) {
		switch se.Kind {
		case service.KindUnauthorized:
			return http.StatusUnauthorized, ErrorResponse{
				Error: APIError{Code: "unauthenticated", Message: se.Message},
			}
		case service.KindForbidden, service.KindCrypto:
			return http.StatusForbidden, ErrorResponse{
				Error: APIError{Code: "forbidden", Message: se.Message},
			}
		}
	}

	switch {
	case stderrors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest, ErrorResponse{
			Error: APIError{Code: "invalid_argument", Message: err.Error()},
		}
	case stderrors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, ErrorResponse{
			Error: APIError{Code: "rate_limited", Message: "too many requests, slow down"},
		}
	case stderrors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorResponse{
			Error: APIError{Code: "deadline_exceeded", Message: "deadline exceeded"},
		}
	case stderrors.Is(err, context.Canceled):
		return StatusClientClosedRequest, ErrorResponse{
			Error: APIError{Code: "canceled", Message: "canceled"},
		}
	case stderrors.Is(err, cryptox.ErrCrypto):
		return http.StatusForbidden, ErrorResponse{
			Error: APIError{Code: "forbidden", Message: "forbidden"},
		}
	}

	return internal()
}

// WriteError пишет статус и тело ошибки, добавляя request_id из заголовка.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
