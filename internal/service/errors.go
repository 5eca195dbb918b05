package service

import (
	"errors"

	"github.com/pribylovaa/go-auth-service/internal/cryptox"
)

// Kind — класс ошибки сервиса. Транспорт маппит его на свой код ответа;
// сам сервис о транспорте ничего не знает.
type Kind int

const (
	// KindInfrastructure — сбой хранилища, почты или иного коллаборатора.
	KindInfrastructure Kind = iota
	// KindUnauthorized — учётные данные или refresh-токен не прошли проверку.
	KindUnauthorized
	// KindForbidden — запрос нарушает политику (занятый email, плохая ссылка,
	// нет записи, над которой нужно действие).
	KindForbidden
	// KindCrypto — повреждённый шифртекст или неподходящий ключ.
	KindCrypto
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindCrypto:
		return "crypto"
	default:
		return "infrastructure"
	}
}

// Error — ошибка сервиса с видом и сообщением для клиента.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	// ErrInvalidCredentials — неизвестный email, удалённый пользователь или неверный пароль.
	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Message: "Incorrect username or password."}

	// ErrInvalidToken — токен не расшифровывается, не подписан нами,
	// отсутствует в хранилище или уже ротирован.
	ErrInvalidToken = &Error{Kind: KindUnauthorized, Message: "Unauthorized."}

	// ErrTokenExpired — срок действия токена истёк.
	ErrTokenExpired = &Error{Kind: KindUnauthorized, Message: "Token expired."}

	// ErrEmailTaken — e-mail уже занят другим пользователем.
	ErrEmailTaken = &Error{Kind: KindForbidden, Message: "Email is not available."}

	// ErrInvalidLink — ссылка не расшифровывается или выпущена для другого действия.
	ErrInvalidLink = &Error{Kind: KindForbidden, Message: "Invalid link."}

	// ErrLinkExpired — срок действия ссылки истёк.
	ErrLinkExpired = &Error{Kind: KindForbidden, Message: "Link expired."}

	// ErrLinkUsed — одноразовая ссылка уже погашена.
	ErrLinkUsed = &Error{Kind: KindForbidden, Message: "Link has already been used."}

	// ErrUserNotFound — пользователь, на которого указывает запрос, не найден.
	ErrUserNotFound = &Error{Kind: KindForbidden, Message: "User not found."}

	// ErrAlreadyVerified — email пользователя уже подтверждён.
	ErrAlreadyVerified = &Error{Kind: KindForbidden, Message: "User is already verified."}

	// ErrLogoutFailed — нечего отзывать.
	ErrLogoutFailed = &Error{Kind: KindForbidden, Message: "Error logout."}

	// ErrRefreshTokenCollision — исчерпаны попытки сгенерировать уникальный refresh-токен.
	ErrRefreshTokenCollision = &Error{Kind: KindInfrastructure, Message: "refresh token collision"}
)

// KindOf возвращает вид ошибки; всё, что не *Error и не ошибка шифра,
// считается инфраструктурным сбоем.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}

	if errors.Is(err, cryptox.ErrCrypto) {
		return KindCrypto
	}

	return KindInfrastructure
}
