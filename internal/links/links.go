// links кодирует ссылки для внеполосных действий (подтверждение email,
// сброс пароля): идентификатор пользователя и тип действия шифруются
// отдельным от refresh-токенов ключом.
package links

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-auth-service/internal/cryptox"
)

// Action — тип действия, для которого выпущена ссылка.
type Action string

const (
	ActionVerify Action = "verify"
	ActionReset  Action = "reset"
)

var (
	// ErrInvalidLink — ссылка не расшифровывается, не разбирается
	// или выпущена для другого действия.
	ErrInvalidLink = errors.New("invalid link")
	// ErrLinkExpired — срок действия ссылки истёк.
	ErrLinkExpired = errors.New("link expired")
)

type payload struct {
	UserID string `json:"uid"`
	Action Action `json:"act"`
	Exp    int64  `json:"exp,omitempty"`
}

// Codec выпускает и разбирает ссылки.
// При ttl == 0 ссылки бессрочны и детерминированы: один и тот же
// пользователь и действие дают одну и ту же ссылку.
type Codec struct {
	cipher *cryptox.Cipher
	ttl    time.Duration
	now    func() time.Time
}

// New создаёт Codec с ключом (32 байта) и IV (16 байт).
func New(key, iv string, ttl time.Duration) (*Codec, error) {
	const op = "links.New"

	c, err := cryptox.New(key, iv)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if ttl < 0 {
		return nil, fmt.Errorf("%s: negative ttl %s", op, ttl)
	}

	return &Codec{cipher: c, ttl: ttl, now: time.Now}, nil
}

// TTL возвращает срок действия выпускаемых ссылок (0 — бессрочно).
func (c *Codec) TTL() time.Duration { return c.ttl }

// Encode выпускает ссылку для пользователя и действия.
func (c *Codec) Encode(userID uuid.UUID, action Action) (string, error) {
	const op = "links.Encode"

	if userID == uuid.Nil {
		return "", fmt.Errorf("%s: nil user id: %w", op, ErrInvalidLink)
	}

	p := payload{UserID: userID.String(), Action: action}
	if c.ttl > 0 {
		p.Exp = c.now().Add(c.ttl).Unix()
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return c.cipher.Encrypt(string(raw)), nil
}

// Decode разбирает ссылку и возвращает идентификатор пользователя.
// Ссылка, выпущенная для другого действия, считается недействительной.
func (c *Codec) Decode(token string, action Action) (uuid.UUID, error) {
	const op = "links.Decode"

	plain, err := c.cipher.Decrypt(token)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidLink)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(plain)))
	dec.DisallowUnknownFields()

	var p payload
	if err := dec.Decode(&p); err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidLink)
	}
	if dec.More() {
		return uuid.Nil, fmt.Errorf("%s: trailing data: %w", op, ErrInvalidLink)
	}

	uid, err := uuid.Parse(p.UserID)
	if err != nil || uid == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidLink)
	}

	if p.Action != action {
		return uuid.Nil, fmt.Errorf("%s: action %q, want %q: %w", op, p.Action, action, ErrInvalidLink)
	}

	if p.Exp != 0 && !c.now().Before(time.Unix(p.Exp, 0)) {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrLinkExpired)
	}

	return uid, nil
}
