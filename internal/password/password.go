// password скрывает алгоритм хэширования паролей за интерфейсом Hasher:
// сервис получает только хэш и результат сравнения.
package password

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hasher — односторонний адаптивный хэш паролей.
type Hasher interface {
	// Hash возвращает хэш пароля.
	Hash(plain string) (string, error)
	// Compare сообщает, соответствует ли пароль хэшу.
	Compare(hash, plain string) bool
}

// Bcrypt — реализация Hasher на bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt создаёт Hasher с заданной стоимостью.
// Значения вне [bcrypt.MinCost, bcrypt.MaxCost] заменяются на bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	return &Bcrypt{cost: cost}
}

// Hash хэширует пароль с помощью bcrypt.
func (b *Bcrypt) Hash(plain string) (string, error) {
	const op = "password.Bcrypt.Hash"

	h, err := bcrypt.GenerateFromPassword([]byte(plain), b.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(h), nil
}

// Compare сравнивает пароль с хэшем.
func (b *Bcrypt) Compare(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

var _ Hasher = (*Bcrypt)(nil)
