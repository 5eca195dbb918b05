// memory — in-process реализация storage.Storage.
// Используется в тестах и при storage.driver=memory.
// Все операции сериализуются одним мьютексом; наружу отдаются копии.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-auth-service/internal/models"
	"github.com/pribylovaa/go-auth-service/internal/storage"
)

type Storage struct {
	mu sync.Mutex

	users   map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID
	roles   map[string]models.Role

	tokens map[uuid.UUID]models.RefreshToken // по user_id
	byHash map[string]uuid.UUID

	now func() time.Time
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		users:   make(map[uuid.UUID]models.User),
		byEmail: make(map[string]uuid.UUID),
		roles:   make(map[string]models.Role),
		tokens:  make(map[uuid.UUID]models.RefreshToken),
		byHash:  make(map[string]uuid.UUID),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close ничего не делает.
func (s *Storage) Close() {}

func emailKey(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// SaveUser создаёт нового пользователя.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.memory.SaveUser"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	key := emailKey(user.Email)
	if _, ok := s.byEmail[key]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	s.users[user.ID] = *user
	s.byEmail[key] = user.ID

	return nil
}

// UserByEmail находит пользователя по email.
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.memory.UserByEmail"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	u := s.users[id]
	return &u, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.memory.UserByID"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return &u, nil
}

// UpdateUser применяет частичное обновление.
func (s *Storage) UpdateUser(ctx context.Context, id uuid.UUID, upd models.UserUpdate) (*models.User, error) {
	const op = "storage.memory.UpdateUser"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if upd.Verified != nil {
		u.Verified = *upd.Verified
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	u.UpdatedAt = s.now()
	s.users[id] = u

	return &u, nil
}

// RoleByNameOrCreate возвращает роль по имени, создавая её при отсутствии.
func (s *Storage) RoleByNameOrCreate(ctx context.Context, name string) (*models.Role, error) {
	const op = "storage.memory.RoleByNameOrCreate"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.roles[name]
	if !ok {
		r = models.Role{ID: uuid.New(), Name: name, CreatedAt: s.now()}
		s.roles[name] = r
	}

	return &r, nil
}

var _ storage.Storage = (*Storage)(nil)
