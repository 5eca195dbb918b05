package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-auth-service/internal/models"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Интеграционные тесты пакета postgres:
// - поднимают PostgreSQL через testcontainers-go (образ postgres:16-alpine);
// - применяют встроенные миграции через Migrate (goose);
// - проверяют пользователей, роли и refresh-токены, включая гонку ротаций.
//
// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/storage/postgres -v -race -count=1

// startPostgres поднимает временный PostgreSQL, применяет миграции и
// возвращает хранилище. Без GO_TEST_INTEGRATION тест пропускается.
func startPostgres(t *testing.T) *Storage {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	require.NoError(t, Migrate(ctx, dsn))

	st, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	return st
}

// seedUser создаёт пользователя с ролью по умолчанию.
func seedUser(t *testing.T, st *Storage, email string) *models.User {
	t.Helper()
	ctx := context.Background()

	role, err := st.RoleByNameOrCreate(ctx, models.DefaultRoleName)
	require.NoError(t, err)

	now := time.Now().UTC()
	u := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "hash",
		RoleID:       role.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.SaveUser(ctx, u))
	return u
}

func TestIntegration_Migrate_Idempotent(t *testing.T) {
	st := startPostgres(t)
	require.NoError(t, st.Ping(context.Background()))
}
