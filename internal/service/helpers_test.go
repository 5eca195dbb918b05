package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pribylovaa/go-auth-service/internal/config"
	"github.com/pribylovaa/go-auth-service/internal/mail"
	"github.com/pribylovaa/go-auth-service/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{URL: "http://localhost:8080"},
		Auth: config.AuthConfig{
			JWTSecret:       "unit-secret",
			AccessTokenTTL:  30 * time.Second,
			RefreshTokenTTL: 24 * time.Hour,
			RefreshSecret:   "0123456789abcdef0123456789abcdef",
			RefreshIV:       "abcdef9876543210",
			Issuer:          "auth-service",
			Audience:        []string{"api-gateway"},
			BcryptCost:      4,
		},
		Links: config.LinksConfig{
			Secret: "fedcba9876543210fedcba9876543210",
			IV:     "0123456789abcdef",
			TTL:    time.Hour,
		},
	}
}

// captureSender запоминает отправленные письма.
type captureSender struct {
	mu   sync.Mutex
	msgs []mail.Message
	err  error
}

func (c *captureSender) Send(_ context.Context, msg mail.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msg)

	return nil
}

func (c *captureSender) sent() []mail.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]mail.Message(nil), c.msgs...)
}

// linkFrom извлекает ссылку из текста письма по префиксу пути.
func linkFrom(t *testing.T, msg mail.Message, path string) string {
	t.Helper()

	i := strings.Index(msg.Text, path)
	require.GreaterOrEqual(t, i, 0, "path %q not found in %q", path, msg.Text)

	return msg.Text[i+len(path):]
}

func newMemSvc(t *testing.T) (*Service, *memory.Storage, *captureSender) {
	t.Helper()

	st := memory.New()
	sender := &captureSender{}

	svc, err := New(Deps{Users: st, Roles: st, Tokens: st, Mailer: sender}, testConfig())
	require.NoError(t, err)

	return svc, st, sender
}

var errDBDown = errors.New("db down")
