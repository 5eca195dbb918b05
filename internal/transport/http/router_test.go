package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pribylovaa/go-auth-service/internal/config"
	"github.com/pribylovaa/go-auth-service/internal/mail"
	"github.com/pribylovaa/go-auth-service/internal/service"
	"github.com/pribylovaa/go-auth-service/internal/storage/memory"
	apierrors "github.com/pribylovaa/go-auth-service/internal/transport/http/errors"
	"github.com/pribylovaa/go-auth-service/internal/transport/http/middleware"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) last(t *testing.T, path string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()

	require.NotEmpty(t, o.msgs)
	text := o.msgs[len(o.msgs)-1].Text
	i := strings.Index(text, path)
	require.GreaterOrEqual(t, i, 0)
	return text[i+len(path):]
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{URL: "http://localhost:8080"},
		Auth: config.AuthConfig{
			JWTSecret:       "unit-secret",
			AccessTokenTTL:  time.Minute,
			RefreshTokenTTL: time.Hour,
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

func newServer(t *testing.T, rl *middleware.RateLimiter) (*httptest.Server, *outbox) {
	t.Helper()

	return newServerWith(t, Options{RateLimiter: rl})
}

func newServerWith(t *testing.T, opts Options) (*httptest.Server, *outbox) {
	t.Helper()

	st := memory.New()
	box := &outbox{}
	svc, err := service.New(service.Deps{Users: st, Roles: st, Tokens: st, Mailer: box}, testConfig())
	require.NoError(t, err)

	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	opts.Timeout = 5 * time.Second

	h := NewRouter(svc, opts)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return srv, box
}

type tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func do(t *testing.T, method, url string, body any, cookies ...*http.Cookie) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func refreshCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "refreshToken" {
			return c
		}
	}
	return nil
}

var creds = map[string]string{"email": "alice@example.com", "password": "Abcdef1!"}

func TestRegisterLoginValidate(t *testing.T) {
	srv, box := newServer(t, nil)

	resp := do(t, http.MethodPost, srv.URL+"/auth/registration", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	tk := decode[tokens](t, resp)
	require.NotEmpty(t, tk.AccessToken)

	c := refreshCookie(resp)
	require.NotNil(t, c)
	require.True(t, c.HttpOnly)
	require.Equal(t, tk.RefreshToken, c.Value)
	require.Equal(t, 1, box.len())

	resp = do(t, http.MethodPost, srv.URL+"/auth/login", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	tk = decode[tokens](t, resp)

	resp = do(t, http.MethodPost, srv.URL+"/auth/validate", map[string]string{"accessToken": tk.AccessToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, decode[map[string]string](t, resp)["userId"])
}

func TestRegister_Errors(t *testing.T) {
	srv, _ := newServer(t, nil)

	resp := do(t, http.MethodPost, srv.URL+"/auth/registration", map[string]string{"email": "nope", "password": "Abcdef1!"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decode[apierrors.ErrorResponse](t, resp)
	require.Equal(t, "invalid_argument", env.Error.Code)
	require.Contains(t, env.Error.Message, "email")
	require.NotEmpty(t, env.Error.RequestID)

	resp = do(t, http.MethodPost, srv.URL+"/auth/registration", map[string]string{"email": "a@example.com", "password": "Abcdef1!", "role": "admin"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/auth/registration", creds)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/auth/registration", map[string]string{"email": "ALICE@example.com", "password": "Other123!"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	env = decode[apierrors.ErrorResponse](t, resp)
	require.Equal(t, "Email is not available.", env.Error.Message)
}

func TestLogin_WrongPassword(t *testing.T) {
	srv, _ := newServer(t, nil)

	do(t, http.MethodPost, srv.URL+"/auth/registration", creds)

	resp := do(t, http.MethodPost, srv.URL+"/auth/login", map[string]string{"email": "alice@example.com", "password": "WRONG1!"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	env := decode[apierrors.ErrorResponse](t, resp)
	require.Equal(t, "Incorrect username or password.", env.Error.Message)
}

func TestRefresh_CookieAndBody(t *testing.T) {
	srv, _ := newServer(t, nil)

	resp := do(t, http.MethodPost, srv.URL+"/auth/registration", creds)
	first := refreshCookie(resp)
	require.NotNil(t, first)

	// GET с cookie.
	resp = do(t, http.MethodGet, srv.URL+"/auth/refresh", nil, first)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[tokens](t, resp)
	require.NotEqual(t, first.Value, second.RefreshToken)

	// Старый токен второй раз не ротируется.
	resp = do(t, http.MethodGet, srv.URL+"/auth/refresh", nil, first)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// POST с телом.
	resp = do(t, http.MethodPost, srv.URL+"/auth/refresh", map[string]string{"refreshToken": second.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Без токена вовсе.
	resp = do(t, http.MethodPost, srv.URL+"/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	srv, _ := newServer(t, nil)

	resp := do(t, http.MethodPost, srv.URL+"/auth/registration", creds)
	tk := decode[tokens](t, resp)

	resp = do(t, http.MethodPost, srv.URL+"/auth/logout", map[string]string{"refreshToken": tk.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Logout success.", decode[map[string]string](t, resp)["data"])
	c := refreshCookie(resp)
	require.NotNil(t, c)
	require.Less(t, c.MaxAge, 0)

	resp = do(t, http.MethodPost, srv.URL+"/auth/logout", map[string]string{"refreshToken": tk.RefreshToken})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "Error logout.", decode[apierrors.ErrorResponse](t, resp).Error.Message)
}

func TestVerifyFlow(t *testing.T) {
	srv, box := newServer(t, nil)

	do(t, http.MethodPost, srv.URL+"/auth/registration", creds)
	link := box.last(t, "/auth/verify/")

	resp := do(t, http.MethodGet, srv.URL+"/auth/verify/"+link, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "User has been verified.", decode[map[string]string](t, resp)["data"])

	resp = do(t, http.MethodGet, srv.URL+"/auth/verify/deadbeef", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/auth/verify/resend", map[string]string{"email": "alice@example.com"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "User is already verified.", decode[apierrors.ErrorResponse](t, resp).Error.Message)
}

func TestPasswordResetFlow(t *testing.T) {
	srv, box := newServer(t, nil)

	do(t, http.MethodPost, srv.URL+"/auth/registration", creds)

	resp := do(t, http.MethodPost, srv.URL+"/auth/forgot-password", map[string]string{"email": "nobody@example.com"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, 1, box.len())

	resp = do(t, http.MethodPost, srv.URL+"/auth/forgot-password", map[string]string{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	link := box.last(t, "/auth/password-reset/")

	resp = do(t, http.MethodPost, srv.URL+"/auth/password-reset/"+link, map[string]string{"password": "NewPassw0rd!"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Password has been changed.", decode[map[string]string](t, resp)["data"])

	resp = do(t, http.MethodPost, srv.URL+"/auth/password-reset/"+link, map[string]string{"password": "Again123!"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/auth/login", map[string]string{"email": "alice@example.com", "password": "NewPassw0rd!"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	srv, _ := newServer(t, middleware.NewRateLimiter(1, 1))

	resp := do(t, http.MethodPost, srv.URL+"/auth/login", creds)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/auth/login", creds)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Refresh не лимитируется.
	resp = do(t, http.MethodPost, srv.URL+"/auth/refresh", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// loginFrom отправляет логин с заголовками прокси, подставляя ip.
func loginFrom(t *testing.T, srv *httptest.Server, ip string) int {
	t.Helper()

	b, err := json.Marshal(creds)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/auth/login", bytes.NewReader(b))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Real-IP", ip)
	req.Header.Set("X-Forwarded-For", ip)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	return resp.StatusCode
}

func TestRateLimit_IgnoresProxyHeadersByDefault(t *testing.T) {
	srv, _ := newServerWith(t, Options{RateLimiter: middleware.NewRateLimiter(1, 1)})

	codes := make(map[int]int)
	for i := 0; i < 20; i++ {
		codes[loginFrom(t, srv, fmt.Sprintf("203.0.113.%d", i+1))]++
	}

	require.Equal(t, map[int]int{
		http.StatusUnauthorized:    1,
		http.StatusTooManyRequests: 19,
	}, codes)
}

func TestRateLimit_TrustedProxyHeaders(t *testing.T) {
	srv, _ := newServerWith(t, Options{
		RateLimiter:       middleware.NewRateLimiter(1, 1),
		TrustProxyHeaders: true,
	})

	require.Equal(t, http.StatusUnauthorized, loginFrom(t, srv, "203.0.113.1"))
	require.Equal(t, http.StatusTooManyRequests, loginFrom(t, srv, "203.0.113.1"))
	// За доверенным прокси разные клиенты лимитируются раздельно.
	require.Equal(t, http.StatusUnauthorized, loginFrom(t, srv, "203.0.113.2"))
}
