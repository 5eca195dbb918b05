package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pribylovaa/go-auth-service/internal/pkg/log"
	apierrors "github.com/pribylovaa/go-auth-service/internal/transport/http/errors"
	"golang.org/x/time/rate"
)

// RateLimiter ограничивает частоту запросов с одного IP.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	window  time.Duration
	now     func() time.Time
	mu      sync.Mutex
	clients map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter создаёт лимитер на requestsPerMinute запросов в минуту.
// requestsPerMinute <= 0 отключает ограничение (возвращается nil).
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   burst,
		window:  5 * time.Minute,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

// Handler возвращает мидлвар; для nil-лимитера — no-op.
func (rl *RateLimiter) Handler() Middleware {
	return func(next http.Handler) http.Handler {
		if rl == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			if !rl.limiterFor(key).Allow() {
				log.From(r.Context()).Warn("rate_limited",
					slog.String("peer", key),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "60")
				apierrors.WriteError(w, r, apierrors.ErrRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.clients[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.clients[key] = &clientLimiter{limiter: limiter, lastSeen: now}
	rl.cleanupLocked(now)

	return limiter
}

func (rl *RateLimiter) cleanupLocked(now time.Time) {
	for key, entry := range rl.clients {
		if now.Sub(entry.lastSeen) > rl.window {
			delete(rl.clients, key)
		}
	}
}

// clientIP — хост из RemoteAddr. Заголовки прокси учитываются, только если
// роутер включил RealIP.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
