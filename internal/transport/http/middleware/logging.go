package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/pribylovaa/go-auth-service/internal/pkg/log"
)

// Logging кладёт request-scoped логгер в контекст и пишет одну запись
// на запрос. 5xx логируются как Error, 4xx как Warn.
func Logging(l *slog.Logger) Middleware {
	if l == nil {
		l = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := l
			if rid := r.Header.Get("X-Request-Id"); rid != "" {
				reqLogger = reqLogger.With(slog.String("request_id", rid))
			}
			r = r.WithContext(log.Into(r.Context(), reqLogger))

			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			lvl := slog.LevelInfo
			switch code := sw.code(); {
			case code >= http.StatusInternalServerError:
				lvl = slog.LevelError
			case code >= http.StatusBadRequest:
				lvl = slog.LevelWarn
			}

			log.From(r.Context()).LogAttrs(r.Context(), lvl, "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("peer", r.RemoteAddr),
				slog.Int("status", sw.code()),
				slog.Duration("dur", time.Since(start)),
				slog.Int("bytes", sw.count),
			)
		})
	}
}
