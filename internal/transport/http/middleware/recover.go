package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/pribylovaa/go-auth-service/internal/pkg/log"
	apierrors "github.com/pribylovaa/go-auth-service/internal/transport/http/errors"
)

// Recover превращает panic в 500/internal. Детали паники клиенту не уходят.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}

					log.From(r.Context()).LogAttrs(r.Context(), slog.LevelError, "panic",
						slog.String("path", r.URL.Path),
						slog.Any("reason", rec),
						slog.String("stack", string(debug.Stack())),
					)
					apierrors.WriteError(w, r, fmt.Errorf("panic: %v", rec))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
