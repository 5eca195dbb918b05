package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPObserver принимает наблюдения о завершённых запросах.
type HTTPObserver interface {
	ObserveHTTP(route, method string, code int, d time.Duration)
}

// Metrics считает запросы и их длительность. Метка route — шаблон
// маршрута chi ("/auth/verify/{link}"), чтобы ссылки не раздували кардинальность.
func Metrics(o HTTPObserver) Middleware {
	return func(next http.Handler) http.Handler {
		if o == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			start := time.Now()
			next.ServeHTTP(sw, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
			}

			o.ObserveHTTP(route, r.Method, sw.code(), time.Since(start))
		})
	}
}
