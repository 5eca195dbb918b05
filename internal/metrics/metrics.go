// metrics — Prometheus-метрики сервиса на явном реестре.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "auth"

// Metrics — набор коллекторов сервиса.
type Metrics struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	authEvents     *prometheus.CounterVec
	janitorDeleted prometheus.Counter
}

// New создаёт и регистрирует коллекторы в reg.
// Вместе с ними регистрируются стандартные Go- и process-коллекторы.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Authentication operations by name and outcome.",
		}, []string{"op", "outcome"}),
		janitorDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "janitor_deleted_tokens_total",
			Help:      "Expired refresh tokens removed by the janitor.",
		}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.authEvents,
		m.janitorDeleted,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ObserveHTTP учитывает завершённый HTTP-запрос.
func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// AuthEvent учитывает исход операции сервиса (op — имя операции,
// outcome — "ok" или вид ошибки).
func (m *Metrics) AuthEvent(op, outcome string) {
	m.authEvents.WithLabelValues(op, outcome).Inc()
}

// JanitorDeleted учитывает удалённые просроченные токены.
func (m *Metrics) JanitorDeleted(n int64) {
	if n > 0 {
		m.janitorDeleted.Add(float64(n))
	}
}
