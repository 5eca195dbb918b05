package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pribylovaa/go-auth-service/internal/cache"
	"github.com/pribylovaa/go-auth-service/internal/config"
	"github.com/pribylovaa/go-auth-service/internal/mail"
	"github.com/pribylovaa/go-auth-service/internal/metrics"
	"github.com/pribylovaa/go-auth-service/internal/service"
	transport "github.com/pribylovaa/go-auth-service/internal/transport/http"
	"github.com/pribylovaa/go-auth-service/internal/transport/http/middleware"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	// .env необязателен: в контейнере переменные приходят из окружения.
	_ = godotenv.Load()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("service_failed", slog.String("err", err.Error()))
		rootCancel()
		os.Exit(1)
	}

	log.Info("service_stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	usedLinks, err := openUsedLinks(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = usedLinks.Close() }()

	svc, err := service.New(service.Deps{
		Users:  st.users,
		Roles:  st.roles,
		Tokens: st.tokens,
		Mailer: newMailer(cfg, log),
	}, cfg)
	if err != nil {
		return fmt.Errorf("init service: %w", err)
	}
	svc.SetUsedLinks(usedLinks)
	svc.SetMetrics(m)
	log.Info("service_initialized")

	var ready atomic.Bool

	apiSrv := &http.Server{
		Addr: cfg.HTTP.Addr(),
		Handler: transport.NewRouter(svc, transport.Options{
			Logger:       log,
			Timeout:      cfg.Timeouts.Service,
			Metrics:      m,
			RateLimiter:  middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
			SecureCookie: cfg.Env != envLocal,

			TrustProxyHeaders: cfg.HTTP.TrustProxyHeaders,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	opsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr(),
		Handler:           opsMux(reg, &ready, st.ping),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return serve(log, "http", apiSrv) })
	g.Go(func() error { return serve(log, "ops", opsSrv) })

	// Фоновая очистка просроченных refresh-токенов.
	startRefreshJanitor(gctx, st.tokens, m, log, cfg.Storage.JanitorPeriod)

	ready.Store(true)

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown_requested")
		ready.Store(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
		defer cancel()

		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http_force_stop", slog.String("err", err.Error()))
			_ = apiSrv.Close()
		}
		_ = opsSrv.Shutdown(shutdownCtx)

		return nil
	})

	return g.Wait()
}

func serve(log *slog.Logger, name string, srv *http.Server) error {
	log.Info("listen_start", slog.String("server", name), slog.String("addr", srv.Addr))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}

	return nil
}

// opsMux — служебные ручки: liveness, readiness и метрики.
func opsMux(reg *prometheus.Registry, ready *atomic.Bool, ping func(context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := ping(ctx); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return mux
}

func openUsedLinks(ctx context.Context, cfg *config.Config, log *slog.Logger) (cache.UsedLinks, error) {
	if cfg.Redis.RedisURL == "" {
		log.Info("used_links_memory")
		return cache.NewMemoryUsedLinks(), nil
	}

	rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	u, err := cache.NewRedisUsedLinks(rctx, cfg.Redis.RedisURL, "")
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("redis_connected")

	return u, nil
}

func newMailer(cfg *config.Config, log *slog.Logger) mail.Sender {
	if cfg.Mail.Driver != config.MailSMTP {
		log.Info("mail_driver_log")
		return mail.LogSender{}
	}

	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:        cfg.Mail.Host,
		Port:        cfg.Mail.Port,
		User:        cfg.Mail.User,
		Password:    cfg.Mail.Password,
		From:        cfg.Mail.From,
		ImplicitTLS: cfg.Mail.ImplicitTLS,
	})
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}
