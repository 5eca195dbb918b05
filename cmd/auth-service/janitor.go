package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pribylovaa/go-auth-service/internal/storage"
)

// janitorMetrics — учёт удалённых записей.
type janitorMetrics interface {
	JanitorDeleted(n int64)
}

// startRefreshJanitor запускает фоновую задачу, которая периодически удаляет
// просроченные refresh-токены из хранилища.
func startRefreshJanitor(ctx context.Context, tokens storage.RefreshTokenStorage, m janitorMetrics, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	go func() {
		t := time.NewTicker(period)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				sweepExpired(ctx, tokens, m, log)
			}
		}
	}()
}

func sweepExpired(ctx context.Context, tokens storage.RefreshTokenStorage, m janitorMetrics, log *slog.Logger) {
	n, err := tokens.DeleteExpiredTokens(ctx, time.Now().UTC())
	if err != nil {
		log.Error("refresh_janitor_failed", slog.String("err", err.Error()))
		return
	}

	m.JanitorDeleted(n)
	if n > 0 {
		log.Info("refresh_janitor_swept", slog.Int64("deleted", n))
	}
}
