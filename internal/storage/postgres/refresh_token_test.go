package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-auth-service/internal/models"
	"github.com/pribylovaa/go-auth-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_UpsertRefreshToken_InPlace(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	u := seedUser(t, st, "user@example.com")
	exp := time.Now().Add(time.Hour).UTC()

	first, err := st.UpsertRefreshToken(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "h1", ExpiresAt: exp})
	require.NoError(t, err)

	second, err := st.UpsertRefreshToken(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "h2", ExpiresAt: exp.Add(time.Hour)})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "h2", second.TokenHash)

	_, err = st.RefreshTokenByHash(ctx, "h1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	got, err := st.RefreshTokenByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "h2", got.TokenHash)
	require.WithinDuration(t, exp.Add(time.Hour), got.ExpiresAt, time.Second)
}

func TestIntegration_UpsertRefreshToken_HashTaken(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	a := seedUser(t, st, "a@example.com")
	b := seedUser(t, st, "b@example.com")
	exp := time.Now().Add(time.Hour).UTC()

	_, err := st.UpsertRefreshToken(ctx, &models.RefreshToken{UserID: a.ID, TokenHash: "dup", ExpiresAt: exp})
	require.NoError(t, err)

	_, err = st.UpsertRefreshToken(ctx, &models.RefreshToken{UserID: b.ID, TokenHash: "dup", ExpiresAt: exp})
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestIntegration_RotateRefreshToken_ConcurrentExactlyOne(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	u := seedUser(t, st, "race@example.com")
	exp := time.Now().Add(time.Hour).UTC()

	_, err := st.UpsertRefreshToken(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "stale", ExpiresAt: exp})
	require.NoError(t, err)

	const n = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.RotateRefreshToken(ctx, "stale", &models.RefreshToken{TokenHash: uuid.NewString(), ExpiresAt: exp})
			if err == nil {
				wins.Add(1)
				return
			}
			assert.ErrorIs(t, err, storage.ErrNotFound)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
}

func TestIntegration_DeleteRefreshToken(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	u := seedUser(t, st, "del@example.com")

	_, err := st.UpsertRefreshToken(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "h", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	ok, err := st.DeleteRefreshToken(ctx, "h")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.DeleteRefreshToken(ctx, "h")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = st.UpsertRefreshToken(ctx, &models.RefreshToken{UserID: u.ID, TokenHash: "h2", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, st.DeleteUserRefreshToken(ctx, u.ID))

	_, err = st.RefreshTokenByUser(ctx, u.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_DeleteExpiredTokens(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := seedUser(t, st, "old@example.com")
	b := seedUser(t, st, "fresh@example.com")

	_, err := st.UpsertRefreshToken(ctx, &models.RefreshToken{UserID: a.ID, TokenHash: "old", ExpiresAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	_, err = st.UpsertRefreshToken(ctx, &models.RefreshToken{UserID: b.ID, TokenHash: "fresh", ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	n, err := st.DeleteExpiredTokens(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = st.RefreshTokenByHash(ctx, "fresh")
	require.NoError(t, err)
}
