package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pribylovaa/go-auth-service/internal/models"
	"github.com/pribylovaa/go-auth-service/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestIntegration_SaveUser_And_Find_OK(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	u := seedUser(t, st, "alice@example.com")

	got, err := st.UserByEmail(ctx, "Alice@Example.COM")
	require.NoError(t, err, "CITEXT: поиск без учёта регистра")
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, u.RoleID, got.RoleID)
	require.False(t, got.Verified)
	require.False(t, got.Deleted)

	got, err = st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", got.Email)
	require.WithinDuration(t, u.CreatedAt, got.CreatedAt, time.Second)
}

func TestIntegration_SaveUser_UniqueEmail(t *testing.T) {
	st := startPostgres(t)
	u := seedUser(t, st, "bob@example.com")

	dup := *u
	dup.ID = uuid.New()
	dup.Email = "BOB@example.com"

	err := st.SaveUser(context.Background(), &dup)
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestIntegration_User_NotFound(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	_, err := st.UserByEmail(ctx, "missing@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByID(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)

	v := true
	_, err = st.UpdateUser(ctx, uuid.New(), models.UserUpdate{Verified: &v})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_UpdateUser_Partial(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	u := seedUser(t, st, "carol@example.com")

	v := true
	got, err := st.UpdateUser(ctx, u.ID, models.UserUpdate{Verified: &v})
	require.NoError(t, err)
	require.True(t, got.Verified)
	require.Equal(t, "hash", got.PasswordHash)

	h := "new-hash"
	got, err = st.UpdateUser(ctx, u.ID, models.UserUpdate{PasswordHash: &h})
	require.NoError(t, err)
	require.True(t, got.Verified)
	require.Equal(t, "new-hash", got.PasswordHash)
}

func TestIntegration_RoleByNameOrCreate(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	r1, err := st.RoleByNameOrCreate(ctx, "user")
	require.NoError(t, err)
	r2, err := st.RoleByNameOrCreate(ctx, "user")
	require.NoError(t, err)
	require.Equal(t, r1.ID, r2.ID)
}

func TestIntegration_ContextCanceled(t *testing.T) {
	st := startPostgres(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.UserByEmail(ctx, "x@example.com")
	require.ErrorIs(t, err, context.Canceled)
}
