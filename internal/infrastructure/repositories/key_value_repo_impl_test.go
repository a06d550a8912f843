package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/internal/domain/repositories"
	"crosspay.backend/internal/infrastructure/models"
	"crosspay.backend/pkg/logger"
	"crosspay.backend/pkg/redis"
)

var (
	_ repositories.KeyValueStore = (*KeyValueRepository)(nil)
	_ repositories.KeyValueStore = (*RedisKeyValueRepository)(nil)
	_ repositories.KeyValueStore = (*MemoryKeyValueRepository)(nil)
)

func exerciseKeyValueStore(t *testing.T, store repositories.KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, domainerrors.ErrNotFound)

	require.NoError(t, store.Set(ctx, "k", `{"a":1}`))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, got)

	require.NoError(t, store.Set(ctx, "k", `{"a":2}`))
	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, got)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	require.ErrorIs(t, err, domainerrors.ErrNotFound)
	require.NoError(t, store.Delete(ctx, "k"))
}

func TestKeyValueRepository_SQLite(t *testing.T) {
	db := newTestDB(t)
	repo := NewKeyValueRepository(db)
	require.NoError(t, repo.AutoMigrate())

	exerciseKeyValueStore(t, repo)
}

func TestKeyValueRepository_RecordsWriter(t *testing.T) {
	db := newTestDB(t)
	repo := NewKeyValueRepository(db)
	require.NoError(t, repo.AutoMigrate())

	ctx := logger.WithAccount(context.Background(), "0xabc")
	require.NoError(t, repo.Set(ctx, "k", "v"))

	var m models.KeyValue
	require.NoError(t, db.Where("storage_key = ?", "k").First(&m).Error)
	assert.True(t, m.UpdatedBy.Valid)
	assert.Equal(t, "0xabc", m.UpdatedBy.String)

	require.NoError(t, repo.Set(context.Background(), "k", "v2"))
	var anonymous models.KeyValue
	require.NoError(t, db.Where("storage_key = ?", "k").First(&anonymous).Error)
	assert.False(t, anonymous.UpdatedBy.Valid)
	assert.Equal(t, "v2", anonymous.Value)

	var nulls int64
	require.NoError(t, db.Model(&models.KeyValue{}).Where("storage_key = ? AND updated_by IS NULL", "k").Count(&nulls).Error)
	assert.Equal(t, int64(1), nulls)

	require.NoError(t, repo.Set(logger.WithAccount(context.Background(), "0xdef"), "k", "v3"))
	var rewritten models.KeyValue
	require.NoError(t, db.Where("storage_key = ?", "k").First(&rewritten).Error)
	assert.Equal(t, "0xdef", rewritten.UpdatedBy.String)
	assert.Equal(t, "v3", rewritten.Value)
}

func TestKeyValueRepository_MissingTable(t *testing.T) {
	repo := NewKeyValueRepository(newTestDB(t))
	_, err := repo.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, errors.Is(err, domainerrors.ErrNotFound))
}

func TestRedisKeyValueRepository_Miniredis(t *testing.T) {
	mr := miniredis.RunT(t)
	orig := redis.GetClient()
	redis.SetClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { redis.SetClient(orig) })

	repo := NewRedisKeyValueRepository()
	exerciseKeyValueStore(t, repo)

	require.NoError(t, repo.Set(context.Background(), "history", "x"))
	assert.True(t, mr.Exists("crosspay:history"))
	assert.Equal(t, time.Duration(0), mr.TTL("crosspay:history"))
}

func TestRedisKeyValueRepository_PropagatesErrors(t *testing.T) {
	origGet, origSet, origDel := getRedisValue, setRedisValue, delRedisValue
	t.Cleanup(func() {
		getRedisValue, setRedisValue, delRedisValue = origGet, origSet, origDel
	})

	boom := errors.New("redis down")
	getRedisValue = func(context.Context, string) (string, error) { return "", boom }
	setRedisValue = func(context.Context, string, interface{}, time.Duration) error { return boom }
	delRedisValue = func(context.Context, string) error { return boom }

	repo := NewRedisKeyValueRepository()
	_, err := repo.Get(context.Background(), "k")
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, repo.Set(context.Background(), "k", "v"), boom)
	require.ErrorIs(t, repo.Delete(context.Background(), "k"), boom)
}

func TestMemoryKeyValueRepository(t *testing.T) {
	exerciseKeyValueStore(t, NewMemoryKeyValueRepository())
}
