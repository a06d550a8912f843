package repositories

import (
	"context"
	"errors"

	goredis "github.com/redis/go-redis/v9"

	domainerrors "crosspay.backend/internal/domain/errors"
	"crosspay.backend/pkg/redis"
)

const redisKeyPrefix = "crosspay:"

var (
	setRedisValue = redis.Set
	getRedisValue = redis.Get
	delRedisValue = redis.Del
)

// RedisKeyValueRepository implements repositories.KeyValueStore on the shared redis client
type RedisKeyValueRepository struct{}

// NewRedisKeyValueRepository creates a redis-backed key-value repository.
// redis.Init or redis.SetClient must run first.
func NewRedisKeyValueRepository() *RedisKeyValueRepository {
	return &RedisKeyValueRepository{}
}

func (r *RedisKeyValueRepository) Get(ctx context.Context, key string) (string, error) {
	value, err := getRedisValue(ctx, redisKeyPrefix+key)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", domainerrors.ErrNotFound
		}
		return "", err
	}
	return value, nil
}

func (r *RedisKeyValueRepository) Set(ctx context.Context, key, value string) error {
	// no expiration: history is retained until cleared explicitly
	return setRedisValue(ctx, redisKeyPrefix+key, value, 0)
}

func (r *RedisKeyValueRepository) Delete(ctx context.Context, key string) error {
	return delRedisValue(ctx, redisKeyPrefix+key)
}
