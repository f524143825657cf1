package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dashboardKey = "stock:dashboard"

type RedisClient struct {
	client *redis.Client
	log    *zap.Logger
	ttl    time.Duration
}

func NewRedisClient(addr, password string, db int, ttl time.Duration, log *zap.Logger) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis connected successfully", zap.String("addr", addr))

	return &RedisClient{
		client: rdb,
		log:    log,
		ttl:    ttl,
	}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Кэш счётчиков дашборда (мало остатков / нет в наличии)
func (r *RedisClient) GetDashboard(ctx context.Context) ([]byte, bool, error) {
	b, err := r.client.Get(ctx, dashboardKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisClient) SetDashboard(ctx context.Context, data []byte) error {
	return r.client.Set(ctx, dashboardKey, data, r.ttl).Err()
}

func (r *RedisClient) InvalidateDashboard(ctx context.Context) error {
	return r.client.Del(ctx, dashboardKey).Err()
}
