package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"signalflow/internal/config"
	"signalflow/internal/models"
)

// RedisStore keeps fetched candle sequences in redis so several instances
// share upstream quota.
type RedisStore struct {
	client *redis.Client
	prefix string
}

type redisPayload struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Candles   []models.Candle `json:"candles"`
}

func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "signalflow:candles"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (r *RedisStore) key(symbol string, tf models.Timeframe) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, symbol, tf)
}

func (r *RedisStore) Get(ctx context.Context, symbol string, tf models.Timeframe) ([]models.Candle, time.Time, bool, error) {
	if r == nil || r.client == nil {
		return nil, time.Time{}, false, nil
	}
	data, err := r.client.Get(ctx, r.key(symbol, tf)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, err
	}
	var payload redisPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, time.Time{}, false, err
	}
	return payload.Candles, payload.FetchedAt, len(payload.Candles) > 0, nil
}

func (r *RedisStore) Put(ctx context.Context, symbol string, tf models.Timeframe, candles []models.Candle, fetchedAt time.Time, ttl time.Duration) error {
	if r == nil || r.client == nil {
		return nil
	}
	data, err := json.Marshal(redisPayload{FetchedAt: fetchedAt, Candles: candles})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(symbol, tf), data, ttl).Err()
}

func (r *RedisStore) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
