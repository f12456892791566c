package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/referral-swap/internal/constants"
	"github.com/aman-zulfiqar/referral-swap/internal/models"
	"github.com/aman-zulfiqar/referral-swap/internal/storage"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient opens a client and pings it.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// RedisKV is a storage.GuardedStore over Redis strings. Commit runs every
// op in one MULTI/EXEC so a batch lands all-or-nothing; CommitIf also
// WATCHes the batch's read set so replicas sharing the keys cannot
// overwrite each other's updates.
type RedisKV struct {
	client *redis.Client
	prefix string
}

func NewRedisKV(client *redis.Client, prefix string) *RedisKV {
	return &RedisKV{client: client, prefix: prefix}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return b, nil
}

func (r *RedisKV) Commit(ctx context.Context, ops []storage.Op) error {
	if len(ops) == 0 {
		return nil
	}
	if _, err := r.client.TxPipelined(ctx, r.queue(ctx, ops)); err != nil {
		return fmt.Errorf("redis commit %d ops: %w", len(ops), err)
	}
	return nil
}

func (r *RedisKV) CommitIf(ctx context.Context, reads []storage.Read, ops []storage.Op) error {
	if len(reads) == 0 {
		return r.Commit(ctx, ops)
	}
	if len(ops) == 0 {
		return nil
	}

	keys := make([]string, len(reads))
	for i, rd := range reads {
		keys[i] = r.prefix + rd.Key
	}

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for i, rd := range reads {
			cur, found := vals[i].(string)
			if found != rd.Found || (found && cur != string(rd.Value)) {
				return fmt.Errorf("%w: %s", storage.ErrConflict, rd.Key)
			}
		}
		_, err = tx.TxPipelined(ctx, r.queue(ctx, ops))
		return err
	}, keys...)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return storage.ErrConflict
	case errors.Is(err, storage.ErrConflict):
		return err
	default:
		return fmt.Errorf("redis commit %d ops: %w", len(ops), err)
	}
}

func (r *RedisKV) queue(ctx context.Context, ops []storage.Op) func(redis.Pipeliner) error {
	return func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			if op.Delete {
				pipe.Del(ctx, r.prefix+op.Key)
				continue
			}
			pipe.Set(ctx, r.prefix+op.Key, op.Value, 0)
		}
		return nil
	}
}

func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close is a no-op; the client is shared and closed by its owner.
func (r *RedisKV) Close() error {
	return nil
}

// RedisCache keeps the most recent swaps for the API.
type RedisCache struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisCache(client *redis.Client, logger *logrus.Logger) *RedisCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisCache{client: client, logger: logger}
}

// AddRecentSwap pushes swap onto the recent list and trims it.
func (r *RedisCache) AddRecentSwap(ctx context.Context, swap *models.SwapEvent) error {
	data, err := json.Marshal(swap)
	if err != nil {
		return fmt.Errorf("marshal swap: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, constants.RedisKeyRecentSwaps, data)
	pipe.LTrim(ctx, constants.RedisKeyRecentSwaps, 0, constants.MaxRecentSwaps-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add recent swap: %w", err)
	}
	return nil
}

// RecentSwaps returns up to limit swaps, newest first.
func (r *RedisCache) RecentSwaps(ctx context.Context, limit int) ([]*models.SwapEvent, error) {
	if limit <= 0 || limit > constants.MaxRecentSwaps {
		limit = constants.MaxRecentSwaps
	}
	raw, err := r.client.LRange(ctx, constants.RedisKeyRecentSwaps, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("recent swaps: %w", err)
	}

	out := make([]*models.SwapEvent, 0, len(raw))
	for _, s := range raw {
		var ev models.SwapEvent
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			r.logger.WithError(err).Warn("skipping malformed recent swap")
			continue
		}
		out = append(out, &ev)
	}
	return out, nil
}
