// Package bootstrap wires config into the concrete backends shared by the
// cmd binaries.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/referral-swap/internal/cache"
	"github.com/aman-zulfiqar/referral-swap/internal/config"
	"github.com/aman-zulfiqar/referral-swap/internal/constants"
	"github.com/aman-zulfiqar/referral-swap/internal/referral"
	"github.com/aman-zulfiqar/referral-swap/internal/storage"
)

// LoadEnv loads .env from the project root (where go.mod is). Missing files
// are fine; the process environment still applies.
func LoadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		if logger != nil {
			logger.Debugf("no .env file found at %s, using system environment variables", envPath)
		}
		return
	}
	if logger != nil {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// NewLogger returns a text logger at the given level, falling back to info.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// Redis connects lazily: the client is opened on first use and shared.
type Redis struct {
	cfg    *config.Config
	client *redis.Client
}

func NewRedis(cfg *config.Config) *Redis {
	return &Redis{cfg: cfg}
}

func (r *Redis) Client(ctx context.Context) (*redis.Client, error) {
	if r.client != nil {
		return r.client, nil
	}
	c, err := cache.NewRedisClient(ctx, cache.RedisConfig{
		Addr:     r.cfg.RedisAddr,
		Password: r.cfg.RedisPassword,
		DB:       r.cfg.RedisDB,
	})
	if err != nil {
		return nil, err
	}
	r.client = c
	return c, nil
}

// Close closes the client if one was opened.
func (r *Redis) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// OpenStore opens the engine state backend named by STORE_BACKEND.
func OpenStore(ctx context.Context, cfg *config.Config, rds *Redis) (storage.Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return storage.NewMemStore(), nil
	case config.BackendLevelDB:
		if err := os.MkdirAll(filepath.Dir(cfg.LevelDBPath), 0o755); err != nil {
			return nil, fmt.Errorf("create leveldb dir: %w", err)
		}
		return storage.NewLevelDB(cfg.LevelDBPath)
	case config.BackendRedis:
		client, err := rds.Client(ctx)
		if err != nil {
			return nil, err
		}
		return cache.NewRedisKV(client, constants.RedisKeyStatePrefix), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// OpenReferrals returns the oracle named by REFERRAL_BACKEND and, for the
// backends this process owns, the writable registry. The http backend
// returns a nil registry.
func OpenReferrals(ctx context.Context, cfg *config.Config, rds *Redis, logger *logrus.Logger) (referral.Oracle, referral.Registry, error) {
	switch cfg.ReferralBackend {
	case config.BackendMemory:
		reg := referral.NewMemoryRegistry()
		return reg, reg, nil
	case config.BackendRedis:
		client, err := rds.Client(ctx)
		if err != nil {
			return nil, nil, err
		}
		reg, err := referral.NewRedisRegistry(client)
		if err != nil {
			return nil, nil, err
		}
		return reg, reg, nil
	case config.BackendHTTP:
		c, err := referral.NewClient(referral.ClientConfig{
			BaseURL:      cfg.ReferralURL,
			APIKey:       cfg.ReferralAPIKey,
			Timeout:      cfg.HTTPTimeout,
			MaxRetries:   cfg.MaxRetries,
			RetryBackoff: cfg.RetryBackoff,
			Logger:       logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return c, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown referral backend %q", cfg.ReferralBackend)
	}
}

// OpenHistory connects to ClickHouse and makes sure the swaps table exists.
func OpenHistory(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*cache.ClickHouseStore, error) {
	ch, err := cache.NewClickHouseStore(ctx, cache.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr,
		Database: cfg.ClickHouseDatabase,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	if err := ch.EnsureSchema(ctx); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}
