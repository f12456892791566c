package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aman-zulfiqar/referral-swap/internal/constants"
	"github.com/aman-zulfiqar/referral-swap/internal/leaderboard"
	"github.com/aman-zulfiqar/referral-swap/internal/num"
	"github.com/aman-zulfiqar/referral-swap/internal/swapengine"
)

// Backends
const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendRedis   = "redis"
	BackendHTTP    = "http"
)

type Config struct {
	// API settings
	APIAddr  string
	APIKey   string
	DevMode  bool
	LogLevel string

	// Engine state
	StoreBackend string
	LevelDBPath  string

	// Referral oracle
	ReferralBackend string
	ReferralURL     string
	ReferralAPIKey  string

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ClickHouse settings
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// Post-commit delivery
	PublishEvents bool
	RecordHistory bool

	// HTTP client settings
	HTTPTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration

	// Swap parameters
	SwapStartTime       time.Time // zero means process start
	SwapDuration        time.Duration
	SwapStartRate       string
	SwapEndRate         string
	MinSwapAmount       string
	InitialSupply       string
	InputDecimals       int
	OutputDecimals      int
	ReferralBonusBPS    int
	SafetyCapBPS        int
	LeaderboardCapacity int

	// AI
	OpenRouterAPIKey string
	AIModel          string
}

func Load() *Config {
	return &Config{
		// API
		APIAddr:  getEnv("API_ADDR", ":8090"),
		APIKey:   getEnv("API_KEY", ""),
		DevMode:  getBoolEnv("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// State
		StoreBackend: getEnv("STORE_BACKEND", BackendLevelDB),
		LevelDBPath:  getEnv("LEVELDB_PATH", "data/state"),

		// Referral
		ReferralBackend: getEnv("REFERRAL_BACKEND", BackendRedis),
		ReferralURL:     getEnv("REFERRAL_URL", ""),
		ReferralAPIKey:  getEnv("REFERRAL_API_KEY", ""),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// ClickHouse
		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", "localhost:9000"),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "referral"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		PublishEvents: getBoolEnv("PUBLISH_EVENTS", true),
		RecordHistory: getBoolEnv("RECORD_HISTORY", false),

		// HTTP
		HTTPTimeout:  getDurationEnv("HTTP_TIMEOUT", 30*time.Second),
		MaxRetries:   getIntEnv("MAX_RETRIES", 5),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", 2*time.Second),

		// Swap
		SwapStartTime:       getTimeEnv("SWAP_START_TIME", time.Time{}),
		SwapDuration:        getDurationEnv("SWAP_DURATION", constants.DefaultSwapSeconds*time.Second),
		SwapStartRate:       getEnv("SWAP_START_RATE", constants.DefaultStartRate),
		SwapEndRate:         getEnv("SWAP_END_RATE", constants.DefaultEndRate),
		MinSwapAmount:       getEnv("MIN_SWAP_AMOUNT", constants.DefaultMinSwapAmount),
		InitialSupply:       getEnv("OUTPUT_INITIAL_SUPPLY", constants.DefaultInitialSupply),
		InputDecimals:       getIntEnv("INPUT_DECIMALS", constants.InputDecimals),
		OutputDecimals:      getIntEnv("OUTPUT_DECIMALS", constants.OutputDecimals),
		ReferralBonusBPS:    getIntEnv("REFERRAL_BONUS_BPS", constants.DefaultBonusBPS),
		SafetyCapBPS:        getIntEnv("SAFETY_CAP_BPS", constants.DefaultSafetyCapBPS),
		LeaderboardCapacity: getIntEnv("LEADERBOARD_CAPACITY", leaderboard.DefaultCapacity),

		// AI
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		AIModel:          getEnv("AI_MODEL", "openai/gpt-4.1-mini"),
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendMemory, BackendRedis:
	case BackendLevelDB:
		if c.LevelDBPath == "" {
			errs = append(errs, errors.New("LEVELDB_PATH is required for the leveldb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND %q is not one of memory, leveldb, redis", c.StoreBackend))
	}

	switch c.ReferralBackend {
	case BackendMemory, BackendRedis:
	case BackendHTTP:
		if c.ReferralURL == "" {
			errs = append(errs, errors.New("REFERRAL_URL is required for the http referral backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("REFERRAL_BACKEND %q is not one of memory, redis, http", c.ReferralBackend))
	}

	if _, err := c.EngineConfig(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// EngineConfig converts the swap settings into engine parameters.
func (c *Config) EngineConfig() (swapengine.EngineConfig, error) {
	cfg := swapengine.DefaultEngineConfig()
	if !c.SwapStartTime.IsZero() {
		cfg.StartTime = c.SwapStartTime
	}
	if c.SwapDuration < time.Second {
		return cfg, fmt.Errorf("SWAP_DURATION must be at least 1s, got %s", c.SwapDuration)
	}
	cfg.Duration = c.SwapDuration

	var err error
	if cfg.StartRate, err = num.ParseDecimal(c.SwapStartRate); err != nil {
		return cfg, fmt.Errorf("SWAP_START_RATE: %w", err)
	}
	if cfg.EndRate, err = num.ParseDecimal(c.SwapEndRate); err != nil {
		return cfg, fmt.Errorf("SWAP_END_RATE: %w", err)
	}
	if cfg.StartRate.IsZero() || cfg.EndRate.IsZero() {
		return cfg, errors.New("swap rates must be greater than zero")
	}

	if cfg.Risk.MinSwapAmount, err = num.Uint128FromString(c.MinSwapAmount); err != nil {
		return cfg, fmt.Errorf("MIN_SWAP_AMOUNT: %w", err)
	}
	if cfg.Risk.InitialSupply, err = num.Uint128FromString(c.InitialSupply); err != nil {
		return cfg, fmt.Errorf("OUTPUT_INITIAL_SUPPLY: %w", err)
	}

	if c.OutputDecimals < c.InputDecimals {
		return cfg, fmt.Errorf("OUTPUT_DECIMALS (%d) must be >= INPUT_DECIMALS (%d)", c.OutputDecimals, c.InputDecimals)
	}
	if cfg.Calc.ScaleAdjustment, err = num.Pow10(uint(c.OutputDecimals - c.InputDecimals)); err != nil {
		return cfg, fmt.Errorf("decimal scale adjustment: %w", err)
	}
	if c.ReferralBonusBPS < 0 || c.SafetyCapBPS < 0 {
		return cfg, errors.New("basis point settings must not be negative")
	}
	cfg.Calc.Bonus = swapengine.Ratio{Num: uint64(c.ReferralBonusBPS), Den: 10_000}
	cfg.Calc.SafetyCap = swapengine.Ratio{Num: uint64(c.SafetyCapBPS), Den: 10_000}
	if err := cfg.Calc.Validate(); err != nil {
		return cfg, err
	}

	if c.LeaderboardCapacity < 1 {
		return cfg, fmt.Errorf("LEADERBOARD_CAPACITY must be positive, got %d", c.LeaderboardCapacity)
	}
	cfg.LeaderboardCapacity = c.LeaderboardCapacity
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// getTimeEnv accepts RFC 3339 or unix seconds.
func getTimeEnv(key string, defaultVal time.Time) time.Time {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t.UTC()
	}
	if secs, err := strconv.ParseInt(val, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	return defaultVal
}
