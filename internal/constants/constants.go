package constants

// Redis keys
const (
	RedisKeyRecentSwaps = "swaps:recent"
	RedisKeyStatePrefix = "state:" // namespace for engine state when STORE_BACKEND=redis
)

// Redis Pub/Sub channels
const (
	PubSubChannelSwaps       = "swaps:all"
	PubSubChannelLeaderboard = "leaderboard:updates"
	PubSubChannelCodePrefix  = "swaps:code:"
	PubSubPatternCodes       = PubSubChannelCodePrefix + "*"
)

// Limits
const (
	MaxRecentSwaps = 100
)

// Token decimals
const (
	InputDecimals  = 6
	OutputDecimals = 18
)

// Swap defaults
const (
	DefaultStartRate     = "1.5"
	DefaultEndRate       = "2.5"
	DefaultSwapSeconds   = 8_640_000 // 100 days
	DefaultMinSwapAmount = "1000000"
	DefaultInitialSupply = "1000000000000000000000000000"
	DefaultBonusBPS      = 1000
	DefaultSafetyCapBPS  = 500
)
