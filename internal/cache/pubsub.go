package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/referral-swap/internal/constants"
	"github.com/aman-zulfiqar/referral-swap/internal/models"
	"github.com/aman-zulfiqar/referral-swap/internal/storage"
)

// CodeChannel carries swaps referred by one code.
func CodeChannel(code string) string { return constants.PubSubChannelCodePrefix + code }

type PubSubManager struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewPubSubManager(client *redis.Client, logger *logrus.Logger) *PubSubManager {
	if logger == nil {
		logger = logrus.New()
	}
	return &PubSubManager{client: client, logger: logger}
}

// channelsFor lists every channel a swap is published on.
func channelsFor(swap *models.SwapEvent) []string {
	channels := []string{constants.PubSubChannelSwaps}
	if swap.Code != "" {
		channels = append(channels, CodeChannel(swap.Code))
	}
	switch swap.LeaderboardAction {
	case "", "no_change", "not_qualified":
	default:
		channels = append(channels, constants.PubSubChannelLeaderboard)
	}
	return channels
}

// PublishSwap publishes one swap to all matching channels in a pipeline.
func (p *PubSubManager) PublishSwap(ctx context.Context, swap *models.SwapEvent) error {
	data, err := json.Marshal(swap)
	if err != nil {
		return fmt.Errorf("marshal swap: %w", err)
	}

	pipe := p.client.Pipeline()
	for _, channel := range channelsFor(swap) {
		pipe.Publish(ctx, channel, data)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish swap %s: %w", swap.ExecutionID, err)
	}
	return nil
}

// Subscribe delivers swaps on channel to handler until ctx is done.
func (p *PubSubManager) Subscribe(ctx context.Context, channel string, handler storage.SwapHandler) error {
	sub := p.client.Subscribe(ctx, channel)
	defer sub.Close()

	p.logger.WithField("channel", channel).Info("subscribed")
	return p.consume(ctx, sub, handler)
}

// PSubscribe is Subscribe over a pattern, e.g. "swaps:code:*".
func (p *PubSubManager) PSubscribe(ctx context.Context, pattern string, handler storage.SwapHandler) error {
	sub := p.client.PSubscribe(ctx, pattern)
	defer sub.Close()

	p.logger.WithField("pattern", pattern).Info("subscribed")
	return p.consume(ctx, sub, handler)
}

func (p *PubSubManager) consume(ctx context.Context, sub *redis.PubSub, handler storage.SwapHandler) error {
	// Receive confirms the subscription before messages are read.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var swap models.SwapEvent
			if err := json.Unmarshal([]byte(msg.Payload), &swap); err != nil {
				p.logger.WithError(err).WithField("channel", msg.Channel).Warn("failed to unmarshal swap")
				continue
			}
			handler(&swap)
		}
	}
}

func (p *PubSubManager) Close() error {
	return p.client.Close()
}
