// Command subscriber prints committed swaps and leaderboard movements as
// they are published.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/referral-swap/internal/bootstrap"
	"github.com/aman-zulfiqar/referral-swap/internal/cache"
	"github.com/aman-zulfiqar/referral-swap/internal/config"
	"github.com/aman-zulfiqar/referral-swap/internal/constants"
	"github.com/aman-zulfiqar/referral-swap/internal/models"
)

func main() {
	code := flag.String("code", "", "also follow one referral code")
	flag.Parse()

	logger := bootstrap.NewLogger("info")
	bootstrap.LoadEnv(logger)
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	rds := bootstrap.NewRedis(cfg)
	defer func() {
		_ = rds.Close()
	}()
	client, err := rds.Client(ctx)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}
	pubsub := cache.NewPubSubManager(client, logger)

	var wg sync.WaitGroup
	run := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).WithField("sub", name).Error("subscription ended")
			}
		}()
	}

	run("all", func() error {
		return pubsub.Subscribe(ctx, constants.PubSubChannelSwaps, func(swap *models.SwapEvent) {
			logger.WithFields(logrus.Fields{
				"id":            swap.ExecutionID,
				"input":         swap.InputAmount,
				"total_to_user": swap.TotalToUser,
				"rate":          swap.Rate,
				"code":          swap.Code,
			}).Info("swap")
		})
	})

	run("leaderboard", func() error {
		return pubsub.Subscribe(ctx, constants.PubSubChannelLeaderboard, func(swap *models.SwapEvent) {
			fields := logrus.Fields{
				"code":     swap.Code,
				"action":   swap.LeaderboardAction,
				"position": swap.Position,
			}
			if swap.Evicted != "" {
				fields["evicted"] = swap.Evicted
			}
			logger.WithFields(fields).Info("leaderboard")
		})
	})

	if *code != "" {
		run("code", func() error {
			return pubsub.Subscribe(ctx, cache.CodeChannel(*code), func(swap *models.SwapEvent) {
				logger.WithFields(logrus.Fields{
					"code":           swap.Code,
					"referrer_bonus": swap.ReferrerBonus,
				}).Info("referral swap")
			})
		})
	}

	logger.Info("subscriber running, press Ctrl+C to stop")
	<-sigCh
	logger.Info("shutting down subscriber")
	cancel()
	wg.Wait()
}
