// Command indexer consumes committed swaps from pub/sub and records them in
// the recent swaps cache and the ClickHouse history.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/referral-swap/internal/bootstrap"
	"github.com/aman-zulfiqar/referral-swap/internal/cache"
	"github.com/aman-zulfiqar/referral-swap/internal/config"
	"github.com/aman-zulfiqar/referral-swap/internal/constants"
	"github.com/aman-zulfiqar/referral-swap/internal/models"
)

type Indexer struct {
	recent     *cache.RedisCache
	clickhouse *cache.ClickHouseStore
	pubsub     *cache.PubSubManager
	logger     *logrus.Logger
}

func (idx *Indexer) ProcessSwap(ctx context.Context, swap *models.SwapEvent) {
	log := idx.logger.WithFields(logrus.Fields{
		"execution_id": swap.ExecutionID,
		"code":         swap.Code,
		"total_minted": swap.TotalMinted,
	})
	log.Debug("processing swap")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := idx.recent.AddRecentSwap(ctx, swap); err != nil {
		log.WithError(err).Warn("redis cache error")
	}

	if err := idx.clickhouse.InsertSwap(ctx, swap); err != nil {
		log.WithError(err).Error("clickhouse insert failed")
		return
	}
	log.Info("swap indexed")
}

func main() {
	logger := bootstrap.NewLogger("info")
	bootstrap.LoadEnv(logger)

	cfg := config.Load()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	rds := bootstrap.NewRedis(cfg)
	defer func() {
		_ = rds.Close()
	}()
	client, err := rds.Client(ctx)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}

	ch, err := bootstrap.OpenHistory(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open ClickHouse")
	}
	defer ch.Close()

	idx := &Indexer{
		recent:     cache.NewRedisCache(client, logger),
		clickhouse: ch,
		pubsub:     cache.NewPubSubManager(client, logger),
		logger:     logger,
	}

	logger.WithField("channel", constants.PubSubChannelSwaps).Info("indexer running")
	err = idx.pubsub.Subscribe(ctx, constants.PubSubChannelSwaps, func(swap *models.SwapEvent) {
		idx.ProcessSwap(ctx, swap)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Fatal("subscription failed")
	}
}
