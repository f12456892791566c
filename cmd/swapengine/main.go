// Command swapengine drives the engine directly against the configured
// state store, without the HTTP layer.
//
//	swapengine -cmd simulate -amount 15000000 -code alice
//	swapengine -cmd swap -amount 15000000 -code alice
//	swapengine -cmd leaderboard -limit 10
//	swapengine -cmd register -code alice -owner owner-a
//	swapengine -cmd verify
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aman-zulfiqar/referral-swap/internal/bootstrap"
	"github.com/aman-zulfiqar/referral-swap/internal/config"
	"github.com/aman-zulfiqar/referral-swap/internal/num"
	"github.com/aman-zulfiqar/referral-swap/internal/referral"
	"github.com/aman-zulfiqar/referral-swap/internal/swapengine"
)

func main() {
	cmd := flag.String("cmd", "status", "status | rate | simulate | swap | stats | code-stats | leaderboard | verify | register | pause | resume")
	amount := flag.String("amount", "", "input amount in smallest units")
	code := flag.String("code", "", "referral code")
	owner := flag.String("owner", "", "owner for register")
	startAfter := flag.String("start-after", "", "leaderboard cursor")
	limit := flag.Int("limit", 0, "leaderboard page size")
	flag.Parse()

	logger := bootstrap.NewLogger("warn")
	bootstrap.LoadEnv(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		logger.WithError(err).Fatal("invalid swap configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	rds := bootstrap.NewRedis(cfg)
	defer func() {
		_ = rds.Close()
	}()

	store, err := bootstrap.OpenStore(ctx, cfg, rds)
	if err != nil {
		logger.WithError(err).Fatal("failed to open state store")
	}
	oracle, registry, err := bootstrap.OpenReferrals(ctx, cfg, rds, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open referral backend")
	}

	engine, err := swapengine.NewEngine(engineCfg, swapengine.EngineDeps{
		Store:  store,
		Oracle: oracle,
		Logger: logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to init swap engine")
	}
	defer engine.Close()

	if err := run(ctx, engine, registry, *cmd, args{
		amount:     *amount,
		code:       *code,
		owner:      *owner,
		startAfter: *startAfter,
		limit:      *limit,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", *cmd, err)
		os.Exit(1)
	}
}

type args struct {
	amount     string
	code       string
	owner      string
	startAfter string
	limit      int
}

var errUsage = errors.New("usage")

func run(ctx context.Context, engine *swapengine.Engine, registry referral.Registry, cmd string, a args) error {
	now := time.Now()

	switch cmd {
	case "status":
		st, err := engine.Status(ctx, now)
		if err != nil {
			return err
		}
		return printJSON(st)

	case "rate":
		info, err := engine.CurrentRate(now)
		if err != nil {
			return err
		}
		return printJSON(info)

	case "simulate":
		amt, err := num.Uint128FromString(a.amount)
		if err != nil {
			return fmt.Errorf("%w: -amount: %v", errUsage, err)
		}
		sim, err := engine.Simulate(ctx, amt, a.code, now)
		if err != nil {
			return err
		}
		return printJSON(sim)

	case "swap":
		amt, err := num.Uint128FromString(a.amount)
		if err != nil {
			return fmt.Errorf("%w: -amount: %v", errUsage, err)
		}
		req := &swapengine.SwapRequest{InputAmount: amt}
		if a.code != "" {
			req.Code = &a.code
		}
		res, err := engine.Swap(ctx, req, now)
		if err != nil {
			return err
		}
		return printJSON(res)

	case "stats":
		st, err := engine.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(st)

	case "code-stats":
		st, err := engine.CodeStats(ctx, a.code)
		if err != nil {
			return err
		}
		return printJSON(st)

	case "leaderboard":
		var after *string
		if a.startAfter != "" {
			after = &a.startAfter
		}
		page, err := engine.Leaderboard(ctx, after, a.limit)
		if err != nil {
			return err
		}
		return printJSON(page)

	case "verify":
		problems, err := engine.Verify(ctx)
		if err != nil {
			return err
		}
		if len(problems) > 0 {
			for _, p := range problems {
				fmt.Println(p)
			}
			return fmt.Errorf("%d leaderboard problems", len(problems))
		}
		fmt.Println("leaderboard ok")
		return nil

	case "register":
		if registry == nil {
			return errors.New("the configured referral backend is read-only")
		}
		c, err := registry.Register(ctx, a.code, a.owner)
		if err != nil {
			return err
		}
		return printJSON(c)

	case "pause", "resume":
		if err := engine.SetPaused(ctx, cmd == "pause"); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil

	default:
		return fmt.Errorf("%w: unknown -cmd %q", errUsage, cmd)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
