package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/referral-swap/internal/models"
	"github.com/aman-zulfiqar/referral-swap/internal/num"
)

// SwapsTable is the history table the indexer writes and the AI agent reads.
const SwapsTable = "swaps"

// SwapColumn is one column of the swap history table.
type SwapColumn struct {
	Name string
	Type string
}

// SwapColumns lists the history table in insert order; swapRow must match.
var SwapColumns = []SwapColumn{
	{"execution_id", "String"},
	{"timestamp", "DateTime64(3, 'UTC')"},
	{"input_amount", "UInt128"},
	{"base_scaled", "UInt128"},
	{"user_bonus", "UInt128"},
	{"referrer_bonus", "UInt128"},
	{"total_to_user", "UInt128"},
	{"total_minted", "UInt128"},
	{"rate", "Decimal(38, 18)"},
	{"code", "String"},
	{"referrer", "String"},
	{"leaderboard_action", "LowCardinality(String)"},
	{"position", "UInt32"},
	{"evicted", "String"},
}

func createSwapsTable(database string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s.%s (\n", database, SwapsTable)
	for i, col := range SwapColumns {
		sep := ","
		if i == len(SwapColumns)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "\t%s %s%s\n", col.Name, col.Type, sep)
	}
	b.WriteString(") ENGINE = MergeTree\nORDER BY (timestamp, execution_id)")
	return b.String()
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	Logger   *logrus.Logger
}

// ClickHouseStore is the append-only swap history.
type ClickHouseStore struct {
	conn     driver.Conn
	database string
	logger   *logrus.Logger
}

func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Database == "" {
		cfg.Database = "referral"
	}
	if cfg.Username == "" {
		cfg.Username = "default"
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	cfg.Logger.WithFields(logrus.Fields{
		"addr":     cfg.Addr,
		"database": cfg.Database,
	}).Info("connected to ClickHouse")

	return &ClickHouseStore{conn: conn, database: cfg.Database, logger: cfg.Logger}, nil
}

// EnsureSchema creates the swaps table if it does not exist.
func (c *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, createSwapsTable(c.database)); err != nil {
		return fmt.Errorf("failed to create swaps table: %w", err)
	}
	return nil
}

func (c *ClickHouseStore) InsertSwap(ctx context.Context, swap *models.SwapEvent) error {
	row, err := swapRow(swap)
	if err != nil {
		return err
	}

	batch, err := c.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.%s", c.database, SwapsTable))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	if err := batch.Append(row...); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("failed to append swap %s: %w", swap.ExecutionID, err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert swap %s: %w", swap.ExecutionID, err)
	}
	return nil
}

// swapRow converts an event into column values in table order. UInt128
// columns take *big.Int and the rate column takes a shopspring decimal.
func swapRow(swap *models.SwapEvent) ([]any, error) {
	amounts := []string{
		swap.InputAmount, swap.BaseScaled, swap.UserBonus,
		swap.ReferrerBonus, swap.TotalToUser, swap.TotalMinted,
	}
	row := make([]any, 0, len(SwapColumns))
	row = append(row, swap.ExecutionID, swap.Timestamp)
	for _, s := range amounts {
		if s == "" {
			s = "0"
		}
		v, err := num.Uint128FromString(s)
		if err != nil {
			return nil, fmt.Errorf("swap %s: amount %q: %w", swap.ExecutionID, s, err)
		}
		row = append(row, v.Big())
	}

	rate, err := num.ParseDecimal(swap.Rate)
	if err != nil {
		return nil, fmt.Errorf("swap %s: rate %q: %w", swap.ExecutionID, swap.Rate, err)
	}
	row = append(row,
		rate.Shopspring(),
		swap.Code,
		swap.Referrer,
		swap.LeaderboardAction,
		swap.Position,
		swap.Evicted,
	)
	return row, nil
}

func (c *ClickHouseStore) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseStore) Close() error {
	return c.conn.Close()
}
