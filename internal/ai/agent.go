package ai

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	// DefaultModel is used when AgentConfig.Model is empty.
	DefaultModel = "openai/gpt-4.1-mini"

	// DefaultMaxRows caps how many result rows are handed to the summary.
	DefaultMaxRows = 100

	openRouterURL = "https://openrouter.ai/api/v1"
	maxTokens     = 512
)

type AgentConfig struct {
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	OpenRouterAPIKey string
	Model            string // OpenRouter model id
	MaxRows          int

	Logger *logrus.Logger
}

// completer sends one prompt to a model and returns its text.
type completer func(ctx context.Context, prompt string) (string, error)

// rowSource runs a checked query and returns its rows keyed by column.
type rowSource func(ctx context.Context, query string) ([]map[string]any, error)

// Agent answers questions about swap history by generating SQL against
// the swaps table, running it, and summarising the rows.
type Agent struct {
	table    Table
	complete completer
	rows     rowSource
	maxRows  int
	cfg      AgentConfig
	db       *sql.DB // nil on agents derived with WithModel
	logger   *logrus.Logger
}

// AskResult is what Ask produced for one question.
type AskResult struct {
	SQL     string
	Answer  string
	Rows    int
	Recipes []string // names of the worked examples shown to the model
}

func NewAgent(ctx context.Context, cfg AgentConfig) (*Agent, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.OpenRouterAPIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	complete, err := openRouter(cfg.OpenRouterAPIKey, cfg.Model)
	if err != nil {
		return nil, err
	}

	table := SwapsTable(cfg.ClickHouseDatabase)
	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{cfg.ClickHouseAddr},
		Auth: clickhouse.Auth{
			Database: table.Database,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		},
		ReadTimeout: 30 * time.Second,
	})
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse from AI agent: %w", err)
	}

	cfg.Logger.WithFields(logrus.Fields{
		"addr":  cfg.ClickHouseAddr,
		"table": table.Qualified(),
		"model": cfg.Model,
	}).Info("initialized AI agent")

	a := newAgent(table, complete, queryRows(db), cfg)
	a.db = db
	return a, nil
}

func newAgent(table Table, complete completer, rows rowSource, cfg AgentConfig) *Agent {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Agent{
		table:    table,
		complete: complete,
		rows:     rows,
		maxRows:  maxRows,
		cfg:      cfg,
		logger:   cfg.Logger,
	}
}

// WithModel returns an agent that asks a different model but shares this
// agent's ClickHouse connection. Only the original agent needs Close.
func (a *Agent) WithModel(model string) (*Agent, error) {
	complete, err := openRouter(a.cfg.OpenRouterAPIKey, model)
	if err != nil {
		return nil, err
	}
	cfg := a.cfg
	cfg.Model = model
	return newAgent(a.table, complete, a.rows, cfg), nil
}

func (a *Agent) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Table is the table generated queries are checked against.
func (a *Agent) Table() Table { return a.table }

func (a *Agent) Ask(ctx context.Context, question string) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	examples := a.table.recipesFor(question)
	reply, err := a.complete(ctx, a.table.sqlPrompt(question))
	if err != nil {
		return nil, fmt.Errorf("LLM SQL generation failed: %w", err)
	}
	query := sanitizeSQL(reply)
	if err := a.table.checkQuery(query); err != nil {
		a.logger.WithError(err).WithField("reply", reply).Warn("rejected generated SQL")
		return nil, err
	}

	log := a.logger.WithField("sql", query)
	log.Debug("running generated SQL")

	rows, err := a.rows(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	shown := rows
	if len(shown) > a.maxRows {
		shown = shown[:a.maxRows]
	}
	rowsJSON, err := json.Marshal(shown)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rows: %w", err)
	}

	answer, err := a.complete(ctx, summaryPrompt(question, query, string(rowsJSON), len(rows), len(shown)))
	if err != nil {
		return nil, fmt.Errorf("LLM summarisation failed: %w", err)
	}

	res := &AskResult{SQL: query, Answer: strings.TrimSpace(answer), Rows: len(rows)}
	for _, r := range examples {
		res.Recipes = append(res.Recipes, r.Name)
	}
	log.WithField("rows", len(rows)).Info("answered question")
	return res, nil
}

func openRouter(apiKey, model string) (completer, error) {
	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithBaseURL(openRouterURL),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenRouter LLM: %w", err)
	}
	return func(ctx context.Context, prompt string) (string, error) {
		return llms.GenerateFromSinglePrompt(ctx, llm, prompt, llms.WithMaxTokens(maxTokens))
	}, nil
}

func queryRows(db *sql.DB) rowSource {
	return func(ctx context.Context, query string) ([]map[string]any, error) {
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}

		out := []map[string]any{}
		for rows.Next() {
			values := make([]any, len(cols))
			dest := make([]any, len(cols))
			for i := range values {
				dest[i] = &values[i]
			}
			if err := rows.Scan(dest...); err != nil {
				return nil, err
			}
			row := make(map[string]any, len(cols))
			for i, col := range cols {
				row[col] = jsonValue(values[i])
			}
			out = append(out, row)
		}
		return out, rows.Err()
	}
}

// jsonValue keeps UInt128 and Decimal values exact in the summary input.
func jsonValue(v any) any {
	switch x := v.(type) {
	case *big.Int:
		return x.String()
	case big.Int:
		return x.String()
	case decimal.Decimal:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	}
	return v
}
