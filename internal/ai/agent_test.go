package ai

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-zulfiqar/referral-swap/internal/cache"
)

// scriptedModel replies with canned answers in order and records prompts.
type scriptedModel struct {
	replies []string
	prompts []string
}

func (m *scriptedModel) complete(_ context.Context, prompt string) (string, error) {
	m.prompts = append(m.prompts, prompt)
	if len(m.replies) == 0 {
		return "", errors.New("no reply scripted")
	}
	r := m.replies[0]
	m.replies = m.replies[1:]
	return r, nil
}

type recordedQueries struct {
	rows    []map[string]any
	queries []string
}

func (q *recordedQueries) run(_ context.Context, query string) ([]map[string]any, error) {
	q.queries = append(q.queries, query)
	return q.rows, nil
}

func TestSwapsTable(t *testing.T) {
	table := SwapsTable("")
	assert.Equal(t, "referral.swaps", table.Qualified())
	require.Len(t, table.Columns, len(cache.SwapColumns))

	desc := table.Describe()
	for _, c := range table.Columns {
		assert.NotEmpty(t, c.Doc, "column %s has no description", c.Name)
		assert.Contains(t, desc, c.Name)
	}
	assert.Contains(t, desc, "Table: referral.swaps")

	assert.Equal(t, "analytics.swaps", SwapsTable("analytics").Qualified())
}

func TestSanitizeSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "SELECT count() FROM swaps", "SELECT count() FROM swaps"},
		{"trailing semicolon", "SELECT 1 FROM swaps;\n", "SELECT 1 FROM swaps"},
		{"sql fence", "```sql\nSELECT code FROM referral.swaps\n```", "SELECT code FROM referral.swaps"},
		{"prose around fence", "Here you go:\n```\nSELECT code FROM swaps\n```\nThis lists codes.", "SELECT code FROM swaps"},
		{"unterminated fence", "```sql\nSELECT evicted FROM swaps", "SELECT evicted FROM swaps"},
		{"sql prefix", "sql SELECT 1 FROM swaps", "SELECT 1 FROM swaps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeSQL(tt.in))
		})
	}
}

func TestCheckQuery(t *testing.T) {
	table := SwapsTable("referral")

	ok := []string{
		"SELECT code, sum(referrer_bonus) AS r FROM referral.swaps GROUP BY code ORDER BY r DESC LIMIT 10",
		"select count() from swaps where code != ''",
		"SELECT code FROM `referral`.`swaps` WHERE evicted != ''",
		"SELECT c FROM (SELECT code AS c FROM swaps) GROUP BY c",
	}
	for _, q := range ok {
		assert.NoError(t, table.checkQuery(q), q)
	}

	bad := map[string]string{
		"":                                     "empty",
		"DROP TABLE swaps":                     "only SELECT",
		"SELECT 1 FROM swaps; DROP TABLE x":    "multiple statements",
		"SELECT * FROM system.tables":          "SYSTEM",
		"SELECT * FROM users":                  "not users",
		"SELECT * FROM swaps INTO OUTFILE 'x'": "OUTFILE",
		"SELECT * FROM swaps SETTINGS max_threads=64":                       "SETTINGS",
		"SELECT * FROM url('http://x', CSV)":                                "table function url",
		"SELECT s.code FROM swaps s JOIN other o ON s.code = o.code":        "not other",
		"SELECT * FROM swaps WHERE code IN (SELECT code FROM solana.swaps)": "not solana.swaps",
		"SELECT 1": "must read referral.swaps",
	}
	for q, want := range bad {
		err := table.checkQuery(q)
		require.Error(t, err, q)
		assert.ErrorIs(t, err, ErrUnsafeQuery, q)
		assert.Contains(t, err.Error(), want, q)
	}
}

func TestRecipes_PassTheGuard(t *testing.T) {
	table := SwapsTable("referral")
	for _, r := range table.Recipes() {
		assert.NoError(t, table.checkQuery(r.SQL), r.Name)
		assert.Contains(t, r.SQL, "FROM referral.swaps", r.Name)
		assert.NotContains(t, r.SQL, "{table}", r.Name)
	}
}

func TestRecipesFor(t *testing.T) {
	table := SwapsTable("referral")
	names := func(q string) []string {
		var out []string
		for _, r := range table.recipesFor(q) {
			out = append(out, r.Name)
		}
		return out
	}

	assert.Equal(t, []string{"evictions"}, names("Which codes got evicted yesterday?"))
	assert.Equal(t, []string{"leaderboard_actions"}, names("count the leaderboard actions"))
	assert.Equal(t, []string{"referrer_rewards_by_code"}, names("How much has each code earned?"))
	assert.Equal(t, []string{"rewards_by_owner"}, names("which owner is on top?"))
	assert.Equal(t, []string{"daily_volume"}, names("daily volume please"))
	assert.Empty(t, names("hello there"))

	many := names("evicted codes, leaderboard moves, rewards per code, daily volume")
	assert.Len(t, many, maxRecipesPerPrompt)
}

func TestSQLPrompt(t *testing.T) {
	table := SwapsTable("referral")
	p := table.sqlPrompt("Which codes were evicted?")

	assert.Contains(t, p, "Table: referral.swaps")
	assert.Contains(t, p, "leaderboard_action")
	assert.Contains(t, p, "exactly one SELECT over referral.swaps")
	assert.Contains(t, p, "WHERE evicted != ''")
	assert.True(t, strings.HasSuffix(p, "Question:\nWhich codes were evicted?\n"))

	assert.NotContains(t, table.sqlPrompt("hello"), "Examples:")
}

func TestAgent_Ask(t *testing.T) {
	model := &scriptedModel{replies: []string{
		"```sql\nSELECT code, sum(toFloat64(referrer_bonus)) / 1e18 AS r FROM referral.swaps GROUP BY code ORDER BY r DESC LIMIT 20;\n```",
		"  - alice earned the most  ",
	}}
	db := &recordedQueries{rows: []map[string]any{{"code": "alice", "r": 1.5}, {"code": "bob", "r": 0.5}}}
	agent := newAgent(SwapsTable("referral"), model.complete, db.run, AgentConfig{})

	res, err := agent.Ask(context.Background(), "  How much reward has each code earned?  ")
	require.NoError(t, err)

	assert.Equal(t, "SELECT code, sum(toFloat64(referrer_bonus)) / 1e18 AS r FROM referral.swaps GROUP BY code ORDER BY r DESC LIMIT 20", res.SQL)
	assert.Equal(t, "- alice earned the most", res.Answer)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, []string{"referrer_rewards_by_code"}, res.Recipes)
	assert.Equal(t, []string{res.SQL}, db.queries)

	require.Len(t, model.prompts, 2)
	assert.Contains(t, model.prompts[0], "How much referrer reward has each code earned?")
	assert.Contains(t, model.prompts[1], `"code":"alice"`)
	assert.Contains(t, model.prompts[1], "Rows as JSON (2)")
}

func TestAgent_AskTruncatesRowsForSummary(t *testing.T) {
	rows := make([]map[string]any, 5)
	for i := range rows {
		rows[i] = map[string]any{"code": fmt.Sprintf("code-%d", i)}
	}
	model := &scriptedModel{replies: []string{"SELECT code FROM swaps", "ok"}}
	db := &recordedQueries{rows: rows}
	agent := newAgent(SwapsTable("referral"), model.complete, db.run, AgentConfig{MaxRows: 2})

	res, err := agent.Ask(context.Background(), "list codes")
	require.NoError(t, err)
	assert.Equal(t, 5, res.Rows)

	summary := model.prompts[1]
	assert.Contains(t, summary, "First 2 of 5 rows")
	assert.Contains(t, summary, "code-1")
	assert.NotContains(t, summary, "code-2")
}

func TestAgent_AskRejectsUnsafeSQL(t *testing.T) {
	model := &scriptedModel{replies: []string{"DELETE FROM swaps WHERE 1"}}
	db := &recordedQueries{}
	agent := newAgent(SwapsTable("referral"), model.complete, db.run, AgentConfig{})

	_, err := agent.Ask(context.Background(), "remove everything")
	assert.ErrorIs(t, err, ErrUnsafeQuery)
	assert.Empty(t, db.queries)
	assert.Len(t, model.prompts, 1)

	_, err = agent.Ask(context.Background(), "   ")
	assert.Error(t, err)
}

func TestJSONValue(t *testing.T) {
	big128, _ := new(big.Int).SetString("340282366920938463463374607431768211455", 10)
	assert.Equal(t, "340282366920938463463374607431768211455", jsonValue(big128))
	assert.Equal(t, "1.5", jsonValue(decimal.RequireFromString("1.500")))
	assert.Equal(t, uint32(7), jsonValue(uint32(7)))
}

func TestNewAgent_RequiresAPIKey(t *testing.T) {
	_, err := NewAgent(context.Background(), AgentConfig{ClickHouseAddr: "localhost:9000"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENROUTER_API_KEY")
}
