package ai

import (
	"fmt"
	"strings"

	"github.com/aman-zulfiqar/referral-swap/internal/cache"
)

// Column is a history column as the model sees it.
type Column struct {
	Name string
	Type string
	Doc  string
}

// Table is the single table generated queries may read. It drives both the
// prompt and the query guard.
type Table struct {
	Database string
	Name     string
	Columns  []Column
	Notes    []string
}

var columnDocs = map[string]string{
	"execution_id":       "Unique id of the committed swap",
	"timestamp":          "Commit time of the swap (UTC)",
	"input_amount":       "Input paid, 6 decimals",
	"base_scaled":        "Output before bonuses, 18 decimals",
	"user_bonus":         "Referral bonus paid to the swapper, 18 decimals",
	"referrer_bonus":     "Reward paid to the code owner, 18 decimals",
	"total_to_user":      "base_scaled + user_bonus, 18 decimals",
	"total_minted":       "total_to_user + referrer_bonus, 18 decimals",
	"rate":               "Input units per output unit in effect for the swap",
	"code":               "Referral code used, empty when none",
	"referrer":           "Owner of the code, empty when none",
	"leaderboard_action": "new_entry, position_up, position_down, no_change, not_qualified, or empty without a code",
	"position":           "Leaderboard position after the swap, 0 when unranked",
	"evicted":            "Code pushed off the leaderboard by this swap, empty otherwise",
}

// SwapsTable describes the swap history table in database.
func SwapsTable(database string) Table {
	if database == "" {
		database = "referral"
	}
	cols := make([]Column, 0, len(cache.SwapColumns))
	for _, c := range cache.SwapColumns {
		cols = append(cols, Column{Name: c.Name, Type: c.Type, Doc: columnDocs[c.Name]})
	}
	return Table{
		Database: database,
		Name:     cache.SwapsTable,
		Columns:  cols,
		Notes: []string{
			"Divide 18-decimal amounts by 1e18 and input_amount by 1e6 for whole units.",
			"UInt128 columns must go through toFloat64 before division.",
			"Referral swaps are those with code != ''.",
			"The leaderboard ranks codes by their cumulative referrer_bonus; the latest position per code is argMax(position, timestamp).",
			"Use toDate/toStartOfHour on timestamp for bucketing.",
		},
	}
}

// Qualified is database.name.
func (t Table) Qualified() string { return t.Database + "." + t.Name }

// Describe renders the table for the SQL prompt.
func (t Table) Describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Table: %s\n\nColumns:\n", t.Qualified())
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "  - %-18s %-22s -- %s\n", c.Name, c.Type, c.Doc)
	}
	if len(t.Notes) > 0 {
		b.WriteString("\nNotes:\n")
		for _, n := range t.Notes {
			fmt.Fprintf(&b, "  - %s\n", n)
		}
	}
	return b.String()
}
