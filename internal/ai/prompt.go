package ai

import (
	"fmt"
	"strings"
)

func (t Table) sqlPrompt(question string) string {
	var b strings.Builder
	b.WriteString("You write ClickHouse SQL for a referral swap service.\n\n")
	b.WriteString(t.Describe())

	fmt.Fprintf(&b, `
Rules:
- Return exactly one SELECT over %s and nothing else: no prose, no comments.
- No table functions, no system tables, no SETTINGS, no writes of any kind.
- Bucket time with toDate or toStartOfHour on timestamp.
- For "top" or "most" questions use ORDER BY ... DESC with a LIMIT of at most 50.
`, t.Qualified())

	if examples := t.recipesFor(question); len(examples) > 0 {
		b.WriteString("\nExamples:\n")
		for _, r := range examples {
			fmt.Fprintf(&b, "Q: %s\nSQL: %s\n", r.Question, r.SQL)
		}
	}

	fmt.Fprintf(&b, "\nQuestion:\n%s\n", question)
	return b.String()
}

func summaryPrompt(question, query, rowsJSON string, total, shown int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\nSQL:\n%s\n\n", question, query)
	if shown < total {
		fmt.Fprintf(&b, "First %d of %d rows as JSON:\n%s\n", shown, total, rowsJSON)
	} else {
		fmt.Fprintf(&b, "Rows as JSON (%d):\n%s\n", total, rowsJSON)
	}
	b.WriteString(`
Answer in a few short bullet points.
- If there are no rows, say no swaps matched.
- Amount columns already divided in SQL are whole tokens; raw UInt128 values are smallest units.
- A code's leaderboard standing follows its cumulative referrer rewards.
- Do not repeat the JSON.
`)
	return b.String()
}
