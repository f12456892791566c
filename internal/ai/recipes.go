package ai

import "strings"

// Recipe is a worked example for a question this system is commonly asked.
// SQL uses {table} for the qualified table name.
type Recipe struct {
	Name     string
	Question string
	Keywords []string
	SQL      string
}

const maxRecipesPerPrompt = 3

var recipes = []Recipe{
	{
		Name:     "evictions",
		Question: "Which codes were pushed off the leaderboard recently?",
		Keywords: []string{"evict", "pushed off", "knocked", "dropped off", "fell off"},
		SQL: "SELECT timestamp, code AS entered, evicted, position FROM {table} " +
			"WHERE evicted != '' ORDER BY timestamp DESC LIMIT 50",
	},
	{
		Name:     "leaderboard_actions",
		Question: "How often did swaps move the leaderboard?",
		Keywords: []string{"leaderboard", "action", "moved", "position", "rank"},
		SQL: "SELECT leaderboard_action, count() AS swaps FROM {table} " +
			"WHERE leaderboard_action != '' GROUP BY leaderboard_action ORDER BY swaps DESC",
	},
	{
		Name:     "referrer_rewards_by_code",
		Question: "How much referrer reward has each code earned?",
		Keywords: []string{"reward", "earn", "referrer bonus", "per code", "each code", "top code"},
		SQL: "SELECT code, any(referrer) AS owner, count() AS swaps, " +
			"sum(toFloat64(referrer_bonus)) / 1e18 AS referrer_rewards FROM {table} " +
			"WHERE code != '' GROUP BY code ORDER BY referrer_rewards DESC LIMIT 20",
	},
	{
		Name:     "rewards_by_owner",
		Question: "Which owners earned the most across their codes?",
		Keywords: []string{"owner", "referrer", "who earned"},
		SQL: "SELECT referrer, uniqExact(code) AS codes, " +
			"sum(toFloat64(referrer_bonus)) / 1e18 AS rewards FROM {table} " +
			"WHERE referrer != '' GROUP BY referrer ORDER BY rewards DESC LIMIT 20",
	},
	{
		Name:     "referral_share",
		Question: "What share of swaps used a referral code?",
		Keywords: []string{"share", "percent", "without a code", "with a code", "referral swaps"},
		SQL: "SELECT countIf(code != '') AS referral_swaps, count() AS swaps, " +
			"round(100 * referral_swaps / swaps, 2) AS referral_pct FROM {table}",
	},
	{
		Name:     "daily_volume",
		Question: "What was the swap volume per day?",
		Keywords: []string{"volume", "daily", "per day", "minted", "supply"},
		SQL: "SELECT toDate(timestamp) AS day, count() AS swaps, " +
			"sum(toFloat64(input_amount)) / 1e6 AS input, sum(toFloat64(total_minted)) / 1e18 AS minted " +
			"FROM {table} GROUP BY day ORDER BY day DESC LIMIT 30",
	},
	{
		Name:     "rate_by_hour",
		Question: "How has the conversion rate moved?",
		Keywords: []string{"rate", "price", "conversion"},
		SQL: "SELECT toStartOfHour(timestamp) AS hour, min(rate) AS min_rate, max(rate) AS max_rate " +
			"FROM {table} GROUP BY hour ORDER BY hour DESC LIMIT 48",
	},
}

// Recipes returns every known recipe rendered for t.
func (t Table) Recipes() []Recipe {
	out := make([]Recipe, len(recipes))
	for i, r := range recipes {
		out[i] = t.render(r)
	}
	return out
}

// recipesFor picks the recipes whose keywords appear in the question,
// in declaration order, at most maxRecipesPerPrompt of them.
func (t Table) recipesFor(question string) []Recipe {
	q := strings.ToLower(question)
	var out []Recipe
	for _, r := range recipes {
		for _, kw := range r.Keywords {
			if strings.Contains(q, kw) {
				out = append(out, t.render(r))
				break
			}
		}
		if len(out) == maxRecipesPerPrompt {
			break
		}
	}
	return out
}

func (t Table) render(r Recipe) Recipe {
	r.SQL = strings.ReplaceAll(r.SQL, "{table}", t.Qualified())
	return r
}
