// Command ai-agent answers questions about swap history from the terminal.
//
//	ai-agent -q "which codes were evicted today?"
//	ai-agent -recipes
//	ai-agent            # interactive; :schema, :recipes, :model <id>, empty line quits
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aman-zulfiqar/referral-swap/internal/ai"
	"github.com/aman-zulfiqar/referral-swap/internal/bootstrap"
	"github.com/aman-zulfiqar/referral-swap/internal/config"
)

func main() {
	question := flag.String("q", "", "ask one question and exit")
	model := flag.String("model", "", "OpenRouter model id (defaults to AI_MODEL)")
	listRecipes := flag.Bool("recipes", false, "print the worked example queries and exit")
	showSchema := flag.Bool("schema", false, "print the table the agent queries and exit")
	flag.Parse()

	logger := bootstrap.NewLogger("warn")
	bootstrap.LoadEnv(logger)
	cfg := config.Load()

	// Offline views need neither ClickHouse nor a model.
	table := ai.SwapsTable(cfg.ClickHouseDatabase)
	if *listRecipes {
		printRecipes(os.Stdout, table)
		return
	}
	if *showSchema {
		fmt.Print(table.Describe())
		return
	}

	if cfg.OpenRouterAPIKey == "" {
		logger.Fatal("OPENROUTER_API_KEY is required")
	}
	if *model == "" {
		*model = cfg.AIModel
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	agent, err := ai.NewAgent(ctx, ai.AgentConfig{
		ClickHouseAddr:     cfg.ClickHouseAddr,
		ClickHouseDatabase: cfg.ClickHouseDatabase,
		ClickHouseUsername: cfg.ClickHouseUsername,
		ClickHousePassword: cfg.ClickHousePassword,
		OpenRouterAPIKey:   cfg.OpenRouterAPIKey,
		Model:              *model,
		Logger:             logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create AI agent")
	}
	defer agent.Close()

	if *question != "" {
		res, err := agent.Ask(ctx, *question)
		if err != nil {
			logger.WithError(err).Fatal("question failed")
		}
		printResult(os.Stdout, res)
		return
	}

	repl(ctx, agent, os.Stdin, os.Stdout)
}

func repl(ctx context.Context, agent *ai.Agent, in io.Reader, out io.Writer) {
	fmt.Fprintf(out, "Asking about %s. :recipes for examples, empty line to quit.\n", agent.Table().Qualified())

	current := agent
	scanner := bufio.NewScanner(in)
	for ctx.Err() == nil {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			return
		case line == ":schema":
			fmt.Fprint(out, agent.Table().Describe())
		case line == ":recipes":
			printRecipes(out, agent.Table())
		case strings.HasPrefix(line, ":model "):
			next, err := agent.WithModel(strings.TrimSpace(strings.TrimPrefix(line, ":model ")))
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			current = next
			fmt.Fprintln(out, "model switched")
		default:
			res, err := current.Ask(ctx, line)
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				continue
			}
			printResult(out, res)
		}
	}
}

func printResult(w io.Writer, res *ai.AskResult) {
	fmt.Fprintf(w, "\nSQL:\n%s\n\n", res.SQL)
	fmt.Fprintf(w, "Rows: %d", res.Rows)
	if len(res.Recipes) > 0 {
		fmt.Fprintf(w, " (examples: %s)", strings.Join(res.Recipes, ", "))
	}
	fmt.Fprintf(w, "\n\nAnswer:\n%s\n\n", res.Answer)
}

func printRecipes(w io.Writer, table ai.Table) {
	for _, r := range table.Recipes() {
		fmt.Fprintf(w, "%s\n  %s\n  %s\n\n", r.Name, r.Question, r.SQL)
	}
}
