// Command ragflow runs one question-answering turn against a document store
// and streams the node transitions to the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/smallnest/ragflow/checkpoint"
	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/log"
	"github.com/smallnest/ragflow/model"
	"github.com/smallnest/ragflow/pipeline"
	"github.com/smallnest/ragflow/store"
	"github.com/smallnest/ragflow/tool"
)

var (
	nodeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	answerStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

func main() {
	var (
		query       = flag.String("query", "", "question to answer")
		dsn         = flag.String("db", os.Getenv("DATABASE_URL"), "Postgres connection string")
		webEnabled  = flag.Bool("web", false, "enable the web fallback (needs TAVILY_API_KEY)")
		checkpoints = flag.Bool("checkpoints", false, "persist per-turn checkpoints in memory")
		verbose     = flag.Bool("verbose", false, "debug logging")
	)
	flag.Parse()

	if *query == "" {
		fmt.Fprintln(os.Stderr, "usage: ragflow -query \"...\" [-db DSN] [-web]")
		os.Exit(2)
	}
	if *verbose {
		log.SetLogLevel(log.LogLevelDebug)
	}

	if err := run(*query, *dsn, *webEnabled, *checkpoints); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func run(query, dsn string, webEnabled, checkpoints bool) error {
	ctx := context.Background()

	client, err := model.NewOpenAIClient("")
	if err != nil {
		return err
	}

	llm, err := openai.New()
	if err != nil {
		return fmt.Errorf("failed to create embedding model: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	var docStore store.Store
	if dsn != "" {
		pg, err := store.NewPostgresStore(ctx, dsn)
		if err != nil {
			return err
		}
		defer pg.Close()
		docStore = pg
	} else {
		fmt.Println(warningStyle.Render("no -db given; running against an empty in-memory store"))
		docStore = store.NewMemoryStore()
	}

	cfg := pipeline.DefaultConfig()
	cfg.WebEnabled = webEnabled

	var opts []pipeline.RunnerOption
	if webEnabled {
		web, err := tool.NewTavilySearch("")
		if err != nil {
			return err
		}
		opts = append(opts, pipeline.WithWebSearcher(web))
	}
	if checkpoints {
		opts = append(opts, pipeline.WithCheckpointStore(checkpoint.NewMemoryStore()))
	}

	runner, err := pipeline.NewRunner(cfg, client, docStore, embedder, opts...)
	if err != nil {
		return err
	}

	sr, err := runner.Stream(ctx, query)
	if err != nil {
		return err
	}

	for ev := range sr.Events {
		if ev.Type == graph.EventNodeEntered {
			fmt.Printf("%s %s\n", stepStyle.Render(fmt.Sprintf("[%02d]", ev.Step)),
				nodeStyle.Render(ev.Node))
		}
	}
	printOutcome(sr.Wait())
	return nil
}

func printOutcome(result pipeline.Result) {
	fmt.Println()
	if result.Answer != "" {
		fmt.Println(answerStyle.Render(result.Answer))
	}
	for _, w := range result.Warnings {
		fmt.Println(warningStyle.Render("warning: " + w))
	}
	if result.Error != "" {
		fmt.Println(errorStyle.Render("turn failed: ") + result.Error)
		return
	}
	fmt.Printf("status=%s confidence=%.2f documents=%d\n",
		result.Status, result.Confidence, len(result.State.Documents))
}
