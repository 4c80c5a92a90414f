// Command axon is a line-oriented shell around a single agent: it wires
// the config file into a driver with the built-in tools and streams
// answers to the terminal.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nevindra/axon"
	"github.com/nevindra/axon/approval"
	"github.com/nevindra/axon/internal/config"
	"github.com/nevindra/axon/observer"
	"github.com/nevindra/axon/provider/openaicompat"
	"github.com/nevindra/axon/store/jsonfile"
	"github.com/nevindra/axon/store/sqlite"
	"github.com/nevindra/axon/tools/calc"
	"github.com/nevindra/axon/tools/file"
	"github.com/nevindra/axon/tools/shell"
)

func main() {
	configPath := flag.String("config", "", "path to axon.toml")
	task := flag.String("task", "", "run one task and exit instead of the interactive shell")
	verbose := flag.Bool("v", false, "log to stderr")
	flag.Parse()

	cfg := config.Load(*configPath)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agent, cleanup, err := buildAgent(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "axon:", err)
		os.Exit(1)
	}
	defer cleanup()

	if *task != "" {
		runOnce(ctx, agent, *task)
		return
	}
	runShell(ctx, agent)
}

// buildAgent wires config into a driver: provider with retry, memory
// stores, workspace tools, approval gating, and optional tracing.
func buildAgent(ctx context.Context, cfg config.Config, logger *slog.Logger) (*axon.Driver, func(), error) {
	provider := openaicompat.New(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)

	cleanup := func() {}
	opts := []axon.Option{
		axon.WithModel(cfg.LLM.Model),
		axon.WithSystemPrompt(cfg.Agent.SystemPrompt),
		axon.WithMaxIterations(cfg.Agent.MaxIterations),
		axon.WithTokenBudget(cfg.Agent.TokenBudget),
		axon.WithLogger(logger),
		axon.WithLLMRetry(axon.RetryMaxAttempts(cfg.LLM.MaxAttempts)),
		axon.WithTools(
			calc.New(),
			shell.New(cfg.Tools.WorkspacePath, cfg.Tools.TimeoutSeconds),
			file.New(cfg.Tools.WorkspacePath),
		),
		axon.WithTasks(),
		axon.WithChainOfThought(),
		axon.WithHumanInLoop(),
		axon.WithApprovalGate(approval.NewConsole()),
		axon.WithToolPolicy(axon.ToolPolicy{
			Timeout:        time.Duration(cfg.Tools.TimeoutSeconds) * time.Second,
			RetryOnFail:    cfg.Tools.MaxRetries > 0,
			MaxRetries:     cfg.Tools.MaxRetries,
			RetryBaseDelay: 500 * time.Millisecond,
			MaxConcurrency: cfg.Tools.MaxConcurrency,
		}),
	}

	// Memory stores.
	switch cfg.Memory.Backend {
	case "jsonfile":
		kv, err := jsonfile.NewKvStore(cfg.Memory.Path)
		if err != nil {
			return nil, nil, err
		}
		sessions, err := jsonfile.NewSessionStore(cfg.Memory.SessionPath)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, axon.WithMemory(kv), axon.WithSessionStore(sessions))
	default:
		db := sqlite.New(cfg.Memory.Path, sqlite.WithLogger(logger))
		if err := db.Init(ctx); err != nil {
			return nil, nil, err
		}
		cleanup = func() { db.Close() }
		opts = append(opts, axon.WithMemory(db), axon.WithSessionStore(db.Sessions()))
	}

	if cfg.Agent.SessionID != "" {
		opts = append(opts, axon.WithSessionID(cfg.Agent.SessionID))
	}

	if cfg.Observer.Enabled {
		shutdown, err := observer.Init(ctx, cfg.Agent.Name)
		if err != nil {
			return nil, nil, err
		}
		prev := cleanup
		cleanup = func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(shutdownCtx)
			prev()
		}
		opts = append(opts, axon.WithTracer(observer.NewTracer()))
	}

	agent := axon.NewDriver(cfg.Agent.Name, provider, opts...)
	for _, name := range cfg.Tools.NeedsApproval {
		agent.MarkNeedsApproval(name)
	}
	return agent, cleanup, nil
}

// runOnce executes a single task with streaming output.
func runOnce(ctx context.Context, agent *axon.Driver, task string) {
	ch := make(chan axon.StreamEvent, 64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			printEvent(ev)
		}
	}()
	_, err := agent.ExecuteStream(ctx, task, ch)
	<-done
	if err != nil {
		fmt.Fprintln(os.Stderr, "axon:", err)
		os.Exit(1)
	}
}

// runShell reads tasks line by line, preserving conversation history
// across turns. "/reset" clears history; "/exit" quits.
func runShell(ctx context.Context, agent *axon.Driver) {
	fmt.Println("axon shell — /reset clears history, /exit quits")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/exit":
			return
		case line == "/reset":
			agent.Reset()
			fmt.Println("history cleared")
			continue
		}

		answer, err := agent.Chat(ctx, line)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Println(answer)
	}
}

func printEvent(ev axon.StreamEvent) {
	switch ev.Type {
	case axon.EventToken:
		fmt.Print(ev.Content)
	case axon.EventToolCallStart:
		fmt.Fprintf(os.Stderr, "\n[tool] %s %s\n", ev.Name, string(ev.Args))
	case axon.EventToolCallResult:
		fmt.Fprintf(os.Stderr, "[tool] %s -> %s\n", ev.Name, ev.Content)
	case axon.EventFinalAnswer:
		fmt.Printf("\n%s\n", ev.Content)
	}
}
