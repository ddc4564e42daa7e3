// Asistente is a conversational catalog assistant for an online store.
//
// It exposes a JSON chat API backed by an LLM-driven dialogue loop over
// a local product catalog, a websocket chat endpoint, a minimal web UI,
// and a CLI for one-shot questions and supplier synchronization.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	asistente serve              Start the API server
//	asistente init [dir]         Write a starter config.yaml
//	asistente ask <pregunta>     Ask a single question (for testing)
//	asistente sync <id> [id...]  Pull supplier products into the catalog
//	asistente sync -q <texto>    Search the supplier and sync the matches
//	asistente version            Print version and build information
//	asistente -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tiendamx/asistente-catalogo/internal/agent"
	"github.com/tiendamx/asistente-catalogo/internal/api"
	"github.com/tiendamx/asistente-catalogo/internal/buildinfo"
	"github.com/tiendamx/asistente-catalogo/internal/config"
	"github.com/tiendamx/asistente-catalogo/internal/llm"
	"github.com/tiendamx/asistente-catalogo/internal/session"
	"github.com/tiendamx/asistente-catalogo/internal/store"
	"github.com/tiendamx/asistente-catalogo/internal/supplier"
	catsync "github.com/tiendamx/asistente-catalogo/internal/sync"
	"github.com/tiendamx/asistente-catalogo/internal/tools"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit, os.Stdout, and os.Args out of the application logic so the
// full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible to
// call run() concurrently from tests, and the argument surface here is
// small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: asistente ask <pregunta>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "sync":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: asistente sync <id> [id...] | sync -q <texto>")
		}
		return runSync(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// components holds everything a subcommand needs after startup.
type components struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.Store
	llm        llm.Client
	controller *agent.Controller
}

// bootstrap loads config, opens the catalog, and builds the dialogue
// controller with both tools registered.
func bootstrap(stdout io.Writer, configPath string) (*components, error) {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	logger.Info("config loaded", "path", cfgPath)

	st, err := store.Open(cfg.Catalog.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	client := llm.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLMTimeout())

	reg := tools.NewRegistry()
	reg.Register(tools.NewSearchTool(st, cfg.Catalog.BranchSlug, logger))
	reg.Register(tools.NewDetailTool(st, client, cfg.Catalog.BranchSlug, tools.SummaryConfig{
		Model:       cfg.LLM.SummaryModel,
		MaxTokens:   cfg.LLM.SummaryMaxTok,
		Temperature: cfg.LLM.SummaryTemp,
	}, logger))

	ctrl := agent.New(client, reg, agent.Config{
		MaxIterations: cfg.Agent.MaxIterations,
		TurnTimeout:   cfg.TurnTimeout(),
		Temperature:   cfg.LLM.Temperature,
		MaxTokens:     cfg.LLM.MaxTokens,
	}, logger)

	return &components{cfg: cfg, logger: logger, store: st, llm: client, controller: ctrl}, nil
}

// runServe starts the API server and blocks until SIGINT/SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	c, err := bootstrap(stdout, configPath)
	if err != nil {
		return err
	}
	defer c.store.Close()

	c.logger.Info("starting", "build", buildinfo.String())

	sup := supplier.NewClient(
		c.cfg.Supplier.BaseURL,
		c.cfg.Supplier.ClientID,
		c.cfg.Supplier.ClientSecret,
		time.Duration(c.cfg.Supplier.TimeoutSec)*time.Second,
		c.logger,
	)
	tracker := catsync.NewTracker()
	worker := catsync.NewWorker(sup, c.store, tracker, c.logger)

	sessions := session.NewStore()
	server := api.NewServer(
		c.cfg.Listen.Address, c.cfg.Listen.Port,
		c.controller, sessions, c.store, worker, tracker,
		c.llm, c.cfg.Pricing.IVA, c.cfg.Catalog.BranchSlug,
		c.logger,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	c.logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}

// runAsk processes a single question against a throwaway session and
// prints the answer. Useful for smoke tests without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	c, err := bootstrap(stdout, configPath)
	if err != nil {
		return err
	}
	defer c.store.Close()

	question := strings.Join(args, " ")
	sess := &session.Session{ID: "cli"}

	answer, err := c.controller.HandleTurn(ctx, sess, question)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(stdout, answer)
	return nil
}

// runSync pulls the named supplier products into the catalog
// synchronously and prints the outcome.
func runSync(ctx context.Context, stdout io.Writer, configPath string, ids []string) error {
	c, err := bootstrap(stdout, configPath)
	if err != nil {
		return err
	}
	defer c.store.Close()

	sup := supplier.NewClient(
		c.cfg.Supplier.BaseURL,
		c.cfg.Supplier.ClientID,
		c.cfg.Supplier.ClientSecret,
		time.Duration(c.cfg.Supplier.TimeoutSec)*time.Second,
		c.logger,
	)
	tracker := catsync.NewTracker()
	worker := catsync.NewWorker(sup, c.store, tracker, c.logger)

	// "-q texto" syncs the supplier's search matches for that text
	// instead of an explicit id list.
	if ids[0] == "-q" {
		if len(ids) < 2 {
			return fmt.Errorf("usage: asistente sync -q <texto>")
		}
		query := strings.Join(ids[1:], " ")
		ids, err = worker.ResolveQuery(ctx, query)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		if len(ids) == 0 {
			return fmt.Errorf("sync: no supplier products match %q", query)
		}
		fmt.Fprintf(stdout, "Encontrados %d productos para %q\n", len(ids), query)
	}

	if err := worker.Run(ctx, "cli", ids); err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	p := tracker.Get("cli")
	fmt.Fprintf(stdout, "Sync: %d procesados, %d correctos, %d con error\n", p.Processed, p.Success, p.Errors)
	if p.Errors > 0 {
		fmt.Fprintf(stdout, "Último error: %s\n", p.LastError)
	}
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Asistente - Conversational catalog assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: asistente [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve              Start the API server")
	fmt.Fprintln(w, "  init [dir]         Write a starter config.yaml (default: .)")
	fmt.Fprintln(w, "  ask <pregunta>     Ask a single question (for testing)")
	fmt.Fprintln(w, "  sync <id> [id...]  Pull supplier products into the catalog")
	fmt.Fprintln(w, "  sync -q <texto>    Search the supplier and sync the matches")
	fmt.Fprintln(w, "  version            Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/asistente/config.yaml, /etc/asistente/config.yaml")
	return nil
}
