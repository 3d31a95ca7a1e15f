package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq" // postgres driver
	"github.com/redis/go-redis/v9"

	"github.com/relaykit/actionplane/pkg/actions"
	"github.com/relaykit/actionplane/pkg/audit"
	"github.com/relaykit/actionplane/pkg/catalog"
	"github.com/relaykit/actionplane/pkg/config"
	"github.com/relaykit/actionplane/pkg/ratebucket"
	"github.com/relaykit/actionplane/pkg/store"
	"github.com/relaykit/actionplane/pkg/worker"
)

// ANSI colors
const (
	ColorReset  = "\033[0m"
	ColorBold   = "\033[1m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[37m"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the CLI entrypoint, separated from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 1
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	switch args[1] {
	case "start":
		return runStart(cfg, args[2:], stdout, stderr)
	case "status":
		return runStatus(cfg, args[2:], stdout, stderr)
	case "drain":
		return runDrain(cfg, args[2:], stdout, stderr)
	case "retry-dlq":
		return runRetryDLQ(cfg, args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "%sactionplane%s — tenant-scoped action control plane\n\n", ColorBold+ColorCyan, ColorReset)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  actionplane <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintf(w, "  %sstart%s [--once]                       run the outbox worker loop\n", ColorGreen, ColorReset)
	fmt.Fprintf(w, "  %sstatus%s --tenant T                     print pending/DLQ counts for a tenant\n", ColorGreen, ColorReset)
	fmt.Fprintf(w, "  %sdrain%s --tenant T [--limit L=50]       requeue DLQ rows back to pending\n", ColorGreen, ColorReset)
	fmt.Fprintf(w, "  %sretry-dlq%s --tenant T --envelope E     requeue a single DLQ envelope\n", ColorGreen, ColorReset)
	fmt.Fprintln(w, "")
}

// wiring holds the dependencies every subcommand needs; built once per
// process from cfg.
type wiring struct {
	outbox   store.OutboxStore
	catalog  catalog.Store
	auditLog audit.Log
	actions  worker.ActionsProjector
	limiter  ratebucket.Limiter
	logger   *slog.Logger
}

func buildWiring(cfg *config.Config) (*wiring, func(), error) {
	logger := slog.Default()
	closeFn := func() {}

	if cfg.DatabaseURL == "" {
		return &wiring{
			outbox:   store.NewInMemoryOutboxStore(),
			catalog:  catalog.NewInMemoryStore(),
			auditLog: audit.NewInMemoryLog(),
			actions:  actions.NewInMemoryProjector(),
			limiter:  ratebucket.NewInProcessLimiter(ratebucket.DefaultConfig()),
			logger:   logger,
		}, closeFn, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, closeFn, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, closeFn, fmt.Errorf("pinging database: %w", err)
	}
	closeFn = func() { db.Close() }

	limiter := ratebucket.Limiter(ratebucket.NewInProcessLimiter(ratebucket.DefaultConfig()))
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			db.Close()
			return nil, closeFn, fmt.Errorf("pinging redis: %w", err)
		}
		prevClose := closeFn
		closeFn = func() { prevClose(); rdb.Close() }
		limiter = ratebucket.NewRedisLimiter(rdb, ratebucket.DefaultConfig())
		logger.Info("rate bucket backed by redis", "addr", cfg.RedisAddr)
	}

	w := &wiring{
		outbox:   store.NewPostgresOutboxStore(db),
		catalog:  catalog.NewPostgresStore(db),
		auditLog: audit.NewPostgresLog(db),
		actions:  actions.NewPostgresProjector(db),
		limiter:  limiter,
		logger:   logger,
	}

	return w, closeFn, nil
}

func runStart(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	fs.SetOutput(stderr)
	once := fs.Bool("once", false, "process a single batch then exit")
	seedPath := fs.String("seed", "", "path to a catalog seed YAML file to load before starting")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	w, closeFn, err := buildWiring(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "wiring: %v\n", err)
		return 1
	}
	defer closeFn()

	if *seedPath != "" {
		if err := catalog.LoadSeedFile(context.Background(), w.catalog, *seedPath); err != nil {
			fmt.Fprintf(stderr, "seed: %v\n", err)
			return 1
		}
	}

	proc := &worker.Processor{
		Catalog:            w.catalog,
		Outbox:             w.outbox,
		Limiter:            w.limiter,
		Audit:              w.auditLog,
		Driver:             noopDriver{},
		Actions:            w.actions,
		Logger:             w.logger,
		MaxAttempts:        cfg.OutboxMaxAttempts,
		PauseOnBareFailure: cfg.OutboxPauseOnBareFailure,
	}

	loop := &worker.Loop{
		Processor: proc,
		Outbox:    w.outbox,
		Config: worker.Config{
			PollInterval: cfg.OutboxPollInterval,
			BatchSize:    cfg.OutboxBatchSize,
			MaxAttempts:  cfg.OutboxMaxAttempts,
		},
		TenantID: cfg.TenantID,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Fprintf(stdout, "%sactionplane worker starting%s (tenant=%s once=%v)\n", ColorBold, ColorReset, cfg.TenantID, *once)
	if err := loop.Run(ctx, *once); err != nil {
		fmt.Fprintf(stderr, "worker: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "worker stopped")
	return 0
}

func runStatus(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tenant := fs.String("tenant", "", "tenant id (defaults to the configured tenant)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *tenant == "" {
		*tenant = cfg.TenantID
	}

	w, closeFn, err := buildWiring(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "wiring: %v\n", err)
		return 1
	}
	defer closeFn()

	op := &worker.OperatorSurface{Outbox: w.outbox}
	status, err := op.Status(context.Background(), *tenant)
	if err != nil {
		fmt.Fprintf(stderr, "status: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "tenant=%s pending=%d dlq=%d\n", *tenant, status.Pending, status.DLQ)
	return 0
}

func runDrain(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("drain", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tenant := fs.String("tenant", "", "tenant id (defaults to the configured tenant)")
	limit := fs.Int("limit", 50, "maximum number of DLQ rows to requeue")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *tenant == "" {
		*tenant = cfg.TenantID
	}

	w, closeFn, err := buildWiring(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "wiring: %v\n", err)
		return 1
	}
	defer closeFn()

	op := &worker.OperatorSurface{Outbox: w.outbox}
	n, err := op.DrainDLQ(context.Background(), *tenant, *limit)
	if err != nil {
		fmt.Fprintf(stderr, "drain: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "requeued %d envelope(s) for tenant=%s\n", n, *tenant)
	return 0
}

func runRetryDLQ(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("retry-dlq", flag.ContinueOnError)
	fs.SetOutput(stderr)
	tenant := fs.String("tenant", "", "tenant id (defaults to the configured tenant)")
	envelope := fs.String("envelope", "", "envelope id to requeue (required)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *tenant == "" {
		*tenant = cfg.TenantID
	}
	if *envelope == "" {
		fmt.Fprintln(stderr, "Error: --envelope is required")
		return 2
	}

	w, closeFn, err := buildWiring(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "wiring: %v\n", err)
		return 1
	}
	defer closeFn()

	op := &worker.OperatorSurface{Outbox: w.outbox}
	found, err := op.RetryDLQ(context.Background(), *tenant, *envelope)
	if err != nil {
		fmt.Fprintf(stderr, "retry-dlq: %v\n", err)
		return 1
	}
	if !found {
		fmt.Fprintf(stderr, "envelope %s not found in dlq\n", *envelope)
		return 2
	}

	fmt.Fprintf(stdout, "envelope %s requeued to pending\n", *envelope)
	return 0
}

// noopDriver is the default ProviderDriver until a deployment wires a real
// Composio/tool-provider client; it always fails, which keeps a freshly
// started worker from silently marking envelopes successful.
type noopDriver struct{}

func (noopDriver) Execute(ctx context.Context, toolSlug string, arguments map[string]any) (map[string]any, error) {
	return nil, fmt.Errorf("no provider driver configured for tool %q", toolSlug)
}
