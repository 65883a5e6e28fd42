package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/refitlab/refit/internal/api"
	"github.com/refitlab/refit/internal/classify"
	"github.com/refitlab/refit/internal/config"
	"github.com/refitlab/refit/internal/coordinator"
	"github.com/refitlab/refit/internal/events"
	"github.com/refitlab/refit/internal/filelock"
	"github.com/refitlab/refit/internal/governor"
	"github.com/refitlab/refit/internal/ledger"
	"github.com/refitlab/refit/internal/log"
	"github.com/refitlab/refit/internal/selector"
	"github.com/refitlab/refit/internal/storage"
	"github.com/refitlab/refit/internal/tui"
	"github.com/refitlab/refit/internal/worker"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	case "run":
		return runRun(args)
	case "classify":
		return runClassify(args)
	case "workers":
		return runWorkers(args)
	case "ledger":
		return runLedgerNoun(args)
	case "sessions":
		return runSessions(args)
	case "serve":
		return runServe(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`refit - rate-governed file maintenance orchestrator

Usage:
  refit <command> [flags]

Commands:
  run <target>        Execute a task against a file or directory (dry run by default)
  classify <path>     Show the structural classification of one file
  workers             List registered workers
  ledger stats        Show consumption ledger statistics
  ledger prune        Trim old ledger records
  sessions            Show recent run sessions
  serve               Start the read-only status API
  version             Show version information

Run flags:
  --task <name>       Task to perform: cleanup, refactor, document, harden
  --budget <n>        Cost budget per file (0 = unlimited)
  --apply             Actually modify files (default is dry run)
  --report <file>     Write the session report as JSON
  --watch             Show live progress in a TUI
  --parallelism <n>   Concurrent files (default from config)
  --config <path>     Config file or directory

Examples:
  refit run ./src --task cleanup
  refit run ./src --task harden --budget 100 --apply --report out.json
  refit classify internal/auth/login.go
`)
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *jsonOut {
		data, _ := json.MarshalIndent(versionInfo{version, gitCommit, buildDate}, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	fmt.Printf("refit %s (commit %s, built %s)\n", version, gitCommit, buildDate)
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg, _, err := config.Discover()
	return cfg, err
}

// stack bundles the wired collaborators behind one run.
type stack struct {
	cfg      *config.Config
	ledger   *ledger.Ledger
	registry *worker.Registry
	runner   *coordinator.Runner
	store    *coordinator.SessionStore
	hub      *events.Hub
	close    func()
}

func buildStack(ctx context.Context, configPath string, parallelism int) (*stack, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log.Setup(cfg.Service.LogLevel)

	led, err := ledger.Open(cfg.Ledger.Path, cfg.Ledger.MemoryWindow)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	registry := worker.DefaultRegistry()
	registry.ApplyConfig(cfg.Workers)

	gov := governor.New(cfg.Providers, led)
	locks := filelock.NewManager(filelock.NewJournal(db),
		filelock.WithTimeout(cfg.Locks.AcquireTimeout),
		filelock.WithBackupSuffix(cfg.Locks.BackupSuffix))
	hub := events.NewHub(256)

	coord := coordinator.New(registry, selector.NewSelector(registry), gov,
		coordinator.Locks{Manager: locks}, coordinator.WithHub(hub))
	if parallelism <= 0 {
		parallelism = cfg.Service.Parallelism
	}

	return &stack{
		cfg:      cfg,
		ledger:   led,
		registry: registry,
		runner:   coordinator.NewRunner(coord, parallelism),
		store:    coordinator.NewSessionStore(db),
		hub:      hub,
		close:    func() { _ = db.Close() },
	}, nil
}

func runRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	task := fs.String("task", "", "Task to perform")
	budget := fs.Float64("budget", -1, "Cost budget per file (0 = unlimited)")
	apply := fs.Bool("apply", false, "Actually modify files")
	reportPath := fs.String("report", "", "Write session report JSON to this file")
	watch := fs.Bool("watch", false, "Show live progress TUI")
	parallelism := fs.Int("parallelism", 0, "Concurrent files")
	configPath := fs.String("config", "", "Config file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: refit run <target> [flags]")
		return 1
	}
	target := fs.Arg(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, *configPath, *parallelism)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer st.close()

	if *task == "" {
		*task = st.cfg.Tasks.DefaultTask
	}
	if !selector.KnownTask(*task) {
		fmt.Fprintf(os.Stderr, "Unknown task %q (known: %v)\n", *task, selector.Tasks())
		return 1
	}
	// An unset flag falls back to the config default; an explicit
	// --budget 0 means unlimited.
	if *budget < 0 {
		*budget = st.cfg.Tasks.DefaultBudget
	}

	var report *coordinator.SessionReport
	var runErr error
	if *watch {
		done := make(chan struct{})
		go func() {
			defer close(done)
			report, runErr = st.runner.Run(ctx, target, *task, *budget, *apply)
		}()
		if err := tui.Run(st.hub, *task, target); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
		<-done
	} else {
		report, runErr = st.runner.Run(ctx, target, *task, *budget, *apply)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		return 1
	}

	if err := st.store.Save(ctx, report); err != nil {
		log.Warn("could not persist session", "error", err)
	}
	if *reportPath != "" {
		if err := report.WriteJSON(*reportPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
			return 1
		}
	}

	printSummary(report)
	if report.Totals.Failed > 0 {
		return 1
	}
	return 0
}

func printSummary(r *coordinator.SessionReport) {
	mode := "dry-run"
	if !r.DryRun {
		mode = "applied"
	}
	fmt.Printf("session %s (%s): %d files, %d workers, %d failed, cost %.1f\n",
		r.SessionID, mode, r.Totals.Files, r.Totals.Workers, r.Totals.Failed, r.Totals.TotalCost)
	for _, f := range r.Files {
		status := "ok"
		if f.Error != "" {
			status = "error: " + f.Error
		} else if f.Halted {
			status = "halted"
		}
		fmt.Printf("  %-40s %-9s %d workers  %s\n", f.Path, f.Tier, len(f.Results), status)
	}
}

func runClassify(args []string) int {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output classification as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: refit classify <path> [--json]")
		return 1
	}
	path := fs.Arg(0)

	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	c := classify.Classify(path, content)

	if *jsonOut {
		data, _ := json.MarshalIndent(c, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	fmt.Printf("%s\n", path)
	fmt.Printf("  tier:       %s (score %.1f)\n", c.Tier, c.Score)
	fmt.Printf("  lines:      %d\n", c.Lines)
	fmt.Printf("  callables:  %d\n", c.Callables)
	fmt.Printf("  containers: %d\n", c.Containers)
	if len(c.Tags) > 0 {
		fmt.Printf("  tags:       %v\n", c.Tags)
	}
	return 0
}

func runWorkers(args []string) int {
	fs := flag.NewFlagSet("workers", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output worker catalog as JSON")
	configPath := fs.String("config", "", "Config file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	registry := worker.DefaultRegistry()
	registry.ApplyConfig(cfg.Workers)
	all := registry.All()

	if *jsonOut {
		data, _ := json.MarshalIndent(all, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	for _, d := range all {
		kind := "local"
		if d.ProviderBound {
			kind = "provider:" + d.Provider
		}
		state := "enabled"
		if !d.Enabled {
			state = "disabled"
		}
		mut := "read-only"
		if d.Mutating {
			mut = "mutating"
		}
		fmt.Printf("  %-10s %-16s %-9s %-8s %s\n", d.Name, kind, mut, state, d.Description)
	}
	return 0
}

func runLedgerNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: refit ledger <stats|prune> [flags]")
		return 1
	}
	switch args[0] {
	case "stats":
		return runLedgerStats(args[1:])
	case "prune":
		return runLedgerPrune(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown ledger action: %s\n", args[0])
		return 1
	}
}

func openLedger(configPath string) (*ledger.Ledger, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return ledger.Open(cfg.Ledger.Path, cfg.Ledger.MemoryWindow)
}

func runLedgerStats(args []string) int {
	fs := flag.NewFlagSet("ledger stats", flag.ContinueOnError)
	configPath := fs.String("config", "", "Config file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	led, err := openLedger(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	data, _ := json.MarshalIndent(led.Stats(), "", "  ")
	fmt.Println(string(data))
	return 0
}

func runLedgerPrune(args []string) int {
	fs := flag.NewFlagSet("ledger prune", flag.ContinueOnError)
	keep := fs.Int("keep", 500, "Number of newest records to keep")
	configPath := fs.String("config", "", "Config file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	led, err := openLedger(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	removed, err := led.Prune(*keep)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("pruned %d records, kept %d\n", removed, *keep)
	return 0
}

func runSessions(args []string) int {
	fs := flag.NewFlagSet("sessions", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "Maximum sessions to show")
	configPath := fs.String("config", "", "Config file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx := context.Background()
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer db.Close()

	sessions, err := coordinator.NewSessionStore(db).Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions recorded")
		return 0
	}
	for _, s := range sessions {
		mode := "apply"
		if s.DryRun {
			mode = "dry"
		}
		fmt.Printf("  %s  %-9s %-5s %-30s files=%d failed=%d cost=%.1f\n",
			s.StartedAt.Format("2006-01-02 15:04:05"), s.Task, mode, s.Target,
			s.Files, s.Failures, s.TotalCost)
	}
	return 0
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", "", "Listen address (overrides config)")
	configPath := fs.String("config", "", "Config file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, *configPath, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer st.close()

	addr := st.cfg.API.Listen
	if *listen != "" {
		addr = *listen
	}
	server := api.New(api.Config{Listen: addr}, st.registry, st.ledger, st.runner, st.store, st.hub)
	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
