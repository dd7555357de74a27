/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the general ledger server, and exposes the
  administrative operations (migrate, seed, close, carry-forward, trial
  balance) as subcommands against the same database.

STARTUP SEQUENCE (serve):
  1. Load configuration (YAML or TOML), apply flag overrides
  2. Initialize SQLite store (schema auto-migrated)
  3. Wrap the account registry in the TTL cache
  4. Wire the ledger service with the async audit sink
  5. Configure HTTP router
  6. Start server with graceful shutdown

GLOBAL FLAGS:
  --config  Path to ledger.yaml / ledger.toml (optional; defaults apply)
  --db      SQLite database path, overrides database.path
            Use ":memory:" for an in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Drain the audit queue
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server serve --db=./data/ledger.db

  # Demo data, then serve on a different port
  ./server seed --scenario=first-year --year=2026
  ./server serve --port=3000

  # Year-end from the command line
  ./server close-period --period=<id> --actor=admin
  ./server carry-forward --from=<id> --to=<id> --actor=admin

SEE ALSO:
  - config/config.go: Configuration file
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/hako/durafmt"
	cc "github.com/ivanpirog/coloredcobra"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/warp/general-ledger/config"
	"github.com/warp/general-ledger/ledger"
	"github.com/warp/general-ledger/store/cache"
	"github.com/warp/general-ledger/store/sqlite"
)

var (
	configPath string
	dbPath     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "server",
		Short: "Double-entry general ledger server",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to ledger.yaml or ledger.toml")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")

	rootCmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newSeedCmd(),
		newClosePeriodCmd(),
		newCarryForwardCmd(),
		newTrialBalanceCmd(),
	)

	if isatty.IsTerminal(os.Stdout.Fd()) {
		cc.Init(&cc.Config{
			RootCmd:  rootCmd,
			Headings: cc.HiCyan + cc.Bold + cc.Underline,
			Commands: cc.HiYellow + cc.Bold,
			Example:  cc.Italic,
			ExecName: cc.Bold,
			Flags:    cc.Bold,
		})
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads --config when given, otherwise starts from defaults.
// --db overrides the configured database path.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	return cfg, cfg.Validate()
}

// app holds everything a command needs. close releases it in reverse order.
type app struct {
	cfg     *config.Config
	store   *sqlite.Store
	audit   *ledger.AsyncAuditSink
	service *ledger.Service
	started time.Time
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ttl, err := cfg.Accounts.TTL()
	if err != nil {
		return nil, err
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	accounts := cache.NewAccountDirectory(store, ttl)
	audit := ledger.NewAsyncAuditSink(store, cfg.Audit.Buffer)

	svc := ledger.NewService(store, accounts)
	svc.Audit = audit
	svc.Trail = store
	svc.Refs = ledger.NewReferenceGenerator(cfg.Ledger.ReferencePrefix)
	svc.ReferenceAttempts = cfg.Ledger.ReferenceAttempts
	svc.RetainedEarningsCode = cfg.Ledger.RetainedEarningsCode

	return &app{cfg: cfg, store: store, audit: audit, service: svc, started: time.Now()}, nil
}

func (a *app) close() {
	a.audit.Close()
	if err := a.store.Close(); err != nil {
		log.Printf("[Server] closing database: %v", err)
	}
}

func uptime(since time.Time) string {
	return durafmt.ParseShort(time.Since(since).Round(time.Second)).String()
}
