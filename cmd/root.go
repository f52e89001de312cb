package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/attendant/internal/config"
	"github.com/andresmejia3/attendant/internal/ledger"
	"github.com/andresmejia3/attendant/internal/logger"
	"github.com/andresmejia3/attendant/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// needsLedger marks commands that open the attendance store in PersistentPreRunE.
const needsLedger = "ledger"

var (
	// Cfg is the effective configuration: env, then config file, then flags.
	Cfg *config.Config
	// Ledger is the attendance ledger shared by subcommands that need it
	Ledger *ledger.Ledger

	cfgErr     error
	configPath string
	verbose    bool

	galleryDir string
	backend    string
	recordsDir string
	dbURL      string
	sqlitePath string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "attendant",
	Short:   "Face recognition attendance recorder",
	Long:    "Attendant recognizes enrolled people on a camera feed and records one attendance entry per person per day.",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.SetVerbose(verbose)
		if cfgErr != nil {
			return cfgErr
		}
		applyRootFlags(cmd)
		if err := Cfg.Validate(); err != nil {
			return err
		}

		if cmd.Annotations[needsLedger] == "" {
			return nil
		}
		logger.Info("opening attendance store: %s", store.Describe(Cfg.Store))
		// Use the command's context (which will be cancellable) for the connection
		s, err := openStore(cmd.Context(), Cfg.Store)
		if err != nil {
			return fmt.Errorf("failed to open attendance store: %w", err)
		}
		Ledger = ledger.New(s)
		return nil
	},
}

// openStore is swapped in tests.
var openStore = store.Open

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run executes the command line. The store is closed here rather than in a
// post-run hook, since cobra skips those when a command fails.
func run(ctx context.Context) error {
	defer closeLedger()
	return rootCmd.ExecuteContext(ctx)
}

func closeLedger() {
	if Ledger == nil {
		return
	}
	if err := Ledger.Store().Close(); err != nil {
		logger.Warn("closing attendance store: %v", err)
	}
	Ledger = nil
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file (default: attendant.yaml if present)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Print per-frame diagnostics to stderr")
	pf.StringVar(&galleryDir, "gallery", "", "Directory of enrolled face samples (default: known_faces)")
	pf.StringVar(&backend, "store", "", "Attendance store: csv, postgres or sqlite (default: csv)")
	pf.StringVar(&recordsDir, "records", "", "Directory for the daily CSV tables (default: attendance_records)")
	pf.StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: postgres://localhost:5432/attendant)")
	pf.StringVar(&sqlitePath, "sqlite", "", "SQLite database file (default: attendance_records/attendance.db)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	Cfg = config.Load()
	path, required := configPath, true
	if path == "" {
		path, required = "attendant.yaml", false
	}
	cfgErr = Cfg.ApplyFile(path, required)
}

// applyRootFlags lets explicit persistent flags override env and file values.
func applyRootFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("gallery") {
		Cfg.Gallery.Dir = galleryDir
	}
	if f.Changed("store") {
		Cfg.Store.Backend = backend
	}
	if f.Changed("records") {
		Cfg.Store.RecordsDir = recordsDir
	}
	if f.Changed("db") {
		Cfg.Store.DatabaseURL = dbURL
	}
	if f.Changed("sqlite") {
		Cfg.Store.SQLitePath = sqlitePath
	}
}
