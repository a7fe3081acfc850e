package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetimport/internal/app"
	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/JonMunkholm/sheetimport/internal/sink"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	definitions string
	noBuiltins  bool
	sqlite      string
	databaseURL string
	encoding    string
	delimiter   string
	identity    string
	logLevel    string
	jsonOut     bool
}

var rootCmd = &cobra.Command{
	Use:   "importctl",
	Short: "Import CSV and Excel files into database tables",
	Long: "importctl matches spreadsheet headers to importer fields and loads\n" +
		"the rows into PostgreSQL or SQLite, using the same importers as the server.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.definitions, "definitions", "", "YAML file with importer definitions (IMPORT_DEFINITIONS_FILE)")
	f.BoolVar(&rootFlags.noBuiltins, "no-builtins", false, "skip the built-in importers")
	f.StringVar(&rootFlags.sqlite, "sqlite", "", "SQLite database file (SQLITE_PATH)")
	f.StringVar(&rootFlags.databaseURL, "database-url", "", "PostgreSQL URL, overrides --sqlite (DATABASE_URL)")
	f.StringVar(&rootFlags.encoding, "encoding", "", "charset of CSV files (IMPORT_CSV_ENCODING)")
	f.StringVar(&rootFlags.delimiter, "delimiter", "", `CSV delimiter, a character or "tab" (IMPORT_CSV_DELIMITER)`)
	f.StringVar(&rootFlags.identity, "identity", "", "identity recorded for runs (default: current user)")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "debug, info, warn or error (LOG_LEVEL)")
	f.BoolVar(&rootFlags.jsonOut, "json", false, "print JSON instead of text")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.Version = version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads settings with precedence flags, environment, .env file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	_ = godotenv.Load()

	overrides := map[string]string{}
	set := func(flag, key, value string) {
		if cmd.Flags().Changed(flag) {
			overrides[key] = value
		}
	}
	set("definitions", "IMPORT_DEFINITIONS_FILE", rootFlags.definitions)
	set("no-builtins", "IMPORT_DISABLE_BUILTINS", strconv.FormatBool(rootFlags.noBuiltins))
	set("sqlite", "SQLITE_PATH", rootFlags.sqlite)
	set("database-url", "DATABASE_URL", rootFlags.databaseURL)
	set("encoding", "IMPORT_CSV_ENCODING", rootFlags.encoding)
	set("delimiter", "IMPORT_CSV_DELIMITER", rootFlags.delimiter)
	set("log-level", "LOG_LEVEL", rootFlags.logLevel)

	return config.LoadFrom(func(key string) (string, bool) {
		if v, ok := overrides[key]; ok {
			return v, true
		}
		return os.LookupEnv(key)
	})
}

// env is what every subcommand works with.
type env struct {
	cfg     *config.Config
	logger  *slog.Logger
	writer  sink.Writer
	service *core.Service
}

func openEnv(cmd *cobra.Command) (*env, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format)

	w, err := app.OpenSink(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	reg, err := app.Registry(cfg, w)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	return &env{
		cfg:     cfg,
		logger:  logger,
		writer:  w,
		service: app.Service(cfg, reg, logger),
	}, nil
}

func (e *env) Close() error {
	return e.writer.Close()
}

// capabilities describes the local caller to the import callbacks.
func capabilities() core.Capabilities {
	identity := rootFlags.identity
	if identity == "" {
		if u, err := user.Current(); err == nil {
			identity = u.Username
		}
	}
	host, _ := os.Hostname()
	return core.Capabilities{
		Identity:   identity,
		RemoteAddr: host,
		UserAgent:  "importctl/" + version,
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
