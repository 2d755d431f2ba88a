// Command footprint is offline tooling over the AetherFlow packages:
// profile rebuilds, widget inspection, phrase classification, the challenge
// catalog, category aggregation and schema migrations.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"aetherflow/internal/cli"
	"aetherflow/internal/config"
	"aetherflow/internal/log"
)

var version = "dev"

// app carries per-invocation state so each command tree has its own viper.
type app struct {
	cfgFile string
	v       *viper.Viper
	logger  *log.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "footprint",
		Short: "Inspect and rebuild AetherFlow emission profiles",
		Long: `footprint runs the AetherFlow profile pipeline from the command line.

Settings come from the environment (and .env), then an optional config
file, then flags. Later sources win.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: a.initConfig,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default: ./footprint.yaml if present)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (text, json)")
	flags.String("db", "", "SQLite database path")
	flags.String("backend", "", "data backend (sqlite, memory)")

	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = a.v.BindPFlag("log_format", flags.Lookup("log-format"))
	_ = a.v.BindPFlag("sqlite_db_path", flags.Lookup("db"))
	_ = a.v.BindPFlag("data_backend", flags.Lookup("backend"))

	root.AddCommand(a.rebuildCmd())
	root.AddCommand(a.widgetCmd())
	root.AddCommand(a.classifyCmd())
	root.AddCommand(a.challengesCmd())
	root.AddCommand(a.aggregateCmd())
	root.AddCommand(a.migrateCmd())

	return root
}

func main() {
	cli.LoadEnvFile()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) initConfig(cmd *cobra.Command, _ []string) error {
	env := config.Load()
	a.v.SetDefault("log_level", "warn")
	a.v.SetDefault("log_format", "text")
	a.v.SetDefault("sqlite_db_path", env.SQLiteDBPath)
	a.v.SetDefault("data_backend", env.DataBackend)
	a.v.SetDefault("months_back", env.MonthsBack)
	a.v.SetDefault("connect_earth_base_url", env.ConnectEarthBaseURL)
	a.v.SetDefault("connect_earth_api_key", env.ConnectEarthAPIKey)
	a.v.SetDefault("connect_earth_timeout", env.ConnectEarthTimeout)
	a.v.SetDefault("default_currency", env.DefaultCurrency)
	a.v.SetDefault("default_geo", env.DefaultGeo)

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("footprint")
		a.v.SetConfigType("yaml")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	a.logger = log.New(log.Config{
		Level:     log.ParseLevel(a.v.GetString("log_level")),
		Format:    a.v.GetString("log_format"),
		Component: log.ComponentCLI,
		Output:    cmd.ErrOrStderr(),
	})
	return nil
}

// appConfig resolves the service configuration with config file and flag
// overrides applied on top of the environment.
func (a *app) appConfig() (*config.Config, error) {
	cfg := config.Load()
	cfg.SQLiteDBPath = a.v.GetString("sqlite_db_path")
	cfg.DataBackend = strings.ToLower(a.v.GetString("data_backend"))
	cfg.MonthsBack = a.v.GetInt("months_back")
	cfg.ConnectEarthBaseURL = a.v.GetString("connect_earth_base_url")
	cfg.ConnectEarthAPIKey = a.v.GetString("connect_earth_api_key")
	cfg.ConnectEarthTimeout = a.v.GetDuration("connect_earth_timeout")
	cfg.DefaultCurrency = a.v.GetString("default_currency")
	cfg.DefaultGeo = a.v.GetString("default_geo")
	cfg.LogLevel = a.v.GetString("log_level")
	cfg.LogFormat = a.v.GetString("log_format")
	// the CLI never exports to sheets or talks to the broker
	cfg.GoogleSpreadsheetID = ""
	cfg.AMQPURL = ""

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
