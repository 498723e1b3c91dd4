package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hiring-data-sync/internal/application"
	"hiring-data-sync/internal/config"
	"hiring-data-sync/internal/display"
	"hiring-data-sync/internal/logging"
)

var cfgFile string

// CLI flag variables
var (
	// Operation flags
	verbose   bool
	quiet     bool
	debug     bool
	timeout   time.Duration
	logFile   string
	logFormat string

	// Display flags
	noColor       bool
	theme         string
	outputFormat  string
	noIcons       bool
	noProgress    bool
	noInteractive bool
	tableStyle    string
	maxTableWidth int
)

// errReported marks an error that was already shown to the user
var errReported = errors.New("command failed")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hiring-data-sync",
	Short: "Load, snapshot and restore the hiring dataset in MySQL",
	Long: `hiring-data-sync moves the hiring dataset (departments, jobs and hired
employees) into a MySQL store and keeps it recoverable.

It ingests validated batches of 1 to 1000 records atomically, bulk-loads CSV
sources in independent batches, writes binary snapshots of a table and
restores them with a replace or merge policy.

Examples:
  # Load every source file from ./raw_data
  hiring-data-sync migrate --all

  # Ingest a JSON request in one transaction
  hiring-data-sync ingest --file request.json

  # Snapshot a table and restore the newest snapshot later
  hiring-data-sync snapshot create --table jobs
  hiring-data-sync restore --table jobs --snapshot latest --policy replace

  # Machine-readable output for scripts
  hiring-data-sync snapshot list --table jobs --format=json`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hiring-data-sync.yaml)")

	// Operation flags
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	flags.BoolVar(&debug, "debug", false, "enable debug logging")
	flags.DurationVar(&timeout, "timeout", 0, "limit for the whole command (0 means no limit)")
	flags.StringVar(&logFile, "log-file", "", "also write logs to this file")
	flags.StringVar(&logFormat, "log-format", "", "log format (text, json)")

	// Display flags
	flags.BoolVar(&noColor, "no-color", false, "disable color output")
	flags.StringVar(&theme, "theme", "dark", "color theme (dark, light, high-contrast, plain)")
	flags.StringVar(&outputFormat, "format", "table", "output format (table, json, yaml, compact)")
	flags.BoolVar(&noIcons, "no-icons", false, "disable Unicode icons")
	flags.BoolVar(&noProgress, "no-progress", false, "disable progress indicators")
	flags.BoolVar(&noInteractive, "no-interactive", false, "disable interactive prompts")
	flags.StringVar(&tableStyle, "table-style", "default", "table style (default, rounded, minimal)")
	flags.IntVar(&maxTableWidth, "max-table-width", 120, "maximum table width (40-300)")

	viper.BindPFlag("timeout", flags.Lookup("timeout"))
	viper.BindPFlag("logging.log_file", flags.Lookup("log-file"))
	viper.BindPFlag("logging.format", flags.Lookup("log-format"))
	viper.BindPFlag("display.theme", flags.Lookup("theme"))
	viper.BindPFlag("display.output_format", flags.Lookup("format"))
	viper.BindPFlag("display.table_style", flags.Lookup("table-style"))
	viper.BindPFlag("display.max_table_width", flags.Lookup("max-table-width"))

	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createIngestCommand())
	rootCmd.AddCommand(createMigrateCommand())
	rootCmd.AddCommand(createSnapshotCommand())
	rootCmd.AddCommand(createRestoreCommand())
	rootCmd.AddCommand(createCheckCommand())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".hiring-data-sync")
	}

	viper.SetEnvPrefix("HIRING_DATA_SYNC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// buildConfig builds the application configuration from the config file,
// the environment and the CLI flags
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	switch {
	case debug:
		cfg.Logging.Level = logging.LogLevelDebug
	case verbose:
		cfg.Logging.Level = logging.LogLevelVerbose
	case quiet:
		cfg.Logging.Level = logging.LogLevelQuiet
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = timeout
	}
	return cfg, nil
}

// buildDisplayConfig builds the display configuration. Inverted flags win
// over the config file.
func buildDisplayConfig(cmd *cobra.Command) (*display.DisplayConfig, error) {
	dc := display.DefaultDisplayConfig()
	if viper.IsSet("display") {
		if err := viper.UnmarshalKey("display", dc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal display configuration: %w", err)
		}
	}
	dc.Theme = viper.GetString("display.theme")
	dc.OutputFormat = display.OutputFormat(viper.GetString("display.output_format"))
	dc.TableStyle = viper.GetString("display.table_style")
	dc.MaxTableWidth = viper.GetInt("display.max_table_width")

	if cmd.Flags().Changed("no-color") {
		dc.ColorEnabled = !noColor
	}
	if cmd.Flags().Changed("no-icons") {
		dc.UseIcons = !noIcons
	}
	if cmd.Flags().Changed("no-progress") {
		dc.ShowProgress = !noProgress
	}
	if cmd.Flags().Changed("no-interactive") {
		dc.InteractiveMode = !noInteractive
	}
	if quiet {
		dc.QuietMode = true
	}
	dc.Writer = cmd.OutOrStdout()
	dc.ErrWriter = cmd.ErrOrStderr()

	dc.SetDefaults()
	if err := dc.Validate(); err != nil {
		return nil, err
	}
	return dc, nil
}

// newPrinter builds the printer for cmd
func newPrinter(cmd *cobra.Command) (*display.Printer, error) {
	dc, err := buildDisplayConfig(cmd)
	if err != nil {
		return nil, err
	}
	return display.NewPrinter(dc), nil
}

// commandContext returns a context canceled on SIGINT/SIGTERM that carries a
// fresh correlation ID
func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	return logging.ContextWithCorrelationID(ctx, uuid.New().String()), stop
}

// runFunc is the body of a command that needs the application
type runFunc func(ctx context.Context, app *application.Application, printer *display.Printer) error

// withApplication builds config, printer and application, runs fn and
// reports its error once
func withApplication(cmd *cobra.Command, fn runFunc) error {
	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := commandContext(cmd.Context())
	defer stop()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	app, err := application.NewApplication(ctx, cfg)
	if err != nil {
		application.ReportError(printer, nil, err)
		return errReported
	}
	defer app.Close()

	logger := app.Logger().With(map[string]interface{}{
		"correlation_id": logging.CorrelationIDFromContext(ctx),
		"command":        cmd.CommandPath(),
	})
	logger.Debug("Command starting")

	if err := fn(ctx, app, printer); err != nil {
		application.ReportError(printer, logger, err)
		return errReported
	}
	return nil
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version information for hiring-data-sync",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "hiring-data-sync version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Go version: %s\n", goVersion)
		},
	}
}
