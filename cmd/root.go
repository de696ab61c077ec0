package cmd

import (
	"fmt"
	"os"
	"strings"

	"gym-snapshot/internal/access"
	"gym-snapshot/internal/database"
	"gym-snapshot/internal/display"
	"gym-snapshot/internal/logging"
	"gym-snapshot/internal/snapshot"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "GYM_SNAPSHOT"

var cfgFile string

// CLI flag variables
var (
	verbose      bool
	quiet        bool
	debug        bool
	logFormat    string
	logFile      string
	noColor      bool
	theme        string
	outputFormat string
	tableStyle   string
)

// AppConfig is everything the CLI reads from the config file and environment
type AppConfig struct {
	Database database.DatabaseConfig `mapstructure:"database" yaml:"database"`
	Snapshot snapshot.Config         `mapstructure:"snapshot" yaml:"snapshot"`
	Access   access.Config           `mapstructure:"access" yaml:"access"`
	Logging  LoggingConfig           `mapstructure:"logging" yaml:"logging"`
}

// LoggingConfig controls the application log
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file"`
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gym-snapshot",
	Short: "Back up and restore the gym database as portable JSON snapshots",
	Long: `gym-snapshot serializes the gym management database (tenants, users,
students, measurements, assessments, exercises, workouts and their executions)
into a portable JSON snapshot and restores a snapshot atomically.

A full snapshot carries every entity set. A selective snapshot carries a chosen
subset, optionally filtered to one tenant. Restore empties the store in reverse
dependency order and recreates the snapshot's sets in dependency order inside a
single transaction; any failure leaves the store untouched.

Examples:
  # List stored snapshots
  gym-snapshot snapshot list

  # Full snapshot of the whole store
  gym-snapshot snapshot create --scope completo

  # Selective snapshot of one tenant's students and measurements
  gym-snapshot snapshot create --scope seletivo --tenant T1 --tables alunos,medidas

  # Restore a stored snapshot
  gym-snapshot snapshot restore backup-20250301-100000.000-completo-0a1b2c3d.json --yes

  # Print the dependency order
  gym-snapshot snapshot order`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", describeError(err))
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.gym-snapshot.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	flags.BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	flags.BoolVar(&debug, "debug", false, "log every SQL statement")
	flags.StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	flags.StringVar(&logFile, "log-file", "", "also write logs to this file")
	flags.BoolVar(&noColor, "no-color", false, "disable color output")
	flags.StringVar(&theme, "theme", "dark", "color theme (dark, light, plain)")
	flags.StringVar(&outputFormat, "format", "table", "output format (table, json, yaml)")
	flags.StringVar(&tableStyle, "table-style", "default", "table style (default, rounded, compact)")

	viper.BindPFlag("logging.format", flags.Lookup("log-format"))
	viper.BindPFlag("logging.file", flags.Lookup("log-file"))
	viper.BindPFlag("display.theme", flags.Lookup("theme"))
	viper.BindPFlag("display.format", flags.Lookup("format"))
	viper.BindPFlag("display.table_style", flags.Lookup("table-style"))

	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
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
		viper.SetConfigName(".gym-snapshot")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvKeys()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// bindEnvKeys registers nested keys so Unmarshal sees GYM_SNAPSHOT_* values
// even when no config file mentions them.
func bindEnvKeys() {
	for _, key := range []string{
		"database.driver", "database.host", "database.port", "database.username",
		"database.password", "database.database", "database.path", "database.timeout",
		"logging.level",
		"access.default_role",
	} {
		viper.BindEnv(key)
	}
}

// loadAppConfig merges the config file, environment and flags, then applies
// defaults and validates every section.
func loadAppConfig() (*AppConfig, error) {
	config := &AppConfig{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	config.Database.SetDefaults()
	if err := config.Database.Validate(); err != nil {
		return nil, err
	}

	config.Snapshot.LoadFromEnvironment()
	config.Snapshot.SetDefaults()
	if err := config.Snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot configuration validation failed: %w", err)
	}

	config.Access.SetDefaults()
	config.Access.LoadFromEnvironment()
	if err := config.Access.Validate(); err != nil {
		return nil, fmt.Errorf("access configuration validation failed: %w", err)
	}

	return config, nil
}

// newLogger builds the application logger from flags and the logging section
func newLogger(config LoggingConfig) (*logging.Logger, error) {
	level := logging.ParseLevel(config.Level)
	switch {
	case debug:
		level = logging.LogLevelDebug
	case verbose:
		level = logging.LogLevelVerbose
	case quiet:
		level = logging.LogLevelQuiet
	}

	return logging.NewLogger(logging.Config{
		Level:   level,
		Format:  config.Format,
		LogFile: config.File,
	})
}

// newPrinter builds the stdout printer from the display flags
func newPrinter(cmd *cobra.Command) (*display.Printer, error) {
	format, err := display.ParseOutputFormat(setting(cmd, "format", "display.format", outputFormat))
	if err != nil {
		return nil, err
	}

	colorTheme := display.GetThemeByName(setting(cmd, "theme", "display.theme", theme))
	if noColor {
		colorTheme = display.PlainTextTheme()
	}

	printer := display.NewPrinter(cmd.OutOrStdout(), format, colorTheme)
	printer.SetTableStyle(display.GetTableStyleByName(setting(cmd, "table-style", "display.table_style", tableStyle)))
	return printer, nil
}

// setting prefers an explicit flag, then the config file, then the flag default
func setting(cmd *cobra.Command, flag, key, value string) string {
	if cmd.Flags().Changed(flag) {
		return value
	}
	if v := viper.GetString(key); v != "" {
		return v
	}
	return value
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
		Long:  "Print the version information for gym-snapshot",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "gym-snapshot version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Go version: %s\n", goVersion)
		},
	}
}

// createConfigCommand creates the config subcommand for generating sample config
func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Generate a sample configuration file",
		Long: `Generate a sample configuration file that can be used with the --config flag.

Examples:
  gym-snapshot config > ~/.gym-snapshot.yaml`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), sampleConfig())
		},
	}
}

// sampleConfig nests the snapshot engine defaults under the CLI sections
func sampleConfig() string {
	var b strings.Builder
	b.WriteString(`# gym-snapshot configuration
# Every key can also be set as an environment variable, for example
# GYM_SNAPSHOT_DATABASE_PASSWORD or SNAPSHOT_STORAGE_PROVIDER.

# Destination store
database:
  driver: mysql          # mysql or sqlite3
  host: localhost
  port: 3306
  username: gym
  password: ""           # prefer GYM_SNAPSHOT_DATABASE_PASSWORD
  database: academia
  # path: ./gym.db       # sqlite3 only
  timeout: 30s

# Who may do what. Actions: list, create, download, delete, restore; "*" means all.
access:
  default_role: viewer
  roles:
    admin: ["*"]
    operator: [list, create, download]
    viewer: [list]

logging:
  level: normal          # quiet, normal, verbose, debug
  format: text           # text or json
  file: ""

snapshot:
`)
	for _, line := range strings.Split(strings.TrimRight(string(snapshot.GenerateDefaultConfigYAML()), "\n"), "\n") {
		if line == "" {
			b.WriteString("\n")
			continue
		}
		b.WriteString("  " + line + "\n")
	}
	return b.String()
}
