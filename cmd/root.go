package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	dbPath      string
	dbDriver    string
	backendKind string
	remoteURL   string
	principalID string
	redisURL    string
	logLevel    string
	logFormat   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "case-console",
	Short: "Terminal console for triaging medical imaging cases",
	Long: `case-console keeps a live collection of imaging cases, derives a clinical
priority from each AI severity rating, and lets an operator filter, select and
act on many cases at once.

Features:
- Periodic refresh against SQLite, PostgreSQL or a REST backend
- Terminal dashboard with manual-upload and system-case views
- Filters by priority, status, image type, body part, assignee, source and confidence
- Bulk status, priority, assignment, archive, delete and spreadsheet export
- Folder ingestion of case records with optional image attachment
- Redis Streams notifications shared between consoles`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.case-console.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "./data/case-console.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "driver", "sqlite", "SQL driver (sqlite, postgres)")
	rootCmd.PersistentFlags().StringVar(&backendKind, "backend", "sql", "Store backend (sql, rest)")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote-url", "", "Base URL of the REST backend")
	rootCmd.PersistentFlags().StringVar(&principalID, "principal", "", "Principal id the SQL backend acts as")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis", "", "Redis connection URL for shared notifications")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "Log format (json, console)")

	// Bind flags to viper
	viper.BindPFlag("database.path", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("database.driver", rootCmd.PersistentFlags().Lookup("driver"))
	viper.BindPFlag("store.backend", rootCmd.PersistentFlags().Lookup("backend"))
	viper.BindPFlag("remote.url", rootCmd.PersistentFlags().Lookup("remote-url"))
	viper.BindPFlag("principal.id", rootCmd.PersistentFlags().Lookup("principal"))
	viper.BindPFlag("redis.url", rootCmd.PersistentFlags().Lookup("redis"))
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".case-console")
	}

	// CASE_CONSOLE_REMOTE_API_KEY overrides remote.api_key and so on
	viper.SetEnvPrefix("case_console")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	setDefaults()
}

func setDefaults() {
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "./data/case-console.db")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("store.backend", "sql")
	viper.SetDefault("remote.timeout", "30s")
	viper.SetDefault("remote.retries", 2)
	viper.SetDefault("poll.interval", "60s")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("bulk.concurrency", 4)
	viper.SetDefault("bulk.rps", 0)
	viper.SetDefault("export.dir", ".")
	viper.SetDefault("ingest.pattern", "*.json,*.jsonl")
}

// GetConfig returns the current configuration values
func GetConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver: viper.GetString("database.driver"),
			Path:   viper.GetString("database.path"),
			DSN:    viper.GetString("database.dsn"),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(viper.GetString("store.backend")),
		},
		Remote: RemoteConfig{
			URL:         viper.GetString("remote.url"),
			APIKey:      viper.GetString("remote.api_key"),
			AccessToken: viper.GetString("remote.access_token"),
			Timeout:     viper.GetDuration("remote.timeout"),
			Retries:     viper.GetInt("remote.retries"),
		},
		Principal: PrincipalConfig{
			ID: viper.GetString("principal.id"),
		},
		Poll: PollConfig{
			Interval: viper.GetDuration("poll.interval"),
		},
		Redis: RedisConfig{
			URL: viper.GetString("redis.url"),
		},
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
		Bulk: BulkConfig{
			Concurrency: viper.GetInt("bulk.concurrency"),
			RPS:         viper.GetFloat64("bulk.rps"),
		},
		Metrics: MetricsConfig{
			Addr: viper.GetString("metrics.addr"),
		},
		Export: ExportConfig{
			Dir: viper.GetString("export.dir"),
		},
		Ingest: IngestConfig{
			Dir:     viper.GetString("ingest.dir"),
			Pattern: viper.GetString("ingest.pattern"),
		},
	}
}

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Store     StoreConfig     `mapstructure:"store"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	Principal PrincipalConfig `mapstructure:"principal"`
	Poll      PollConfig      `mapstructure:"poll"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	Bulk      BulkConfig      `mapstructure:"bulk"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Export    ExportConfig    `mapstructure:"export"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

type RemoteConfig struct {
	URL         string        `mapstructure:"url"`
	APIKey      string        `mapstructure:"api_key"`
	AccessToken string        `mapstructure:"access_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retries     int           `mapstructure:"retries"`
}

type PrincipalConfig struct {
	ID string `mapstructure:"id"`
}

type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BulkConfig struct {
	Concurrency int     `mapstructure:"concurrency"`
	RPS         float64 `mapstructure:"rps"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

type IngestConfig struct {
	Dir     string `mapstructure:"dir"`
	Pattern string `mapstructure:"pattern"`
}
