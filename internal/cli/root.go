package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/scrapenet/internal/model"
)

// Version is the validator release, overridden at build time with -ldflags
var Version = "v0.3.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "scrapenet",
	Short: "Scrapenet - validator for a decentralized social scraping subnet",
	Long: `Scrapenet runs the validator side of a subnet whose miners scrape
Twitter and Reddit for a search tag.

Each round it queries a sample of miners, validates their batches,
spot-checks one item per miner against an independent oracle, scores
freshness, volume, uniqueness and relevance, and blends the result into a
long-lived trust vector that is periodically committed as chain weights.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scrapenet %s (protocol %s)\n", Version, model.DefaultConfig().Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.scrapenet/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads .env, the config file and SCRAPENET_* environment variables
func initConfig() {
	// A missing .env is normal outside development
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(home + "/.scrapenet")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("SCRAPENET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig overlays the config file and environment on the defaults
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	bindEnvKeys()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// bindEnvKeys registers the scalar keys so that SCRAPENET_* variables are
// seen by Unmarshal even when the config file does not mention them
func bindEnvKeys() {
	for _, key := range []string{
		"log_level", "netuid", "hotkey", "version",
		"chain.bridge_url", "chain.timeout",
		"query.timeout", "query.workers", "query.keyword_file",
		"loop.sleep",
		"oracle.twitter.provider", "oracle.twitter.api_key", "oracle.twitter.base_url",
		"oracle.reddit.provider", "oracle.reddit.api_key", "oracle.reddit.base_url",
		"trust.backend", "trust.path", "trust.redis.addr", "trust.redis.password",
		"sinks.s3.enabled", "sinks.s3.bucket", "sinks.kafka.enabled", "sinks.kafka.brokers",
		"sinks.sqlite.enabled", "sinks.json_dir.enabled",
		"api.enabled", "api.addr",
	} {
		_ = viper.BindEnv(key)
	}
}

// setupLogging installs the default slog logger at the configured level
func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
