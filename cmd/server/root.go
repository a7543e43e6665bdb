package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prasenjit/go-replay/internal/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "go-replay",
		Short: "Go-Replay - record/replay proxy for HTTP APIs",
		Long: `Go-Replay answers HTTP requests with previously recorded responses.
Endpoints are classified by path, matching policies decide which request
dimensions must agree, and the closest recorded exchange is replayed.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// GOREPLAY_SERVER_PORT overrides server.port
	viper.SetEnvPrefix("GOREPLAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every config key so environment overrides apply
func setDefaults() {
	d := config.Default()

	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.host", d.Server.Host)

	viper.SetDefault("storage.type", d.Storage.Type)
	viper.SetDefault("storage.path", d.Storage.Path)
	viper.SetDefault("storage.redis.addr", d.Storage.Redis.Addr)
	viper.SetDefault("storage.redis.password", d.Storage.Redis.Password)
	viper.SetDefault("storage.redis.db", d.Storage.Redis.DB)
	viper.SetDefault("storage.redis.prefix", d.Storage.Redis.Prefix)

	viper.SetDefault("tracing.maxTraces", d.Tracing.MaxTraces)
	viper.SetDefault("tracing.retention", d.Tracing.Retention.String())

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)
	viper.SetDefault("logging.file", d.Logging.File)
	viper.SetDefault("logging.maxSizeMB", d.Logging.MaxSizeMB)
	viper.SetDefault("logging.maxBackups", d.Logging.MaxBackups)
	viper.SetDefault("logging.maxAgeDays", d.Logging.MaxAgeDays)
	viper.SetDefault("logging.compress", d.Logging.Compress)

	viper.SetDefault("replay.versionHeader", d.Replay.VersionHeader)
	viper.SetDefault("replay.platformHeader", d.Replay.PlatformHeader)
	viper.SetDefault("replay.languageHeader", d.Replay.LanguageHeader)
	viper.SetDefault("replay.environmentHeader", d.Replay.EnvironmentHeader)
	viper.SetDefault("replay.defaultEnvironment", d.Replay.DefaultEnvironment)
	viper.SetDefault("replay.maxBodyBytes", d.Replay.MaxBodyBytes)
}

// loadConfig builds the effective configuration from viper
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
