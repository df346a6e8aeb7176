// Command flock runs the church operations API.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"flock/internal/platform/config"
	"flock/internal/platform/logger"
)

const programName = "flock"

var globalFlags = struct {
	debug   bool
	envFile string
}{}

// setup loads configuration and installs the default logger. --debug
// overrides FLOCK_LOG_LEVEL.
func setup() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(globalFlags.envFile)
	if err != nil {
		return nil, nil, err
	}
	if globalFlags.debug {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg.LogLevel).With("component", programName)
	slog.SetDefault(log)

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		log.Info(fmt.Sprintf(format, v...))
	})); err != nil {
		return nil, nil, fmt.Errorf("set GOMAXPROCS: %w", err)
	}
	return cfg, log, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Church operations API: member lifecycle, notifications and real-time events",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&globalFlags.envFile, "env-file", "", "path to a .env file (default ./.env when present)")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(reconcileCommand())

	if err := rootCmd.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}
