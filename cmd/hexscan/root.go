package main

import (
	"log/slog"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/hexscan/internal/core/config"
	"github.com/mohammed-shakir/hexscan/internal/logger"
)

var (
	cfg      config.Config
	appLog   *slog.Logger
	logLevel string
	zl       zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "hexscan",
	Short:         "Scan hexagonal rings around a position for nearby entities",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg = config.FromEnv()
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}
		// logs go to stderr so plan/scan output stays machine readable
		zl = logger.Build(logger.Config{
			Level:     cfg.Log.Level,
			Console:   cfg.Log.Console,
			SampleN:   cfg.Log.SampleN,
			Component: cmd.Name(),
		}, os.Stderr)
		appLog = logger.NewSlog(&zl)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace|debug|info|warn|error)")
	rootCmd.Version = Version
}
