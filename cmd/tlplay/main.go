package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"tlplay/internal/api"
	"tlplay/internal/config"
	"tlplay/internal/system"
)

var (
	configPath string
	cfg        *config.Config
	logger     zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "tlplay",
	Short:         "Play OpenTimelineIO timelines and media",
	Version:       api.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(afero.NewOsFs(), configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		logger = setupLogger(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tlplay:", err)
		os.Exit(1)
	}
}

// newSystem opens the shared context described by the config.
func newSystem() (*system.Context, error) {
	return system.New(system.Options{
		InfoDB:        cfg.Storage.InfoDB,
		ReaderOptions: cfg.Reader.Options,
		InfoTimeout:   cfg.Reader.InfoTimeout,
	}, logger)
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(os.Stderr).
		With().
		Timestamp().
		Logger()
}
