package main

import (
	"errors"
	"io/fs"

	"github.com/MimeLyc/synced-lyrics/internal/config"
	"github.com/MimeLyc/synced-lyrics/pkg/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type globalFlags struct {
	envFile  string
	dataDir  string
	logLevel string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "lyricsd",
		Short:         "Synced lyrics resolver",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "Override DATA_DIR")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override LOG_LEVEL")

	rootCmd.AddCommand(newServeCommand(flags))
	rootCmd.AddCommand(newResolveCommand(flags))
	rootCmd.AddCommand(newPruneCommand(flags))
	return rootCmd
}

// loadConfig reads the dotenv file, the environment and the persisted
// runtime settings, in that order of precedence from lowest to highest.
func loadConfig(flags *globalFlags, extra ...config.Option) (*config.Config, error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	opts := append([]config.Option(nil), extra...)
	if flags.dataDir != "" {
		opts = append(opts, config.WithDataDir(flags.dataDir))
	}
	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.System.LogLevel = flags.logLevel
	}
	log.InitLogger(log.ParseLevel(cfg.System.LogLevel))

	settings, err := config.LoadRuntimeSettingsFile(cfg.RuntimeSettingsFilePath())
	switch {
	case err == nil:
		if err := settings.Validate(); err != nil {
			log.Warn("Ignoring invalid runtime settings file: %v", err)
			break
		}
		config.WithRuntimeSettings(settings)(cfg)
		log.Info("Loaded runtime settings from %s", cfg.RuntimeSettingsFilePath())
	case errors.Is(err, fs.ErrNotExist):
	default:
		log.Warn("Failed to read runtime settings: %v", err)
	}
	return cfg, nil
}
