package main

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"messaging-service/internal/config"
	"messaging-service/internal/observability"
)

var envFile = ".env"

var rootCmd = &cobra.Command{
	Use:           "messaging-service",
	Short:         "Conversations, threaded messages and notifications over HTTP and websockets",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	v := viper.New()

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", envFile, "Optional dotenv file with configuration")
	config.BindFlags(rootCmd.PersistentFlags(), v)

	rootCmd.AddCommand(
		NewServeCommand(v),
		NewMigrateCommand(v),
		NewSetupRolesCommand(v),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// loadConfig resolves and validates the configuration and installs the process logger.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg, err := config.Load(v, envFile)
	if err != nil {
		return nil, err
	}
	if _, err := observability.NewLogger(cfg.LogLevel, cfg.LogPretty); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
