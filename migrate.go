package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"messaging-service/internal/db"
)

func NewMigrateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			database, err := db.Connect(cmd.Context(), cfg.DBDSN, true)
			if err != nil {
				return err
			}
			defer database.Close()
			log.Info().Msg("schema up to date")
			return nil
		},
	}
}
