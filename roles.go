package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"messaging-service/internal/services"
)

type setupRolesFlags struct {
	Password string
}

func (f *setupRolesFlags) BindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.Password, "password", "changeme123", "Password assigned to the seeded accounts")
}

// NewSetupRolesCommand seeds an admin, a moderator and a regular account for trying out role-gated routes.
func NewSetupRolesCommand(v *viper.Viper) *cobra.Command {
	f := &setupRolesFlags{}
	cmd := &cobra.Command{
		Use:   "setup-roles",
		Short: "Create the admin_user, mod_user and regular_user accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			store, closeStore, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			users := services.NewUserService(services.Deps{Store: store, Logger: log.Logger})
			results, err := users.SeedRoles(cmd.Context(), f.Password)
			if err != nil {
				return err
			}
			for _, r := range results {
				if r.Created {
					fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", r.Username)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "skipped %s (already exists)\n", r.Username)
				}
			}
			return nil
		},
	}
	f.BindFlags(cmd)
	return cmd
}
