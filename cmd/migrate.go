package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vendocasa/omi-cli/internal/omi"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		if err := omi.Migrate(cmd.Context(), e.Pool); err != nil {
			return err
		}
		zap.L().Info("migrations applied", zap.String("component", "cli"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
