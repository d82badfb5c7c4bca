package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/procsearch/internal/persistence"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database schema migrations and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("migrate"); err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := persistence.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.MaxConns, cfg.Store.MinConns)
		if err != nil {
			return err
		}
		defer store.Close()

		return store.Migrate(ctx)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
