package cmd

import (
	"fmt"

	"github.com/jmehdipour/clinic-crm/internal/config"
	"github.com/jmehdipour/clinic-crm/internal/db"
	"github.com/jmehdipour/clinic-crm/migrations"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the MySQL row store tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		sqlDB, err := db.NewMySQLConnection(db.MySQLOptsFromConfig(cfg.MySQL))
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer sqlDB.Close()

		stmts, err := migrations.Statements()
		if err != nil {
			return fmt.Errorf("read migrations: %w", err)
		}
		for i, stmt := range stmts {
			if _, err := sqlDB.ExecContext(cmd.Context(), stmt); err != nil {
				return fmt.Errorf("exec migration statement %d: %w", i+1, err)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), ">> Migration complete (%d statements)\n", len(stmts))
		return nil
	},
}
