package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, sugar, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer sugar.Sync()

			db, err := setupDatabase(cfg, sugar)
			if err != nil {
				sugar.Error(err)
				return err
			}

			return db.Close()
		},
	}
}
