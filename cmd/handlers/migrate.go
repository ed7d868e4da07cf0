package handlers

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewMigrateCmd creates the schema initialization command.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, closeDB, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			if err := st.Init(ctx); err != nil {
				return err
			}
			fmt.Println("schema ready")
			return nil
		},
	}
}
