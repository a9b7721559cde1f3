package cli

import (
	"github.com/spf13/cobra"

	"github.com/BroWo1/factcheck-backend/internal/api/handlers"
	"github.com/BroWo1/factcheck-backend/internal/storage/sqlite"
)

var sessionCmd = &cobra.Command{
	Use:   "session <id>",
	Short: "Show a session's status and steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		store, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		view, err := handlers.LoadStatusView(ctx, store, args[0])
		if err != nil {
			return err
		}
		steps, err := store.ListSteps(ctx, args[0])
		if err != nil {
			return err
		}

		return printJSON(cmd, map[string]any{
			"status": view,
			"steps":  steps,
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
}
