package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/BroWo1/factcheck-backend/internal/analysis"
	"github.com/BroWo1/factcheck-backend/internal/api/handlers"
	"github.com/BroWo1/factcheck-backend/internal/app"
	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

var (
	runMode      string
	runWebSearch bool
	runImage     string
)

var runCmd = &cobra.Command{
	Use:   "run <claim>",
	Short: "Analyze a claim synchronously",
	Long: `Create a session for the claim, run it to completion and print the
outcome with its final status view as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if runImage != "" {
			if _, err := os.Stat(runImage); err != nil {
				return fmt.Errorf("image: %w", err)
			}
		}

		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			a.Close(ctx)
		}()

		session, err := analysis.NewSession(analysis.NewSessionRequest{
			Input:        args[0],
			Mode:         models.Mode(runMode),
			UseWebSearch: runWebSearch,
			ImagePath:    runImage,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.Store.CreateSession(ctx, session); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "session %s (%s)\n", session.ID, session.Variant)

		outcome, err := a.Orchestrator.Run(ctx, session.ID)
		if err != nil {
			return err
		}

		view, err := handlers.LoadStatusView(context.WithoutCancel(ctx), a.Store, session.ID)
		if err != nil {
			return err
		}

		if err := printJSON(cmd, map[string]any{
			"outcome": outcome,
			"status":  view,
		}); err != nil {
			return err
		}
		if outcome.Status == models.SessionFailed {
			return fmt.Errorf("analysis failed: %s", outcome.Error)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runMode, "mode", string(models.ModeFactCheck), "fact_check or research")
	runCmd.Flags().BoolVar(&runWebSearch, "web-search", false, "use the search-augmented workflow")
	runCmd.Flags().StringVar(&runImage, "image", "", "image file sent with the first step")

	rootCmd.AddCommand(runCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
