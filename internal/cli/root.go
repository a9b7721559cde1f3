package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BroWo1/factcheck-backend/pkg/config"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

// Version is set at build time with -ldflags "-X ...cli.Version=v1.2.3".
var Version = "dev"

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "factcheck",
	Short: "Run and inspect fact-check analyses",
	Long: `factcheck drives the analysis engine from the command line.

It shares configuration and storage with the API server, so sessions
created here show up in the API and the other way round.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "factcheck %s\n", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level for CLI output")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads configuration and points logging at stderr so stdout
// carries only command output.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logLevel, "console", "stderr"); err != nil {
		return nil, err
	}
	return cfg, nil
}
