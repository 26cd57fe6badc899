package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ============================================================================
// Root command
// ============================================================================

var (
	logLevel    string
	workspaceID string
	jsonOutput  bool

	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "adafri",
	Short:         "Adafri messaging CLI",
	Long:          "Command-line interface for the Adafri workspace messaging API.\nBrowse workspaces and channels, read and send messages, and watch live activity.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		l, err := newLogger(logLevel)
		if err != nil {
			return err
		}
		log = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&workspaceID, "workspace", "w", "", "workspace id (defaults to default.workspace_id)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
