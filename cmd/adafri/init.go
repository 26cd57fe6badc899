package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	adafri "github.com/mowfaqqa/adafri/sdk/golang"
)

var initBaseURL string

func init() {
	initCmd.Flags().StringVar(&initBaseURL, "base-url", "", "API base URL (default "+adafri.DefaultBaseURL+")")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init <token>",
	Short: "Store an access token in ~/.adafri/config.toml",
	Long:  "Initialize the Adafri CLI by storing your access token. The user id is read from the token.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.Auth.Token = token
		if id, err := adafri.UserIDFromToken(token); err == nil {
			cfg.Auth.UserID = id
		} else {
			log.Warn("token carries no user id; set auth.user_id to hide your own echoes", zap.Error(err))
		}
		if initBaseURL != "" {
			cfg.Default.BaseURL = initBaseURL
		}
		if cfg.Default.BaseURL == "" {
			cfg.Default.BaseURL = adafri.DefaultBaseURL
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Token saved to %s\n", path)
		if cfg.Auth.UserID != "" {
			fmt.Printf("  User ID: %s\n", cfg.Auth.UserID)
		}
		return nil
	},
}
