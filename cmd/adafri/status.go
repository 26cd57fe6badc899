package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and account status",
	Long:  "Display the current configuration, check whether the token has expired, and list the workspaces it can reach.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := settings()
		if err != nil {
			return err
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL:     %s\n", cfg.Default.BaseURL)
		fmt.Printf("  Workspace ID: %s\n", valueOrDefault(cfg.Default.WorkspaceID, "(not set)"))

		fmt.Println()
		fmt.Println("Auth:")
		if cfg.Auth.Token == "" {
			fmt.Println("  Token:        (not set)")
			return nil
		}
		fmt.Printf("  Token:        %s (%s)\n", maskToken(cfg.Auth.Token), tokenExpiry(cfg.Auth.Token))
		fmt.Printf("  User ID:      %s\n", valueOrDefault(cfg.Auth.UserID, "(unknown)"))

		fmt.Println()
		fmt.Println("Live status:")
		session, _, err := openSession()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(10 * time.Second)
		defer cancel()

		session.Workspaces.FetchWorkspaces(ctx)
		if err := storeErr(session.Workspaces.LastError()); err != nil {
			fmt.Printf("  Error fetching workspaces: %v\n", err)
			return nil
		}
		fmt.Printf("  Workspaces:   %d\n", len(session.Workspaces.Workspaces()))
		return nil
	},
}

func tokenExpiry(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "opaque"
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return "no expiry"
	}
	if time.Now().Before(exp.Time) {
		return "expires " + humanize.Time(exp.Time)
	}
	return "EXPIRED " + humanize.Time(exp.Time)
}
