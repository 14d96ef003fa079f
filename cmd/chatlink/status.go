package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current configuration and token status",
	Long:  "Display the current configuration and check whether the stored token is expired.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		fmt.Println("Configuration:")
		fmt.Printf("  Base URL: %s\n", valueOrDefault(cfg.Default.BaseURL, "(not set)"))
		if cfg.Default.MaxReconnectAttempts > 0 {
			fmt.Printf("  Max Reconnect Attempts: %d\n", cfg.Default.MaxReconnectAttempts)
		}

		fmt.Println()
		fmt.Println("Auth:")
		if cfg.Auth.Token != "" {
			fmt.Printf("  Token: %s\n", maskToken(cfg.Auth.Token))
		} else {
			fmt.Println("  Token: (not set)")
		}

		tokenStatus := "none"
		if cfg.Auth.Token != "" {
			if cfg.Auth.TokenExpires != "" {
				expires, err := time.Parse(time.RFC3339, cfg.Auth.TokenExpires)
				if err == nil {
					if time.Now().Before(expires) {
						tokenStatus = fmt.Sprintf("valid (expires %s)", expires.Format(time.RFC3339))
					} else {
						tokenStatus = fmt.Sprintf("EXPIRED (expired %s)", expires.Format(time.RFC3339))
					}
				} else {
					tokenStatus = fmt.Sprintf("present (unparseable expiry: %s)", cfg.Auth.TokenExpires)
				}
			} else {
				tokenStatus = "present (no expiry set)"
			}
		}
		fmt.Printf("  Status: %s\n", tokenStatus)
		return nil
	},
}

// maskToken shows the first 8 and last 4 characters of a token.
func maskToken(token string) string {
	if len(token) <= 12 {
		return "..."
	}
	return token[:8] + "..." + token[len(token)-4:]
}

func valueOrDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}
