// cmd/token.go
package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/markb/chatlite/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage access tokens",
	Long:  `Commands for minting chatlite tokens during development.`,
}

var tokenGenerateCmd = &cobra.Command{
	Use:   "generate [user-id]",
	Short: "Generate an access and refresh token pair for a user",
	Long: `Generates an access and refresh token pair signed with the configured
JWT secret. With no argument a random user ID is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jwtSecret := os.Getenv("CHATLITE_JWT_SECRET")
		if jwtSecret == "" {
			jwtSecret = "super-secret-jwt-key-please-change-in-production"
			fmt.Fprintln(os.Stderr, "Warning: Using default JWT secret. Set CHATLITE_JWT_SECRET in production.")
		}

		userID := uuid.New()
		if len(args) == 1 {
			parsed, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}
			userID = parsed
		}

		ttl, err := cmd.Flags().GetDuration("ttl")
		if err != nil {
			return err
		}

		accessToken, err := auth.GenerateToken(jwtSecret, userID, auth.KindAccess, ttl)
		if err != nil {
			return fmt.Errorf("failed to generate access token: %w", err)
		}

		refreshToken, err := auth.GenerateToken(jwtSecret, userID, auth.KindRefresh, 0)
		if err != nil {
			return fmt.Errorf("failed to generate refresh token: %w", err)
		}

		fmt.Printf("CHATLITE_USER_ID=%s\n", userID)
		fmt.Printf("CHATLITE_ACCESS_TOKEN=%s\n", accessToken)
		fmt.Printf("CHATLITE_REFRESH_TOKEN=%s\n", refreshToken)

		return nil
	},
}

func init() {
	tokenGenerateCmd.Flags().Duration("ttl", 0, "access token lifetime (default 15m)")

	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenGenerateCmd)
}
