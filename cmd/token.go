package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	httpapi "parking-fines-service/internal/http"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator bearer token for the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl := cfg.Auth.TokenTTL
		if cmd.Flags().Changed("ttl") {
			ttl = tokenTTL
		}
		token, err := httpapi.IssueToken(cfg.Auth.JWTSecret, tokenSubject, ttl, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenSubject, "subject", "s", "operator", "Operator name recorded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "Token lifetime (default: auth.token_ttl)")
	rootCmd.AddCommand(tokenCmd)
}
