package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Dosada05/debate-tab/middleware"
	"github.com/spf13/cobra"
)

var (
	tokenSecret string
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token [subject]",
	Short: "Issue an operator JWT",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenSecret == "" {
			return errors.New("no signing secret: pass --secret or set JWT_SECRET_KEY")
		}
		token, err := middleware.GenerateOperatorToken(tokenSecret, args[0], tokenTTL)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSecret, "secret", os.Getenv("JWT_SECRET_KEY"), "HMAC secret (default $JWT_SECRET_KEY)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime")
}
