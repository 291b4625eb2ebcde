package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chatrelay/internal/pkg/jwt"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a bearer token for local testing",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("name", "", "display name stored in the token")
	tokenCmd.Flags().Duration("ttl", 0, "token lifetime (default: auth.access_token_expiry)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}

	ttl, _ := cmd.Flags().GetDuration("ttl")
	if ttl <= 0 {
		ttl = cfg.Auth.AccessTokenExpiry
	}
	name, _ := cmd.Flags().GetString("name")

	j := jwt.NewJWT(cfg.Auth.JWTSecret, ttl)
	token, err := j.GenerateToken(args[0], name)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires in %s\n", j.GetExpiration().Round(time.Second))
	return nil
}
