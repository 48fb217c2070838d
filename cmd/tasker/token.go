package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"zenith-tasker/internal/auth"
	"zenith-tasker/pkg/user"
)

var tokenTTL time.Duration

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default auth.token_ttl)")
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Mint a bearer token for a user",
	Long: `Mint a signed bearer token for an existing, active user.

Examples:
  # Token with the configured lifetime
  tasker token 1

  # Short-lived token
  tasker token 1 --ttl 15m`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid user id %q", args[0])
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()

	store, err := openDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer store.Close()

	u, err := user.NewSQLStore(store).Get(ctx, id)
	if err != nil {
		return fmt.Errorf("user %d: %w", id, err)
	}
	if !u.Active() {
		return fmt.Errorf("user %s is %s", u.Username, u.Status)
	}

	authn, err := auth.New(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	ttl := tokenTTL
	if ttl <= 0 {
		ttl = cfg.Auth.TokenTTL
	}
	tok, err := authn.Issue(id, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
