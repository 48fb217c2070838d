package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"zenith-tasker/pkg/user"
)

var (
	userEmail string
	userAdmin bool
)

func init() {
	userAddCmd.Flags().StringVar(&userEmail, "email", "", "contact email")
	userAddCmd.Flags().BoolVar(&userAdmin, "admin", false, "grant admin rights")

	userCmd.AddCommand(userAddCmd, userListCmd, userDisableCmd, userEnableCmd)
	rootCmd.AddCommand(userCmd)
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user records",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Register a user",
	Long: `Register a user record. Credentials live with the identity provider;
use "tasker token" to mint a bearer token for the new id.

Examples:
  tasker user add alice --email alice@example.com
  tasker user add root --admin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUsers(func(ctx context.Context, users *user.SQLStore) error {
			u, err := users.Create(ctx, args[0], userEmail, userAdmin)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d, admin=%t)\n", u.Username, u.ID, u.IsAdmin)
			return nil
		})
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUsers(func(ctx context.Context, users *user.SQLStore) error {
			list, err := users.List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME\tADMIN\tSTATUS\tCREATED")
			for _, u := range list {
				fmt.Fprintf(tw, "%d\t%s\t%t\t%s\t%s\n", u.ID, u.Username, u.IsAdmin, u.Status, u.CreatedAt.Format("2006-01-02"))
			}
			return tw.Flush()
		})
	},
}

var userDisableCmd = &cobra.Command{
	Use:   "disable <user-id>",
	Short: "Deactivate a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setUserStatus(cmd, args[0], user.StatusInactive)
	},
}

var userEnableCmd = &cobra.Command{
	Use:   "enable <user-id>",
	Short: "Reactivate a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setUserStatus(cmd, args[0], user.StatusActive)
	},
}

func setUserStatus(cmd *cobra.Command, arg, status string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid user id %q", arg)
	}
	return withUsers(func(ctx context.Context, users *user.SQLStore) error {
		if err := users.SetStatus(ctx, id, status); err != nil {
			return fmt.Errorf("user %d: %w", id, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "User %d is now %s\n", id, status)
		return nil
	})
}

// withUsers opens the configured database for one user-store operation.
func withUsers(fn func(context.Context, *user.SQLStore) error) error {
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

	return fn(ctx, user.NewSQLStore(store))
}
