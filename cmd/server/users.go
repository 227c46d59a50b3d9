package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-relay/internal/auth"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
	"github.com/vovakirdan/wirechat-relay/internal/utils"
)

var userPassword string

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage accounts allowed to log in",
}

var usersAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Register a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := resolvePassword()
		if err != nil {
			return err
		}
		return withAuthService(func(svc *auth.Service) error {
			user, err := svc.Register(cmd.Context(), args[0], password)
			if err != nil {
				if errors.Is(err, auth.ErrUserExists) {
					return fmt.Errorf("user %q already exists", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s created\n", user.Username)
			return nil
		})
	},
}

var usersPasswdCmd = &cobra.Command{
	Use:   "passwd <username>",
	Short: "Change a user's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := resolvePassword()
		if err != nil {
			return err
		}
		return withAuthService(func(svc *auth.Service) error {
			if err := svc.SetPassword(cmd.Context(), args[0], password); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "password of %s updated\n", args[0])
			return nil
		})
	},
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withAuthService(func(svc *auth.Service) error {
			users, err := svc.ListUsers(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tCREATED")
			for _, u := range users {
				fmt.Fprintf(w, "%d\t%s\t%s\n", u.ID, u.Username, u.CreatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersAddCmd, usersPasswdCmd, usersListCmd)

	for _, cmd := range []*cobra.Command{usersAddCmd, usersPasswdCmd} {
		cmd.Flags().StringVar(&userPassword, "password", "", "password (prompted when omitted)")
	}
	usersCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides config)")
}

func withAuthService(fn func(*auth.Service) error) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	return fn(auth.NewService(st, nil, auth.WithPasswordCost(cfg.PasswordCost)))
}

func resolvePassword() (string, error) {
	if userPassword != "" {
		return userPassword, nil
	}

	lines := bufio.NewReader(os.Stdin)
	password, err := utils.PromptPassword("Password: ", os.Stdin, lines, os.Stderr)
	if err != nil {
		return "", err
	}
	confirm, err := utils.PromptPassword("Repeat password: ", os.Stdin, lines, os.Stderr)
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}
