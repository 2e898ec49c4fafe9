package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	userFullName      string
	userAdmin         bool
	userPasswordStdin bool
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
	Long:  "Create and list accounts without running the server.",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create an account",
	Long:  "Create an account. The password is read from the first line of stdin with --password-stdin.",
	Args:  cobra.ExactArgs(1),
	RunE:  runUserAdd,
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all accounts",
	Args:  cobra.NoArgs,
	RunE:  runUserList,
}

func init() {
	addAdminFlags(userCmd)

	userAddCmd.Flags().StringVar(&userFullName, "full-name", "",
		"Display name (defaults to the username)")
	userAddCmd.Flags().BoolVar(&userAdmin, "admin", false,
		"Grant admin access")
	userAddCmd.Flags().BoolVar(&userPasswordStdin, "password-stdin", false,
		"Read the password from stdin")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
}

func runUserAdd(cmd *cobra.Command, args []string) error {
	username := args[0]
	ctx := context.Background()

	if !userPasswordStdin {
		return errors.New("a password is required: pipe it in with --password-stdin")
	}
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")

	fullName := userFullName
	if fullName == "" {
		fullName = username
	}

	env, err := openAdminEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	user, err := env.svc.CreateUser(ctx, username, fullName, password, userAdmin)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), user)
	}
	role := "user"
	if user.IsAdmin {
		role = "admin"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s %q (%s)\n", role, user.Username, user.FullName)
	return nil
}

func runUserList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, err := openAdminEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	users, err := env.store.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"users": users,
			"total": len(users),
		})
	}

	if len(users) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No users found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "USERNAME\tFULL NAME\tADMIN\tCREATED")
	for _, u := range users {
		admin := "-"
		if u.IsAdmin {
			admin = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			u.Username,
			u.FullName,
			admin,
			u.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	w.Flush()

	return nil
}
