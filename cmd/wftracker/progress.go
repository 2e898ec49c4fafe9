package main

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var resetForce bool

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Inspect and reset user progress",
}

var progressShowCmd = &cobra.Command{
	Use:   "show <username>",
	Short: "Show a user's stage summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgressShow,
}

var progressResetCmd = &cobra.Command{
	Use:   "reset <username>",
	Short: "Delete a user's saved progress",
	Long:  "Permanently delete a user's saved progress. Requires --force or interactive confirmation.",
	Args:  cobra.ExactArgs(1),
	RunE:  runProgressReset,
}

func init() {
	addAdminFlags(progressCmd)

	progressResetCmd.Flags().BoolVar(&resetForce, "force", false,
		"Skip confirmation prompt")

	progressCmd.AddCommand(progressShowCmd)
	progressCmd.AddCommand(progressResetCmd)
}

func runProgressShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	env, err := openAdminEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	user, err := env.lookupUser(ctx, args[0])
	if err != nil {
		return err
	}
	summary, err := env.svc.Summary(ctx, user.ID)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), summary)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", user.FullName, user.Username)
	fmt.Fprintf(out, "Overall: %d/%d checkboxes (%d%%), current stage: %s\n\n",
		summary.Overall.CompletedCheckboxes,
		summary.Overall.TotalCheckboxes,
		summary.Overall.CompletionPercentage,
		summary.CurrentStage.Label(),
	)

	w := newTabWriter(out)
	fmt.Fprintln(w, "STAGE\tDONE\tTOTAL\tPERCENT\tSTATUS")
	for _, s := range summary.Stages {
		status := "locked"
		switch {
		case s.FullyCompleted:
			status = "complete"
		case s.TabEnabled:
			status = "open"
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d%%\t%s\n", s.Label, s.Completed, s.Total, s.Percentage, status)
	}
	w.Flush()

	return nil
}

func runProgressReset(cmd *cobra.Command, args []string) error {
	username := args[0]
	ctx := context.Background()

	env, err := openAdminEnv(cmd)
	if err != nil {
		return err
	}
	defer env.Close()

	user, err := env.lookupUser(ctx, username)
	if err != nil {
		return err
	}

	// Interactive confirmation unless --force
	if !resetForce {
		errOut := cmd.ErrOrStderr()
		fmt.Fprintf(errOut, "WARNING: This will permanently delete all progress for %q.\n", username)
		fmt.Fprint(errOut, "Type the username to confirm: ")

		reader := bufio.NewReader(cmd.InOrStdin())
		input, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}

		if strings.TrimSpace(input) != username {
			fmt.Fprintln(errOut, "Aborted. Username did not match.")
			return nil
		}
	}

	if err := env.svc.ResetProgress(ctx, user.ID); err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"username": username,
			"reset":    true,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Reset progress for %q\n", username)
	return nil
}
