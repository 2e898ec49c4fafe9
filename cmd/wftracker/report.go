package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	reportOut   string
	reportReset bool
)

var reportCmd = &cobra.Command{
	Use:   "report <username>",
	Short: "Generate a user's monthly PDF report",
	Long:  "Render the monthly progress report for a user. The report is archived when report storage is configured. With --reset the user's progress is deleted after the report has been written.",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

func init() {
	addAdminFlags(reportCmd)

	reportCmd.Flags().StringVarP(&reportOut, "out", "o", "",
		"Output path or directory (default: report file name in the current directory)")
	reportCmd.Flags().BoolVar(&reportReset, "reset", false,
		"Reset the user's progress after the report is written")
}

func runReport(cmd *cobra.Command, args []string) error {
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

	rep, err := env.svc.GenerateReport(ctx, user.ID)
	if err != nil {
		return err
	}

	path := reportOut
	if path == "" {
		path = rep.FileName
	} else if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, rep.FileName)
	}
	if err := os.WriteFile(path, rep.PDF, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	reset := false
	if reportReset {
		if err := env.svc.ResetProgress(ctx, user.ID); err != nil {
			return fmt.Errorf("report written to %s but reset failed: %w", path, err)
		}
		reset = true
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"path":        path,
			"bytes":       len(rep.PDF),
			"archiveKey":  rep.ArchiveKey,
			"downloadUrl": rep.DownloadURL,
			"reset":       reset,
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", path, len(rep.PDF))
	if rep.DownloadURL != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Archived as %s\n", rep.ArchiveKey)
	}
	if reset {
		fmt.Fprintf(cmd.OutOrStdout(), "Reset progress for %q\n", user.Username)
	}
	return nil
}
