package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/client"
	"github.com/wftracker/wftracker/internal/config"
)

var (
	clientServer    string
	clientUsername  string
	clientPassword  string
	clientLocalPath string
	clientOffline   bool
	clientOut       string
	clientReset     bool
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Work with your own progress as a client",
	Long:  "Log in to a tracker server and work with your checklist. When the server cannot be reached, progress is kept in a local file instead.",
}

var clientSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show your stage summary",
	Args:  cobra.NoArgs,
	RunE:  runClientSummary,
}

var clientToggleCmd = &cobra.Command{
	Use:   "toggle <task-id> <stage> <checkbox-id>",
	Short: "Toggle one checkbox",
	Long:  "Toggle one checkbox, e.g. 'toggle task1 stage1 t1s1c1'. Locked stages and unknown IDs are ignored.",
	Args:  cobra.ExactArgs(3),
	RunE:  runClientToggle,
}

var clientAllProgressCmd = &cobra.Command{
	Use:   "all-progress",
	Short: "List every user's progress (admin only)",
	Args:  cobra.NoArgs,
	RunE:  runClientAllProgress,
}

var clientExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export your monthly PDF report",
	Long:  "Render your monthly report. With --reset, progress is reset after the report has been written successfully.",
	Args:  cobra.NoArgs,
	RunE:  runClientExport,
}

func init() {
	clientCmd.PersistentFlags().StringVar(&clientServer, "server", "",
		"Server URL (overrides config and WFTRACKER_SERVER_URL)")
	clientCmd.PersistentFlags().StringVarP(&clientUsername, "username", "u", "",
		"Username")
	clientCmd.PersistentFlags().StringVarP(&clientPassword, "password", "p", "",
		"Password (default: WFTRACKER_PASSWORD)")
	clientCmd.PersistentFlags().StringVar(&clientLocalPath, "local", "",
		"Local progress file (overrides config and WFTRACKER_LOCAL_PATH)")
	clientCmd.PersistentFlags().BoolVar(&clientOffline, "offline", false,
		"Use the local progress file only")
	clientCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")

	clientExportCmd.Flags().StringVarP(&clientOut, "out", "o", "",
		"Output path or directory (default: report file name in the current directory)")
	clientExportCmd.Flags().BoolVar(&clientReset, "reset", false,
		"Reset progress after the report is written")

	clientCmd.AddCommand(clientSummaryCmd)
	clientCmd.AddCommand(clientToggleCmd)
	clientCmd.AddCommand(clientExportCmd)
	clientCmd.AddCommand(clientAllProgressCmd)
}

// clientSession is a logged-in client backend.
type clientSession struct {
	cfg     *config.Config
	backend client.Backend
	sess    *client.Session
	logger  *slog.Logger
}

// loginClient resolves client settings and logs in, falling back to the
// local progress file when the server cannot be reached.
func loginClient(ctx context.Context, cmd *cobra.Command) (*clientSession, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cc := cfg.Client
	if clientServer != "" {
		cc.ServerURL = clientServer
	}
	if clientLocalPath != "" {
		cc.LocalPath = clientLocalPath
	}
	cfg.Client = cc
	password := clientPassword
	if password == "" {
		password = os.Getenv("WFTRACKER_PASSWORD")
	}
	if clientUsername == "" {
		return nil, errors.New("--username is required")
	}

	logger := newLogger(cmd.ErrOrStderr(), config.LogConfig{Level: "warn", Format: "text"})

	local, err := client.NewLocalBackend(cc.LocalPath, client.LocalOptions{
		Users:      cfg.Auth.Users,
		SessionTTL: time.Duration(cfg.Auth.SessionTTL),
	})
	if err != nil {
		return nil, err
	}
	var backend client.Backend = local
	if !clientOffline {
		backend = &client.FallbackBackend{
			Remote: client.NewHTTPBackend(cc.ServerURL, time.Duration(cc.RequestTimeout)),
			Local:  local,
			Logger: logger,
		}
	}

	sess, err := backend.Login(ctx, clientUsername, password)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if sess.Local {
		fmt.Fprintf(cmd.ErrOrStderr(), "Using local progress at %s\n", local.Path())
	}
	return &clientSession{cfg: cfg, backend: backend, sess: sess, logger: logger}, nil
}

// openClient logs in and opens the caller's tracker.
func openClient(ctx context.Context, cmd *cobra.Command) (*client.Tracker, error) {
	cs, err := loginClient(ctx, cmd)
	if err != nil {
		return nil, err
	}
	out := cmd.OutOrStdout()
	cc := cs.cfg.Client
	return client.Open(ctx, cs.backend, cs.sess, client.Options{
		AutosaveDelay: time.Duration(cc.AutosaveDelay),
		WriteTimeout:  time.Duration(cc.RequestTimeout),
		Location:      cs.cfg.Analytics.Location(),
		Logger:        cs.logger,
		OnStageCompleted: func(key checklist.StageKey) {
			fmt.Fprintf(out, "All %s procedures complete!\n", key.Label())
		},
	})
}

func runClientSummary(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	tr, err := openClient(ctx, cmd)
	if err != nil {
		return err
	}
	defer tr.Logout(ctx)

	tasks := tr.Tasks()
	summary := tr.Summary()
	current := tr.CurrentStage()

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"currentStage": current,
			"overall":      summary,
			"lastUpdated":  tr.LastUpdated(),
		})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Overall: %d/%d checkboxes (%d%%), current stage: %s\n\n",
		summary.CompletedCheckboxes, summary.TotalCheckboxes, summary.CompletionPercentage, current.Label())

	w := newTabWriter(out)
	fmt.Fprintln(w, "STAGE\tDONE\tTOTAL\tPERCENT")
	for _, key := range checklist.StageKeys {
		p := checklist.CalculateStageProgress(tasks, key)
		fmt.Fprintf(w, "%s\t%d\t%d\t%d%%\n", key.Label(), p.Completed, p.Total, p.Percentage())
	}
	w.Flush()
	return nil
}

func runClientToggle(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	stage, err := checklist.ParseStageKey(args[1])
	if err != nil {
		return err
	}

	tr, err := openClient(ctx, cmd)
	if err != nil {
		return err
	}
	defer tr.Logout(ctx)

	res := tr.Toggle(args[0], stage, args[2])
	if !res.Applied {
		return fmt.Errorf("checkbox %s/%s/%s not found or stage locked", args[0], args[1], args[2])
	}
	if err := tr.Flush(ctx); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}

	state := "unchecked"
	if res.Completed {
		state = "checked"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %s\n", res.Task.Name, args[2], state)
	for _, key := range res.StagesCompleted {
		fmt.Fprintf(cmd.OutOrStdout(), "%s complete for %s\n", key.Label(), res.Task.Name)
	}
	return nil
}

func runClientExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	tr, err := openClient(ctx, cmd)
	if err != nil {
		return err
	}
	defer tr.Logout(ctx)

	// The report is written next to its destination so the final rename
	// stays on one filesystem.
	dir, outIsDir := ".", false
	if clientOut != "" {
		if info, statErr := os.Stat(clientOut); statErr == nil && info.IsDir() {
			dir, outIsDir = clientOut, true
		} else {
			dir = filepath.Dir(clientOut)
		}
	}
	tmp, err := os.CreateTemp(dir, ".wftracker-report-*.pdf")
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	defer os.Remove(tmp.Name())

	res, err := tr.ExportReport(ctx, tmp, func() bool { return clientReset })
	tmp.Close()
	if err != nil && res == nil {
		return err
	}

	path := clientOut
	switch {
	case path == "":
		path = res.FileName
	case outIsDir:
		path = filepath.Join(path, res.FileName)
	}
	if renameErr := os.Rename(tmp.Name(), path); renameErr != nil {
		return fmt.Errorf("write report: %w", renameErr)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)

	if err != nil {
		return err
	}
	if res.Reset {
		fmt.Fprintln(cmd.OutOrStdout(), "Progress reset")
	}
	return nil
}

func runClientAllProgress(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cs, err := loginClient(ctx, cmd)
	if err != nil {
		return err
	}
	defer cs.backend.Logout(ctx, cs.sess)

	admin, ok := cs.backend.(client.AdminBackend)
	if !ok {
		return errors.New("backend does not support admin listing")
	}
	resp, err := admin.AllProgress(ctx, cs.sess)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), resp)
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, "USERNAME\tNAME\tDONE\tTOTAL\tPERCENT\tSTAGES\tLAST UPDATED")
	for _, u := range resp.Users {
		last := "never"
		if u.LastUpdated != nil {
			last = u.LastUpdated.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d%%\t%d\t%s\n", u.Username, u.FullName,
			u.Stats.CompletedCheckboxes, u.Stats.TotalCheckboxes, u.Stats.CompletionPercentage,
			u.Stats.StagesCompleted, last)
	}
	return w.Flush()
}
