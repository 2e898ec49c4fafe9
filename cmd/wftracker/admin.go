package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wftracker/wftracker/internal/archive"
	"github.com/wftracker/wftracker/internal/config"
	"github.com/wftracker/wftracker/internal/store"
	"github.com/wftracker/wftracker/internal/tracker"
	"github.com/wftracker/wftracker/internal/types"
)

var (
	dbPathOverride string
	jsonOutput     bool
)

// addAdminFlags registers the flags shared by commands that work directly
// on the database.
func addAdminFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&dbPathOverride, "db", "",
		"Database path (overrides config and WFTRACKER_DB_PATH)")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output in JSON format")
}

// adminEnv is an open store plus the service over it.
type adminEnv struct {
	cfg   *config.Config
	store *store.SQLiteStore
	svc   *tracker.Service
}

func (e *adminEnv) Close() error {
	return e.store.Close()
}

// openAdminEnv loads config, applies --db and opens the store. Log output
// goes to stderr so command output stays clean.
func openAdminEnv(cmd *cobra.Command) (*adminEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dbPathOverride != "" {
		cfg.Database.Path = dbPathOverride
	}

	logger := newLogger(cmd.ErrOrStderr(), config.LogConfig{Level: "warn", Format: "text"})

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	archiver, err := archive.New(cfg.ReportStorage)
	if err != nil {
		db.Close()
		return nil, err
	}

	svc := tracker.New(db, tracker.Options{
		SessionTTL: time.Duration(cfg.Auth.SessionTTL),
		Location:   cfg.Analytics.Location(),
		Archiver:   archiver,
		Logger:     logger,
	})
	return &adminEnv{cfg: cfg, store: db, svc: svc}, nil
}

// lookupUser resolves a username to its account.
func (e *adminEnv) lookupUser(ctx context.Context, username string) (*types.User, error) {
	creds, err := e.store.GetCredentials(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("user %q not found", username)
	}
	if err != nil {
		return nil, err
	}
	return &creds.User, nil
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
