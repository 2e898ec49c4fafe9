package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/types"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore is the SQLite-backed tracker database.
type SQLiteStore struct {
	db *sql.DB

	// writeMu serializes read-modify-write cycles on progress rows.
	writeMu sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLiteStore instance.
// It initializes the database with WAL mode, applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// --- Users ---

// CreateUser inserts a new account. Returns ErrUserExists when the username
// is taken.
func (s *SQLiteStore) CreateUser(ctx context.Context, u types.NewUser) (*types.User, error) {
	user := types.User{
		ID:        ulid.Make().String(),
		Username:  u.Username,
		FullName:  u.FullName,
		IsAdmin:   u.IsAdmin,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name, password_hash, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.ID, user.Username, user.FullName, u.PasswordHash, user.IsAdmin, formatTime(user.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &user, nil
}

// GetUser returns the account with id, or ErrNotFound.
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*types.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, password_hash, is_admin, created_at
		FROM users WHERE id = ?
	`, id)
	c, err := scanCredentials(row)
	if err != nil {
		return nil, err
	}
	return &c.User, nil
}

// GetCredentials returns the account and password hash for username, or
// ErrNotFound.
func (s *SQLiteStore) GetCredentials(ctx context.Context, username string) (*types.Credentials, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, full_name, password_hash, is_admin, created_at
		FROM users WHERE username = ?
	`, username)
	return scanCredentials(row)
}

// ListUsers returns every account ordered by username.
func (s *SQLiteStore) ListUsers(ctx context.Context) ([]types.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, full_name, password_hash, is_admin, created_at
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []types.User{}
	for rows.Next() {
		c, err := scanCredentials(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, c.User)
	}
	return users, rows.Err()
}

func scanCredentials(scanner interface{ Scan(...any) error }) (*types.Credentials, error) {
	var c types.Credentials
	var createdAt string
	err := scanner.Scan(&c.ID, &c.Username, &c.FullName, &c.PasswordHash, &c.IsAdmin, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &c, nil
}

// --- Sessions ---

// CreateSession stores a session keyed by its token hash.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess types.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, token_hash, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, sess.ID, sess.TokenHash, sess.UserID, formatTime(sess.CreatedAt), formatTime(sess.ExpiresAt))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession looks a session up by token hash. Expired sessions are still
// returned; callers decide what to do with them.
func (s *SQLiteStore) GetSession(ctx context.Context, tokenHash string) (*types.Session, error) {
	var sess types.Session
	var createdAt, expiresAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token_hash, user_id, created_at, expires_at
		FROM sessions WHERE token_hash = ?
	`, tokenHash).Scan(&sess.ID, &sess.TokenHash, &sess.UserID, &createdAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if sess.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	return &sess, nil
}

// DeleteSession removes a session. Deleting an unknown session is not an error.
func (s *SQLiteStore) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash = ?`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes every session that expired at or before now
// and returns how many were removed.
func (s *SQLiteStore) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}

// --- Progress ---

// GetProgress returns the saved task list for userID, or ErrNotFound.
func (s *SQLiteStore) GetProgress(ctx context.Context, userID string) (*types.Progress, error) {
	return getProgress(ctx, s.db, userID)
}

// SaveProgress replaces the user's whole task list in a single statement.
func (s *SQLiteStore) SaveProgress(ctx context.Context, userID string, tasks []checklist.Task, at time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return putProgress(ctx, s.db, userID, tasks, at)
}

// UpdateProgress runs fn against the stored task list and writes its result
// in the same transaction. The returned Progress reflects what is stored
// afterwards; it is nil when nothing was ever saved and fn declined to write.
func (s *SQLiteStore) UpdateProgress(ctx context.Context, userID string, at time.Time, fn UpdateFunc) (*types.Progress, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := getProgress(ctx, tx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	var stored []checklist.Task
	if current != nil {
		stored = current.Tasks
	}
	next, write, err := fn(stored)
	if err != nil {
		return nil, err
	}
	if !write {
		return current, nil
	}

	if err := putProgress(ctx, tx, userID, next, at); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &types.Progress{UserID: userID, Tasks: next, LastUpdated: at.UTC()}, nil
}

// DeleteProgress removes the user's saved task list.
func (s *SQLiteStore) DeleteProgress(ctx context.Context, userID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM progress WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete progress: %w", err)
	}
	return nil
}

// ListProgress returns every saved task list.
func (s *SQLiteStore) ListProgress(ctx context.Context) ([]types.Progress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, tasks, last_updated FROM progress ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	out := []types.Progress{}
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetStats returns row counts for the health check.
func (s *SQLiteStore) GetStats(ctx context.Context, now time.Time) (*types.StoreStats, error) {
	var stats types.StoreStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM sessions WHERE expires_at > ?),
			(SELECT COUNT(*) FROM progress)
	`, formatTime(now)).Scan(&stats.Users, &stats.ActiveSessions, &stats.SavedProgress)
	if err != nil {
		return nil, fmt.Errorf("query stats: %w", err)
	}
	return &stats, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func getProgress(ctx context.Context, q querier, userID string) (*types.Progress, error) {
	row := q.QueryRowContext(ctx, `
		SELECT user_id, tasks, last_updated FROM progress WHERE user_id = ?
	`, userID)
	return scanProgress(row)
}

func putProgress(ctx context.Context, q querier, userID string, tasks []checklist.Task, at time.Time) error {
	if tasks == nil {
		tasks = []checklist.Task{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO progress (user_id, tasks, last_updated) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET tasks = excluded.tasks, last_updated = excluded.last_updated
	`, userID, string(data), formatTime(at))
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

func scanProgress(scanner interface{ Scan(...any) error }) (*types.Progress, error) {
	var p types.Progress
	var tasksJSON, lastUpdated string
	err := scanner.Scan(&p.UserID, &tasksJSON, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan progress: %w", err)
	}
	if err := json.Unmarshal([]byte(tasksJSON), &p.Tasks); err != nil {
		return nil, fmt.Errorf("parse tasks JSON: %w", err)
	}
	if p.LastUpdated, err = parseTime(lastUpdated); err != nil {
		return nil, fmt.Errorf("parse last_updated: %w", err)
	}
	return &p, nil
}
