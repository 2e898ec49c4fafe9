package store

import (
	"context"
	"time"

	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/types"
)

// UpdateFunc computes a new task list from the stored one. stored is nil when
// the user has never saved. Returning write=false leaves the row untouched.
type UpdateFunc func(stored []checklist.Task) (next []checklist.Task, write bool, err error)

// Store defines the persistence contract for accounts, sessions and progress.
type Store interface {
	CreateUser(ctx context.Context, u types.NewUser) (*types.User, error)
	GetUser(ctx context.Context, id string) (*types.User, error)
	GetCredentials(ctx context.Context, username string) (*types.Credentials, error)
	ListUsers(ctx context.Context) ([]types.User, error)

	CreateSession(ctx context.Context, s types.Session) error
	GetSession(ctx context.Context, tokenHash string) (*types.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)

	GetProgress(ctx context.Context, userID string) (*types.Progress, error)
	SaveProgress(ctx context.Context, userID string, tasks []checklist.Task, at time.Time) error
	UpdateProgress(ctx context.Context, userID string, at time.Time, fn UpdateFunc) (*types.Progress, error)
	DeleteProgress(ctx context.Context, userID string) error
	ListProgress(ctx context.Context) ([]types.Progress, error)

	GetStats(ctx context.Context, now time.Time) (*types.StoreStats, error)
	Close() error
}
