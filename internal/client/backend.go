// Package client is the progress-tracking client: it owns the in-memory
// task list, persists it through a Backend with debounced auto-save, and
// exports reports.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/types"
)

var (
	// ErrUnauthorized is returned when the backend rejects the session.
	ErrUnauthorized = errors.New("session is invalid or expired")

	// ErrUnavailable is returned when the backend cannot be reached.
	ErrUnavailable = errors.New("backend unavailable")

	// ErrNoSession is returned when an operation needs a session and has none.
	ErrNoSession = errors.New("not logged in")

	// ErrInvalidCredentials is returned when a login is rejected.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrForbidden is returned when the session lacks admin rights.
	ErrForbidden = errors.New("admin privileges required")
)

// Session is an authenticated login. It is passed explicitly to every
// backend call.
type Session struct {
	Token     string     `json:"token"`
	User      types.User `json:"user"`
	LoginTime time.Time  `json:"loginTime"`

	// ExpiresAt is set for local sessions; the server tracks its own expiry.
	ExpiresAt time.Time `json:"expiresAt,omitempty"`

	// Local marks a session opened against on-device storage.
	Local bool `json:"local"`
}

// Snapshot is a saved task list.
type Snapshot struct {
	Tasks       []checklist.Task
	LastUpdated time.Time
}

// Backend persists progress for a session.
type Backend interface {
	Login(ctx context.Context, username, password string) (*Session, error)
	Logout(ctx context.Context, sess *Session) error
	Profile(ctx context.Context, sess *Session) (*types.ProfileResponse, error)

	// LoadProgress returns nil when nothing has been saved.
	LoadProgress(ctx context.Context, sess *Session) (*Snapshot, error)
	SaveProgress(ctx context.Context, sess *Session, tasks []checklist.Task) (time.Time, error)
	ResetProgress(ctx context.Context, sess *Session) error
}

// AdminBackend is implemented by backends that can list every user's
// progress. Non-admin sessions get ErrForbidden.
type AdminBackend interface {
	AllProgress(ctx context.Context, sess *Session) (*types.AllProgressResponse, error)
}

// APIError is a non-success response from the server.
type APIError struct {
	Status int
	Title  string
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}
