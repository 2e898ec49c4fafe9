package client

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/types"
)

// FallbackBackend logs in against Remote and falls back to Local when the
// server cannot be reached. Each session then stays with the backend that
// opened it.
type FallbackBackend struct {
	Remote Backend
	Local  Backend
	Logger *slog.Logger
}

func (b *FallbackBackend) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *FallbackBackend) pick(sess *Session) Backend {
	if sess != nil && sess.Local {
		return b.Local
	}
	return b.Remote
}

// Login tries Remote first. Only an unreachable server falls back to Local;
// rejected credentials are returned as-is.
func (b *FallbackBackend) Login(ctx context.Context, username, password string) (*Session, error) {
	sess, err := b.Remote.Login(ctx, username, password)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrUnavailable) {
		return nil, err
	}
	b.logger().Warn("server unavailable, using local storage", "error", err)
	return b.Local.Login(ctx, username, password)
}

func (b *FallbackBackend) Logout(ctx context.Context, sess *Session) error {
	return b.pick(sess).Logout(ctx, sess)
}

func (b *FallbackBackend) Profile(ctx context.Context, sess *Session) (*types.ProfileResponse, error) {
	return b.pick(sess).Profile(ctx, sess)
}

func (b *FallbackBackend) LoadProgress(ctx context.Context, sess *Session) (*Snapshot, error) {
	return b.pick(sess).LoadProgress(ctx, sess)
}

func (b *FallbackBackend) SaveProgress(ctx context.Context, sess *Session, tasks []checklist.Task) (time.Time, error) {
	return b.pick(sess).SaveProgress(ctx, sess, tasks)
}

func (b *FallbackBackend) ResetProgress(ctx context.Context, sess *Session) error {
	return b.pick(sess).ResetProgress(ctx, sess)
}

// AllProgress routes to the session's backend when it supports admin
// listing.
func (b *FallbackBackend) AllProgress(ctx context.Context, sess *Session) (*types.AllProgressResponse, error) {
	admin, ok := b.pick(sess).(AdminBackend)
	if !ok {
		return nil, errors.New("backend does not support admin listing")
	}
	return admin.AllProgress(ctx, sess)
}
