// Package tracker implements the server-side operations of the workflow
// tracker: accounts and sessions, progress persistence, derived progress
// views, analytics, and report generation.
package tracker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/wftracker/wftracker/internal/archive"
	"github.com/wftracker/wftracker/internal/store"
	"github.com/wftracker/wftracker/internal/types"
)

var (
	// ErrInvalidCredentials is returned when a username or password does not match.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrUnauthorized is returned for a missing, unknown or expired session.
	ErrUnauthorized = errors.New("invalid or expired session")

	// ErrInvalidUser is returned when a new account fails validation.
	ErrInvalidUser = errors.New("invalid user")
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultSessionTTL       = 24 * time.Hour
	DefaultSessionCacheSize = 1024
	DefaultSessionCacheTTL  = time.Minute
)

// Options configures a Service.
type Options struct {
	SessionTTL       time.Duration
	SessionCacheSize int
	SessionCacheTTL  time.Duration

	// Location is used for calendar bucketing in analytics and reports.
	Location *time.Location

	// Archiver receives every generated report. Defaults to archive.NoopArchiver.
	Archiver archive.Archiver

	Logger *slog.Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Principal is an authenticated caller.
type Principal struct {
	User    types.User
	Session types.Session
}

// Service implements the tracker operations on top of a store.Store.
type Service struct {
	store    store.Store
	archiver archive.Archiver
	sessions *expirable.LRU[string, Principal]
	ttl      time.Duration
	loc      *time.Location
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Service.
func New(s store.Store, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.SessionCacheSize <= 0 {
		opts.SessionCacheSize = DefaultSessionCacheSize
	}
	if opts.SessionCacheTTL <= 0 {
		opts.SessionCacheTTL = DefaultSessionCacheTTL
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Archiver == nil {
		opts.Archiver = archive.NoopArchiver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		store:    s,
		archiver: opts.Archiver,
		sessions: expirable.NewLRU[string, Principal](opts.SessionCacheSize, nil, opts.SessionCacheTTL),
		ttl:      opts.SessionTTL,
		loc:      opts.Location,
		logger:   opts.Logger.With("component", "tracker"),
		now:      opts.Now,
	}
}

// Location returns the calendar location used for analytics.
func (s *Service) Location() *time.Location {
	return s.loc
}

// ArchiveEnabled reports whether generated reports are archived.
func (s *Service) ArchiveEnabled() bool {
	_, noop := s.archiver.(archive.NoopArchiver)
	return !noop
}
