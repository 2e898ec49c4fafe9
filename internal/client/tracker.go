package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/wftracker/wftracker/internal/analytics"
	"github.com/wftracker/wftracker/internal/checklist"
	"github.com/wftracker/wftracker/internal/report"
)

// Options configures a Tracker.
type Options struct {
	AutosaveDelay time.Duration
	WriteTimeout  time.Duration
	Location      *time.Location
	Logger        *slog.Logger
	Now           func() time.Time

	// OnSessionExpired is called after the server rejects the session.
	OnSessionExpired func()

	// OnStageCompleted is called when a toggle makes a stage fully
	// completed across every task.
	OnStageCompleted func(checklist.StageKey)
}

// Tracker owns the task list of one logged-in user. All changes go
// through Toggle and Reset; every change is auto-saved.
type Tracker struct {
	backend Backend
	saver   *AutoSaver
	loc     *time.Location
	logger  *slog.Logger
	now     func() time.Time
	expired func()
	stageUp func(checklist.StageKey)

	mu    sync.Mutex
	tasks []checklist.Task

	// metaMu guards session and lastUpdated. Writes run on the auto-save
	// goroutine and must not take mu.
	metaMu      sync.Mutex
	session     *Session
	lastUpdated time.Time
}

// Open loads the session's saved progress, or the initial catalog when
// nothing is saved, and starts auto-saving.
func Open(ctx context.Context, backend Backend, sess *Session, opts Options) (*Tracker, error) {
	if sess == nil {
		return nil, ErrNoSession
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	snap, err := backend.LoadProgress(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}

	t := &Tracker{
		backend: backend,
		loc:     opts.Location,
		logger:  opts.Logger,
		now:     opts.Now,
		expired: opts.OnSessionExpired,
		stageUp: opts.OnStageCompleted,
		session: sess,
	}
	if snap != nil {
		t.tasks = snap.Tasks
		t.lastUpdated = snap.LastUpdated
	} else {
		t.tasks = checklist.InitialTasks()
	}

	t.saver = NewAutoSaver(t.save, AutoSaverOptions{
		Delay:        opts.AutosaveDelay,
		WriteTimeout: opts.WriteTimeout,
		OnAuthError:  t.clearSession,
		Logger:       opts.Logger,
	})
	return t, nil
}

func (t *Tracker) save(ctx context.Context, tasks []checklist.Task) error {
	sess := t.Session()
	if sess == nil {
		return ErrNoSession
	}
	at, err := t.backend.SaveProgress(ctx, sess, tasks)
	if err != nil {
		return err
	}
	t.metaMu.Lock()
	t.lastUpdated = at
	t.metaMu.Unlock()
	return nil
}

func (t *Tracker) clearSession() {
	t.metaMu.Lock()
	had := t.session != nil
	t.session = nil
	t.metaMu.Unlock()

	if had {
		t.logger.Warn("session expired, logged out")
		if t.expired != nil {
			t.expired()
		}
	}
}

// Session returns the current session, or nil after logout or expiry.
func (t *Tracker) Session() *Session {
	t.metaMu.Lock()
	defer t.metaMu.Unlock()
	return t.session
}

// Tasks returns a copy of the current task list.
func (t *Tracker) Tasks() []checklist.Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return checklist.CloneTasks(t.tasks)
}

// LastUpdated returns when progress was last saved.
func (t *Tracker) LastUpdated() time.Time {
	t.metaMu.Lock()
	defer t.metaMu.Unlock()
	return t.lastUpdated
}

// Toggle flips one checkbox and schedules a save when it changed anything.
// OnStageCompleted runs at most once, after the change is applied and
// outside the lock.
func (t *Tracker) Toggle(taskID string, key checklist.StageKey, checkboxID string) checklist.ToggleResult {
	t.mu.Lock()
	res := checklist.Toggle(t.tasks, taskID, key, checkboxID, t.now())
	if !res.Applied {
		t.mu.Unlock()
		return res
	}
	transitions := checklist.CompletedTransitions(t.tasks, res.Tasks)
	t.tasks = res.Tasks
	t.saver.Schedule(t.tasks)
	t.mu.Unlock()

	// A toggle touches one stage, so at most one stage completes; only the
	// first is announced either way.
	if len(transitions) > 0 {
		stage := transitions[0]
		t.logger.Info("stage fully completed", "stage", string(stage))
		if t.stageUp != nil {
			t.stageUp(stage)
		}
	}
	return res
}

// Reset deletes saved progress and restores the initial catalog. Pending
// changes are written first; whatever is still unsaved once the backend has
// reset is discarded so it cannot restore the old progress later.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sess := t.Session()
	if sess == nil {
		return ErrNoSession
	}
	if err := t.saver.Flush(ctx); err != nil {
		t.logger.Warn("flush before reset failed", "error", err)
	}
	if err := t.backend.ResetProgress(ctx, sess); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			t.clearSession()
		}
		return fmt.Errorf("reset progress: %w", err)
	}
	t.saver.Discard()
	t.tasks = checklist.InitialTasks()
	t.metaMu.Lock()
	t.lastUpdated = time.Time{}
	t.metaMu.Unlock()
	return nil
}

// Summary returns the overall completion statistics.
func (t *Tracker) Summary() checklist.Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return checklist.Summarize(t.tasks)
}

// CurrentStage returns the first stage that is not fully completed.
func (t *Tracker) CurrentStage() checklist.StageKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	return checklist.CurrentStage(t.tasks)
}

// Analytics derives completion analytics from the current task list.
func (t *Tracker) Analytics() analytics.Analytics {
	tasks := t.Tasks()
	return analytics.Generate(tasks, t.now(), t.loc)
}

// ExportResult describes a completed report export.
type ExportResult struct {
	FileName string
	Reset    bool
}

// ExportReport renders the report to w. After a successful export,
// confirmReset is asked whether to reset progress; a nil confirmReset or a
// false answer keeps it. A failed export leaves progress unchanged.
func (t *Tracker) ExportReport(ctx context.Context, w io.Writer, confirmReset func() bool) (*ExportResult, error) {
	sess := t.Session()
	if sess == nil {
		return nil, ErrNoSession
	}
	now := t.now()

	var buf bytes.Buffer
	err := report.Write(&buf, report.Input{
		FullName: sess.User.FullName,
		Tasks:    t.Tasks(),
		Now:      now,
		Location: t.loc,
	})
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("write report: %w", err)
	}

	res := &ExportResult{FileName: report.FileName(now.In(t.loc))}
	if confirmReset == nil || !confirmReset() {
		return res, nil
	}
	if err := t.Reset(ctx); err != nil {
		return res, err
	}
	res.Reset = true
	return res, nil
}

// Flush writes any pending change now.
func (t *Tracker) Flush(ctx context.Context) error {
	return t.saver.Flush(ctx)
}

// Logout writes pending changes, ends the session and stops auto-saving.
func (t *Tracker) Logout(ctx context.Context) error {
	if err := t.saver.Close(); err != nil {
		t.logger.Warn("final save before logout failed", "error", err)
	}
	sess := t.Session()
	if sess == nil {
		return nil
	}
	t.metaMu.Lock()
	t.session = nil
	t.metaMu.Unlock()
	return t.backend.Logout(ctx, sess)
}

// Close writes pending changes and stops auto-saving.
func (t *Tracker) Close() error {
	return t.saver.Close()
}
