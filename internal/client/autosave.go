package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wftracker/wftracker/internal/checklist"
)

// DefaultAutosaveDelay is how long the AutoSaver waits after the last change.
const DefaultAutosaveDelay = 2 * time.Second

// SaveFunc persists a task list.
type SaveFunc func(ctx context.Context, tasks []checklist.Task) error

// AutoSaverOptions configures an AutoSaver.
type AutoSaverOptions struct {
	// Delay after the last Schedule before the write fires.
	Delay time.Duration

	// WriteTimeout bounds each background write. Zero means no limit.
	WriteTimeout time.Duration

	// OnAuthError is called when a write fails with ErrUnauthorized.
	OnAuthError func()

	Logger *slog.Logger
}

// AutoSaver coalesces task changes into debounced writes. Only the newest
// scheduled list is written, and writes never overlap: a single goroutine
// performs every write. A failed write is not retried until the next
// change or an explicit Flush.
type AutoSaver struct {
	save         SaveFunc
	delay        time.Duration
	writeTimeout time.Duration
	onAuthError  func()
	logger       *slog.Logger

	mu      sync.Mutex
	pending []checklist.Task
	dirty   bool
	version uint64

	kick    chan struct{}
	flushCh chan chan error
	stop    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewAutoSaver starts an AutoSaver. Call Close to flush and stop it.
func NewAutoSaver(save SaveFunc, opts AutoSaverOptions) *AutoSaver {
	if opts.Delay <= 0 {
		opts.Delay = DefaultAutosaveDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &AutoSaver{
		save:         save,
		delay:        opts.Delay,
		writeTimeout: opts.WriteTimeout,
		onAuthError:  opts.OnAuthError,
		logger:       logger.With("component", "autosave"),
		kick:         make(chan struct{}, 1),
		flushCh:      make(chan chan error),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go a.run()
	return a
}

// Schedule records tasks as the latest state and restarts the delay.
func (a *AutoSaver) Schedule(tasks []checklist.Task) {
	a.mu.Lock()
	a.pending = checklist.CloneTasks(tasks)
	a.dirty = true
	a.version++
	a.mu.Unlock()

	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// Pending reports whether a scheduled change has not been written yet.
func (a *AutoSaver) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dirty
}

// Discard drops any unwritten change. A write already in flight is not
// cancelled.
func (a *AutoSaver) Discard() {
	a.mu.Lock()
	a.pending = nil
	a.dirty = false
	a.version++
	a.mu.Unlock()
}

// Flush writes any pending change now and returns the write's error.
func (a *AutoSaver) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case a.flushCh <- reply:
	case <-a.done:
		return errors.New("autosaver closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes any pending change and stops the AutoSaver. It is safe to
// call more than once.
func (a *AutoSaver) Close() error {
	a.closeOnce.Do(func() {
		close(a.stop)
		<-a.done
	})
	return a.closeErr
}

func (a *AutoSaver) run() {
	defer close(a.done)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timerC = nil
	}

	for {
		select {
		case <-a.kick:
			if timer == nil {
				timer = time.NewTimer(a.delay)
			} else {
				timer.Stop()
				timer.Reset(a.delay)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			_ = a.writePending()

		case reply := <-a.flushCh:
			stopTimer()
			reply <- a.writePending()

		case <-a.stop:
			stopTimer()
			a.closeErr = a.writePending()
			return
		}
	}
}

func (a *AutoSaver) writePending() error {
	a.mu.Lock()
	if !a.dirty {
		a.mu.Unlock()
		return nil
	}
	tasks := a.pending
	version := a.version
	a.mu.Unlock()

	ctx := context.Background()
	if a.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.writeTimeout)
		defer cancel()
	}

	start := time.Now()
	err := a.save(ctx, tasks)
	if err != nil {
		a.logger.Error("auto-save failed", "error", err)
		if errors.Is(err, ErrUnauthorized) && a.onAuthError != nil {
			a.onAuthError()
		}
		return err
	}

	a.mu.Lock()
	if a.version == version {
		a.dirty = false
	}
	a.mu.Unlock()

	a.logger.Debug("auto-save completed",
		"tasks", len(tasks),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
