// Package dispatch turns a post-tool-use hook event into a best-effort
// "git add" of the file the tool touched.
//
// A hook must never block or fail the host workflow, so Run swallows every
// failure. Handle returns them for callers that want to log or test.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"git-auto-add/internal/hookevt"
	"git-auto-add/internal/lock"
	"git-auto-add/internal/stage"
	"git-auto-add/internal/store"
)

// DefaultTimeout bounds one staging attempt.
const DefaultTimeout = 5 * time.Second

// Dispatcher filters hook events and stages the file each one names.
type Dispatcher struct {
	stager  stage.Stager
	timeout time.Duration
	journal store.RecordStore
	logger  *slog.Logger

	lockEnabled bool
	lockDir     string

	now func() time.Time
}

// New creates a Dispatcher that stages through s. A non-positive timeout
// means DefaultTimeout.
func New(s stage.Stager, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		stager:  s,
		timeout: timeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}
}

// SetJournal records every staging attempt in rs.
func (d *Dispatcher) SetJournal(rs store.RecordStore) {
	d.journal = rs
}

// SetLogger replaces the default discarding logger.
func (d *Dispatcher) SetLogger(l *slog.Logger) {
	if l != nil {
		d.logger = l
	}
}

// EnableLock serialises staging with other hook processes working in dir.
func (d *Dispatcher) EnableLock(dir string) {
	d.lockEnabled = true
	d.lockDir = dir
}

// Run handles one event from r and discards the outcome, including panics.
func (d *Dispatcher) Run(ctx context.Context, r io.Reader) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("hook panicked", "panic", rec)
		}
	}()

	if err := d.Handle(ctx, r); err != nil {
		switch {
		case errors.Is(err, ErrIgnoredTool), errors.Is(err, ErrNoPath):
			d.logger.Debug("nothing to stage", "reason", err)
		default:
			d.logger.Warn("stage skipped", "err", err)
		}
	}
}

// Handle decodes one event from r and stages the file it names.
// Filtered events return ErrIgnoredTool or ErrNoPath.
func (d *Dispatcher) Handle(ctx context.Context, r io.Reader) error {
	evt, err := hookevt.Decode(r)
	if err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return d.HandleEvent(ctx, evt)
}

// HandleEvent stages the file evt names, if any.
func (d *Dispatcher) HandleEvent(ctx context.Context, evt hookevt.Event) error {
	path, err := ResolvePath(evt)
	if err != nil {
		return err
	}

	started := d.now()
	stageErr := d.stage(ctx, path)
	took := d.now().Sub(started)

	if stageErr == nil {
		d.logger.Info("staged", "tool", evt.ToolName, "path", path, "took", took)
	}
	d.record(ctx, store.NewRecord(evt, path, started, took, stageErr))

	return stageErr
}

// stage runs the stager under the dispatcher's deadline, holding the
// worktree lock when enabled.
func (d *Dispatcher) stage(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if d.lockEnabled {
		fl, err := lock.Acquire(ctx, d.lockDir)
		switch {
		case errors.Is(err, lock.ErrUnavailable):
			d.logger.Debug("staging without lock", "err", err)
		case err != nil:
			return fmt.Errorf("stage %s: %w", path, err)
		default:
			defer fl.Unlock()
		}
	}

	if err := d.stager.Stage(ctx, path); err != nil {
		return fmt.Errorf("stage %s: %w", path, err)
	}
	return nil
}

// record writes rec to the journal when one is configured. Journal failures
// are logged only.
func (d *Dispatcher) record(ctx context.Context, rec store.Record) {
	if d.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.journal.Index(ctx, rec); err != nil {
		d.logger.Warn("journal write failed", "path", rec.FilePath, "err", err)
	}
}
