// Package worker executes crawl runs. It serializes runs so at most
// one crawl touches the site and the store at a time, and owns the
// store session: every run gets exactly one trailing commit, whatever
// way it ended.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ipowatch/internal/clock"
	"ipowatch/internal/crawler"
	"ipowatch/internal/progress"
	"ipowatch/internal/schedule"
)

// ErrRunInProgress is returned when a crawl is requested while another
// run is still executing.
var ErrRunInProgress = errors.New("a crawl run is already in progress")

// Session is the store handle a run writes through.
type Session interface {
	Insert(ctx context.Context, rec schedule.Record) (bool, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SessionOpener starts a new store session.
type SessionOpener func(ctx context.Context) (Session, error)

// Runner walks the categories and writes through the session.
// *crawler.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, runID uuid.UUID, sess crawler.Inserter) (crawler.Summary, error)
}

// Status describes where a run is in its lifecycle.
type Status string

// Run statuses reported by the control API.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// RunInfo is a snapshot of the most recent run.
type RunInfo struct {
	ID         uuid.UUID        `json:"id"`
	Status     Status           `json:"status"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Summary    *crawler.Summary `json:"summary,omitempty"`
	Err        string           `json:"error,omitempty"`
}

// Config wires the Worker's collaborators.
type Config struct {
	Open    SessionOpener
	Runner  Runner
	Clock   clock.Clock
	Emitter progress.Emitter
	Logger  *zap.Logger
}

// Worker runs crawls one at a time.
type Worker struct {
	open    SessionOpener
	runner  Runner
	clock   clock.Clock
	emitter progress.Emitter
	logger  *zap.Logger

	mu      sync.Mutex
	current *runState
}

type runState struct {
	info   RunInfo
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Open == nil {
		return nil, errors.New("session opener is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if cfg.Clock == nil {
		return nil, errors.New("clock is required")
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = progress.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		open:    cfg.Open,
		runner:  cfg.Runner,
		clock:   cfg.Clock,
		emitter: emitter,
		logger:  logger,
	}, nil
}

// StartCrawl launches a run in the background and returns its ID, or
// ErrRunInProgress when one is already executing.
func (w *Worker) StartCrawl() (uuid.UUID, error) {
	w.mu.Lock()
	if w.current != nil && w.current.info.Status == StatusRunning {
		w.mu.Unlock()
		return uuid.Nil, ErrRunInProgress
	}
	runID := uuid.New()
	ctx, cancel := context.WithCancel(context.Background())
	rs := &runState{
		info: RunInfo{
			ID:        runID,
			Status:    StatusRunning,
			StartedAt: w.clock.Now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	w.current = rs
	w.mu.Unlock()

	go w.execute(ctx, rs)
	return runID, nil
}

// Cancel requests cancellation of the current run. The run still
// finishes its in-flight page and commits what it collected. Reports
// whether a running crawl was signaled.
func (w *Worker) Cancel() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil || w.current.info.Status != StatusRunning {
		return false
	}
	w.current.cancel()
	return true
}

// Status returns a snapshot of the most recent run; ok is false when
// nothing has run yet.
func (w *Worker) Status() (RunInfo, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return RunInfo{}, false
	}
	return w.current.info, true
}

// Wait blocks until the current run finishes, if one is executing.
func (w *Worker) Wait(ctx context.Context) error {
	w.mu.Lock()
	rs := w.current
	w.mu.Unlock()
	if rs == nil {
		return nil
	}
	select {
	case <-rs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) execute(ctx context.Context, rs *runState) {
	defer close(rs.done)
	defer rs.cancel()

	summary, err := w.RunOnce(ctx, rs.info.ID)
	now := w.clock.Now()

	w.mu.Lock()
	rs.info.FinishedAt = &now
	rs.info.Summary = &summary
	switch {
	case err != nil:
		rs.info.Status = StatusFailed
		rs.info.Err = err.Error()
	case summary.Canceled:
		rs.info.Status = StatusCanceled
	default:
		rs.info.Status = StatusSucceeded
	}
	info := rs.info
	w.mu.Unlock()

	evt := progress.Event{
		RunID:      info.ID,
		TS:         now,
		Inserted:   summary.Inserted,
		Duplicates: summary.Duplicates,
		Skipped:    summary.Skipped,
	}
	switch info.Status {
	case StatusFailed:
		evt.Kind = progress.KindRunError
		evt.Err = info.Err
		w.logger.Error("crawl run failed",
			zap.String("run_id", info.ID.String()),
			zap.String("error", info.Err),
		)
	case StatusCanceled:
		evt.Kind = progress.KindRunCanceled
		w.logger.Info("crawl run canceled",
			zap.String("run_id", info.ID.String()),
			zap.Int("inserted", summary.Inserted),
		)
	default:
		evt.Kind = progress.KindRunDone
		w.logger.Info("crawl run finished",
			zap.String("run_id", info.ID.String()),
			zap.Int("inserted", summary.Inserted),
			zap.Int("duplicates", summary.Duplicates),
			zap.Int("skipped", summary.Skipped),
		)
	}
	w.emitter.Emit(evt)
}

// RunOnce executes a single crawl run synchronously. The session is
// committed exactly once on every exit path, so a canceled or failed
// run still keeps the records collected before it stopped.
func (w *Worker) RunOnce(ctx context.Context, runID uuid.UUID) (crawler.Summary, error) {
	sess, err := w.open(ctx)
	if err != nil {
		return crawler.Summary{}, fmt.Errorf("open store session: %w", err)
	}

	summary, runErr := w.runner.Run(ctx, runID, sess)

	// Commit must survive the run context being canceled.
	commitCtx := context.WithoutCancel(ctx)
	if err := sess.Commit(commitCtx); err != nil {
		if rbErr := sess.Rollback(commitCtx); rbErr != nil {
			w.logger.Warn("session rollback failed", zap.Error(rbErr))
		}
		return summary, errors.Join(runErr, fmt.Errorf("commit crawl session: %w", err))
	}
	return summary, runErr
}
