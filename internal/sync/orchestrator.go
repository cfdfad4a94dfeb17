// Package sync drives mailbox synchronisation: a recent phase that keeps
// the head of the feed fresh, followed by a resumable backlog phase
// that walks older mail a bounded batch at a time.
package sync

import (
	"context"
	"errors"
	"fmt"
	"iter"
	gosync "sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nhle/bcfeed/internal/classify"
	"github.com/nhle/bcfeed/internal/extract"
	"github.com/nhle/bcfeed/internal/logging"
	"github.com/nhle/bcfeed/internal/mailbox"
	"github.com/nhle/bcfeed/internal/model"
	"github.com/nhle/bcfeed/internal/store"
)

// ErrSyncAlreadyRunning is returned when a sync is requested while
// another one is in progress. The running sync is not affected.
var ErrSyncAlreadyRunning = errors.New("sync already running")

// Store is the persistence the orchestrator writes to.
type Store interface {
	store.ReleaseStore
	store.CheckpointStore
}

// Summary describes a finished run.
type Summary struct {
	RunID     string         `json:"run_id"`
	Processed int            `json:"processed"`
	New       int            `json:"new"`
	Skipped   int            `json:"skipped"`
	Failure   *model.Failure `json:"failure,omitempty"`
}

// Orchestrator owns the sync state. At most one run is active at a
// time; it is the only writer of releases and of the checkpoint.
type Orchestrator struct {
	connector  mailbox.Connector
	creds      mailbox.Credentials
	store      Store
	cfg        model.SyncConfig
	classifier *classify.Classifier
	extractor  *extract.Extractor
	logger     *log.Logger
	now        func() time.Time

	mu      gosync.Mutex
	running bool
	cancel  context.CancelFunc
	current *reporter
	last    *reporter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithExtractor replaces the default extractor.
func WithExtractor(e *extract.Extractor) Option {
	return func(o *Orchestrator) { o.extractor = e }
}

// New creates an Orchestrator that syncs the mailbox reached through
// connector into s.
func New(
	connector mailbox.Connector,
	creds mailbox.Credentials,
	s Store,
	cfg model.SyncConfig,
	opts ...Option,
) *Orchestrator {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}

	o := &Orchestrator{
		connector:  connector,
		creds:      creds,
		store:      s,
		cfg:        cfg,
		classifier: classify.New(cfg.Sender),
		logger:     logging.Discard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrDiscard(o.logger)
	if o.extractor == nil {
		o.extractor = extract.New(extract.WithLogger(o.logger))
	}
	return o
}

// begin claims the single run slot.
func (o *Orchestrator) begin(parent context.Context) (context.Context, *reporter, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return nil, nil, ErrSyncAlreadyRunning
	}

	ctx, cancel := context.WithCancel(parent)
	o.running = true
	o.cancel = cancel
	o.current = newReporter(uuid.NewString())
	return ctx, o.current, nil
}

// end releases the run slot.
func (o *Orchestrator) end() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cancel != nil {
		o.cancel()
	}
	o.running = false
	o.cancel = nil
	o.last = o.current
	o.current = nil
}

// StartSync starts a run in the background and returns its id at once.
// It returns ErrSyncAlreadyRunning when a run is in progress. The run
// outlives ctx; use Cancel to stop it.
func (o *Orchestrator) StartSync(ctx context.Context) (string, error) {
	runCtx, rep, err := o.begin(context.WithoutCancel(ctx))
	if err != nil {
		return "", err
	}

	go func() {
		defer o.end()
		o.execute(runCtx, rep)
	}()

	return rep.runID, nil
}

// Run performs a run synchronously. Cancelling ctx stops the run at the
// next batch boundary. The returned error is the failure that ended the
// run, if any.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	runCtx, rep, err := o.begin(ctx)
	if err != nil {
		return Summary{}, err
	}
	defer o.end()

	return o.execute(runCtx, rep)
}

// Cancel asks the active run to stop at its next batch boundary. It
// reports whether a run was active.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return false
	}
	o.cancel()
	return true
}

// Running reports whether a run is in progress.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Status returns the latest progress event of the active run, the
// terminal event of the previous run, or an idle event.
func (o *Orchestrator) Status() model.ProgressEvent {
	o.mu.Lock()
	rep := o.current
	if rep == nil {
		rep = o.last
	}
	o.mu.Unlock()

	if rep == nil {
		return idleEvent()
	}
	ev, _ := rep.latest()
	if ev.Seq == 0 {
		return model.ProgressEvent{RunID: rep.runID, Phase: model.PhaseRecent, Message: "starting"}
	}
	return ev
}

// SubscribeProgress returns the progress events of the active run,
// ending with its single Done event. Without an active run it yields
// the terminal event of the previous run, or one idle Done event when
// nothing ran yet. Subscribers never slow the run down.
func (o *Orchestrator) SubscribeProgress() iter.Seq[model.ProgressEvent] {
	o.mu.Lock()
	rep := o.current
	if rep == nil {
		rep = o.last
	}
	o.mu.Unlock()

	if rep == nil {
		return func(yield func(model.ProgressEvent) bool) {
			yield(idleEvent())
		}
	}
	return rep.subscribe()
}

// ResetCheckpoint clears all backlog progress so the next run walks
// every folder from the newest message again. It fails with
// ErrSyncAlreadyRunning while a run is active.
func (o *Orchestrator) ResetCheckpoint(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return ErrSyncAlreadyRunning
	}
	if err := o.store.ResetCheckpoint(ctx); err != nil {
		return fmt.Errorf("resetting checkpoint: %w", err)
	}
	o.logger.Info("checkpoint reset")
	return nil
}

func idleEvent() model.ProgressEvent {
	return model.ProgressEvent{Phase: model.PhaseIdle, Done: true}
}
