package sync

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/charmbracelet/log"

	"github.com/nhle/bcfeed/internal/mailbox"
	"github.com/nhle/bcfeed/internal/model"
)

// runState holds the counters of one run.
type runState struct {
	rep    *reporter
	logger *log.Logger

	phase     model.Phase
	processed int
	total     int
	newCount  int
	skipped   int
	lastFound *model.ReleaseSummary
}

func (s *runState) event(msg string) model.ProgressEvent {
	return model.ProgressEvent{
		Phase:          s.phase,
		ProcessedCount: s.processed,
		TotalEstimate:  max(s.total, s.processed),
		NewCount:       s.newCount,
		SkippedCount:   s.skipped,
		Message:        msg,
		LastFound:      s.lastFound,
	}
}

func (s *runState) report(msg string) {
	s.rep.emit(s.event(msg))
}

// folderInfo is a folder that could be selected, with the number of
// sender-matching messages it holds.
type folderInfo struct {
	name  string
	count int
}

// execute performs one run and always ends the progress sequence with a
// Done event.
func (o *Orchestrator) execute(ctx context.Context, rep *reporter) (Summary, error) {
	st := &runState{
		rep:    rep,
		logger: o.logger.With("run", rep.runID),
		phase:  model.PhaseRecent,
	}

	st.logger.Info("sync started")
	err := o.sync(ctx, st)

	failure := failureFor(err)
	final := st.event("sync complete")
	final.Phase = model.PhaseIdle
	final.Done = true
	final.Failure = failure
	if failure != nil {
		final.Message = failure.Message
	}
	rep.emit(final)

	summary := Summary{
		RunID:     rep.runID,
		Processed: st.processed,
		New:       st.newCount,
		Skipped:   st.skipped,
		Failure:   failure,
	}

	if failure != nil {
		st.logger.Error("sync failed",
			"kind", failure.Kind, "recoverable", failure.Recoverable,
			"processed", st.processed, "new", st.newCount, "err", err,
		)
		return summary, err
	}

	st.logger.Info("sync finished", "processed", st.processed, "new", st.newCount, "skipped", st.skipped)
	return summary, nil
}

// sync walks both phases. Batch work runs on a context that ignores
// cancellation; ctx is only consulted between batches.
func (o *Orchestrator) sync(ctx context.Context, st *runState) error {
	work := context.WithoutCancel(ctx)

	st.report("connecting")
	session, err := o.connector.Connect(ctx, o.creds)
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			st.logger.Warn("closing mailbox session", "err", err)
		}
	}()

	cp, err := o.store.LoadCheckpoint(work)
	if err != nil {
		return fmt.Errorf("loading checkpoint: %w", err)
	}

	folders, err := o.folders(work, session, st.logger)
	if err != nil {
		return err
	}

	err = o.recent(ctx, work, session, folders, cp, st)
	if err == nil {
		err = o.backlog(ctx, work, session, folders, cp, st)
	}

	// A transport failure leaves the checkpoint as the last completed
	// batch saved it.
	if err == nil || errors.Is(err, context.Canceled) {
		o.saveIdle(work, cp, st)
	}
	return err
}

// saveIdle marks the checkpoint idle. Cursors are unchanged since the
// last completed batch, so this never moves them.
func (o *Orchestrator) saveIdle(ctx context.Context, cp *model.SyncCheckpoint, st *runState) {
	cp.Phase = model.PhaseIdle
	if err := o.store.SaveCheckpoint(ctx, cp); err != nil {
		st.logger.Warn("saving idle checkpoint", "err", err)
	}
}

// folders lists the selectable folders that hold mail from the sender.
// A folder that cannot be examined is skipped.
func (o *Orchestrator) folders(ctx context.Context, session mailbox.Session, logger *log.Logger) ([]folderInfo, error) {
	listed, err := session.ListFolders(ctx)
	if err != nil {
		return nil, err
	}

	sender := o.classifier.SenderDomain()
	var out []folderInfo
	for _, f := range listed {
		n, err := session.Count(ctx, f.Name, mailbox.FetchOptions{From: sender})
		if err != nil {
			logger.Warn("skipping folder", "folder", f.Name, "err", err)
			continue
		}
		if n == 0 {
			continue
		}
		out = append(out, folderInfo{name: f.Name, count: n})
	}
	return out, nil
}

// recent processes the newest envelopes across all folders in one
// merged, newest-first order.
func (o *Orchestrator) recent(
	ctx, work context.Context,
	session mailbox.Session,
	folders []folderInfo,
	cp *model.SyncCheckpoint,
	st *runState,
) error {
	st.phase = model.PhaseRecent
	cp.Phase = model.PhaseRecent
	if err := o.store.SaveCheckpoint(work, cp); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}

	limit := o.cfg.Limit
	estimate := 0
	for _, f := range folders {
		estimate += f.count
	}
	if limit > 0 {
		estimate = min(estimate, limit)
	}
	st.total = estimate
	st.report("scanning recent mail")

	sources := make([]iter.Seq2[*mailbox.Envelope, error], 0, len(folders))
	for _, f := range folders {
		sources = append(sources, session.Envelopes(work, f.name, mailbox.FetchOptions{
			Limit: limit,
			From:  o.classifier.SenderDomain(),
		}))
	}

	n := 0
	for env, err := range mailbox.MergeByDate(sources...) {
		if err != nil {
			return err
		}
		if err := o.handle(work, env, st); err != nil {
			return err
		}
		n++
		if limit > 0 && n >= limit {
			break
		}
		if n%o.cfg.BatchSize == 0 {
			st.report("scanning recent mail")
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}

	st.logger.Info("recent phase done", "scanned", n, "new", st.newCount)
	st.report("recent mail scanned")
	return nil
}

// backlog continues each folder's walk towards older mail from its
// checkpoint, saving the checkpoint after every batch.
func (o *Orchestrator) backlog(
	ctx, work context.Context,
	session mailbox.Session,
	folders []folderInfo,
	cp *model.SyncCheckpoint,
	st *runState,
) error {
	st.phase = model.PhaseBacklog
	cp.Phase = model.PhaseBacklog
	sender := o.classifier.SenderDomain()

	budget := o.cfg.BacklogLimit
	unbounded := budget <= 0

	remaining := 0
	for _, f := range folders {
		cur, _ := cp.Cursor(f.name)
		if cur.Exhausted {
			continue
		}
		n, err := session.Count(work, f.name, mailbox.FetchOptions{From: sender, After: toMailboxCursor(cur)})
		if err != nil {
			return err
		}
		remaining += n
	}
	if !unbounded {
		remaining = min(remaining, budget)
	}
	st.total += remaining
	cp.TotalEstimate = cp.ProcessedCount + remaining
	if err := o.store.SaveCheckpoint(work, cp); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	st.report("walking older mail")

	for _, f := range folders {
		for {
			if !unbounded && budget <= 0 {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			cur, _ := cp.Cursor(f.name)
			if cur.Exhausted {
				break
			}

			want := o.cfg.BatchSize
			if !unbounded {
				want = min(want, budget)
			}

			next, n, err := o.backlogBatch(work, session, f.name, cur, want, st)
			if err != nil {
				return err
			}

			cp.Advance(next)
			cp.ProcessedCount += n
			if err := o.store.SaveCheckpoint(work, cp); err != nil {
				return fmt.Errorf("saving checkpoint: %w", err)
			}
			budget -= n

			st.logger.Debug("backlog batch done",
				"folder", f.name, "scanned", n, "before_uid", next.Before, "exhausted", next.Exhausted,
			)
			st.report("walking older mail")

			if next.Exhausted {
				break
			}
		}
	}

	return nil
}

// backlogBatch processes up to want envelopes of folder below cur and
// returns the cursor that follows them.
func (o *Orchestrator) backlogBatch(
	ctx context.Context,
	session mailbox.Session,
	folder string,
	cur model.FolderCursor,
	want int,
	st *runState,
) (model.FolderCursor, int, error) {
	opts := mailbox.FetchOptions{
		Limit: want,
		After: toMailboxCursor(cur),
		From:  o.classifier.SenderDomain(),
	}

	next := model.FolderCursor{
		Folder:      folder,
		UIDValidity: cur.UIDValidity,
		Before:      cur.Before,
	}

	n := 0
	for env, err := range session.Envelopes(ctx, folder, opts) {
		if err != nil {
			return model.FolderCursor{}, 0, err
		}
		if err := o.handle(ctx, env, st); err != nil {
			return model.FolderCursor{}, 0, err
		}

		if n == 0 || env.UIDValidity != next.UIDValidity || env.UID < next.Before {
			next.UIDValidity = env.UIDValidity
			next.Before = env.UID
		}
		n++
	}

	next.Exhausted = n < want
	next.UpdatedAt = o.now()
	return next, n, nil
}

func toMailboxCursor(c model.FolderCursor) mailbox.Cursor {
	return mailbox.Cursor{UIDValidity: c.UIDValidity, Before: c.Before}
}

// handle processes one envelope and updates the run counters.
func (o *Orchestrator) handle(ctx context.Context, env *mailbox.Envelope, st *runState) error {
	res, stored, err := o.process(ctx, env)
	if err != nil {
		return err
	}

	st.processed++
	if res != outcomeStored {
		st.skipped++
		st.logger.Debug("message skipped", "email_id", env.StableID(), "folder", env.Folder, "reason", res)
		return nil
	}

	st.newCount++
	summary := stored.Summary()
	st.lastFound = &summary
	st.logger.Info("release found", "uploader", stored.Uploader, "release", stored.ReleaseName)
	st.report("found " + stored.String())
	return nil
}

// failureFor maps the error that ended a run to the failure attached to
// its terminal event.
func failureFor(err error) *model.Failure {
	switch {
	case err == nil:
		return nil
	case mailbox.IsAuthError(err):
		return &model.Failure{
			Kind:    model.FailureAuth,
			Message: "check credentials: " + err.Error(),
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &model.Failure{
			Kind:        model.FailureCancelled,
			Message:     "sync cancelled",
			Recoverable: true,
		}
	case mailbox.IsTransportError(err):
		return &model.Failure{
			Kind:        model.FailureTransport,
			Message:     "sync interrupted, will resume: " + err.Error(),
			Recoverable: true,
		}
	default:
		return &model.Failure{
			Kind:        model.FailureInternal,
			Message:     err.Error(),
			Recoverable: true,
		}
	}
}
