package sync

import (
	"iter"
	gosync "sync"

	"github.com/nhle/bcfeed/internal/model"
)

// subscriberBuffer is the number of events a subscriber may fall behind
// before intermediate events are dropped for it.
const subscriberBuffer = 64

// reporter fans the progress events of one run out to any number of
// subscribers. Events carry increasing sequence numbers; a slow
// subscriber may miss intermediate events but always receives the
// terminal one.
type reporter struct {
	runID string

	mu     gosync.Mutex
	seq    int
	last   model.ProgressEvent
	subs   map[int]chan model.ProgressEvent
	nextID int
	closed bool
}

func newReporter(runID string) *reporter {
	return &reporter{
		runID: runID,
		subs:  make(map[int]chan model.ProgressEvent),
	}
}

// emit stamps ev with the run id and the next sequence number and
// delivers it to every subscriber without blocking. A Done event closes
// the reporter; later events are discarded.
func (r *reporter) emit(ev model.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.seq++
	ev.RunID = r.runID
	ev.Seq = r.seq
	r.last = ev

	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
		}
	}

	if ev.Done {
		r.closed = true
		for id, ch := range r.subs {
			close(ch)
			delete(r.subs, id)
		}
	}
}

// latest returns the most recent event and whether the run has ended.
func (r *reporter) latest() (model.ProgressEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.closed
}

// register adds a subscriber. When the run already ended it returns the
// terminal event instead.
func (r *reporter) register() (int, <-chan model.ProgressEvent, model.ProgressEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, nil, r.last, true
	}

	ch := make(chan model.ProgressEvent, subscriberBuffer)
	if r.seq > 0 {
		ch <- r.last
	}

	r.nextID++
	r.subs[r.nextID] = ch
	return r.nextID, ch, model.ProgressEvent{}, false
}

func (r *reporter) unregister(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.subs[id]; ok {
		close(ch)
		delete(r.subs, id)
	}
}

// subscribe returns the run's remaining events, starting with the most
// recent one, and ending with exactly one Done event.
func (r *reporter) subscribe() iter.Seq[model.ProgressEvent] {
	return func(yield func(model.ProgressEvent) bool) {
		id, ch, final, done := r.register()
		if done {
			yield(final)
			return
		}
		defer r.unregister(id)

		for ev := range ch {
			if !yield(ev) || ev.Done {
				return
			}
		}

		// The channel was closed by the Done event, which did not fit
		// into the buffer.
		final, _ = r.latest()
		yield(final)
	}
}
