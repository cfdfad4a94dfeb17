package sync

import (
	"iter"
	"testing"

	"github.com/nhle/bcfeed/internal/model"
)

func TestReporterSlowSubscriberGetsTerminalEvent(t *testing.T) {
	r := newReporter("run-1")
	r.emit(model.ProgressEvent{Phase: model.PhaseRecent, Message: "first"})

	next, stop := iter.Pull(r.subscribe())
	defer stop()

	first, ok := next()
	if !ok || first.Message != "first" || first.RunID != "run-1" {
		t.Fatalf("first event = %+v, %v", first, ok)
	}

	// The subscriber is parked while far more events than its buffer
	// holds are emitted.
	for i := range 3 * subscriberBuffer {
		r.emit(model.ProgressEvent{Phase: model.PhaseBacklog, ProcessedCount: i})
	}
	r.emit(model.ProgressEvent{Phase: model.PhaseIdle, Done: true})

	var got []model.ProgressEvent
	for {
		ev, ok := next()
		if !ok {
			break
		}
		got = append(got, ev)
	}

	if len(got) == 0 || !got[len(got)-1].Done {
		t.Fatalf("sequence does not end with a done event: %d events", len(got))
	}
	if len(got) > subscriberBuffer+1 {
		t.Errorf("got %d events, want at most %d", len(got), subscriberBuffer+1)
	}
	prev := first.Seq
	for _, ev := range got {
		if ev.Seq <= prev {
			t.Fatalf("seq %d after %d", ev.Seq, prev)
		}
		prev = ev.Seq
	}
}

func TestReporterSubscribeAfterDone(t *testing.T) {
	r := newReporter("run-2")
	r.emit(model.ProgressEvent{Phase: model.PhaseRecent})
	r.emit(model.ProgressEvent{Phase: model.PhaseIdle, Done: true, NewCount: 4})
	r.emit(model.ProgressEvent{Phase: model.PhaseRecent})

	var got []model.ProgressEvent
	for ev := range r.subscribe() {
		got = append(got, ev)
	}
	if len(got) != 1 || !got[0].Done || got[0].NewCount != 4 || got[0].Seq != 2 {
		t.Fatalf("late subscription = %+v", got)
	}
}

func TestReporterEarlyBreakUnregisters(t *testing.T) {
	r := newReporter("run-3")
	r.emit(model.ProgressEvent{Phase: model.PhaseRecent})

	for range r.subscribe() {
		break
	}

	r.mu.Lock()
	n := len(r.subs)
	r.mu.Unlock()
	if n != 0 {
		t.Fatalf("%d subscribers left registered", n)
	}

	// Emitting after the subscriber left must not panic on a closed channel.
	r.emit(model.ProgressEvent{Phase: model.PhaseIdle, Done: true})
}
