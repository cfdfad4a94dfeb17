package mailbox

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func envAt(folder string, uid uint32, hoursAgo int) *Envelope {
	e := NewEnvelope(folder, uid, 1, nil)
	e.Date = base.Add(-time.Duration(hoursAgo) * time.Hour)
	return e
}

func seqOf(envs ...*Envelope) iter.Seq2[*Envelope, error] {
	return func(yield func(*Envelope, error) bool) {
		for _, e := range envs {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func TestMergeByDateOrdersNewestFirst(t *testing.T) {
	inbox := seqOf(envAt("INBOX", 9, 1), envAt("INBOX", 8, 4), envAt("INBOX", 7, 6))
	archive := seqOf(envAt("Archive", 3, 2), envAt("Archive", 2, 3), envAt("Archive", 1, 10))
	empty := seqOf()

	var got []string
	for env, err := range MergeByDate(inbox, empty, archive) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, env.Folder)
	}

	want := []string{"INBOX", "Archive", "Archive", "INBOX", "INBOX", "Archive"}
	if len(got) != len(want) {
		t.Fatalf("got %d envelopes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestMergeByDatePullsLazily(t *testing.T) {
	pulled := 0
	counting := func(yield func(*Envelope, error) bool) {
		for i := 0; i < 100; i++ {
			pulled++
			if !yield(envAt("INBOX", uint32(100-i), i), nil) {
				return
			}
		}
	}

	n := 0
	for _, err := range MergeByDate(counting) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		if n == 3 {
			break
		}
	}

	if pulled > 4 {
		t.Errorf("pulled %d envelopes to yield 3", pulled)
	}
}

func TestMergeByDateStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	failing := func(yield func(*Envelope, error) bool) {
		if !yield(envAt("INBOX", 2, 1), nil) {
			return
		}
		yield(nil, boom)
	}

	var gotErr error
	count := 0
	for env, err := range MergeByDate(failing, seqOf(envAt("Archive", 1, 5))) {
		if err != nil {
			gotErr = err
			break
		}
		if env == nil {
			t.Fatal("nil envelope without error")
		}
		count++
	}

	if !errors.Is(gotErr, boom) {
		t.Fatalf("got error %v, want %v", gotErr, boom)
	}
	if count != 1 {
		t.Errorf("yielded %d envelopes before the error, want 1", count)
	}
}

func TestEnvelopeBodyLoadedOnce(t *testing.T) {
	calls := 0
	env := NewEnvelope("INBOX", 4, 7, func(context.Context) (string, error) {
		calls++
		return "<p>hi</p>", nil
	})

	for i := 0; i < 3; i++ {
		body, err := env.Body(context.Background())
		if err != nil || body != "<p>hi</p>" {
			t.Fatalf("Body() = %q, %v", body, err)
		}
	}
	if calls != 1 {
		t.Errorf("loader called %d times, want 1", calls)
	}
}

func TestEnvelopeStableID(t *testing.T) {
	env := NewEnvelope("INBOX", 42, 7, nil)
	if got := env.StableID(); got != "uid:INBOX:7:42" {
		t.Errorf("StableID() without Message-ID = %q", got)
	}

	env.MessageID = "abc@bandcamp.com"
	if got := env.StableID(); got != "msgid:abc@bandcamp.com" {
		t.Errorf("StableID() with Message-ID = %q", got)
	}
}

func TestErrorClassification(t *testing.T) {
	auth := error(&AuthError{Username: "me", Err: errors.New("NO bad password")})
	transport := transportErr("fetching", errors.New("EOF"))

	if !IsAuthError(auth) || IsTransportError(auth) {
		t.Errorf("auth error misclassified: %v", auth)
	}
	if !IsTransportError(transport) || IsAuthError(transport) {
		t.Errorf("transport error misclassified: %v", transport)
	}
	if transportErr("x", nil) != nil {
		t.Error("transportErr(nil) should be nil")
	}
}
