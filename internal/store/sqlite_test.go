package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nhle/bcfeed/internal/model"
	"github.com/nhle/bcfeed/internal/store"
	"github.com/nhle/bcfeed/tests/testutil"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func release(id, uploader, name string, received time.Time) model.Release {
	return model.Release{
		EmailID:     id,
		Uploader:    uploader,
		ReleaseName: name,
		BandcampURL: "https://" + id + ".bandcamp.com/album/" + name,
		ReceivedAt:  received,
	}
}

func mustInsert(t *testing.T, s store.Store, r model.Release) model.Release {
	t.Helper()
	got, err := s.Insert(context.Background(), r)
	if err != nil {
		t.Fatalf("Insert(%s): %v", r.EmailID, err)
	}
	return got
}

func TestInsertAndExists(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	s.SetClock(func() time.Time { return base.Add(time.Hour) })

	ok, err := s.Exists(ctx, "msgid:<a@x>")
	if err != nil || ok {
		t.Fatalf("Exists on empty store = %v, %v", ok, err)
	}

	got := mustInsert(t, s, model.Release{
		EmailID:     "msgid:<a@x>",
		Uploader:    "Artist A",
		ReleaseName: "Album One",
		BandcampURL: "https://artista.bandcamp.com/track/one",
		ReceivedAt:  base,
	})
	if got.ID == 0 {
		t.Error("Insert did not assign an id")
	}
	if got.ReleaseType != model.ReleaseTypeTrack {
		t.Errorf("ReleaseType = %q, want TRACK", got.ReleaseType)
	}
	if got.CreatedAt.Before(got.ReceivedAt) {
		t.Errorf("CreatedAt %v before ReceivedAt %v", got.CreatedAt, got.ReceivedAt)
	}

	ok, err = s.Exists(ctx, "msgid:<a@x>")
	if err != nil || !ok {
		t.Fatalf("Exists after insert = %v, %v", ok, err)
	}

	stored, err := s.GetRelease(ctx, "msgid:<a@x>")
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if stored.Uploader != "Artist A" || stored.ReleaseName != "Album One" {
		t.Errorf("stored = %+v", stored)
	}
	if !stored.ReceivedAt.Equal(base) {
		t.Errorf("ReceivedAt = %v, want %v", stored.ReceivedAt, base)
	}
}

func TestGetReleaseNotFound(t *testing.T) {
	s := testutil.NewTestStore(t)
	if _, err := s.GetRelease(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInsertDuplicate(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	r := release("e1", "A", "one", base)
	mustInsert(t, s, r)

	if _, err := s.Insert(ctx, r); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("duplicate email id: err = %v, want ErrAlreadyExists", err)
	}

	// Same link under another message id.
	other := r
	other.EmailID = "e2"
	if _, err := s.Insert(ctx, other); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("duplicate link: err = %v, want ErrAlreadyExists", err)
	}

	page, err := s.ListReleases(ctx, store.ReleaseFilter{}, store.SortNewest, 1, 0)
	if err != nil {
		t.Fatalf("ListReleases: %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("Total = %d, want 1", page.Total)
	}
}

func TestInsertConcurrentDuplicates(t *testing.T) {
	s := testutil.NewTestStore(t)
	r := release("same", "A", "one", base)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Insert(context.Background(), r)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var stored, dup int
	for err := range errs {
		switch {
		case err == nil:
			stored++
		case errors.Is(err, store.ErrAlreadyExists):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if stored != 1 || dup != workers-1 {
		t.Fatalf("stored=%d dup=%d, want 1 and %d", stored, dup, workers-1)
	}
}

func TestListReleases(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	mustInsert(t, s, release("e1", "beta", "first", base))
	mustInsert(t, s, release("e2", "Alpha", "second", base.Add(24*time.Hour)))
	track := release("e3", "gamma", "third", base.Add(48*time.Hour))
	track.BandcampURL = "https://gamma.bandcamp.com/track/third"
	mustInsert(t, s, track)

	ids := func(p *store.ReleasePage) string {
		var out []string
		for _, r := range p.Releases {
			out = append(out, r.EmailID)
		}
		return fmt.Sprint(out)
	}

	tests := []struct {
		name   string
		filter store.ReleaseFilter
		sort   string
		want   string
	}{
		{"newest", store.ReleaseFilter{}, store.SortNewest, "[e3 e2 e1]"},
		{"oldest", store.ReleaseFilter{}, store.SortOldest, "[e1 e2 e3]"},
		{"uploader az", store.ReleaseFilter{}, store.SortUploaderAZ, "[e2 e1 e3]"},
		{"uploader za", store.ReleaseFilter{}, store.SortUploaderZA, "[e3 e1 e2]"},
		{"unknown sort", store.ReleaseFilter{}, "bogus", "[e3 e2 e1]"},
		{"query uploader", store.ReleaseFilter{Query: "alp"}, store.SortNewest, "[e2]"},
		{"query release", store.ReleaseFilter{Query: "THIRD"}, store.SortNewest, "[e3]"},
		{"type", store.ReleaseFilter{Type: model.ReleaseTypeTrack}, store.SortNewest, "[e3]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.ListReleases(ctx, tt.filter, tt.sort, 1, 10)
			if err != nil {
				t.Fatalf("ListReleases: %v", err)
			}
			if got := ids(page); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	since := base.Add(12 * time.Hour)
	page, err := s.ListReleases(ctx, store.ReleaseFilter{Since: &since}, store.SortOldest, 1, 10)
	if err != nil {
		t.Fatalf("ListReleases since: %v", err)
	}
	if got := ids(page); got != "[e2 e3]" {
		t.Errorf("since: got %s", got)
	}
}

func TestListReleasesPagination(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	for i := range 5 {
		mustInsert(t, s, release(fmt.Sprintf("e%d", i), "A", fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Hour)))
	}

	page, err := s.ListReleases(ctx, store.ReleaseFilter{}, store.SortNewest, 3, 2)
	if err != nil {
		t.Fatalf("ListReleases: %v", err)
	}
	if page.Total != 5 || page.TotalPages != 3 || page.Page != 3 {
		t.Fatalf("page meta = %+v", page)
	}
	if len(page.Releases) != 1 || page.Releases[0].EmailID != "e0" {
		t.Fatalf("last page = %+v", page.Releases)
	}

	empty, err := s.ListReleases(ctx, store.ReleaseFilter{}, store.SortNewest, 9, 2)
	if err != nil {
		t.Fatalf("ListReleases: %v", err)
	}
	if empty.Releases == nil || len(empty.Releases) != 0 {
		t.Fatalf("past the end = %#v, want empty slice", empty.Releases)
	}
}

func TestStats(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()
	now := base.Add(60 * 24 * time.Hour)

	empty, err := s.Stats(ctx, now)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if empty.Total != 0 || empty.Oldest != nil || empty.Newest != nil {
		t.Fatalf("empty stats = %+v", empty)
	}

	mustInsert(t, s, release("e1", "A", "old", base))
	mustInsert(t, s, release("e2", "B", "month", now.Add(-20*24*time.Hour)))
	mustInsert(t, s, release("e3", "B", "week", now.Add(-2*24*time.Hour)))

	stats, err := s.Stats(ctx, now)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 || stats.ThisWeek != 1 || stats.ThisMonth != 2 {
		t.Errorf("counts = %+v", stats)
	}
	if len(stats.TopUploaders) != 2 || stats.TopUploaders[0] != (model.UploaderCount{Uploader: "B", Count: 2}) {
		t.Errorf("TopUploaders = %+v", stats.TopUploaders)
	}
	if stats.Oldest == nil || !stats.Oldest.Equal(base) {
		t.Errorf("Oldest = %v", stats.Oldest)
	}
	if stats.Newest == nil || !stats.Newest.Equal(now.Add(-2*24*time.Hour)) {
		t.Errorf("Newest = %v", stats.Newest)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	cp, err := s.LoadCheckpoint(ctx)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if cp.Phase != model.PhaseIdle || len(cp.Folders) != 0 {
		t.Fatalf("initial checkpoint = %+v", cp)
	}

	cp.Phase = model.PhaseBacklog
	cp.ProcessedCount = 120
	cp.TotalEstimate = 400
	cp.Advance(model.FolderCursor{Folder: "INBOX", UIDValidity: 7, Before: 300})
	cp.Advance(model.FolderCursor{Folder: "Archive", UIDValidity: 9, Before: 1, Exhausted: true})
	if err := s.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	got, err := s.LoadCheckpoint(ctx)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if got.Phase != model.PhaseBacklog || got.ProcessedCount != 120 || got.TotalEstimate != 400 {
		t.Errorf("state = %+v", got)
	}
	inbox, ok := got.Cursor("INBOX")
	if !ok || inbox.UIDValidity != 7 || inbox.Before != 300 || inbox.Exhausted {
		t.Errorf("INBOX cursor = %+v, %v", inbox, ok)
	}
	archive, ok := got.Cursor("Archive")
	if !ok || !archive.Exhausted {
		t.Errorf("Archive cursor = %+v, %v", archive, ok)
	}

	if err := s.ResetCheckpoint(ctx); err != nil {
		t.Fatalf("ResetCheckpoint: %v", err)
	}
	reset, err := s.LoadCheckpoint(ctx)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if reset.Phase != model.PhaseIdle || len(reset.Folders) != 0 || reset.ProcessedCount != 0 {
		t.Errorf("after reset = %+v", reset)
	}
}

func TestWindowStart(t *testing.T) {
	now := base
	for _, tt := range []struct {
		window string
		days   int
		ok     bool
	}{
		{"week", 7, true},
		{"month", 30, true},
		{"3months", 90, true},
		{"year", 365, true},
		{"all", 0, false},
		{"", 0, false},
	} {
		got, ok := store.WindowStart(tt.window, now)
		if ok != tt.ok {
			t.Errorf("%q: ok = %v", tt.window, ok)
			continue
		}
		if ok && !got.Equal(now.AddDate(0, 0, -tt.days)) {
			t.Errorf("%q: got %v", tt.window, got)
		}
	}
}
