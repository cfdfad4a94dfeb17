package main

import (
	"strings"
	"testing"
	"time"

	"github.com/nhle/bcfeed/internal/model"
	"github.com/nhle/bcfeed/internal/store"
)

func TestRenderSummary(t *testing.T) {
	ok := renderSummary(model.ProgressEvent{Done: true, ProcessedCount: 12, NewCount: 3, SkippedCount: 9})
	if !strings.Contains(ok, "12 scanned, 3 new, 9 skipped") {
		t.Errorf("success summary = %q", ok)
	}

	failed := renderSummary(model.ProgressEvent{
		Done:    true,
		Failure: &model.Failure{Kind: model.FailureAuth, Message: "check credentials: bad password"},
	})
	for _, want := range []string{"Sync stopped", "bad password", "credentials"} {
		if !strings.Contains(failed, want) {
			t.Errorf("failure summary %q lacks %q", failed, want)
		}
	}
}

func TestRenderReleasePage(t *testing.T) {
	empty := renderReleasePage(&store.ReleasePage{Page: 1})
	if !strings.Contains(empty, "No releases") {
		t.Errorf("empty page = %q", empty)
	}

	page := renderReleasePage(&store.ReleasePage{
		Total: 1, Page: 1, TotalPages: 1, PerPage: 25,
		Releases: []model.Release{{
			Uploader:    "Some Label",
			ReleaseName: "Winter EP",
			BandcampURL: "https://somelabel.bandcamp.com/album/winter-ep",
			ReleaseType: model.ReleaseTypeAlbum,
			ReceivedAt:  time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC),
		}},
	})
	for _, want := range []string{"Releases (1)", "Some Label", "Winter EP", "winter-ep", "page 1 of 1"} {
		if !strings.Contains(page, want) {
			t.Errorf("page lacks %q:\n%s", want, page)
		}
	}
}

func TestRenderStats(t *testing.T) {
	out := renderStats(&model.FeedStats{
		Total:        4,
		ThisWeek:     1,
		TopUploaders: []model.UploaderCount{{Uploader: "Some Label", Count: 3}},
	})
	for _, want := range []string{"Total releases  4", "Top uploaders", "Some Label"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats lack %q:\n%s", want, out)
		}
	}
}
