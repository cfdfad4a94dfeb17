package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/nhle/bcfeed/internal/model"
)

const canonicalBody = `<html><body>
<table><tr><td>
  <img src="https://s4.bandcamp.com/img/logo.png" alt="bandcamp">
  <a href="https://somelabel.bandcamp.com/album/winter-ep?from=fanpub_fnb&amp;utm_source=email">
    <img src="https://f4.bcbits.com/img/a123456_16.jpg">
  </a>
  <p><a href="https://somelabel.bandcamp.com?from=fanpub_fnb">Some Label</a> just released
  <a href="https://somelabel.bandcamp.com/album/winter-ep?from=fanpub_fnb">Winter EP</a>,
  <a href="https://somelabel.bandcamp.com/album/winter-ep?from=fanpub_fnb#buy">check it out here</a>.</p>
  <p><a href="https://bandcamp.com/fan/unfollow/album/1">Unfollow Some Label</a></p>
</td></tr></table>
</body></html>`

const customDomainBody = `<html><body>
<div>
  <img src="https://f4.bcbits.com/img/a123456_16.jpg">
  <p><a href="https://music.somelabel.com">Some Label</a> just released
  <a href="https://music.somelabel.com/album/winter-ep">Winter EP</a>,
  <a href="https://music.somelabel.com/album/winter-ep?from=fanpub_fnb">check it out here</a>.</p>
</div>
</body></html>`

func TestExtractCanonical(t *testing.T) {
	f, err := New().Extract(Input{Body: canonicalBody})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}

	want := Fields{
		Uploader:    "Some Label",
		ReleaseName: "Winter EP",
		AlbumArtURL: "https://f4.bcbits.com/img/a123456_16.jpg",
		BandcampURL: "https://somelabel.bandcamp.com/album/winter-ep",
	}
	if f != want {
		t.Errorf("Extract() =\n%+v\nwant\n%+v", f, want)
	}
	if f.ReleaseType() != model.ReleaseTypeAlbum {
		t.Errorf("ReleaseType() = %s", f.ReleaseType())
	}
}

func TestExtractCustomDomainMatchesCanonical(t *testing.T) {
	e := New()
	canonical, err := e.Extract(Input{Body: canonicalBody})
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	custom, err := e.Extract(Input{Body: customDomainBody})
	if err != nil {
		t.Fatalf("custom: %v", err)
	}

	if canonical.Uploader != custom.Uploader || canonical.ReleaseName != custom.ReleaseName {
		t.Errorf("fields differ: %+v vs %+v", canonical, custom)
	}
	if custom.BandcampURL != "https://music.somelabel.com/album/winter-ep" {
		t.Errorf("custom BandcampURL = %q", custom.BandcampURL)
	}
	if !custom.CustomDomain || canonical.CustomDomain {
		t.Errorf("CustomDomain canonical=%v custom=%v", canonical.CustomDomain, custom.CustomDomain)
	}
}

func TestExtractUploaderFromSubject(t *testing.T) {
	body := `<p>Out now: <a href="https://artist.bandcamp.com/track/single">listen</a></p>`

	f, err := New().Extract(Input{
		Subject: "New release from Some Artist, who brought you Last Year's Record",
		Body:    body,
	})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if f.Uploader != "Some Artist" {
		t.Errorf("Uploader = %q", f.Uploader)
	}
	if f.ReleaseName != "Single" {
		t.Errorf("ReleaseName from slug = %q", f.ReleaseName)
	}
	if f.ReleaseType() != model.ReleaseTypeTrack {
		t.Errorf("ReleaseType() = %s", f.ReleaseType())
	}
	if f.AlbumArtURL != "" {
		t.Errorf("AlbumArtURL = %q, want empty", f.AlbumArtURL)
	}
}

func TestExtractMissingArtworkIsValid(t *testing.T) {
	body := `<p>Some Label just released Winter EP, <a href="https://somelabel.bandcamp.com/album/winter-ep">check it out</a></p>`

	f, err := New().Extract(Input{Body: body})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if f.Uploader != "Some Label" || f.ReleaseName != "Winter EP" {
		t.Errorf("got %+v", f)
	}
	if f.AlbumArtURL != "" {
		t.Errorf("AlbumArtURL = %q", f.AlbumArtURL)
	}
}

func TestExtractPlainText(t *testing.T) {
	body := "Hello!\n\nSome Label just announced Spring LP. Pre-order at https://somelabel.bandcamp.com/album/spring-lp?from=email\n"

	f, err := New().Extract(Input{Body: body})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if f.Uploader != "Some Label" {
		t.Errorf("Uploader = %q", f.Uploader)
	}
	if f.ReleaseName != "Spring LP" {
		t.Errorf("ReleaseName = %q", f.ReleaseName)
	}
	if f.BandcampURL != "https://somelabel.bandcamp.com/album/spring-lp" {
		t.Errorf("BandcampURL = %q", f.BandcampURL)
	}
}

func TestExtractReleaseNameKeepsInnerDots(t *testing.T) {
	const link = "https://somelabel.bandcamp.com/album/vol-2"
	bodies := map[string]string{
		"tail in text":   `<p>Some Label just released Vol. 2 of the series, check it out</p><a href="` + link + `">listen</a>`,
		"tail in anchor": `<p>Some Label just released Vol. 2 of the series, <a href="` + link + `">check it out</a></p>`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			f, err := New().Extract(Input{Body: body})
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			if f.ReleaseName != "Vol. 2 of the series" {
				t.Errorf("ReleaseName = %q", f.ReleaseName)
			}
			if f.Uploader != "Some Label" {
				t.Errorf("Uploader = %q", f.Uploader)
			}
		})
	}
}

func TestExtractUploaderAfterGreeting(t *testing.T) {
	const link = `<a href="https://somelabel.bandcamp.com/album/winter-ep">listen</a>`
	tests := []struct {
		name string
		body string
		want string
	}{
		{"markup", `<p>Hi there fan Some Label just released Winter EP, check it out</p>` + link, "Some Label"},
		{"plain text", "Hello friends, Some Label just released Winter EP. https://somelabel.bandcamp.com/album/winter-ep", "Some Label"},
		{"after colon", `<p>New today: Some Label just released Winter EP</p>` + link, "Some Label"},
		{"greeting word in name", `<p>Hey Colossus just released Winter EP</p>` + link, "Hey Colossus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New().Extract(Input{Body: tt.body})
			if err != nil {
				t.Fatalf("Extract() error: %v", err)
			}
			if f.Uploader != tt.want {
				t.Errorf("Uploader = %q, want %q", f.Uploader, tt.want)
			}
			if f.ReleaseName != "Winter EP" {
				t.Errorf("ReleaseName = %q", f.ReleaseName)
			}
		})
	}
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want string
	}{
		{
			name: "empty",
			in:   Input{},
			want: "no uploader or release link",
		},
		{
			name: "no release link",
			in: Input{
				Subject: "New release from Some Label",
				Body:    `<p>Some Label just released Winter EP</p><a href="https://somelabel.bandcamp.com">visit</a>`,
			},
			want: "no release link",
		},
		{
			name: "relative link only",
			in: Input{
				Body: `<p>Some Label just released Winter EP, <a href="/album/winter-ep">check it out</a></p>`,
			},
			want: "no release link",
		},
		{
			name: "unsubscribe link only",
			in: Input{
				Body: `<p>Some Label just released Winter EP</p><a href="https://bandcamp.com/unsubscribe/album/1">stop</a>`,
			},
			want: "no release link",
		},
		{
			name: "link without slug",
			in: Input{
				Subject: "New release from Some Label",
				Body:    `<a href="https://somelabel.bandcamp.com/album/">go</a>`,
			},
			want: "no release link",
		},
		{
			name: "no uploader",
			in: Input{
				Body: `<p><a href="https://x.bandcamp.com/album/y">Y</a></p>`,
			},
			want: "no uploader",
		},
		{
			name: "malformed markup",
			in: Input{
				Body: `<<<div><p just released <a href=">>`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New().Extract(tt.in)
			if !errors.Is(err, ErrParseFailure) {
				t.Fatalf("Extract() = %+v, %v; want ErrParseFailure", f, err)
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

type fixedStrategy struct {
	name   string
	fields Fields
	calls  *int
}

func (s fixedStrategy) Name() string { return s.name }

func (s fixedStrategy) Extract(*Document) (Fields, error) {
	*s.calls++
	if s.fields == (Fields{}) {
		return Fields{}, ErrParseFailure
	}
	return s.fields, nil
}

func TestStrategyPriority(t *testing.T) {
	var firstCalls, secondCalls, thirdCalls int
	e := New(WithStrategies(
		fixedStrategy{name: "first", calls: &firstCalls, fields: Fields{Uploader: "First"}},
		fixedStrategy{name: "second", calls: &secondCalls, fields: Fields{
			Uploader:    "Second",
			ReleaseName: "Record",
			AlbumArtURL: "https://f4.bcbits.com/a.jpg",
			BandcampURL: "https://a.bandcamp.com/album/record",
		}},
		fixedStrategy{name: "third", calls: &thirdCalls, fields: Fields{Uploader: "Third"}},
	))

	f, err := e.Extract(Input{Body: "<p></p>"})
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}
	if f.Uploader != "First" {
		t.Errorf("earlier strategy overwritten: Uploader = %q", f.Uploader)
	}
	if f.ReleaseName != "Record" {
		t.Errorf("ReleaseName = %q", f.ReleaseName)
	}
	if thirdCalls != 0 {
		t.Errorf("chain kept running after fields were complete")
	}
}
