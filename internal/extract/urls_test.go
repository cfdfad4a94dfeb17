package extract

import "testing"

func TestNormalizeReleaseURL(t *testing.T) {
	tests := []struct {
		href       string
		wantURL    string
		wantCustom bool
		wantOK     bool
	}{
		{
			href:    "https://somelabel.bandcamp.com/album/winter-ep?from=fanpub&x=1#buy",
			wantURL: "https://somelabel.bandcamp.com/album/winter-ep",
			wantOK:  true,
		},
		{
			href:    "HTTPS://SomeLabel.Bandcamp.com/track/single/",
			wantURL: "https://somelabel.bandcamp.com/track/single",
			wantOK:  true,
		},
		{
			href:       "https://music.somelabel.com/album/winter-ep?from=email",
			wantURL:    "https://music.somelabel.com/album/winter-ep",
			wantCustom: true,
			wantOK:     true,
		},
		{
			href:       "https://click.example.net/track?u=https%3A%2F%2Fmusic.somelabel.com%2Falbum%2Fwinter-ep%3Fa%3Db",
			wantURL:    "https://music.somelabel.com/album/winter-ep",
			wantCustom: true,
			wantOK:     true,
		},
		{href: "/album/winter-ep"},
		{href: "mailto:someone@example.com"},
		{href: "https://somelabel.bandcamp.com/"},
		{href: "https://somelabel.bandcamp.com/album/"},
		{href: "https://somelabel.bandcamp.com/track//"},
		{href: "https://somelabel.bandcamp.com/album/winter-ep/extra"},
		{href: "https://click.example.net/r?u=https%3A%2F%2Fx.bandcamp.com%2Falbum%2F"},
		{href: "https://bandcamp.com/unsubscribe/album/123"},
		{href: "https://bandcamp.com/fan/unfollow/track/1"},
		{href: "::not a url"},
	}

	for _, tt := range tests {
		link, ok := NormalizeReleaseURL(tt.href)
		if ok != tt.wantOK {
			t.Errorf("NormalizeReleaseURL(%q) ok = %v, want %v", tt.href, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if link.URL != tt.wantURL || link.CustomDomain != tt.wantCustom {
			t.Errorf("NormalizeReleaseURL(%q) = %+v, want %s custom=%v", tt.href, link, tt.wantURL, tt.wantCustom)
		}
	}
}

func TestTitleFromSlug(t *testing.T) {
	tests := map[string]string{
		"https://a.bandcamp.com/album/winter-ep":     "Winter Ep",
		"https://a.bandcamp.com/track/the_long_road": "The Long Road",
		"https://a.bandcamp.com/album/":              "",
	}
	for in, want := range tests {
		if got := titleFromSlug(in); got != want {
			t.Errorf("titleFromSlug(%q) = %q, want %q", in, got, want)
		}
	}
}
