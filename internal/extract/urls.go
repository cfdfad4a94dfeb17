package extract

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// redirectParams are query parameters click-tracking wrappers use to
// carry the destination link.
var redirectParams = []string{"url", "u", "target", "redirect", "redirect_url", "dest", "link", "q"}

// ReleaseLink is a normalised release URL.
type ReleaseLink struct {
	// URL is absolute, without query string or fragment.
	URL string

	// CustomDomain is true when the release is served from an artist's
	// own domain rather than a *.bandcamp.com subdomain.
	CustomDomain bool
}

// NormalizeReleaseURL resolves href to a release link. Only absolute
// http(s) links whose path names an album or track qualify; relative
// links are rejected because their host cannot be known. Tracking
// redirects are unwrapped when they carry an absolute release link.
func NormalizeReleaseURL(href string) (ReleaseLink, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil || !isAbsoluteHTTP(u) {
		return ReleaseLink{}, false
	}

	if !isReleasePath(u.Path) {
		inner, ok := unwrapRedirect(u)
		if !ok {
			return ReleaseLink{}, false
		}
		u = inner
	}

	if IsUnsubscribeURL(u.String()) {
		return ReleaseLink{}, false
	}

	host := strings.ToLower(u.Hostname())
	clean := url.URL{
		Scheme: strings.ToLower(u.Scheme),
		Host:   strings.ToLower(u.Host),
		Path:   strings.TrimRight(u.Path, "/"),
	}

	return ReleaseLink{
		URL:          clean.String(),
		CustomDomain: !IsBandcampHost(host),
	}, true
}

// IsBandcampHost reports whether host is bandcamp.com or a subdomain.
func IsBandcampHost(host string) bool {
	host = strings.ToLower(host)
	return host == "bandcamp.com" || strings.HasSuffix(host, ".bandcamp.com")
}

// IsUnsubscribeURL reports whether raw is an unsubscribe or unfollow link.
func IsUnsubscribeURL(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.Contains(lower, "unsubscribe") || strings.Contains(lower, "unfollow")
}

func isAbsoluteHTTP(u *url.URL) bool {
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// releasePath matches an album or track page: a kind segment followed
// by a non-empty slug.
var releasePath = regexp.MustCompile(`^/(?:album|track)/[^/]+/?$`)

func isReleasePath(p string) bool {
	return releasePath.MatchString(p)
}

func unwrapRedirect(u *url.URL) (*url.URL, bool) {
	q := u.Query()
	for _, key := range redirectParams {
		v := q.Get(key)
		if v == "" {
			continue
		}
		inner, err := url.Parse(v)
		if err != nil || !isAbsoluteHTTP(inner) || !isReleasePath(inner.Path) {
			continue
		}
		return inner, true
	}
	return nil, false
}

// titleFromSlug turns the last path segment of a release URL into a
// readable name: ".../album/winter-ep" becomes "Winter Ep".
func titleFromSlug(releaseURL string) string {
	u, err := url.Parse(releaseURL)
	if err != nil {
		return ""
	}
	segs := strings.Split(strings.Trim(u.Path, "/"), "/")
	slug := segs[len(segs)-1]
	if slug == "" || slug == "album" || slug == "track" {
		return ""
	}

	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
