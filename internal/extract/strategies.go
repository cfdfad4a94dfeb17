package extract

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	nethtml "golang.org/x/net/html"
)

// SubjectStrategy reads the uploader from "New release from <uploader>"
// subjects.
type SubjectStrategy struct{}

var subjectUploader = regexp.MustCompile(`(?i)new release from\s+(.+)`)

func (SubjectStrategy) Name() string { return "subject" }

func (SubjectStrategy) Extract(doc *Document) (Fields, error) {
	m := subjectUploader.FindStringSubmatch(doc.Subject)
	if m == nil {
		return Fields{}, ErrParseFailure
	}
	uploader := cleanUploader(m[1])
	if uploader == "" {
		return Fields{}, ErrParseFailure
	}
	return Fields{Uploader: uploader}, nil
}

var (
	anchorSel = cascadia.MustCompile("a[href]")
	imageSel  = cascadia.MustCompile("img[src]")
)

// releaseMarker matches the verb phrase between uploader and release.
var releaseMarker = regexp.MustCompile(`(?i)\bjust\s+(?:released|announced)\b`)

// checkItOut ends the release name in "X just released Y, check it out".
var checkItOut = regexp.MustCompile(`(?is),?\s*check it out.*$`)

// MarkupStrategy walks the HTML tree: the "check it out" anchor (or any
// album/track anchor) for the link, a bcbits.com image for artwork, and
// the elements around the "just released" phrase for uploader and
// release name.
type MarkupStrategy struct{}

func (MarkupStrategy) Name() string { return "markup" }

func (MarkupStrategy) Extract(doc *Document) (Fields, error) {
	if doc.Root == nil {
		return Fields{}, ErrParseFailure
	}

	var f Fields
	if link, ok := findReleaseAnchor(doc.Root); ok {
		f.BandcampURL = link.URL
		f.CustomDomain = link.CustomDomain
	}
	f.AlbumArtURL = findArtwork(doc.Root)
	f.Uploader, f.ReleaseName = findReleaseSentence(doc.Root)

	if f == (Fields{}) {
		return Fields{}, ErrParseFailure
	}
	return f, nil
}

// findReleaseAnchor prefers an anchor labelled "check it out" and falls
// back to the first anchor pointing at an album or track.
func findReleaseAnchor(root *nethtml.Node) (ReleaseLink, bool) {
	anchors := anchorSel.MatchAll(root)

	for _, a := range anchors {
		if !strings.Contains(strings.ToLower(nodeText(a)), "check it out") {
			continue
		}
		if link, ok := NormalizeReleaseURL(attr(a, "href")); ok {
			return link, true
		}
	}

	for _, a := range anchors {
		if link, ok := NormalizeReleaseURL(attr(a, "href")); ok {
			return link, true
		}
	}

	return ReleaseLink{}, false
}

// findArtwork returns the first image served from Bandcamp's image CDN.
func findArtwork(root *nethtml.Node) string {
	for _, img := range imageSel.MatchAll(root) {
		src := strings.TrimSpace(attr(img, "src"))
		u, err := url.Parse(src)
		if err != nil || u.Host == "" {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if host == "bcbits.com" || strings.HasSuffix(host, ".bcbits.com") {
			return src
		}
	}
	return ""
}

// findReleaseSentence locates the text node holding "just released" and
// reads the uploader from the text before it (or the preceding element)
// and the release name from the text after it (or the following
// element).
func findReleaseSentence(root *nethtml.Node) (uploader, release string) {
	var marker *nethtml.Node
	var walk func(n *nethtml.Node)
	walk = func(n *nethtml.Node) {
		if marker != nil {
			return
		}
		if n.Type == nethtml.TextNode && releaseMarker.MatchString(n.Data) {
			marker = n
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	if marker == nil {
		return "", ""
	}

	loc := releaseMarker.FindStringIndex(marker.Data)
	before := strings.TrimSpace(marker.Data[:loc[0]])
	after := strings.TrimSpace(marker.Data[loc[1]:])

	if before != "" {
		uploader = uploaderClause(before)
	} else if prev := prevElement(marker); prev != nil {
		uploader = nodeText(prev)
	}

	next := nextElement(marker)

	// A "check it out" tail marks where the name ends, so dots inside
	// it ("Vol. 2") are kept.
	rest := checkItOut.ReplaceAllString(after, "")
	if rest == after && (next == nil || !checkItOut.MatchString(nodeText(next))) {
		rest = firstSentence(rest)
	}

	if rest = strings.TrimSpace(rest); rest != "" {
		release = rest
	} else if next != nil {
		release = checkItOut.ReplaceAllString(nodeText(next), "")
	}

	return collapseSpace(uploader), collapseSpace(release)
}

var sentenceEnd = regexp.MustCompile(`[.!?](?:\s|$)`)

// firstSentence returns s up to its first sentence break.
func firstSentence(s string) string {
	if loc := sentenceEnd.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	return strings.TrimSpace(s)
}

// lastClause returns the text after the last sentence break in s.
func lastClause(s string) string {
	if i := strings.LastIndexAny(s, ".!?\n"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// salutation matches a greeting opening the text before an uploader:
// "Hi there fan", "Hello friends," or "Hello,". A greeting word alone is
// kept since it may be part of the name.
var salutation = regexp.MustCompile(
	`(?i)^(?:hi|hello|hey|dear|greetings)\b(?:(?:[\s,]+(?:there|all|everyone|fans?|friends?|folks)\b)+[\s,!:]*|\s*,\s*)`,
)

// uploaderClause narrows the text before "just released" to the
// uploader name.
func uploaderClause(s string) string {
	s = lastClause(s)
	if i := strings.LastIndexAny(s, ":;"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(salutation.ReplaceAllString(strings.TrimSpace(s), ""))
}

func prevElement(n *nethtml.Node) *nethtml.Node {
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == nethtml.ElementNode {
			return s
		}
		if s.Type == nethtml.TextNode && strings.TrimSpace(s.Data) != "" {
			return nil
		}
	}
	return nil
}

func nextElement(n *nethtml.Node) *nethtml.Node {
	for s := n.NextSibling; s != nil; s = s.NextSibling {
		if s.Type == nethtml.ElementNode {
			return s
		}
		if s.Type == nethtml.TextNode && strings.TrimSpace(s.Data) != "" {
			return nil
		}
	}
	return nil
}

func attr(n *nethtml.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

// nodeText concatenates the text beneath n.
func nodeText(n *nethtml.Node) string {
	var b strings.Builder
	var walk func(*nethtml.Node)
	walk = func(n *nethtml.Node) {
		if n.Type == nethtml.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return collapseSpace(b.String())
}

// TextStrategy matches sentence patterns against the body text and picks
// the first absolute release URL appearing anywhere in the body. It is
// the fallback for plain-text bodies and markup the tree walk does not
// understand.
type TextStrategy struct{}

var (
	textReleaseChecked = regexp.MustCompile(
		`(?i)([^.!?]{1,200}?)\s+just\s+(?:released|announced)\s+(.+?),?\s*check it out`,
	)
	textReleaseSentence = regexp.MustCompile(
		`(?i)([^.!?]{1,200}?)\s+just\s+(?:released|announced)\s+(.+?)(?:[.!?](?:\s|$)|$)`,
	)
	bareURL = regexp.MustCompile(`https?://[^\s"'<>)]+`)
)

func (TextStrategy) Name() string { return "text" }

func (TextStrategy) Extract(doc *Document) (Fields, error) {
	var f Fields

	m := textReleaseChecked.FindStringSubmatch(doc.Text)
	if m == nil {
		m = textReleaseSentence.FindStringSubmatch(doc.Text)
	}
	if m != nil {
		f.Uploader = uploaderClause(strings.TrimSpace(m[1]))
		f.ReleaseName = strings.TrimSpace(m[2])
	}

	for _, raw := range bareURL.FindAllString(doc.Raw, -1) {
		if link, ok := NormalizeReleaseURL(html.UnescapeString(raw)); ok {
			f.BandcampURL = link.URL
			f.CustomDomain = link.CustomDomain
			break
		}
	}

	if f == (Fields{}) {
		return Fields{}, ErrParseFailure
	}
	return f, nil
}
