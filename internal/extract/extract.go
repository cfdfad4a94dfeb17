// Package extract parses release notification bodies into release
// fields.
//
// Notification markup drifts over time, so extraction runs a prioritised
// chain of strategies. Each strategy reports whatever fields it can
// find; a field found by an earlier strategy is never overwritten by a
// later one. The chain result is valid only when it names an uploader
// and a release link.
package extract

import (
	"errors"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/microcosm-cc/bluemonday"
	nethtml "golang.org/x/net/html"

	"github.com/nhle/bcfeed/internal/logging"
	"github.com/nhle/bcfeed/internal/model"
)

// ErrParseFailure is returned when a body does not yield a complete
// release. Callers treat it as "not a release email".
var ErrParseFailure = errors.New("release parse failure")

// Input is a message to extract from.
type Input struct {
	// Subject is optional; "New release from X" subjects name the uploader.
	Subject string

	// Body is the HTML body, or plain text when the message has no HTML.
	Body string
}

// Fields are the release attributes found in a message.
type Fields struct {
	Uploader    string
	ReleaseName string
	AlbumArtURL string
	BandcampURL string

	// CustomDomain is set when BandcampURL is on an artist's own domain.
	CustomDomain bool
}

// ReleaseType derives the release type from the link.
func (f Fields) ReleaseType() model.ReleaseType {
	return model.ReleaseTypeFromURL(f.BandcampURL)
}

// complete reports whether every field a strategy can supply is set.
func (f Fields) complete() bool {
	return f.Uploader != "" && f.ReleaseName != "" && f.AlbumArtURL != "" && f.BandcampURL != ""
}

// merge fills the empty fields of f from other.
func (f *Fields) merge(other Fields) {
	if f.Uploader == "" {
		f.Uploader = other.Uploader
	}
	if f.ReleaseName == "" {
		f.ReleaseName = other.ReleaseName
	}
	if f.AlbumArtURL == "" {
		f.AlbumArtURL = other.AlbumArtURL
	}
	if f.BandcampURL == "" {
		f.BandcampURL = other.BandcampURL
		f.CustomDomain = other.CustomDomain
	}
}

// Document is a message body prepared once for all strategies.
type Document struct {
	Subject string

	// Raw is the body as received.
	Raw string

	// Root is the parsed HTML tree; nil when the body could not be parsed.
	Root *nethtml.Node

	// Text is the body with markup removed and whitespace collapsed.
	Text string
}

// Strategy extracts what it can from a document. It returns
// ErrParseFailure when it found nothing at all.
type Strategy interface {
	Name() string
	Extract(doc *Document) (Fields, error)
}

// Extractor runs a chain of strategies over message bodies.
type Extractor struct {
	strategies []Strategy
	text       *bluemonday.Policy
	logger     *log.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithStrategies replaces the default strategy chain.
func WithStrategies(s ...Strategy) Option {
	return func(e *Extractor) { e.strategies = s }
}

// WithLogger sets the logger used for per-strategy debug output.
func WithLogger(l *log.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New returns an Extractor with the default chain: subject line, then
// structured markup, then text patterns.
func New(opts ...Option) *Extractor {
	text := bluemonday.StrictPolicy()
	text.AddSpaceWhenStrippingTag(true)

	e := &Extractor{
		strategies: []Strategy{
			SubjectStrategy{},
			MarkupStrategy{},
			TextStrategy{},
		},
		text:   text,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDiscard(e.logger)
	return e
}

// Extract parses in into release fields. Malformed markup never causes
// a panic or an error other than ErrParseFailure.
func (e *Extractor) Extract(in Input) (Fields, error) {
	doc := e.prepare(in)

	var fields Fields
	for _, s := range e.strategies {
		found, err := s.Extract(doc)
		if err != nil {
			e.logger.Debug("strategy found nothing", "strategy", s.Name())
			continue
		}
		fields.merge(found)
		if fields.complete() {
			break
		}
	}

	fields.Uploader = cleanUploader(fields.Uploader)
	fields.ReleaseName = cleanReleaseName(fields.ReleaseName)

	switch {
	case fields.Uploader == "" && fields.BandcampURL == "":
		return Fields{}, fmt.Errorf("%w: no uploader or release link", ErrParseFailure)
	case fields.Uploader == "":
		return Fields{}, fmt.Errorf("%w: no uploader", ErrParseFailure)
	case fields.BandcampURL == "":
		return Fields{}, fmt.Errorf("%w: no release link", ErrParseFailure)
	}

	if fields.ReleaseName == "" {
		fields.ReleaseName = titleFromSlug(fields.BandcampURL)
	}

	return fields, nil
}

// prepare parses the body once for every strategy.
func (e *Extractor) prepare(in Input) *Document {
	doc := &Document{Subject: in.Subject, Raw: in.Body}

	if root, err := nethtml.Parse(strings.NewReader(in.Body)); err == nil {
		doc.Root = root
	}
	doc.Text = collapseSpace(html.UnescapeString(e.text.Sanitize(in.Body)))

	return doc
}

var spaceRun = regexp.MustCompile(`\s+`)

func collapseSpace(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// broughtYou matches the ", who brought you ..." tail some subjects carry.
var broughtYou = regexp.MustCompile(`(?i)^(.+?),?\s*who brought you`)

func cleanUploader(name string) string {
	name = collapseSpace(name)
	if m := broughtYou.FindStringSubmatch(name); m != nil {
		name = m[1]
	}
	return strings.TrimSpace(strings.TrimRight(name, ",:;"))
}

func cleanReleaseName(name string) string {
	name = collapseSpace(name)
	name = strings.TrimRight(name, ",.!;:")
	return strings.Trim(strings.TrimSpace(name), `"“”`)
}
