// Package classify decides whether a message is a new release
// notification.
package classify

import (
	"context"
	"net/mail"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/nhle/bcfeed/internal/mailbox"
)

// DefaultSenderDomain is the domain release notifications are sent from.
const DefaultSenderDomain = "bandcamp.com"

// releaseSubject matches "New release from <uploader>".
var releaseSubject = regexp.MustCompile(`(?i)\bnew release from\b`)

// otherSubjects are notification kinds from the same sender that are
// never releases.
var otherSubjects = regexp.MustCompile(
	`(?i)\b(receipt|order|purchase|payment|password|verify|verification|` +
		`wishlist|gift|merch|shipped|shipping|download|sign[- ]?in|account|` +
		`live stream|listening party|message from|followed you|new follower)\b`,
)

// releaseBody matches the sentence a release notification body carries.
var releaseBody = regexp.MustCompile(`(?i)\bjust (released|announced)\b`)

// Classifier matches notification envelopes against a sender domain
// and the release notification markers.
type Classifier struct {
	domain string
	strip  *bluemonday.Policy
}

// New creates a Classifier for senderDomain; empty means
// DefaultSenderDomain.
func New(senderDomain string) *Classifier {
	if senderDomain == "" {
		senderDomain = DefaultSenderDomain
	}
	return &Classifier{
		domain: strings.ToLower(strings.TrimPrefix(senderDomain, "@")),
		strip:  bluemonday.StrictPolicy(),
	}
}

// SenderDomain returns the domain envelopes must come from.
func (c *Classifier) SenderDomain() string {
	return c.domain
}

// Classify reports whether env is a release notification. The subject
// decides when it is conclusive; otherwise the body is peeked. Classify
// never fails: anything it cannot decide is not a release.
func (c *Classifier) Classify(ctx context.Context, env *mailbox.Envelope) bool {
	if env == nil || !c.MatchesSender(env.From) {
		return false
	}

	subject := strings.TrimSpace(env.Subject)
	switch {
	case releaseSubject.MatchString(subject):
		return true
	case otherSubjects.MatchString(subject):
		return false
	}

	body, err := env.Body(ctx)
	if err != nil || body == "" {
		return false
	}
	return releaseBody.MatchString(c.strip.Sanitize(body))
}

// MatchesSender reports whether from is an address at the sender domain
// or one of its subdomains.
func (c *Classifier) MatchesSender(from string) bool {
	addr := strings.TrimSpace(from)
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}

	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return false
	}
	host := strings.ToLower(addr[at+1:])
	return host == c.domain || strings.HasSuffix(host, "."+c.domain)
}
