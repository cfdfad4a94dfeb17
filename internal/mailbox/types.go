package mailbox

import (
	"context"
	"fmt"
	"iter"
	gosync "sync"
	"time"
)

// Credentials identify the mailbox account.
type Credentials struct {
	Host     string
	Port     string
	Username string
	Password string
	TLS      bool
}

// Addr returns host:port.
func (c Credentials) Addr() string {
	return c.Host + ":" + c.Port
}

// Folder is a selectable mailbox on the server.
type Folder struct {
	Name string
}

// Cursor positions a fetch inside a folder. A zero Cursor starts at the
// newest message.
type Cursor struct {
	UIDValidity uint32

	// Before is an exclusive upper UID bound; zero means no bound.
	Before uint32
}

// FetchOptions controls an envelope listing.
type FetchOptions struct {
	// Limit bounds the number of envelopes yielded; zero means no bound.
	Limit int

	// After resumes a walk from a prior position.
	After Cursor

	// From narrows the listing server-side to messages whose From header
	// contains the given text. Empty means all messages.
	From string
}

// BodyFunc loads the full message body on demand.
type BodyFunc func(ctx context.Context) (string, error)

// Envelope is message metadata fetched without its body. Envelopes from
// a Session are yielded newest first within a folder.
type Envelope struct {
	Folder      string
	UID         uint32
	UIDValidity uint32
	MessageID   string
	From        string
	Subject     string
	Date        time.Time

	loadBody BodyFunc
	bodyOnce gosync.Once
	body     string
	bodyErr  error
}

// NewEnvelope returns an Envelope whose body is produced by load the
// first time Body is called.
func NewEnvelope(folder string, uid, uidValidity uint32, load BodyFunc) *Envelope {
	return &Envelope{
		Folder:      folder,
		UID:         uid,
		UIDValidity: uidValidity,
		loadBody:    load,
	}
}

// Body fetches the message body, preferring HTML over plain text. The
// result of the first call is reused by later calls.
func (e *Envelope) Body(ctx context.Context) (string, error) {
	e.bodyOnce.Do(func() {
		if e.loadBody == nil {
			return
		}
		e.body, e.bodyErr = e.loadBody(ctx)
	})
	return e.body, e.bodyErr
}

// BodyErr returns the error of an earlier Body call, or nil when the
// body was never requested or loaded fine. It must not be called
// concurrently with Body.
func (e *Envelope) BodyErr() error {
	return e.bodyErr
}

// StableID returns the identifier used to deduplicate this message. The
// Message-ID header is preferred because it survives the message being
// visible in more than one folder; folder, UIDVALIDITY and UID are used
// when it is missing.
func (e *Envelope) StableID() string {
	if e.MessageID != "" {
		return "msgid:" + e.MessageID
	}
	return fmt.Sprintf("uid:%s:%d:%d", e.Folder, e.UIDValidity, e.UID)
}

// Session is an authenticated mailbox connection. It is not safe for
// concurrent use.
type Session interface {
	// ListFolders returns the selectable folders.
	ListFolders(ctx context.Context) ([]Folder, error)

	// Count returns how many messages in folder match opts, ignoring
	// opts.Limit.
	Count(ctx context.Context, folder string, opts FetchOptions) (int, error)

	// Envelopes lazily yields envelopes from folder, newest first. The
	// sequence stops at the first error.
	Envelopes(ctx context.Context, folder string, opts FetchOptions) iter.Seq2[*Envelope, error]

	// Close logs out and releases the connection.
	Close() error
}

// Connector opens sessions.
type Connector interface {
	// Connect returns an authenticated Session. It fails with an
	// *AuthError on rejected credentials and a *TransportError otherwise.
	Connect(ctx context.Context, creds Credentials) (Session, error)
}
