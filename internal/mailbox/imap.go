package mailbox

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"golang.org/x/time/rate"

	"github.com/nhle/bcfeed/internal/logging"
)

// defaultPageSize is the number of envelopes requested per UID FETCH.
const defaultPageSize = 50

// IMAPOptions tunes the IMAP connector.
type IMAPOptions struct {
	// BodyFetchRate caps body downloads per second; zero is unlimited.
	BodyFetchRate float64

	// PageSize is the number of envelopes requested per round trip.
	PageSize int

	Logger *log.Logger
}

// IMAPConnector implements Connector over go-imap v2.
type IMAPConnector struct {
	opts IMAPOptions
}

// NewIMAPConnector creates a connector with the given options.
func NewIMAPConnector(opts IMAPOptions) *IMAPConnector {
	if opts.PageSize < 1 {
		opts.PageSize = defaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &IMAPConnector{opts: opts}
}

// Connect dials the server, authenticates, and returns the session. The
// caller must Close the session.
func (c *IMAPConnector) Connect(
	_ context.Context,
	creds Credentials,
) (Session, error) {
	addr := creds.Addr()

	var client *imapclient.Client
	var err error

	if creds.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, transportErr("connecting to "+addr, err)
	}

	if err := client.Login(creds.Username, creds.Password).Wait(); err != nil {
		_ = client.Close()
		if isRejection(err) {
			return nil, &AuthError{Username: creds.Username, Err: err}
		}
		return nil, transportErr("login", err)
	}

	limit := rate.Inf
	if c.opts.BodyFetchRate > 0 {
		limit = rate.Limit(c.opts.BodyFetchRate)
	}

	return &imapSession{
		client:   client,
		pageSize: c.opts.PageSize,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   c.opts.Logger.With("host", creds.Host),
		validity: make(map[string]uint32),
	}, nil
}

// isRejection reports whether err is a tagged NO/BAD response rather
// than a broken connection.
func isRejection(err error) bool {
	var imapErr *imap.Error
	if !errors.As(err, &imapErr) {
		return false
	}
	return imapErr.Type == imap.StatusResponseTypeNo ||
		imapErr.Type == imap.StatusResponseTypeBad
}

// imapSession is a logged-in IMAP connection. The currently selected
// folder is tracked so that interleaved walks over several folders
// re-select only when they switch.
type imapSession struct {
	client   *imapclient.Client
	pageSize int
	limiter  *rate.Limiter
	logger   *log.Logger

	selected string
	validity map[string]uint32
}

// ListFolders returns every folder that can be selected.
func (s *imapSession) ListFolders(_ context.Context) ([]Folder, error) {
	mailboxes, err := s.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, transportErr("listing folders", err)
	}

	folders := make([]Folder, 0, len(mailboxes))
	for _, mbox := range mailboxes {
		if hasAttr(mbox.Attrs, imap.MailboxAttrNoSelect) ||
			hasAttr(mbox.Attrs, imap.MailboxAttrNonExistent) {
			continue
		}
		folders = append(folders, Folder{Name: mbox.Mailbox})
	}
	return folders, nil
}

func hasAttr(attrs []imap.MailboxAttr, want imap.MailboxAttr) bool {
	for _, a := range attrs {
		if a == want {
			return true
		}
	}
	return false
}

// selectFolder examines folder read-only unless it is already selected
// and returns its UIDVALIDITY.
func (s *imapSession) selectFolder(folder string) (uint32, error) {
	if s.selected == folder {
		return s.validity[folder], nil
	}

	data, err := s.client.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		s.selected = ""
		return 0, transportErr("selecting "+folder, err)
	}

	if prev, ok := s.validity[folder]; ok && prev != data.UIDValidity {
		s.logger.Warn("uidvalidity changed", "folder", folder, "old", prev, "new", data.UIDValidity)
	}
	s.selected = folder
	s.validity[folder] = data.UIDValidity
	return data.UIDValidity, nil
}

// search returns the UIDs in folder matching opts in ascending order,
// together with the folder's UIDVALIDITY.
func (s *imapSession) search(folder string, opts FetchOptions) ([]imap.UID, uint32, error) {
	validity, err := s.selectFolder(folder)
	if err != nil {
		return nil, 0, err
	}

	criteria := &imap.SearchCriteria{}
	if opts.From != "" {
		criteria.Header = append(criteria.Header, imap.SearchCriteriaHeaderField{
			Key:   "From",
			Value: opts.From,
		})
	}

	// A cursor from an older UIDVALIDITY epoch is meaningless, so the
	// walk starts over from the newest message.
	before := opts.After.Before
	if opts.After.UIDValidity != 0 && opts.After.UIDValidity != validity {
		before = 0
	}
	if before == 1 {
		return nil, validity, nil
	}
	if before > 1 {
		criteria.UID = []imap.UIDSet{{
			imap.UIDRange{Start: 1, Stop: imap.UID(before - 1)},
		}}
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, 0, transportErr("searching "+folder, err)
	}

	uids := data.AllUIDs()
	slices.Sort(uids)
	return uids, validity, nil
}

// Count returns how many messages in folder match opts.
func (s *imapSession) Count(_ context.Context, folder string, opts FetchOptions) (int, error) {
	uids, _, err := s.search(folder, opts)
	if err != nil {
		return 0, err
	}
	return len(uids), nil
}

// Envelopes yields envelopes from folder newest first, fetching them one
// page at a time.
func (s *imapSession) Envelopes(
	ctx context.Context,
	folder string,
	opts FetchOptions,
) iter.Seq2[*Envelope, error] {
	return func(yield func(*Envelope, error) bool) {
		uids, validity, err := s.search(folder, opts)
		if err != nil {
			yield(nil, err)
			return
		}

		slices.Reverse(uids)
		if opts.Limit > 0 && len(uids) > opts.Limit {
			uids = uids[:opts.Limit]
		}

		for start := 0; start < len(uids); start += s.pageSize {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			end := min(start+s.pageSize, len(uids))
			page, err := s.fetchPage(folder, validity, uids[start:end])
			if err != nil {
				yield(nil, err)
				return
			}

			for _, env := range page {
				if !yield(env, nil) {
					return
				}
			}
		}
	}
}

// fetchPage fetches envelope data for uids and returns it ordered by
// received time, newest first.
func (s *imapSession) fetchPage(folder string, validity uint32, uids []imap.UID) ([]*Envelope, error) {
	current, err := s.selectFolder(folder)
	if err != nil {
		return nil, err
	}
	if current != validity {
		return nil, transportErr("fetching "+folder, fmt.Errorf(
			"uidvalidity changed from %d to %d during walk", validity, current,
		))
	}

	fetchOpts := &imap.FetchOptions{
		Envelope:     true,
		UID:          true,
		InternalDate: true,
	}

	bufs, err := s.client.Fetch(imap.UIDSetNum(uids...), fetchOpts).Collect()
	if err != nil {
		return nil, transportErr("fetching envelopes from "+folder, err)
	}

	envs := make([]*Envelope, 0, len(bufs))
	for _, buf := range bufs {
		envs = append(envs, s.envelopeFromBuffer(folder, validity, buf))
	}

	slices.SortStableFunc(envs, func(a, b *Envelope) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(b.UID, a.UID)
	})
	return envs, nil
}

// envelopeFromBuffer extracts an Envelope from a FetchMessageBuffer.
func (s *imapSession) envelopeFromBuffer(
	folder string,
	validity uint32,
	buf *imapclient.FetchMessageBuffer,
) *Envelope {
	uid := uint32(buf.UID)
	env := NewEnvelope(folder, uid, validity, func(ctx context.Context) (string, error) {
		return s.fetchBody(ctx, folder, uid)
	})

	env.Date = buf.InternalDate
	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		env.Subject = buf.Envelope.Subject
		if env.Date.IsZero() {
			env.Date = buf.Envelope.Date
		}
		if len(buf.Envelope.From) > 0 {
			env.From = buf.Envelope.From[0].Addr()
		}
	}

	return env
}

// fetchBody downloads the full message and returns its HTML part, or
// its plain text part when it has no HTML.
func (s *imapSession) fetchBody(ctx context.Context, folder string, uid uint32) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}

	if _, err := s.selectFolder(folder); err != nil {
		return "", err
	}

	section := &imap.FetchItemBodySection{Peek: true}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	bufs, err := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), fetchOpts).Collect()
	if err != nil {
		return "", transportErr(fmt.Sprintf("fetching body %s/%d", folder, uid), err)
	}
	if len(bufs) == 0 {
		return "", fmt.Errorf("message %s/%d not found", folder, uid)
	}

	raw := bufs[0].FindBodySection(section)
	if raw == nil {
		return "", nil
	}

	textBody, htmlBody := parseMIMEBody(raw)
	if htmlBody != "" {
		return htmlBody, nil
	}
	return textBody, nil
}

// Close logs out and closes the connection.
func (s *imapSession) Close() error {
	if err := s.client.Logout().Wait(); err != nil {
		_ = s.client.Close()
		return transportErr("logout", err)
	}
	return s.client.Close()
}
