package testutil

import (
	"context"
	"errors"
	"iter"
	"slices"
	"strings"
	gosync "sync"
	"time"

	"github.com/nhle/bcfeed/internal/mailbox"
)

// FakeMessage is a message held by a FakeMailbox.
type FakeMessage struct {
	UID       uint32
	MessageID string
	From      string
	Subject   string
	Date      time.Time
	Body      string
}

// FakeMailbox is an in-memory mailbox.Connector for tests. Folders are
// walked newest UID first, like the IMAP implementation.
type FakeMailbox struct {
	mu gosync.Mutex

	folders     map[string][]FakeMessage
	order       []string
	uidValidity map[string]uint32

	// ConnectErr is returned by Connect when set.
	ConnectErr error

	// FailAfter makes envelope listing fail with a TransportError after
	// that many envelopes have been yielded across the session. Zero
	// disables the failure.
	FailAfter int

	// BodyErr is returned for every body fetch when set.
	BodyErr error

	Connects    int
	Closes      int
	BodyFetches int
}

// NewFakeMailbox returns an empty fake mailbox.
func NewFakeMailbox() *FakeMailbox {
	return &FakeMailbox{
		folders:     make(map[string][]FakeMessage),
		uidValidity: make(map[string]uint32),
	}
}

// Add appends messages to folder, creating it with UIDVALIDITY 1 if needed.
func (m *FakeMailbox) Add(folder string, msgs ...FakeMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.folders[folder]; !ok {
		m.order = append(m.order, folder)
		m.uidValidity[folder] = 1
	}
	m.folders[folder] = append(m.folders[folder], msgs...)
}

// SetUIDValidity changes the UIDVALIDITY reported for folder.
func (m *FakeMailbox) SetUIDValidity(folder string, v uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uidValidity[folder] = v
}

// Connect implements mailbox.Connector.
func (m *FakeMailbox) Connect(_ context.Context, _ mailbox.Credentials) (mailbox.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Connects++
	if m.ConnectErr != nil {
		return nil, m.ConnectErr
	}
	return &fakeSession{box: m}, nil
}

type fakeSession struct {
	box     *FakeMailbox
	yielded int
}

func (s *fakeSession) ListFolders(_ context.Context) ([]mailbox.Folder, error) {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()

	folders := make([]mailbox.Folder, 0, len(s.box.order))
	for _, name := range s.box.order {
		folders = append(folders, mailbox.Folder{Name: name})
	}
	return folders, nil
}

// matching returns the messages in folder selected by opts, newest UID
// first, and the folder's UIDVALIDITY.
func (s *fakeSession) matching(folder string, opts mailbox.FetchOptions) ([]FakeMessage, uint32, error) {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()

	msgs, ok := s.box.folders[folder]
	if !ok {
		return nil, 0, &mailbox.TransportError{Op: "selecting " + folder, Err: errors.New("no such folder")}
	}
	validity := s.box.uidValidity[folder]

	before := opts.After.Before
	if opts.After.UIDValidity != 0 && opts.After.UIDValidity != validity {
		before = 0
	}

	var out []FakeMessage
	for _, msg := range msgs {
		if before > 0 && msg.UID >= before {
			continue
		}
		if opts.From != "" && !strings.Contains(strings.ToLower(msg.From), strings.ToLower(opts.From)) {
			continue
		}
		out = append(out, msg)
	}
	slices.SortFunc(out, func(a, b FakeMessage) int { return int(b.UID) - int(a.UID) })
	return out, validity, nil
}

func (s *fakeSession) Count(_ context.Context, folder string, opts mailbox.FetchOptions) (int, error) {
	msgs, _, err := s.matching(folder, opts)
	return len(msgs), err
}

func (s *fakeSession) Envelopes(
	_ context.Context,
	folder string,
	opts mailbox.FetchOptions,
) iter.Seq2[*mailbox.Envelope, error] {
	return func(yield func(*mailbox.Envelope, error) bool) {
		msgs, validity, err := s.matching(folder, opts)
		if err != nil {
			yield(nil, err)
			return
		}
		if opts.Limit > 0 && len(msgs) > opts.Limit {
			msgs = msgs[:opts.Limit]
		}

		for _, msg := range msgs {
			if s.box.FailAfter > 0 && s.yielded >= s.box.FailAfter {
				yield(nil, &mailbox.TransportError{Op: "fetching " + folder, Err: errors.New("connection reset")})
				return
			}
			s.yielded++

			body := msg.Body
			env := mailbox.NewEnvelope(folder, msg.UID, validity, func(context.Context) (string, error) {
				s.box.mu.Lock()
				defer s.box.mu.Unlock()
				s.box.BodyFetches++
				if s.box.BodyErr != nil {
					return "", s.box.BodyErr
				}
				return body, nil
			})
			env.MessageID = msg.MessageID
			env.From = msg.From
			env.Subject = msg.Subject
			env.Date = msg.Date

			if !yield(env, nil) {
				return
			}
		}
	}
}

func (s *fakeSession) Close() error {
	s.box.mu.Lock()
	defer s.box.mu.Unlock()
	s.box.Closes++
	return nil
}
