// Package imapx owns the single live IMAP session. The underlying
// connection is not safe for concurrent use, so every remote operation
// goes through the Manager's mutex; foreground page loads and background
// backfill are strictly serialized relative to one another.
package imapx

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	log "github.com/sirupsen/logrus"
)

// State tracks the connection lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

// FolderInfo is one listed remote folder.
type FolderInfo struct {
	Name  string
	Attrs []string
}

// EnvelopeSummary is the lightweight per-message view used by the page
// loader. Missing or malformed headers default to empty values.
type EnvelopeSummary struct {
	UID         uint32
	Subject     string
	FromName    string
	FromAddress string
	ReceivedAt  time.Time
}

// Session is the view of an open folder handed to RunExclusive
// callbacks. It is only valid for the duration of the callback.
type Session interface {
	NumMessages() uint32
	UIDValidity() uint32
	FetchEnvelopes(startSeq, endSeq uint32) ([]EnvelopeSummary, error)
	SearchAllUIDs() ([]uint32, error)
	FetchFull(uid uint32) (*ParsedMessage, error)
}

// Manager serializes all use of the one remote session and reconnects
// on demand with the credentials captured at Connect time.
type Manager struct {
	mu sync.Mutex

	addr     string
	username string
	password string

	client *imapclient.Client
	state  State
}

func NewManager() *Manager {
	return &Manager{}
}

// Connect dials and authenticates, then lists all folders. An
// authentication rejection is fatal; everything else is recoverable.
func (m *Manager) Connect(ctx context.Context, host string, port int, username, password string) ([]FolderInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.addr = fmt.Sprintf("%s:%d", host, port)
	m.username = username
	m.password = password

	return m.connectLocked(ctx)
}

// Reconnect tears down the stale session and establishes a fresh one,
// re-listing folders. All pagination cursors become invalid; the caller
// is responsible for resetting them.
func (m *Manager) Reconnect(ctx context.Context) ([]FolderInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		_ = m.client.Logout().Wait()
		m.client = nil
	}
	return m.connectLocked(ctx)
}

func (m *Manager) connectLocked(_ context.Context) ([]FolderInfo, error) {
	m.state = StateConnecting

	client, err := imapclient.DialTLS(m.addr, nil)
	if err != nil {
		m.state = StateDisconnected
		return nil, recoverable("dial", err)
	}

	if err := client.Login(m.username, m.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		m.state = StateDisconnected
		return nil, authFailure("login", err)
	}

	listCmd := client.List("", "*", nil)
	listed, err := listCmd.Collect()
	if err != nil {
		_ = client.Logout().Wait()
		m.state = StateDisconnected
		return nil, recoverable("list", err)
	}

	folders := make([]FolderInfo, 0, len(listed))
	for _, l := range listed {
		attrs := make([]string, 0, len(l.Attrs))
		for _, a := range l.Attrs {
			attrs = append(attrs, string(a))
		}
		folders = append(folders, FolderInfo{Name: l.Mailbox, Attrs: attrs})
	}

	m.client = client
	m.state = StateReady
	log.Infof("[IMAP] Connected to %s, %d folders", m.addr, len(folders))
	return folders, nil
}

// RunExclusive acquires the session lock, opens folder read-only, runs
// fn against it and closes the folder on exit. Close failures are
// swallowed; they never mask the operation's own result.
func (m *Manager) RunExclusive(ctx context.Context, folder string, fn func(Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if m.client == nil || m.state != StateReady {
		return ErrNotConnected
	}

	selected, err := m.client.Select(folder, &imap.SelectOptions{ReadOnly: true}).Wait()
	if err != nil {
		return recoverable("select "+folder, err)
	}
	defer func() {
		// Best effort: an unselect failure must not surface.
		_ = m.client.Unselect().Wait()
	}()

	return fn(&session{client: m.client, selected: selected})
}

// Close logs out the live session if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		_ = m.client.Logout().Wait()
		m.client = nil
	}
	m.state = StateDisconnected
}

// State reports the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

type session struct {
	client   *imapclient.Client
	selected *imap.SelectData
}

func (s *session) NumMessages() uint32 {
	return s.selected.NumMessages
}

func (s *session) UIDValidity() uint32 {
	return s.selected.UIDValidity
}

func (s *session) FetchEnvelopes(startSeq, endSeq uint32) ([]EnvelopeSummary, error) {
	if startSeq < 1 || endSeq < startSeq {
		return nil, nil
	}

	var seqSet imap.SeqSet
	seqSet.AddRange(startSeq, endSeq)

	msgs, err := s.client.Fetch(seqSet, &imap.FetchOptions{
		Envelope:     true,
		UID:          true,
		InternalDate: true,
	}).Collect()
	if err != nil {
		return nil, recoverable("fetch envelopes", err)
	}

	summaries := make([]EnvelopeSummary, 0, len(msgs))
	for _, msg := range msgs {
		summaries = append(summaries, summaryFromBuffer(msg))
	}
	return summaries, nil
}

func (s *session) SearchAllUIDs() ([]uint32, error) {
	data, err := s.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, recoverable("uid search", err)
	}
	raw := data.AllUIDs()
	uids := make([]uint32, len(raw))
	for i, u := range raw {
		uids[i] = uint32(u)
	}
	return uids, nil
}

func (s *session) FetchFull(uid uint32) (*ParsedMessage, error) {
	bodySection := &imap.FetchItemBodySection{Peek: true}

	msgs, err := s.client.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		Envelope:     true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	}).Collect()
	if err != nil {
		return nil, recoverable("uid fetch", err)
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("message uid %d not found", uid)
	}

	buf := msgs[0]
	parsed := &ParsedMessage{Envelope: summaryFromBuffer(buf)}
	if raw := buf.FindBodySection(bodySection); raw != nil {
		parseRawMessage(raw, parsed)
	}
	return parsed, nil
}

func summaryFromBuffer(buf *imapclient.FetchMessageBuffer) EnvelopeSummary {
	sum := EnvelopeSummary{
		UID:        uint32(buf.UID),
		ReceivedAt: buf.InternalDate,
	}
	if env := buf.Envelope; env != nil {
		sum.Subject = env.Subject
		if sum.ReceivedAt.IsZero() {
			sum.ReceivedAt = env.Date
		}
		if len(env.From) > 0 {
			sum.FromName = env.From[0].Name
			sum.FromAddress = strings.ToLower(env.From[0].Addr())
		}
	}
	return sum
}
