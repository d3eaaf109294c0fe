package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	maildomain "mailvault-backend/internal/mail/domain"
	"mailvault-backend/internal/mail/repository"
	"mailvault-backend/pkg/imapx"

	"github.com/google/uuid"
)

func errRecoverable(msg string) error {
	return &imapx.ConnError{Kind: imapx.KindRecoverable, Op: "test", Err: errors.New(msg)}
}

func errAuth(msg string) error {
	return &imapx.ConnError{Kind: imapx.KindAuth, Op: "test", Err: errors.New(msg)}
}

type fakeSession struct {
	uidValidity uint32
	envelopes   []imapx.EnvelopeSummary // ordered by sequence number, seq = index+1
	full        map[uint32]*imapx.ParsedMessage
	fetchErr    error
}

func (s *fakeSession) NumMessages() uint32 { return uint32(len(s.envelopes)) }

func (s *fakeSession) UIDValidity() uint32 { return s.uidValidity }

func (s *fakeSession) FetchEnvelopes(startSeq, endSeq uint32) ([]imapx.EnvelopeSummary, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	var out []imapx.EnvelopeSummary
	for seq := startSeq; seq <= endSeq && seq <= uint32(len(s.envelopes)); seq++ {
		out = append(out, s.envelopes[seq-1])
	}
	return out, nil
}

func (s *fakeSession) SearchAllUIDs() ([]uint32, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	uids := make([]uint32, len(s.envelopes))
	for i, env := range s.envelopes {
		uids[i] = env.UID
	}
	return uids, nil
}

func (s *fakeSession) FetchFull(uid uint32) (*imapx.ParsedMessage, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	parsed, ok := s.full[uid]
	if !ok {
		return nil, fmt.Errorf("no such uid %d", uid)
	}
	return parsed, nil
}

type fakeRemote struct {
	mu         sync.Mutex
	folders    []imapx.FolderInfo
	sessions   map[string]*fakeSession
	reconnects int
	closed     bool

	// failNext makes the next RunExclusive callback see a session that
	// errors, then clears itself.
	failNext error
}

func (r *fakeRemote) Connect(_ context.Context, _ string, _ int, _, _ string) ([]imapx.FolderInfo, error) {
	return r.folders, nil
}

func (r *fakeRemote) Reconnect(_ context.Context) ([]imapx.FolderInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconnects++
	return r.folders, nil
}

func (r *fakeRemote) RunExclusive(_ context.Context, folder string, fn func(imapx.Session) error) error {
	r.mu.Lock()
	sess, ok := r.sessions[folder]
	fail := r.failNext
	r.failNext = nil
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown folder %s", folder)
	}
	if fail != nil {
		return fail
	}
	return fn(sess)
}

func (r *fakeRemote) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

type fakeEmbedder struct {
	queryVec []float32
	queryErr error
}

func (e *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if text == "" {
			continue
		}
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	return e.queryVec, nil
}

func (e *fakeEmbedder) Dim() int { return 2 }

func (e *fakeEmbedder) ModelVersion() string { return "fake-v1" }

type fakeBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (s *fakeBlobStore) Put(r io.Reader) (string, int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, err
	}
	key := fmt.Sprintf("blob-%d-%x", len(data), data)
	s.mu.Lock()
	s.blobs[key] = data
	s.mu.Unlock()
	return key, int64(len(data)), nil
}

func (s *fakeBlobStore) Open(key string) (io.ReadCloser, error) {
	s.mu.Lock()
	data, ok := s.blobs[key]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no blob %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type fakeAccountRepo struct {
	accounts map[string]*maildomain.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[string]*maildomain.Account)}
}

func (r *fakeAccountRepo) Upsert(account *maildomain.Account) error {
	if existing, ok := r.accounts[account.Email]; ok {
		account.ID = existing.ID
		r.accounts[account.Email] = account
		return nil
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	r.accounts[account.Email] = account
	return nil
}

func (r *fakeAccountRepo) FindByEmail(email string) (*maildomain.Account, error) {
	return r.accounts[email], nil
}

type fakeFolderRepo struct {
	mu      sync.Mutex
	folders map[string]*maildomain.Folder
}

func newFakeFolderRepo() *fakeFolderRepo {
	return &fakeFolderRepo{folders: make(map[string]*maildomain.Folder)}
}

func (r *fakeFolderRepo) Upsert(folder *maildomain.Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.folders {
		if existing.AccountID == folder.AccountID && existing.FullName == folder.FullName {
			folder.ID = existing.ID
			r.folders[existing.ID] = folder
			return nil
		}
	}
	if folder.ID == "" {
		folder.ID = uuid.New().String()
	}
	r.folders[folder.ID] = folder
	return nil
}

func (r *fakeFolderRepo) FindByID(id string) (*maildomain.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.folders[id], nil
}

func (r *fakeFolderRepo) ListByAccount(accountID string) ([]*maildomain.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*maildomain.Folder
	for _, f := range r.folders {
		if f.AccountID == accountID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (r *fakeFolderRepo) UpdateHints(folderID string, uidValidity, lastSeenUID uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.folders[folderID]; ok {
		f.UIDValidity = uidValidity
		f.LastSeenUID = lastSeenUID
	}
	return nil
}

type fakeMessageRepo struct {
	mu          sync.Mutex
	messages    map[string]*maildomain.Message // by id
	bodies      map[string]*maildomain.MessageBody
	attachments map[string][]*maildomain.Attachment

	subjectHits []*maildomain.SearchResult
	senderHits  []*maildomain.SearchResult
	recent      []*maildomain.Message

	lastSenderName    string
	lastSenderAddress string
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		messages:    make(map[string]*maildomain.Message),
		bodies:      make(map[string]*maildomain.MessageBody),
		attachments: make(map[string][]*maildomain.Attachment),
	}
}

func (r *fakeMessageRepo) Upsert(msg *maildomain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.messages {
		if existing.FolderID == msg.FolderID && existing.UID == msg.UID {
			existing.Subject = msg.Subject
			existing.FromName = msg.FromName
			existing.FromAddress = msg.FromAddress
			if !msg.ReceivedAt.IsZero() {
				existing.ReceivedAt = msg.ReceivedAt
			}
			if msg.ContentHash != "" {
				existing.ContentHash = msg.ContentHash
			}
			*msg = *existing
			return nil
		}
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	clone := *msg
	r.messages[msg.ID] = &clone
	return nil
}

func (r *fakeMessageRepo) FindByFolderUID(folderID string, uid uint32) (*maildomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.FolderID == folderID && m.UID == uid {
			clone := *m
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) KnownUIDs(folderID string) ([]uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uint32
	for _, m := range r.messages {
		if m.FolderID == folderID {
			out = append(out, m.UID)
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) UIDsMissingBody(folderID string) ([]uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uint32
	for _, m := range r.messages {
		if m.FolderID == folderID {
			if _, ok := r.bodies[m.ID]; !ok {
				out = append(out, m.UID)
			}
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) CreateContent(body *maildomain.MessageBody, attachments []*maildomain.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if body != nil {
		if _, ok := r.bodies[body.MessageID]; !ok {
			r.bodies[body.MessageID] = body
		}
	}
	if len(attachments) > 0 && len(r.attachments[attachments[0].MessageID]) == 0 {
		r.attachments[attachments[0].MessageID] = attachments
	}
	return nil
}

func (r *fakeMessageRepo) HasBody(messageID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bodies[messageID]
	return ok, nil
}

func (r *fakeMessageRepo) GetBody(messageID string) (*maildomain.MessageBody, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[messageID], nil
}

func (r *fakeMessageRepo) ListAttachments(messageID string) ([]*maildomain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attachments[messageID], nil
}

func (r *fakeMessageRepo) FindAttachment(id string) (*maildomain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, atts := range r.attachments {
		for _, att := range atts {
			if att.ID == id {
				return att, nil
			}
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) SearchSubject(_ string, _ repository.SearchFilter) ([]*maildomain.SearchResult, error) {
	return cloneResults(r.subjectHits), nil
}

func (r *fakeMessageRepo) SearchSender(name, address string, _ repository.SearchFilter) ([]*maildomain.SearchResult, error) {
	r.lastSenderName = name
	r.lastSenderAddress = address
	return cloneResults(r.senderHits), nil
}

func (r *fakeMessageRepo) RecentHeaders(_ int) ([]*maildomain.Message, error) {
	return r.recent, nil
}

func cloneResults(in []*maildomain.SearchResult) []*maildomain.SearchResult {
	out := make([]*maildomain.SearchResult, len(in))
	for i, r := range in {
		clone := *r
		out[i] = &clone
	}
	return out
}

type fakeEmbeddingRepo struct {
	mu      sync.Mutex
	stored  map[string]*maildomain.Embedding
	pending []*repository.PendingDocument
	hits    []*repository.VectorHit
}

func newFakeEmbeddingRepo() *fakeEmbeddingRepo {
	return &fakeEmbeddingRepo{stored: make(map[string]*maildomain.Embedding)}
}

func (r *fakeEmbeddingRepo) InsertIgnore(emb *maildomain.Embedding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%s/%d", emb.MessageID, emb.ChunkIndex)
	if _, ok := r.stored[key]; !ok {
		r.stored[key] = emb
	}
	return nil
}

func (r *fakeEmbeddingRepo) PendingDocuments(limit int) ([]*repository.PendingDocument, error) {
	if len(r.pending) > limit {
		return r.pending[:limit], nil
	}
	return r.pending, nil
}

func (r *fakeEmbeddingRepo) NearestNeighbors(_ []float32, _ repository.SearchFilter) ([]*repository.VectorHit, error) {
	return r.hits, nil
}

func result(id string, signal maildomain.Signal, score float64, received time.Time) *maildomain.SearchResult {
	return &maildomain.SearchResult{
		MessageID:  id,
		Subject:    "subject " + id,
		ReceivedAt: received,
		Score:      score,
		Signal:     signal,
	}
}
