package usecase

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	maildomain "mailvault-backend/internal/mail/domain"
	"mailvault-backend/internal/mail/repository"
	"mailvault-backend/pkg/config"
	"mailvault-backend/pkg/imapx"
	"mailvault-backend/pkg/sanitize"
	"mailvault-backend/pkg/sse"

	log "github.com/sirupsen/logrus"
)

// PageSize is the fixed window for folder pagination.
const PageSize = 40

// syncUsecase implements SyncUsecase interface
type syncUsecase struct {
	accountRepo   repository.AccountRepository
	folderRepo    repository.FolderRepository
	messageRepo   repository.MessageRepository
	embeddingRepo repository.EmbeddingRepository

	remote    Remote
	engine    Embedder
	sanitizer *sanitize.Sanitizer
	blobs     BlobStore
	events    *sse.Manager
	cfg       *config.Config

	mu      sync.Mutex
	session *syncSession

	// cursorMu guards the per-folder pagination cursors. A cursor is
	// the sequence number just below the last loaded window; <1 means
	// the folder is exhausted. All cursors reset on reconnect.
	cursorMu sync.Mutex
	cursors  map[string]int64
}

// syncSession is one StartSync..Shutdown lifetime. Both background
// loops share the context and are joined through the WaitGroup so
// in-flight persistence finishes before teardown returns.
type syncSession struct {
	accountID string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewSyncUsecase(
	accountRepo repository.AccountRepository,
	folderRepo repository.FolderRepository,
	messageRepo repository.MessageRepository,
	embeddingRepo repository.EmbeddingRepository,
	remote Remote,
	engine Embedder,
	sanitizer *sanitize.Sanitizer,
	blobs BlobStore,
	events *sse.Manager,
	cfg *config.Config,
) SyncUsecase {
	return &syncUsecase{
		accountRepo:   accountRepo,
		folderRepo:    folderRepo,
		messageRepo:   messageRepo,
		embeddingRepo: embeddingRepo,
		remote:        remote,
		engine:        engine,
		sanitizer:     sanitizer,
		blobs:         blobs,
		events:        events,
		cfg:           cfg,
		cursors:       make(map[string]int64),
	}
}

// StartSync connects, mirrors the folder list and launches the backfill
// and embedding loops for the session.
func (u *syncUsecase) StartSync(ctx context.Context, email, password, host string, port int) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.session != nil {
		return fmt.Errorf("sync session already running")
	}

	u.events.Status("Connecting…")
	folders, err := u.remote.Connect(ctx, host, port, email, password)
	if err != nil {
		if imapx.IsAuth(err) {
			u.events.Status("Authentication failed")
			return fmt.Errorf("authentication rejected: %w", err)
		}
		u.events.Status("Connection failed")
		return fmt.Errorf("failed to connect: %w", err)
	}

	account := &maildomain.Account{Email: email, Host: host, Port: port}
	if err := u.accountRepo.Upsert(account); err != nil {
		return fmt.Errorf("failed to persist account: %w", err)
	}
	if err := u.persistFolders(account.ID, folders); err != nil {
		return fmt.Errorf("failed to persist folders: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sess := &syncSession{accountID: account.ID, cancel: cancel}
	sess.wg.Add(2)
	go func() {
		defer sess.wg.Done()
		u.backfillLoop(loopCtx, account.ID)
	}()
	go func() {
		defer sess.wg.Done()
		u.embedLoop(loopCtx)
	}()

	u.session = sess
	u.events.Status("Syncing")
	log.Infof("[Sync] Session started for %s (%d folders)", email, len(folders))
	return nil
}

// Shutdown cancels the session and joins both loops before releasing
// the connection, so in-flight writes either finish or fail cleanly.
func (u *syncUsecase) Shutdown() {
	u.mu.Lock()
	sess := u.session
	u.session = nil
	u.mu.Unlock()

	if sess == nil {
		return
	}
	sess.cancel()
	sess.wg.Wait()
	u.remote.Close()
	u.resetCursors()
	u.events.Status("Disconnected")
	log.Info("[Sync] Session stopped")
}

func (u *syncUsecase) currentAccountID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.session == nil {
		return ""
	}
	return u.session.accountID
}

func (u *syncUsecase) persistFolders(accountID string, infos []imapx.FolderInfo) error {
	for _, info := range infos {
		folder := &maildomain.Folder{
			AccountID: accountID,
			FullName:  info.Name,
			Role:      classifyFolder(info),
		}
		if err := u.folderRepo.Upsert(folder); err != nil {
			return err
		}
	}
	return nil
}

// classifyFolder derives the sync-priority role from special-use
// attributes, falling back to well-known names.
func classifyFolder(info imapx.FolderInfo) maildomain.FolderRole {
	for _, attr := range info.Attrs {
		switch strings.ToLower(attr) {
		case `\inbox`:
			return maildomain.RoleInbox
		case `\trash`:
			return maildomain.RoleTrash
		case `\junk`:
			return maildomain.RoleJunk
		}
	}
	name := strings.ToLower(info.Name)
	switch {
	case name == "inbox":
		return maildomain.RoleInbox
	case strings.Contains(name, "trash"), strings.Contains(name, "deleted"):
		return maildomain.RoleTrash
	case strings.Contains(name, "junk"), strings.Contains(name, "spam"):
		return maildomain.RoleJunk
	}
	return maildomain.RoleRegular
}

func (u *syncUsecase) ListFolders() ([]*maildomain.Folder, error) {
	accountID := u.currentAccountID()
	if accountID == "" {
		return nil, fmt.Errorf("no sync session")
	}
	return u.folderRepo.ListByAccount(accountID)
}

// LoadNewestPage fetches the newest window of summaries and records the
// cursor for LoadOlderPage.
func (u *syncUsecase) LoadNewestPage(ctx context.Context, folderID string) (*Page, error) {
	folder, err := u.folderRepo.FindByID(folderID)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, fmt.Errorf("folder not found: %s", folderID)
	}

	u.events.Status("Loading…")
	var page *Page
	err = u.withRetry(ctx, func() error {
		return u.remote.RunExclusive(ctx, folder.FullName, func(s imapx.Session) error {
			count := s.NumMessages()
			if count == 0 {
				u.setCursor(folderID, 0)
				page = &Page{Messages: []*maildomain.Message{}, HasMore: false}
				return nil
			}
			end := count
			start := uint32(1)
			if count > PageSize {
				start = count - PageSize + 1
			}
			sums, err := s.FetchEnvelopes(start, end)
			if err != nil {
				return err
			}
			u.setCursor(folderID, int64(start)-1)
			page = u.buildPage(folderID, sums, int64(start)-1 >= 1)
			return nil
		})
	})
	if err != nil {
		u.events.Status("Loading failed")
		return nil, err
	}
	return page, nil
}

// LoadOlderPage extends pagination below the recorded cursor. Windows
// never overlap: the cursor strictly decreases until it hits zero.
func (u *syncUsecase) LoadOlderPage(ctx context.Context, folderID string) (*Page, error) {
	folder, err := u.folderRepo.FindByID(folderID)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, fmt.Errorf("folder not found: %s", folderID)
	}

	cursor, ok := u.getCursor(folderID)
	if !ok || cursor < 1 {
		return &Page{Messages: []*maildomain.Message{}, HasMore: false}, nil
	}

	u.events.Status("Loading…")
	var page *Page
	err = u.withRetry(ctx, func() error {
		return u.remote.RunExclusive(ctx, folder.FullName, func(s imapx.Session) error {
			end := uint32(cursor)
			start := uint32(1)
			if end > PageSize {
				start = end - PageSize + 1
			}
			sums, err := s.FetchEnvelopes(start, end)
			if err != nil {
				return err
			}
			u.setCursor(folderID, int64(start)-1)
			page = u.buildPage(folderID, sums, int64(start)-1 >= 1)
			return nil
		})
	})
	if err != nil {
		u.events.Status("Loading failed")
		return nil, err
	}
	return page, nil
}

// buildPage converts summaries, kicks off fire-and-forget persistence
// and returns them newest first.
func (u *syncUsecase) buildPage(folderID string, sums []imapx.EnvelopeSummary, hasMore bool) *Page {
	msgs := make([]*maildomain.Message, 0, len(sums))
	for _, sum := range sums {
		msgs = append(msgs, &maildomain.Message{
			FolderID:    folderID,
			UID:         sum.UID,
			Subject:     sum.Subject,
			FromName:    sum.FromName,
			FromAddress: sum.FromAddress,
			ReceivedAt:  sum.ReceivedAt,
		})
	}

	// Persistence must not block the UI path.
	persisted := make([]*maildomain.Message, len(msgs))
	copy(persisted, msgs)
	go func() {
		for _, m := range persisted {
			clone := *m
			if err := u.messageRepo.Upsert(&clone); err != nil {
				log.Warnf("[PageLoader] Failed to upsert summary uid=%d: %v", m.UID, err)
			}
		}
	}()

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].ReceivedAt.After(msgs[j].ReceivedAt)
	})
	return &Page{Messages: msgs, HasMore: hasMore}
}

// withRetry reconnects exactly once on a recoverable error and replays
// the operation once. Reconnecting invalidates every pagination cursor.
func (u *syncUsecase) withRetry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !imapx.IsRecoverable(err) {
		return err
	}

	log.Warnf("[Sync] Recoverable error, reconnecting once: %v", err)
	if _, rerr := u.remote.Reconnect(ctx); rerr != nil {
		return fmt.Errorf("reconnect failed: %w", rerr)
	}
	u.resetCursors()
	return op()
}

func (u *syncUsecase) setCursor(folderID string, cursor int64) {
	u.cursorMu.Lock()
	defer u.cursorMu.Unlock()
	u.cursors[folderID] = cursor
}

func (u *syncUsecase) getCursor(folderID string) (int64, bool) {
	u.cursorMu.Lock()
	defer u.cursorMu.Unlock()
	c, ok := u.cursors[folderID]
	return c, ok
}

func (u *syncUsecase) resetCursors() {
	u.cursorMu.Lock()
	defer u.cursorMu.Unlock()
	u.cursors = make(map[string]int64)
}

// LoadBody returns the archived body for (folder, uid), fetching it
// through the serialized connection when backfill has not reached it
// yet.
func (u *syncUsecase) LoadBody(ctx context.Context, folderID string, uid uint32) (*BodyView, error) {
	msg, err := u.messageRepo.FindByFolderUID(folderID, uid)
	if err != nil {
		return nil, err
	}
	if msg != nil {
		body, err := u.messageRepo.GetBody(msg.ID)
		if err != nil {
			return nil, err
		}
		if body != nil {
			return u.bodyView(body)
		}
	}

	folder, err := u.folderRepo.FindByID(folderID)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, fmt.Errorf("folder not found: %s", folderID)
	}

	var parsed *imapx.ParsedMessage
	err = u.withRetry(ctx, func() error {
		return u.remote.RunExclusive(ctx, folder.FullName, func(s imapx.Session) error {
			var ferr error
			parsed, ferr = s.FetchFull(uid)
			return ferr
		})
	})
	if err != nil {
		return nil, err
	}

	persistedMsg, err := u.persistFull(folder, parsed)
	if err != nil {
		return nil, err
	}
	body, err := u.messageRepo.GetBody(persistedMsg.ID)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, fmt.Errorf("body unavailable for uid %d", uid)
	}
	return u.bodyView(body)
}

func (u *syncUsecase) bodyView(body *maildomain.MessageBody) (*BodyView, error) {
	atts, err := u.messageRepo.ListAttachments(body.MessageID)
	if err != nil {
		return nil, err
	}
	return &BodyView{
		SanitizedHTML: body.SanitizedHTML,
		PlainText:     body.PlainText,
		Preview:       body.Preview,
		Headers:       body.Headers,
		Attachments:   atts,
	}, nil
}

// OpenAttachment resolves an attachment row and opens its binary from
// the blob store. The caller closes the reader.
func (u *syncUsecase) OpenAttachment(id string) (*maildomain.Attachment, io.ReadCloser, error) {
	att, err := u.messageRepo.FindAttachment(id)
	if err != nil {
		return nil, nil, err
	}
	if att == nil {
		return nil, nil, fmt.Errorf("attachment not found: %s", id)
	}
	r, err := u.blobs.Open(att.BlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open attachment blob: %w", err)
	}
	return att, r, nil
}
