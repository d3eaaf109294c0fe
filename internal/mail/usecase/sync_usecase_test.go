package usecase

import (
	"context"
	"io"
	"testing"
	"time"

	maildomain "mailvault-backend/internal/mail/domain"
	"mailvault-backend/pkg/config"
	"mailvault-backend/pkg/imapx"
	"mailvault-backend/pkg/sanitize"
	"mailvault-backend/pkg/sse"

	"github.com/stretchr/testify/require"
)

type testEnv struct {
	uc         *syncUsecase
	remote     *fakeRemote
	accounts   *fakeAccountRepo
	folders    *fakeFolderRepo
	messages   *fakeMessageRepo
	embeddings *fakeEmbeddingRepo
	embedder   *fakeEmbedder
	blobs      *fakeBlobStore
}

func newTestEnv(remote *fakeRemote) *testEnv {
	env := &testEnv{
		remote:     remote,
		accounts:   newFakeAccountRepo(),
		folders:    newFakeFolderRepo(),
		messages:   newFakeMessageRepo(),
		embeddings: newFakeEmbeddingRepo(),
		embedder:   &fakeEmbedder{queryVec: []float32{1, 0}},
		blobs:      newFakeBlobStore(),
	}
	cfg := &config.Config{
		BackfillInterval:    time.Minute,
		EmbedIdleInterval:   time.Minute,
		EmbedActiveInterval: time.Second,
	}
	env.uc = NewSyncUsecase(
		env.accounts,
		env.folders,
		env.messages,
		env.embeddings,
		remote,
		env.embedder,
		sanitize.New(),
		env.blobs,
		sse.NewManager(),
		cfg,
	).(*syncUsecase)
	return env
}

func envelopeRange(firstUID uint32, n int, base time.Time) []imapx.EnvelopeSummary {
	out := make([]imapx.EnvelopeSummary, n)
	for i := 0; i < n; i++ {
		out[i] = imapx.EnvelopeSummary{
			UID:        firstUID + uint32(i),
			Subject:    "msg",
			ReceivedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func seedFolder(env *testEnv, name string) *maildomain.Folder {
	folder := &maildomain.Folder{AccountID: "acc", FullName: name}
	_ = env.folders.Upsert(folder)
	return folder
}

func TestLoadNewestPageReturnsWindowNewestFirst(t *testing.T) {
	remote := &fakeRemote{sessions: map[string]*fakeSession{
		"INBOX": {envelopes: envelopeRange(100, 100, time.Now().Add(-100*time.Minute))},
	}}
	env := newTestEnv(remote)
	folder := seedFolder(env, "INBOX")

	page, err := env.uc.LoadNewestPage(context.Background(), folder.ID)
	require.NoError(t, err)
	require.Len(t, page.Messages, PageSize)
	require.True(t, page.HasMore)

	// Newest first.
	for i := 1; i < len(page.Messages); i++ {
		require.False(t, page.Messages[i-1].ReceivedAt.Before(page.Messages[i].ReceivedAt))
	}
	require.Equal(t, uint32(199), page.Messages[0].UID)
}

func TestLoadNewestPageSmallFolder(t *testing.T) {
	remote := &fakeRemote{sessions: map[string]*fakeSession{
		"INBOX": {envelopes: envelopeRange(1, 5, time.Now())},
	}}
	env := newTestEnv(remote)
	folder := seedFolder(env, "INBOX")

	page, err := env.uc.LoadNewestPage(context.Background(), folder.ID)
	require.NoError(t, err)
	require.Len(t, page.Messages, 5)
	require.False(t, page.HasMore)
}

func TestLoadNewestPageEmptyFolder(t *testing.T) {
	remote := &fakeRemote{sessions: map[string]*fakeSession{
		"INBOX": {},
	}}
	env := newTestEnv(remote)
	folder := seedFolder(env, "INBOX")

	page, err := env.uc.LoadNewestPage(context.Background(), folder.ID)
	require.NoError(t, err)
	require.Empty(t, page.Messages)
	require.False(t, page.HasMore)
}

func TestLoadOlderPageWindowsNeverOverlap(t *testing.T) {
	remote := &fakeRemote{sessions: map[string]*fakeSession{
		"INBOX": {envelopes: envelopeRange(1, 100, time.Now().Add(-100*time.Minute))},
	}}
	env := newTestEnv(remote)
	folder := seedFolder(env, "INBOX")

	seen := make(map[uint32]bool)
	page, err := env.uc.LoadNewestPage(context.Background(), folder.ID)
	require.NoError(t, err)
	for _, m := range page.Messages {
		require.False(t, seen[m.UID])
		seen[m.UID] = true
	}

	for page.HasMore {
		page, err = env.uc.LoadOlderPage(context.Background(), folder.ID)
		require.NoError(t, err)
		for _, m := range page.Messages {
			require.False(t, seen[m.UID], "uid %d returned twice", m.UID)
			seen[m.UID] = true
		}
	}
	require.Len(t, seen, 100)

	// Exhausted folder keeps returning an empty page.
	page, err = env.uc.LoadOlderPage(context.Background(), folder.ID)
	require.NoError(t, err)
	require.Empty(t, page.Messages)
	require.False(t, page.HasMore)
}

func TestLoadOlderPageWithoutNewestIsEmpty(t *testing.T) {
	remote := &fakeRemote{sessions: map[string]*fakeSession{
		"INBOX": {envelopes: envelopeRange(1, 10, time.Now())},
	}}
	env := newTestEnv(remote)
	folder := seedFolder(env, "INBOX")

	page, err := env.uc.LoadOlderPage(context.Background(), folder.ID)
	require.NoError(t, err)
	require.Empty(t, page.Messages)
	require.False(t, page.HasMore)
}

func TestWithRetryReconnectsOnceOnRecoverable(t *testing.T) {
	remote := &fakeRemote{sessions: map[string]*fakeSession{}}
	env := newTestEnv(remote)

	calls := 0
	err := env.uc.withRetry(context.Background(), func() error {
		calls++
		if calls == 1 {
			return errRecoverable("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, remote.reconnects)
}

func TestWithRetryGivesUpAfterSecondFailure(t *testing.T) {
	remote := &fakeRemote{sessions: map[string]*fakeSession{}}
	env := newTestEnv(remote)

	calls := 0
	err := env.uc.withRetry(context.Background(), func() error {
		calls++
		return errRecoverable("connection reset")
	})
	require.Error(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, remote.reconnects)
}

func TestWithRetryDoesNotRetryNonRecoverable(t *testing.T) {
	remote := &fakeRemote{sessions: map[string]*fakeSession{}}
	env := newTestEnv(remote)

	calls := 0
	err := env.uc.withRetry(context.Background(), func() error {
		calls++
		return errAuth("bad credentials")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.Equal(t, 0, remote.reconnects)
}

func TestWithRetryResetsCursors(t *testing.T) {
	remote := &fakeRemote{sessions: map[string]*fakeSession{}}
	env := newTestEnv(remote)
	env.uc.setCursor("f1", 42)

	calls := 0
	_ = env.uc.withRetry(context.Background(), func() error {
		calls++
		if calls == 1 {
			return errRecoverable("broken pipe")
		}
		return nil
	})

	_, ok := env.uc.getCursor("f1")
	require.False(t, ok)
}

func TestClassifyFolder(t *testing.T) {
	require.Equal(t, maildomain.RoleInbox, classifyFolder(imapx.FolderInfo{Name: "INBOX"}))
	require.Equal(t, maildomain.RoleTrash, classifyFolder(imapx.FolderInfo{Name: "Deleted Items"}))
	require.Equal(t, maildomain.RoleJunk, classifyFolder(imapx.FolderInfo{Name: "Spam"}))
	require.Equal(t, maildomain.RoleJunk, classifyFolder(imapx.FolderInfo{Name: "Stuff", Attrs: []string{`\Junk`}}))
	require.Equal(t, maildomain.RoleRegular, classifyFolder(imapx.FolderInfo{Name: "Receipts"}))
}

func TestBackfillTargets(t *testing.T) {
	server := []uint32{1, 2, 3, 4, 5}
	known := []uint32{1, 2, 3}
	missing := []uint32{2}

	targets := backfillTargets(server, known, missing)
	require.Equal(t, []uint32{5, 4, 2}, targets)
}

func TestBackfillTargetsDeduplicates(t *testing.T) {
	server := []uint32{7, 8}
	known := []uint32{7}
	missing := []uint32{8} // also new on server

	targets := backfillTargets(server, known, missing)
	require.Equal(t, []uint32{8}, targets)
}

func TestBackfillFolderArchivesMissingMessages(t *testing.T) {
	now := time.Now()
	remote := &fakeRemote{sessions: map[string]*fakeSession{
		"INBOX": {
			uidValidity: 11,
			envelopes:   envelopeRange(1, 3, now.Add(-time.Hour)),
			full: map[uint32]*imapx.ParsedMessage{
				1: {Envelope: imapx.EnvelopeSummary{UID: 1, Subject: "one", ReceivedAt: now}, PlainText: "body one"},
				2: {Envelope: imapx.EnvelopeSummary{UID: 2, Subject: "two", ReceivedAt: now}, PlainText: "body two"},
				3: {Envelope: imapx.EnvelopeSummary{UID: 3, Subject: "three", ReceivedAt: now}, PlainText: "body three"},
			},
		},
	}}
	env := newTestEnv(remote)
	folder := seedFolder(env, "INBOX")

	require.NoError(t, env.uc.backfillFolder(context.Background(), folder))

	uids, err := env.messages.KnownUIDs(folder.ID)
	require.NoError(t, err)
	require.Len(t, uids, 3)

	missing, err := env.messages.UIDsMissingBody(folder.ID)
	require.NoError(t, err)
	require.Empty(t, missing)

	stored, err := env.folders.FindByID(folder.ID)
	require.NoError(t, err)
	require.Equal(t, uint32(11), stored.UIDValidity)
	require.Equal(t, uint32(3), stored.LastSeenUID)
}

func TestBackfillFolderSkipsBrokenMessage(t *testing.T) {
	now := time.Now()
	remote := &fakeRemote{sessions: map[string]*fakeSession{
		"INBOX": {
			envelopes: envelopeRange(1, 2, now.Add(-time.Hour)),
			full: map[uint32]*imapx.ParsedMessage{
				// uid 2 is absent, its fetch fails non-recoverably.
				1: {Envelope: imapx.EnvelopeSummary{UID: 1, Subject: "ok", ReceivedAt: now}, PlainText: "fine"},
			},
		},
	}}
	env := newTestEnv(remote)
	folder := seedFolder(env, "INBOX")

	require.NoError(t, env.uc.backfillFolder(context.Background(), folder))

	uids, err := env.messages.KnownUIDs(folder.ID)
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, uids)
}

func TestPersistFullStoresAttachmentsAndOpensThem(t *testing.T) {
	now := time.Now()
	env := newTestEnv(&fakeRemote{sessions: map[string]*fakeSession{}})
	folder := seedFolder(env, "INBOX")

	parsed := &imapx.ParsedMessage{
		Envelope:  imapx.EnvelopeSummary{UID: 4, Subject: "with file", ReceivedAt: now},
		PlainText: "see attached",
		Attachments: []imapx.AttachmentPart{
			{FileName: "menu.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4")},
		},
	}

	msg, err := env.uc.persistFull(folder, parsed)
	require.NoError(t, err)

	atts, err := env.messages.ListAttachments(msg.ID)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	require.Equal(t, "menu.pdf", atts[0].FileName)
	require.Equal(t, int64(8), atts[0].Size)

	atts[0].ID = "att-1"
	att, r, err := env.uc.OpenAttachment("att-1")
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, "menu.pdf", att.FileName)

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.4", string(data))
}

func TestPersistFullAddsAttachmentsWhenBodyAlreadyStored(t *testing.T) {
	now := time.Now()
	env := newTestEnv(&fakeRemote{sessions: map[string]*fakeSession{}})
	folder := seedFolder(env, "INBOX")

	parsed := &imapx.ParsedMessage{
		Envelope:  imapx.EnvelopeSummary{UID: 7, Subject: "report", ReceivedAt: now},
		PlainText: "numbers attached",
	}
	msg, err := env.uc.persistFull(folder, parsed)
	require.NoError(t, err)

	// The body landed on an earlier pass but the attachment never made
	// it to blob storage; a later pass must still write it.
	parsed.Attachments = []imapx.AttachmentPart{
		{FileName: "q3.xlsx", ContentType: "application/vnd.ms-excel", Data: []byte("cells")},
	}
	again, err := env.uc.persistFull(folder, parsed)
	require.NoError(t, err)
	require.Equal(t, msg.ID, again.ID)

	atts, err := env.messages.ListAttachments(msg.ID)
	require.NoError(t, err)
	require.Len(t, atts, 1)
	require.Equal(t, "q3.xlsx", atts[0].FileName)

	body, err := env.messages.GetBody(msg.ID)
	require.NoError(t, err)
	require.Equal(t, "numbers attached", body.PlainText)
}

func TestLoadBodyFetchesAndPersistsOnDemand(t *testing.T) {
	now := time.Now()
	remote := &fakeRemote{sessions: map[string]*fakeSession{
		"INBOX": {
			envelopes: envelopeRange(9, 1, now),
			full: map[uint32]*imapx.ParsedMessage{
				9: {
					Envelope:  imapx.EnvelopeSummary{UID: 9, Subject: "hello", ReceivedAt: now},
					PlainText: "hello there",
					HTML:      "<p>hello there</p>",
				},
			},
		},
	}}
	env := newTestEnv(remote)
	folder := seedFolder(env, "INBOX")

	body, err := env.uc.LoadBody(context.Background(), folder.ID, 9)
	require.NoError(t, err)
	require.Equal(t, "hello there", body.PlainText)
	require.Contains(t, body.Preview, "hello there")

	// Second load comes from the store; drop the remote copy to prove it.
	delete(remote.sessions["INBOX"].full, 9)
	body, err = env.uc.LoadBody(context.Background(), folder.ID, 9)
	require.NoError(t, err)
	require.Equal(t, "hello there", body.PlainText)
}
