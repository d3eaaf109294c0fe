package usecase

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	maildomain "mailvault-backend/internal/mail/domain"
	"mailvault-backend/pkg/imapx"
	"mailvault-backend/pkg/textutil"

	"gorm.io/datatypes"

	log "github.com/sirupsen/logrus"
)

// backfillLoop walks every folder on a fixed interval and archives the
// messages the local store does not have yet. The first cycle runs
// immediately so a fresh session starts filling without waiting out the
// interval.
func (u *syncUsecase) backfillLoop(ctx context.Context, accountID string) {
	ticker := time.NewTicker(u.cfg.BackfillInterval)
	defer ticker.Stop()

	u.runBackfillCycle(ctx, accountID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.runBackfillCycle(ctx, accountID)
		}
	}
}

// runBackfillCycle visits folders in priority order: inbox first,
// trash and junk last. A recoverable connection error that survives the
// single reconnect attempt ends the cycle; the next tick starts over.
func (u *syncUsecase) runBackfillCycle(ctx context.Context, accountID string) {
	folders, err := u.folderRepo.ListByAccount(accountID)
	if err != nil {
		log.Errorf("[Backfill] Failed to list folders: %v", err)
		return
	}
	sort.SliceStable(folders, func(i, j int) bool {
		return folders[i].SyncPriority() < folders[j].SyncPriority()
	})

	for _, folder := range folders {
		if ctx.Err() != nil {
			return
		}
		if err := u.backfillFolder(ctx, folder); err != nil {
			log.Warnf("[Backfill] Cycle aborted at folder %s: %v", folder.FullName, err)
			return
		}
	}
}

// backfillFolder computes fetch targets by set difference against the
// server's UID listing and archives them newest first. Targets are the
// UIDs the store has never seen plus the ones whose summary exists but
// whose body was never fetched.
func (u *syncUsecase) backfillFolder(ctx context.Context, folder *maildomain.Folder) error {
	var serverUIDs []uint32
	var uidValidity uint32
	err := u.withRetry(ctx, func() error {
		return u.remote.RunExclusive(ctx, folder.FullName, func(s imapx.Session) error {
			uids, serr := s.SearchAllUIDs()
			if serr != nil {
				return serr
			}
			serverUIDs = uids
			uidValidity = s.UIDValidity()
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("failed to list server uids: %w", err)
	}

	known, err := u.messageRepo.KnownUIDs(folder.ID)
	if err != nil {
		log.Errorf("[Backfill] Failed to load known uids for %s: %v", folder.FullName, err)
		return nil
	}
	missing, err := u.messageRepo.UIDsMissingBody(folder.ID)
	if err != nil {
		log.Errorf("[Backfill] Failed to load missing-body uids for %s: %v", folder.FullName, err)
		return nil
	}

	targets := backfillTargets(serverUIDs, known, missing)
	if len(targets) == 0 {
		return nil
	}
	log.Infof("[Backfill] %s: %d targets (%d on server, %d known)", folder.FullName, len(targets), len(serverUIDs), len(known))

	archived := 0
	for _, uid := range targets {
		if ctx.Err() != nil {
			return nil
		}

		var parsed *imapx.ParsedMessage
		err := u.withRetry(ctx, func() error {
			return u.remote.RunExclusive(ctx, folder.FullName, func(s imapx.Session) error {
				var ferr error
				parsed, ferr = s.FetchFull(uid)
				return ferr
			})
		})
		if err != nil {
			if imapx.IsRecoverable(err) {
				return fmt.Errorf("fetch uid %d: %w", uid, err)
			}
			// A single unparseable or vanished message must not stall
			// the rest of the folder.
			log.Warnf("[Backfill] Skipping uid %d in %s: %v", uid, folder.FullName, err)
			continue
		}

		if _, err := u.persistFull(folder, parsed); err != nil {
			log.Warnf("[Backfill] Failed to persist uid %d in %s: %v", uid, folder.FullName, err)
			continue
		}
		archived++
	}

	var lastSeen uint32
	for _, uid := range serverUIDs {
		if uid > lastSeen {
			lastSeen = uid
		}
	}
	if err := u.folderRepo.UpdateHints(folder.ID, uidValidity, lastSeen); err != nil {
		log.Warnf("[Backfill] Failed to update hints for %s: %v", folder.FullName, err)
	}

	if archived > 0 {
		u.events.Broadcast("backfill", map[string]interface{}{
			"folder_id": folder.ID,
			"archived":  archived,
		})
	}
	return nil
}

// backfillTargets is (server \ known) plus the known-but-bodyless UIDs,
// deduplicated and ordered UID-descending so the newest mail lands
// first.
func backfillTargets(server, known, missingBody []uint32) []uint32 {
	knownSet := make(map[uint32]struct{}, len(known))
	for _, uid := range known {
		knownSet[uid] = struct{}{}
	}

	seen := make(map[uint32]struct{})
	targets := make([]uint32, 0)
	for _, uid := range server {
		if _, ok := knownSet[uid]; ok {
			continue
		}
		if _, ok := seen[uid]; !ok {
			seen[uid] = struct{}{}
			targets = append(targets, uid)
		}
	}
	for _, uid := range missingBody {
		if _, ok := seen[uid]; !ok {
			seen[uid] = struct{}{}
			targets = append(targets, uid)
		}
	}

	sort.Slice(targets, func(i, j int) bool { return targets[i] > targets[j] })
	return targets
}

// persistFull archives one fully fetched message: the summary row, then
// body and attachments in a single transaction. An existing body is
// never overwritten.
func (u *syncUsecase) persistFull(folder *maildomain.Folder, parsed *imapx.ParsedMessage) (*maildomain.Message, error) {
	msg := &maildomain.Message{
		FolderID:    folder.ID,
		UID:         parsed.Envelope.UID,
		Subject:     parsed.Envelope.Subject,
		FromName:    parsed.Envelope.FromName,
		FromAddress: parsed.Envelope.FromAddress,
		ReceivedAt:  parsed.Envelope.ReceivedAt,
		ContentHash: parsed.ContentHash,
	}
	if err := u.messageRepo.Upsert(msg); err != nil {
		return nil, fmt.Errorf("failed to upsert message: %w", err)
	}

	hasBody, err := u.messageRepo.HasBody(msg.ID)
	if err != nil {
		return nil, err
	}

	var body *maildomain.MessageBody
	if !hasBody {
		sanitized := u.sanitizer.Sanitize(parsed.HTML)
		previewSource := parsed.PlainText
		if previewSource == "" {
			previewSource = textutil.HTMLToText(parsed.HTML)
		}

		headers := datatypes.JSONMap{}
		for name, value := range parsed.Headers {
			headers[name] = value
		}

		body = &maildomain.MessageBody{
			MessageID:     msg.ID,
			PlainText:     parsed.PlainText,
			HTML:          parsed.HTML,
			SanitizedHTML: sanitized.HTML,
			Headers:       headers,
			Preview:       textutil.Preview(previewSource, parsed.Envelope.Subject),
		}
	}

	// Attachments are written independently of the body: a body persisted
	// on an earlier pass whose attachments never made it to blob storage
	// still gets them here.
	var attachments []*maildomain.Attachment
	if len(parsed.Attachments) > 0 {
		existing, aerr := u.messageRepo.ListAttachments(msg.ID)
		if aerr != nil {
			return nil, aerr
		}
		if len(existing) == 0 {
			attachments = make([]*maildomain.Attachment, 0, len(parsed.Attachments))
			for _, part := range parsed.Attachments {
				key, size, perr := u.blobs.Put(bytes.NewReader(part.Data))
				if perr != nil {
					log.Warnf("[Backfill] Failed to store attachment %q: %v", part.FileName, perr)
					continue
				}
				attachments = append(attachments, &maildomain.Attachment{
					MessageID:   msg.ID,
					FileName:    part.FileName,
					ContentType: part.ContentType,
					Disposition: part.Disposition,
					Size:        size,
					ContentHash: key,
					BlobKey:     key,
				})
			}
		}
	}

	if body == nil && len(attachments) == 0 {
		return msg, nil
	}
	if err := u.messageRepo.CreateContent(body, attachments); err != nil {
		return nil, fmt.Errorf("failed to persist content: %w", err)
	}
	return msg, nil
}
