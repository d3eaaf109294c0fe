package repository

import (
	"errors"
	"strings"
	"time"

	maildomain "mailvault-backend/internal/mail/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// messageRepository implements MessageRepository interface
type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Upsert converges concurrent writers on one row per (folder, uid).
// The insert uses on-conflict-do-nothing; when zero rows are affected
// another writer won the race, so the existing row is re-read and its
// mutable header fields updated instead of failing.
func (r *messageRepository) Upsert(msg *maildomain.Message) error {
	now := time.Now()
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = now
	msg.UpdatedAt = now

	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "folder_id"}, {Name: "uid"}},
		DoNothing: true,
	}).Create(msg)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var existing maildomain.Message
	if err := r.db.Where("folder_id = ? AND uid = ?", msg.FolderID, msg.UID).
		First(&existing).Error; err != nil {
		return err
	}

	existing.Subject = msg.Subject
	existing.FromName = msg.FromName
	existing.FromAddress = msg.FromAddress
	if !msg.ReceivedAt.IsZero() {
		existing.ReceivedAt = msg.ReceivedAt
	}
	if msg.ContentHash != "" {
		existing.ContentHash = msg.ContentHash
	}
	existing.UpdatedAt = now
	*msg = existing
	return r.db.Save(&existing).Error
}

func (r *messageRepository) FindByFolderUID(folderID string, uid uint32) (*maildomain.Message, error) {
	var msg maildomain.Message
	err := r.db.Where("folder_id = ? AND uid = ?", folderID, uid).First(&msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) KnownUIDs(folderID string) ([]uint32, error) {
	var uids []uint32
	err := r.db.Model(&maildomain.Message{}).
		Where("folder_id = ?", folderID).
		Pluck("uid", &uids).Error
	return uids, err
}

func (r *messageRepository) UIDsMissingBody(folderID string) ([]uint32, error) {
	var uids []uint32
	err := r.db.Model(&maildomain.Message{}).
		Joins("LEFT JOIN message_bodies ON message_bodies.message_id = messages.id").
		Where("messages.folder_id = ? AND message_bodies.message_id IS NULL", folderID).
		Pluck("messages.uid", &uids).Error
	return uids, err
}

// CreateContent writes one message's body and attachments atomically.
// The body is created once and never overwritten; a nil body writes
// attachments only. Attachments are only written for a message that
// has none.
func (r *messageRepository) CreateContent(body *maildomain.MessageBody, attachments []*maildomain.Attachment) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if body != nil {
			body.CreatedAt = time.Now()
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(body)
			if res.Error != nil {
				return res.Error
			}
		}

		if len(attachments) == 0 {
			return nil
		}
		var count int64
		if err := tx.Model(&maildomain.Attachment{}).
			Where("message_id = ?", attachments[0].MessageID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		for _, att := range attachments {
			if att.ID == "" {
				att.ID = uuid.New().String()
			}
			att.CreatedAt = time.Now()
		}
		return tx.Create(&attachments).Error
	})
}

func (r *messageRepository) HasBody(messageID string) (bool, error) {
	var count int64
	err := r.db.Model(&maildomain.MessageBody{}).
		Where("message_id = ?", messageID).Count(&count).Error
	return count > 0, err
}

func (r *messageRepository) GetBody(messageID string) (*maildomain.MessageBody, error) {
	var body maildomain.MessageBody
	err := r.db.Where("message_id = ?", messageID).First(&body).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &body, nil
}

func (r *messageRepository) ListAttachments(messageID string) ([]*maildomain.Attachment, error) {
	var atts []*maildomain.Attachment
	err := r.db.Where("message_id = ?", messageID).
		Order("file_name ASC").Find(&atts).Error
	return atts, err
}

func (r *messageRepository) FindAttachment(id string) (*maildomain.Attachment, error) {
	var att maildomain.Attachment
	err := r.db.Where("id = ?", id).First(&att).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &att, nil
}

const searchSelect = `messages.id AS message_id, messages.folder_id, messages.uid,
messages.subject, messages.from_name, messages.from_address, messages.received_at,
COALESCE(message_bodies.preview, '') AS preview`

func (r *messageRepository) SearchSubject(substr string, f SearchFilter) ([]*maildomain.SearchResult, error) {
	// Each word must appear somewhere in the subject; word order in the
	// query does not matter.
	q := r.searchBase(f)
	for _, word := range strings.Fields(substr) {
		q = q.Where("messages.subject ILIKE ?", "%"+word+"%")
	}
	return r.runSearch(q, f.Limit)
}

func (r *messageRepository) SearchSender(name, address string, f SearchFilter) ([]*maildomain.SearchResult, error) {
	q := r.searchBase(f)
	switch {
	case name != "" && address != "":
		q = q.Where("messages.from_name ILIKE ? OR messages.from_address ILIKE ?",
			"%"+name+"%", "%"+address+"%")
	case address != "":
		q = q.Where("messages.from_address ILIKE ?", "%"+address+"%")
	default:
		q = q.Where("messages.from_name ILIKE ? OR messages.from_address ILIKE ?",
			"%"+name+"%", "%"+name+"%")
	}
	return r.runSearch(q, f.Limit)
}

func (r *messageRepository) searchBase(f SearchFilter) *gorm.DB {
	q := r.db.Model(&maildomain.Message{}).
		Select(searchSelect).
		Joins("LEFT JOIN message_bodies ON message_bodies.message_id = messages.id")
	if f.SinceUTC != nil {
		q = q.Where("messages.received_at >= ?", *f.SinceUTC)
	}
	if f.UIDCursor != nil {
		q = q.Where("messages.uid < ?", *f.UIDCursor)
	}
	return q
}

func (r *messageRepository) runSearch(q *gorm.DB, limit int) ([]*maildomain.SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	var results []*maildomain.SearchResult
	err := q.Order("messages.received_at DESC").Limit(limit).Scan(&results).Error
	return results, err
}

func (r *messageRepository) RecentHeaders(limit int) ([]*maildomain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var msgs []*maildomain.Message
	err := r.db.Order("received_at DESC").Limit(limit).Find(&msgs).Error
	return msgs, err
}
