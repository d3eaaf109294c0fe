package repository

import (
	"errors"
	"time"

	maildomain "mailvault-backend/internal/mail/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// folderRepository implements FolderRepository interface
type folderRepository struct {
	db *gorm.DB
}

func NewFolderRepository(db *gorm.DB) FolderRepository {
	return &folderRepository{db: db}
}

func (r *folderRepository) Upsert(folder *maildomain.Folder) error {
	now := time.Now()
	if folder.ID == "" {
		folder.ID = uuid.New().String()
	}
	folder.CreatedAt = now
	folder.UpdatedAt = now

	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "full_name"}},
		DoNothing: true,
	}).Create(folder)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// Row already exists or another writer won the insert race; re-read
	// the winner and refresh the mutable fields.
	var existing maildomain.Folder
	if err := r.db.Where("account_id = ? AND full_name = ?", folder.AccountID, folder.FullName).
		First(&existing).Error; err != nil {
		return err
	}

	existing.Role = folder.Role
	existing.UpdatedAt = now
	*folder = existing
	return r.db.Save(&existing).Error
}

func (r *folderRepository) FindByID(id string) (*maildomain.Folder, error) {
	var folder maildomain.Folder
	err := r.db.Where("id = ?", id).First(&folder).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &folder, nil
}

func (r *folderRepository) ListByAccount(accountID string) ([]*maildomain.Folder, error) {
	var folders []*maildomain.Folder
	err := r.db.Where("account_id = ?", accountID).Order("full_name asc").Find(&folders).Error
	return folders, err
}

// UpdateHints records advisory sync state; it is never read back as
// authoritative.
func (r *folderRepository) UpdateHints(folderID string, uidValidity, lastSeenUID uint32) error {
	return r.db.Model(&maildomain.Folder{}).Where("id = ?", folderID).
		Updates(map[string]interface{}{
			"uid_validity":  uidValidity,
			"last_seen_uid": lastSeenUID,
			"updated_at":    time.Now(),
		}).Error
}
