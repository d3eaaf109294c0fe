package repository

import (
	"errors"
	"time"

	maildomain "mailvault-backend/internal/mail/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// accountRepository implements AccountRepository interface
type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) Upsert(account *maildomain.Account) error {
	existing, err := r.FindByEmail(account.Email)
	if err != nil {
		return err
	}
	now := time.Now()
	if existing == nil {
		account.ID = uuid.New().String()
		account.CreatedAt = now
		account.UpdatedAt = now
		return r.db.Create(account).Error
	}
	existing.Host = account.Host
	existing.Port = account.Port
	existing.UpdatedAt = now
	*account = *existing
	return r.db.Save(existing).Error
}

func (r *accountRepository) FindByEmail(email string) (*maildomain.Account, error) {
	var account maildomain.Account
	err := r.db.Where("email = ?", email).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}
