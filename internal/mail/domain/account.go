package domain

import "time"

// Account is one remote mailbox identity. Credentials are not persisted
// here; they are handed to StartSync by the caller and only live for the
// duration of the session.
type Account struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	Host      string    `json:"host" gorm:"not null"`
	Port      int       `json:"port" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
