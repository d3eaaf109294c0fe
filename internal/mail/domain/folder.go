package domain

import "time"

// FolderRole tags well-known folders so sync can prioritize them.
type FolderRole string

const (
	RoleInbox   FolderRole = "inbox"
	RoleTrash   FolderRole = "trash"
	RoleJunk    FolderRole = "junk"
	RoleRegular FolderRole = ""
)

// Folder mirrors one remote mailbox folder. (AccountID, FullName) is
// unique. UIDValidity and LastSeenUID are advisory hints, never
// authoritative: backfill always recomputes targets from the server.
type Folder struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	AccountID   string     `json:"account_id" gorm:"index:idx_account_fullname,unique;not null"`
	FullName    string     `json:"full_name" gorm:"index:idx_account_fullname,unique;not null"`
	Role        FolderRole `json:"role"`
	UIDValidity uint32     `json:"uid_validity"`
	LastSeenUID uint32     `json:"last_seen_uid"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// SyncPriority orders folders for a backfill cycle: inbox first,
// trash/junk last, everything else in between in stable name order.
func (f *Folder) SyncPriority() int {
	switch f.Role {
	case RoleInbox:
		return 0
	case RoleTrash, RoleJunk:
		return 2
	default:
		return 1
	}
}
