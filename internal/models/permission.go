package models

// Capability names one boolean permission flag on a (user, resource) pair.
type Capability string

const (
	CapabilityView   Capability = "view"
	CapabilityEdit   Capability = "edit"
	CapabilityDelete Capability = "delete"
	CapabilityCreate Capability = "create"
	CapabilityShare  Capability = "share"
)

// CapabilitySet carries the capabilities requested by a share call. View is
// always granted on share and is not part of the set.
type CapabilitySet struct {
	Edit   bool
	Delete bool
	Create bool
	Share  bool
}

// FolderPermission holds the capability flags one user has on one folder.
// At most one row exists per (user, folder) pair; writes are upserts.
type FolderPermission struct {
	ID        string `db:"id" json:"id"`
	UserID    string `db:"user_id" json:"userId"`
	FolderID  string `db:"folder_id" json:"folderId"`
	CanView   bool   `db:"can_view" json:"canView"`
	CanEdit   bool   `db:"can_edit" json:"canEdit"`
	CanDelete bool   `db:"can_delete" json:"canDelete"`
	CanCreate bool   `db:"can_create" json:"canCreate"`
	CanShare  bool   `db:"can_share" json:"canShare"`
}

// Allows returns the value of the named capability flag.
func (p *FolderPermission) Allows(c Capability) bool {
	if p == nil {
		return false
	}
	switch c {
	case CapabilityView:
		return p.CanView
	case CapabilityEdit:
		return p.CanEdit
	case CapabilityDelete:
		return p.CanDelete
	case CapabilityCreate:
		return p.CanCreate
	case CapabilityShare:
		return p.CanShare
	default:
		return false
	}
}

// FilePermission holds the capability flags one user has on one file. Files
// are leaves, so there is no create flag.
type FilePermission struct {
	ID        string `db:"id" json:"id"`
	UserID    string `db:"user_id" json:"userId"`
	FileID    string `db:"file_id" json:"fileId"`
	CanView   bool   `db:"can_view" json:"canView"`
	CanEdit   bool   `db:"can_edit" json:"canEdit"`
	CanDelete bool   `db:"can_delete" json:"canDelete"`
	CanShare  bool   `db:"can_share" json:"canShare"`
}

// Allows returns the value of the named capability flag. Create never
// applies to files.
func (p *FilePermission) Allows(c Capability) bool {
	if p == nil {
		return false
	}
	switch c {
	case CapabilityView:
		return p.CanView
	case CapabilityEdit:
		return p.CanEdit
	case CapabilityDelete:
		return p.CanDelete
	case CapabilityShare:
		return p.CanShare
	default:
		return false
	}
}
