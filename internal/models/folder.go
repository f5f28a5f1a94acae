package models

import "time"

// Folder is a node in the resource tree. A nil ParentFolderID marks a root.
// Folders are never reparented after creation, which keeps the parent chain
// acyclic by construction.
type Folder struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	ParentFolderID *string   `db:"parent_folder_id" json:"parentFolderId,omitempty"`
	OwnerID        string    `db:"owner_id" json:"ownerId"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// IsRoot reports whether the folder has no parent.
func (f *Folder) IsRoot() bool {
	return f != nil && f.ParentFolderID == nil
}

// FolderTree is a materialized folder with its nested contents, used by
// listing endpoints.
type FolderTree struct {
	Folder
	Files      []File       `json:"files"`
	Subfolders []FolderTree `json:"subfolders"`
}
