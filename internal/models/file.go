package models

import "time"

// File is a stored object attached to exactly one folder. StorageKey is the
// backend-specific key returned by the storage layer.
type File struct {
	ID           string    `db:"id" json:"id"`
	Filename     string    `db:"filename" json:"filename"`
	StorageKey   string    `db:"storage_key" json:"-"`
	FolderID     string    `db:"folder_id" json:"folderId"`
	UploadedByID string    `db:"uploaded_by_id" json:"uploadedById"`
	UploadedAt   time.Time `db:"uploaded_at" json:"uploadedAt"`
	ContentType  *string   `db:"content_type" json:"contentType,omitempty"`
	SizeBytes    *int64    `db:"size_bytes" json:"sizeBytes,omitempty"`
}
