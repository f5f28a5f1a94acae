package models

import "time"

// ShareItemType marks which resource kind a share record refers to.
type ShareItemType string

const (
	ShareItemFolder ShareItemType = "folder"
	ShareItemFile   ShareItemType = "file"
)

// ShareRecord is the audit and idempotency record of one share. At most one
// record exists per (item type, item id, shared with) triple; re-sharing
// updates permissions but never duplicates the record.
type ShareRecord struct {
	ID         string        `db:"id" json:"id"`
	ItemType   ShareItemType `db:"item_type" json:"itemType"`
	ItemID     string        `db:"item_id" json:"itemId"`
	SharedBy   string        `db:"shared_by" json:"sharedBy"`
	SharedWith string        `db:"shared_with" json:"sharedWith"`
	ShareType  string        `db:"share_type" json:"shareType"`
	SharedAt   time.Time     `db:"shared_at" json:"sharedAt"`
}

// ShareResult summarises a bulk share call: which targets received access
// and which emails could not be resolved.
type ShareResult struct {
	Shared  []string `json:"shared"`
	Skipped []string `json:"skipped"`
}
