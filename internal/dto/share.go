package dto

// ShareRequest is the payload for sharing a folder or file with a set of
// users. Capabilities lists the flag names to grant (edit, delete, create,
// share); view is always granted. Flags absent from the list are revoked on
// re-share.
type ShareRequest struct {
	Emails       []string `json:"emails" validate:"required,min=1,dive,email"`
	Capabilities []string `json:"capabilities" validate:"dive,oneof=edit delete create share"`
}
