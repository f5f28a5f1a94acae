package dto

// CreateFolderRequest is the payload for creating a folder. A nil parent
// creates a root folder.
type CreateFolderRequest struct {
	Name           string  `json:"name" validate:"required,max=100"`
	ParentFolderID *string `json:"parentFolderId,omitempty" validate:"omitempty,uuid4"`
}
