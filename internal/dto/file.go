package dto

// UploadFileForm carries the multipart fields accompanying an upload. An
// empty folder id targets the uploader's default root container.
type UploadFileForm struct {
	FolderID string `form:"folderId" validate:"omitempty,uuid4"`
}

// FileURLResponse returns a retrieval link for a stored file.
type FileURLResponse struct {
	FileID string `json:"fileId"`
	URL    string `json:"url"`
}
