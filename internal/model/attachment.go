package model

// Attachment is the server-returned descriptor for an uploaded file.
type Attachment struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

type UploadStatus string

const (
	UploadStatusUploading UploadStatus = "uploading"
	UploadStatusReady     UploadStatus = "ready"
	UploadStatusError     UploadStatus = "error"
)

// PendingAttachment is client-local upload state for one selected file.
// It never crosses the wire; only the Descriptor of a ready upload does.
type PendingAttachment struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Size       int64        `json:"size"`
	MimeType   string       `json:"mime_type"`
	PreviewURL string       `json:"preview_url,omitempty"`
	Status     UploadStatus `json:"status"`
	Descriptor *Attachment  `json:"descriptor,omitempty"`
	Err        string       `json:"error,omitempty"`
}
