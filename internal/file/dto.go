// AngelaMos | 2026
// dto.go

package file

import (
	"time"
)

type RequestUploadRequest struct {
	Name           string  `json:"name"            validate:"required,min=1,max=255"`
	ContentType    string  `json:"content_type"    validate:"required,max=255"`
	SizeBytes      int64   `json:"size_bytes"      validate:"required,min=1"`
	OrganizationID *string `json:"organization_id" validate:"omitempty,uuid4"`
}

type FileResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Status      string    `json:"status"`
	PublicURL   string    `json:"public_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type UploadGrantResponse struct {
	File      FileResponse `json:"file"`
	UploadURL string       `json:"upload_url"`
}

type DownloadResponse struct {
	URL string `json:"url"`
}
