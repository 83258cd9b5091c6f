// AngelaMos | 2026
// entity.go

package file

import (
	"path"
	"regexp"
	"strings"
	"time"
)

type File struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	OrganizationID *string   `db:"organization_id"`
	Key            string    `db:"object_key"`
	Name           string    `db:"name"`
	ContentType    string    `db:"content_type"`
	SizeBytes      int64     `db:"size_bytes"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

const (
	StatusPending  = "pending"
	StatusUploaded = "uploaded"
)

// allowedContentTypes is the upload whitelist. Everything else is
// rejected before a presigned URL is handed out.
var allowedContentTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"image/webp":         true,
	"image/svg+xml":      true,
	"application/pdf":    true,
	"text/plain":         true,
	"text/csv":           true,
	"application/json":   true,
	"application/zip":    true,
	"video/mp4":          true,
	"audio/mpeg":         true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":       true,
}

func ContentTypeAllowed(contentType string) bool {
	return allowedContentTypes[strings.ToLower(contentType)]
}

var nameCleaner = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeName strips path segments and shell-hostile characters from a
// client-supplied filename.
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = nameCleaner.ReplaceAllString(name, "_")
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}
