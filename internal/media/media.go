// Package media is the client for the storefront media API.
package media

import (
	"time"
)

// AllowedContentTypes are the upload types the media API accepts.
var AllowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// MaxFileSize is the largest upload the media API accepts (10 MB).
const MaxFileSize = 10 * 1024 * 1024

// Owner types.
const (
	OwnerTypeProduct  = "product"
	OwnerTypeUser     = "user"
	OwnerTypeCategory = "category"
)

// MediaFile is a stored media file as returned by the API.
type MediaFile struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"owner_id"`
	OwnerType    string         `json:"owner_type"`
	FileName     string         `json:"file_name"`
	OriginalName string         `json:"original_name"`
	ContentType  string         `json:"content_type"`
	Size         int64          `json:"size"`
	URL          string         `json:"url"`
	ThumbnailURL *string        `json:"thumbnail_url,omitempty"`
	AltText      string         `json:"alt_text"`
	SortOrder    int            `json:"sort_order"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// UploadInput holds the parameters for uploading a media file.
type UploadInput struct {
	OwnerID     string `validate:"required,max=64,safeid"`
	OwnerType   string `validate:"required,oneof=product user category"`
	FileName    string `validate:"required,max=255"`
	ContentType string
	AltText     string `validate:"max=255"`
	Data        []byte
}

// ListFilter narrows a media listing.
type ListFilter struct {
	OwnerID   string
	OwnerType string
}

// IsAllowedContentType checks whether the given content type is allowed.
func IsAllowedContentType(contentType string) bool {
	return AllowedContentTypes[contentType]
}
