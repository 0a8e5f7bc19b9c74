// Package library manages the image catalog: persisted image records, the
// global tag vocabulary, the image-tag join table, filtered listing, and
// serving of stored files.
package library

import (
	"strconv"
	"strings"
	"time"
)

// CategoryDefault is assigned to images uploaded without a category.
const CategoryDefault = "other"

// Image is a stored photo and everything the ingestion pipeline learned
// about it. ThumbnailPath and Location are empty when absent.
type Image struct {
	ID            int64
	UserID        string
	Filename      string
	FilePath      string
	ThumbnailPath string
	FileSize      int64
	Width         int
	Height        int
	CaptureDate   time.Time
	Location      string
	Category      string
	ViewCount     int
	CreatedAt     time.Time

	// Tags holds the canonical tag names linked to this image. Loaded
	// separately from the row; nil means "not loaded", empty means none.
	Tags []string
}

// Tag is one entry in the global tag vocabulary.
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Projection is the lightweight per-image view used to build relevance
// candidates for search.
type Projection struct {
	ID       int64
	Filename string
	Category string
	Location string
}

// ListFilter narrows and pages an image listing. Zero values mean
// "no filter"; Page is 1-based.
type ListFilter struct {
	Tag      string
	Category string
	Query    string
	Page     int
	PageSize int
}

// UpdateInput carries the mutable image fields. Nil means "leave unchanged".
type UpdateInput struct {
	Filename *string
	Category *string
}

// ImageResponse is the JSON shape returned by the API.
type ImageResponse struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	FileSize     int64     `json:"file_size"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	CaptureDate  time.Time `json:"capture_date"`
	Location     string    `json:"location,omitempty"`
	Category     string    `json:"category"`
	ViewCount    int       `json:"view_count"`
	Tags         []string  `json:"tags"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListResponse wraps a page of images with pagination metadata.
type ListResponse struct {
	Images   []ImageResponse `json:"images"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// ToResponse converts an Image to its API shape. Tags is never null in the
// response.
func (img *Image) ToResponse() ImageResponse {
	tags := img.Tags
	if tags == nil {
		tags = []string{}
	}

	resp := ImageResponse{
		ID:          img.ID,
		Filename:    img.Filename,
		URL:         imageURL(img.ID, "file"),
		FileSize:    img.FileSize,
		Width:       img.Width,
		Height:      img.Height,
		CaptureDate: img.CaptureDate,
		Location:    img.Location,
		Category:    img.Category,
		ViewCount:   img.ViewCount,
		Tags:        tags,
		CreatedAt:   img.CreatedAt,
	}
	if img.ThumbnailPath != "" {
		resp.ThumbnailURL = imageURL(img.ID, "thumbnail")
	}
	return resp
}

func imageURL(id int64, artifact string) string {
	return "/api/v1/images/" + strconv.FormatInt(id, 10) + "/" + artifact
}

// CanonicalTag normalizes a tag name: trimmed and case-folded. The tag
// vocabulary stores only canonical names.
func CanonicalTag(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
