package library

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mattgren/viewfinder/internal/apperror"
	"github.com/mattgren/viewfinder/internal/ingest"
	"github.com/mattgren/viewfinder/internal/metrics"
)

// QuotaStore reports and adjusts a user's storage accounting. Implemented
// by the auth user repository.
type QuotaStore interface {
	StorageUsage(ctx context.Context, userID string) (used, quota int64, err error)
	AddStorageUsage(ctx context.Context, userID string, delta int64) error
}

// Processor runs the upload pipeline.
type Processor interface {
	Process(ctx context.Context, in ingest.Upload) (*ingest.Result, error)
}

// Enqueuer schedules background tagging for a newly stored image.
type Enqueuer interface {
	EnqueueAutoTag(ctx context.Context, imageID int64, filePath string) error
}

// Describer produces a short natural-language description of an image.
type Describer interface {
	DescribeImage(ctx context.Context, imageData []byte) string
}

// Service handles business logic for the image library.
type Service interface {
	Upload(ctx context.Context, userID string, in ingest.Upload) (*Image, error)
	Get(ctx context.Context, userID string, id int64) (*Image, error)
	List(ctx context.Context, userID string, filter ListFilter) ([]Image, int, error)
	Update(ctx context.Context, userID string, id int64, input UpdateInput) (*Image, error)
	Delete(ctx context.Context, userID string, id int64) error
	ArtifactPaths(ctx context.Context, userID string, id int64) (file, thumbnail string, err error)
	AddTag(ctx context.Context, userID string, imageID int64, name string) (*Tag, error)
	RemoveTag(ctx context.Context, userID string, imageID, tagID int64) error
	ListTags(ctx context.Context) ([]Tag, error)
	Describe(ctx context.Context, userID string, imageID int64) (string, error)
}

type service struct {
	images    ImageRepository
	tags      TagRepository
	quota     QuotaStore
	processor Processor
	enqueuer  Enqueuer
	describer Describer
}

// NewService creates the library service.
func NewService(images ImageRepository, tags TagRepository, quota QuotaStore,
	processor Processor, enqueuer Enqueuer, describer Describer) Service {
	return &service{
		images:    images,
		tags:      tags,
		quota:     quota,
		processor: processor,
		enqueuer:  enqueuer,
		describer: describer,
	}
}

// Upload runs the ingestion pipeline, persists the record, charges the
// user's storage accounting, and schedules background tagging. Tagging
// enqueue failures are logged, not surfaced: the image is already stored.
func (s *service) Upload(ctx context.Context, userID string, in ingest.Upload) (*Image, error) {
	used, quota, err := s.quota.StorageUsage(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("reading storage usage: %w", err))
	}
	if used+int64(len(in.Data)) > quota {
		metrics.RecordUpload("invalid")
		return nil, apperror.NewBadRequest("storage quota exceeded")
	}

	result, err := s.processor.Process(ctx, in)
	if err != nil {
		metrics.RecordUpload("invalid")
		return nil, err
	}

	img := &Image{
		UserID:        userID,
		Filename:      result.Filename,
		FilePath:      result.FilePath,
		ThumbnailPath: result.ThumbnailPath,
		FileSize:      result.FileSize,
		Width:         result.Width,
		Height:        result.Height,
		CaptureDate:   result.CaptureDate,
		Location:      result.Location,
		Category:      CategoryDefault,
		CreatedAt:     time.Now(),
		Tags:          []string{},
	}
	if err := s.images.Create(ctx, img); err != nil {
		// Roll back the stored artifacts so rejected uploads leave no orphans.
		os.Remove(result.FilePath)
		if result.ThumbnailPath != "" {
			os.Remove(result.ThumbnailPath)
		}
		metrics.RecordUpload("failed")
		return nil, apperror.NewInternal(err)
	}

	if err := s.quota.AddStorageUsage(ctx, userID, img.FileSize); err != nil {
		slog.Warn("updating storage usage after upload",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	if err := s.enqueuer.EnqueueAutoTag(ctx, img.ID, img.FilePath); err != nil {
		slog.Warn("enqueueing auto-tagging",
			slog.Int64("image_id", img.ID),
			slog.Any("error", err),
		)
	}

	metrics.RecordUpload("ok")
	slog.Info("image uploaded",
		slog.Int64("image_id", img.ID),
		slog.String("user_id", userID),
		slog.Int64("size", img.FileSize),
	)
	return img, nil
}

// Get returns one image with its tags and counts the read as a view. The
// returned record reflects the incremented counter.
func (s *service) Get(ctx context.Context, userID string, id int64) (*Image, error) {
	img, err := s.images.FindByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if err := s.images.IncrementViewCount(ctx, id); err != nil {
		slog.Warn("incrementing view count", slog.Int64("image_id", id), slog.Any("error", err))
	} else {
		img.ViewCount++
	}

	if err := s.loadTags(ctx, img); err != nil {
		return nil, err
	}
	return img, nil
}

// List returns a filtered page of the user's images with tags attached.
func (s *service) List(ctx context.Context, userID string, filter ListFilter) ([]Image, int, error) {
	images, total, err := s.images.List(ctx, userID, filter)
	if err != nil {
		return nil, 0, apperror.NewInternal(err)
	}
	if len(images) == 0 {
		return images, total, nil
	}

	ids := make([]int64, len(images))
	for i := range images {
		ids[i] = images[i].ID
	}
	byImage, err := s.tags.TagsForImages(ctx, ids)
	if err != nil {
		return nil, 0, apperror.NewInternal(err)
	}
	for i := range images {
		images[i].Tags = byImage[images[i].ID]
		if images[i].Tags == nil {
			images[i].Tags = []string{}
		}
	}
	return images, total, nil
}

// Update changes an image's display filename and/or category.
func (s *service) Update(ctx context.Context, userID string, id int64, input UpdateInput) (*Image, error) {
	if input.Filename != nil && *input.Filename == "" {
		return nil, apperror.NewValidation("filename must not be empty")
	}
	if input.Category != nil && *input.Category == "" {
		return nil, apperror.NewValidation("category must not be empty")
	}

	if err := s.images.Update(ctx, userID, id, input); err != nil {
		return nil, err
	}

	img, err := s.images.FindByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.loadTags(ctx, img); err != nil {
		return nil, err
	}
	return img, nil
}

// Delete removes the record, refunds the storage accounting, and deletes
// the files on disk. Missing files are ignored: the record is the source
// of truth and the row is already gone.
func (s *service) Delete(ctx context.Context, userID string, id int64) error {
	img, err := s.images.FindByID(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.images.Delete(ctx, userID, id); err != nil {
		return err
	}

	if err := s.quota.AddStorageUsage(ctx, userID, -img.FileSize); err != nil {
		slog.Warn("updating storage usage after delete",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	os.Remove(img.FilePath)
	if img.ThumbnailPath != "" {
		os.Remove(img.ThumbnailPath)
	}

	slog.Info("image deleted", slog.Int64("image_id", id), slog.String("user_id", userID))
	return nil
}

// ArtifactPaths returns the on-disk paths for serving. An image without a
// thumbnail yields an empty thumbnail path.
func (s *service) ArtifactPaths(ctx context.Context, userID string, id int64) (string, string, error) {
	img, err := s.images.FindByID(ctx, userID, id)
	if err != nil {
		return "", "", err
	}
	return img.FilePath, img.ThumbnailPath, nil
}

// AddTag links a tag (created on first use) to an image the user owns.
func (s *service) AddTag(ctx context.Context, userID string, imageID int64, name string) (*Tag, error) {
	canonical := CanonicalTag(name)
	if canonical == "" {
		return nil, ErrEmptyTagName
	}

	// Ownership check before touching the join table.
	if _, err := s.images.FindByID(ctx, userID, imageID); err != nil {
		return nil, err
	}

	tag, err := s.tags.GetOrCreate(ctx, canonical)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	if err := s.tags.Link(ctx, imageID, tag.ID); err != nil {
		return nil, apperror.NewInternal(err)
	}
	return tag, nil
}

// RemoveTag unlinks a tag from an image the user owns.
func (s *service) RemoveTag(ctx context.Context, userID string, imageID, tagID int64) error {
	if _, err := s.images.FindByID(ctx, userID, imageID); err != nil {
		return err
	}
	return s.tags.Unlink(ctx, imageID, tagID)
}

// ListTags returns the global tag vocabulary.
func (s *service) ListTags(ctx context.Context) ([]Tag, error) {
	tags, err := s.tags.ListAll(ctx)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	return tags, nil
}

// Describe generates an on-demand description of an image the user owns.
// Oracle failures surface as the describer's fallback text, never an error.
func (s *service) Describe(ctx context.Context, userID string, imageID int64) (string, error) {
	img, err := s.images.FindByID(ctx, userID, imageID)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(img.FilePath)
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("reading image file: %w", err))
	}
	return s.describer.DescribeImage(ctx, data), nil
}

func (s *service) loadTags(ctx context.Context, img *Image) error {
	tags, err := s.tags.TagsFor(ctx, img.ID)
	if err != nil {
		return apperror.NewInternal(err)
	}
	img.Tags = make([]string, len(tags))
	for i, t := range tags {
		img.Tags[i] = t.Name
	}
	return nil
}
