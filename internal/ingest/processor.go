// Package ingest implements the upload processing pipeline: validation,
// storage on disk, decoding, EXIF metadata extraction, reverse geocoding,
// and thumbnail generation.
//
// The pipeline distinguishes fatal steps (MIME rejection, disk write,
// decode) from enrichment steps (metadata, geocoding, thumbnail), which
// degrade silently so a valid image is never rejected for missing extras.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	// Register decoders for image formats.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/mattgren/viewfinder/internal/apperror"
	"github.com/mattgren/viewfinder/internal/config"
	"github.com/mattgren/viewfinder/internal/metadata"
)

// Geocoder resolves GPS coordinates to a place name.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (string, bool)
}

// Upload is the raw input to the pipeline.
type Upload struct {
	Data         []byte
	OriginalName string
	ContentType  string
}

// Result is the processed outcome: the stored file plus everything the
// pipeline could learn about it. ThumbnailPath and Location are empty when
// the corresponding enrichment step failed or did not apply.
type Result struct {
	Filename      string
	FilePath      string
	ThumbnailPath string
	FileSize      int64
	Width         int
	Height        int
	CaptureDate   time.Time
	Location      string
}

// Processor runs the upload pipeline.
type Processor struct {
	geocoder    Geocoder
	uploadPath  string
	thumbPath   string
	thumbMaxDim int
}

// NewProcessor creates a processor storing originals and thumbnails under
// the configured directories.
func NewProcessor(geocoder Geocoder, cfg config.UploadConfig) *Processor {
	return &Processor{
		geocoder:    geocoder,
		uploadPath:  cfg.UploadPath,
		thumbPath:   cfg.ThumbnailPath,
		thumbMaxDim: cfg.ThumbnailMaxDim,
	}
}

// Process validates and stores one upload. The original bytes are written
// to disk before decoding; if decoding then fails, the stored file is
// removed so rejected uploads leave no orphans.
func (p *Processor) Process(ctx context.Context, in Upload) (*Result, error) {
	if !strings.HasPrefix(in.ContentType, "image/") {
		return nil, apperror.NewBadRequest("only image uploads are accepted")
	}

	id := uuid.NewString()
	filename := id + strings.ToLower(filepath.Ext(in.OriginalName))

	if err := os.MkdirAll(p.uploadPath, 0755); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating upload directory: %w", err))
	}

	fullPath := filepath.Join(p.uploadPath, filename)
	if err := os.WriteFile(fullPath, in.Data, 0644); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("writing upload: %w", err))
	}

	src, _, err := image.Decode(bytes.NewReader(in.Data))
	if err != nil {
		os.Remove(fullPath)
		return nil, apperror.NewUnprocessable("file is not a decodable image")
	}

	info := metadata.Extract(in.Data)

	// Dimensions are reported after orientation correction, so portrait
	// shots taken with a rotated camera come out portrait.
	src = applyOrientation(src, info.Orientation)
	bounds := src.Bounds()

	result := &Result{
		Filename:    filename,
		FilePath:    fullPath,
		FileSize:    int64(len(in.Data)),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		CaptureDate: time.Now(),
	}
	if info.CaptureTime != nil {
		result.CaptureDate = *info.CaptureTime
	}

	if info.HasGPS() && p.geocoder != nil {
		if place, ok := p.geocoder.ReverseGeocode(ctx, *info.Latitude, *info.Longitude); ok {
			result.Location = place
		}
	}

	thumbPath, err := p.writeThumbnail(src, id)
	if err != nil {
		slog.Warn("thumbnail generation failed",
			slog.String("filename", filename),
			slog.Any("error", err),
		)
	} else {
		result.ThumbnailPath = thumbPath
	}

	return result, nil
}

// writeThumbnail stores a JPEG thumbnail fitting the configured bounding
// box, preserving aspect ratio. Images already within the box are
// re-encoded at their original size.
func (p *Processor) writeThumbnail(src image.Image, id string) (string, error) {
	if err := os.MkdirAll(p.thumbPath, 0755); err != nil {
		return "", fmt.Errorf("creating thumbnail directory: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	newW, newH := w, h
	if w > p.thumbMaxDim || h > p.thumbMaxDim {
		if w > h {
			newW = p.thumbMaxDim
			newH = h * p.thumbMaxDim / w
		} else {
			newH = p.thumbMaxDim
			newW = w * p.thumbMaxDim / h
		}
	}
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	thumbPath := filepath.Join(p.thumbPath, id+".jpg")
	f, err := os.Create(thumbPath)
	if err != nil {
		return "", fmt.Errorf("creating thumbnail file: %w", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, dst, &jpeg.Options{Quality: 85}); err != nil {
		os.Remove(thumbPath)
		return "", fmt.Errorf("encoding thumbnail: %w", err)
	}

	return thumbPath, nil
}
