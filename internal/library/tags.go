package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/mattgren/viewfinder/internal/apperror"
)

// mysqlDupEntry is ER_DUP_ENTRY, raised when an insert hits a unique key.
const mysqlDupEntry = 1062

// TagRepository manages the global tag vocabulary and the image-tag join
// table. Names passed in are expected to be canonical (see CanonicalTag).
type TagRepository interface {
	GetOrCreate(ctx context.Context, name string) (*Tag, error)
	Link(ctx context.Context, imageID, tagID int64) error
	Unlink(ctx context.Context, imageID, tagID int64) error
	TagsFor(ctx context.Context, imageID int64) ([]Tag, error)
	TagsForImages(ctx context.Context, imageIDs []int64) (map[int64][]string, error)
	ListAll(ctx context.Context) ([]Tag, error)
}

type tagRepository struct {
	db *sql.DB
}

// NewTagRepository creates a new tag repository.
func NewTagRepository(db *sql.DB) TagRepository {
	return &tagRepository{db: db}
}

// GetOrCreate returns the tag with the given name, creating it if absent.
// When two callers race on the same new name, the loser's insert fails with
// a duplicate-entry error and the tag is re-fetched instead.
func (r *tagRepository) GetOrCreate(ctx context.Context, name string) (*Tag, error) {
	tag, err := r.findByName(ctx, name)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying tag by name: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO tags (name, created_at) VALUES (?, ?)`, name, time.Now())
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDupEntry {
			// Lost the race; the row exists now.
			tag, err := r.findByName(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("re-fetching tag after duplicate insert: %w", err)
			}
			return tag, nil
		}
		return nil, fmt.Errorf("inserting tag: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading inserted tag id: %w", err)
	}
	return &Tag{ID: id, Name: name}, nil
}

func (r *tagRepository) findByName(ctx context.Context, name string) (*Tag, error) {
	tag := &Tag{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM tags WHERE name = ?`, name).
		Scan(&tag.ID, &tag.Name, &tag.CreatedAt)
	if err != nil {
		return nil, err
	}
	return tag, nil
}

// Link attaches a tag to an image. Linking an already-linked pair is a
// no-op, which makes tagging handlers safe to re-run.
func (r *tagRepository) Link(ctx context.Context, imageID, tagID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO image_tags (image_id, tag_id) VALUES (?, ?)`, imageID, tagID)
	if err != nil {
		return fmt.Errorf("linking tag %d to image %d: %w", tagID, imageID, err)
	}
	return nil
}

// Unlink detaches a tag from an image.
func (r *tagRepository) Unlink(ctx context.Context, imageID, tagID int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM image_tags WHERE image_id = ? AND tag_id = ?`, imageID, tagID)
	if err != nil {
		return fmt.Errorf("unlinking tag %d from image %d: %w", tagID, imageID, err)
	}
	return requireRowAffected(result, "tag is not linked to this image")
}

// TagsFor returns the tags linked to one image, alphabetically.
func (r *tagRepository) TagsFor(ctx context.Context, imageID int64) ([]Tag, error) {
	query := `SELECT t.id, t.name, t.created_at FROM tags t
	          JOIN image_tags it ON it.tag_id = t.id
	          WHERE it.image_id = ?
	          ORDER BY t.name`

	rows, err := r.db.QueryContext(ctx, query, imageID)
	if err != nil {
		return nil, fmt.Errorf("querying tags for image: %w", err)
	}
	defer rows.Close()

	return collectTags(rows)
}

// TagsForImages returns the tag names for each of the given images in one
// query. Images without tags are absent from the map.
func (r *tagRepository) TagsForImages(ctx context.Context, imageIDs []int64) (map[int64][]string, error) {
	if len(imageIDs) == 0 {
		return map[int64][]string{}, nil
	}

	placeholders := strings.Repeat("?,", len(imageIDs))
	placeholders = placeholders[:len(placeholders)-1]
	query := `SELECT it.image_id, t.name FROM image_tags it
	          JOIN tags t ON t.id = it.tag_id
	          WHERE it.image_id IN (` + placeholders + `)
	          ORDER BY t.name`

	args := make([]any, len(imageIDs))
	for i, id := range imageIDs {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tags for images: %w", err)
	}
	defer rows.Close()

	byImage := make(map[int64][]string)
	for rows.Next() {
		var imageID int64
		var name string
		if err := rows.Scan(&imageID, &name); err != nil {
			return nil, fmt.Errorf("scanning image tag row: %w", err)
		}
		byImage[imageID] = append(byImage[imageID], name)
	}
	return byImage, rows.Err()
}

// ListAll returns the whole tag vocabulary, alphabetically.
func (r *tagRepository) ListAll(ctx context.Context) ([]Tag, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, created_at FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	return collectTags(rows)
}

func collectTags(rows *sql.Rows) ([]Tag, error) {
	var tags []Tag
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning tag row: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// ErrEmptyTagName is returned when a tag name canonicalizes to nothing.
var ErrEmptyTagName = apperror.NewValidation("tag name must not be empty")
