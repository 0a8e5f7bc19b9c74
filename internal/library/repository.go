package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattgren/viewfinder/internal/apperror"
)

// ImageRepository defines the data access contract for image records. All
// lookups except FindAnyByID are owner-scoped: an image belonging to another
// user is indistinguishable from a missing one.
type ImageRepository interface {
	Create(ctx context.Context, img *Image) error
	FindByID(ctx context.Context, userID string, id int64) (*Image, error)
	FindByIDs(ctx context.Context, userID string, ids []int64) (map[int64]*Image, error)
	List(ctx context.Context, userID string, filter ListFilter) ([]Image, int, error)
	ListProjections(ctx context.Context, userID string) ([]Projection, error)
	Update(ctx context.Context, userID string, id int64, input UpdateInput) error
	Delete(ctx context.Context, userID string, id int64) error
	IncrementViewCount(ctx context.Context, id int64) error
}

// imageRepository implements ImageRepository with MariaDB queries.
type imageRepository struct {
	db *sql.DB
}

// NewImageRepository creates a new image repository.
func NewImageRepository(db *sql.DB) ImageRepository {
	return &imageRepository{db: db}
}

const imageColumns = `id, user_id, filename, file_path, thumbnail_path, file_size,
	width, height, capture_date, location, category, view_count, created_at`

// Create inserts a new image record and fills in the generated ID.
func (r *imageRepository) Create(ctx context.Context, img *Image) error {
	query := `INSERT INTO images (user_id, filename, file_path, thumbnail_path, file_size,
	          width, height, capture_date, location, category, view_count, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		img.UserID, img.Filename, img.FilePath, nullString(img.ThumbnailPath),
		img.FileSize, img.Width, img.Height, img.CaptureDate,
		nullString(img.Location), img.Category, img.ViewCount, img.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting image: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted image id: %w", err)
	}
	img.ID = id
	return nil
}

// FindByID retrieves one image owned by the given user.
func (r *imageRepository) FindByID(ctx context.Context, userID string, id int64) (*Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = ? AND user_id = ?`

	img, err := scanImage(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("image not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying image by id: %w", err)
	}
	return img, nil
}

// FindByIDs retrieves the subset of the given IDs that exist and belong to
// the user, keyed by ID. Missing IDs are simply absent from the map.
func (r *imageRepository) FindByIDs(ctx context.Context, userID string, ids []int64) (map[int64]*Image, error) {
	if len(ids) == 0 {
		return map[int64]*Image{}, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	query := `SELECT ` + imageColumns + ` FROM images
	          WHERE user_id = ? AND id IN (` + placeholders + `)`

	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying images by ids: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]*Image, len(ids))
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning image row: %w", err)
		}
		found[img.ID] = img
	}
	return found, rows.Err()
}

// List returns a page of the user's images, newest first, plus the total
// count matching the filter.
func (r *imageRepository) List(ctx context.Context, userID string, filter ListFilter) ([]Image, int, error) {
	where := []string{"i.user_id = ?"}
	args := []any{userID}

	if filter.Category != "" {
		where = append(where, "i.category = ?")
		args = append(args, filter.Category)
	}
	if filter.Query != "" {
		where = append(where, "i.filename LIKE ?")
		args = append(args, "%"+filter.Query+"%")
	}
	if filter.Tag != "" {
		where = append(where, `i.id IN (
			SELECT it.image_id FROM image_tags it
			JOIN tags t ON t.id = it.tag_id
			WHERE t.name = ?)`)
		args = append(args, CanonicalTag(filter.Tag))
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM images i WHERE ` + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting images: %w", err)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	query := `SELECT ` + imageColumns + ` FROM images i
	          WHERE ` + whereClause + `
	          ORDER BY i.created_at DESC, i.id DESC
	          LIMIT ? OFFSET ?`
	args = append(args, pageSize, (page-1)*pageSize)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing images: %w", err)
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning image row: %w", err)
		}
		images = append(images, *img)
	}
	return images, total, rows.Err()
}

// ListProjections returns the lightweight search projection for every image
// the user owns.
func (r *imageRepository) ListProjections(ctx context.Context, userID string) ([]Projection, error) {
	query := `SELECT id, filename, location, category FROM images
	          WHERE user_id = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing image projections: %w", err)
	}
	defer rows.Close()

	var projections []Projection
	for rows.Next() {
		var p Projection
		var location sql.NullString
		if err := rows.Scan(&p.ID, &p.Filename, &location, &p.Category); err != nil {
			return nil, fmt.Errorf("scanning projection row: %w", err)
		}
		p.Location = location.String
		projections = append(projections, p)
	}
	return projections, rows.Err()
}

// Update changes the mutable fields of an image owned by the user.
func (r *imageRepository) Update(ctx context.Context, userID string, id int64, input UpdateInput) error {
	var sets []string
	var args []any
	if input.Filename != nil {
		sets = append(sets, "filename = ?")
		args = append(args, *input.Filename)
	}
	if input.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, *input.Category)
	}
	if len(sets) == 0 {
		return nil
	}

	query := `UPDATE images SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND user_id = ?`
	args = append(args, id, userID)

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating image: %w", err)
	}
	return requireRowAffected(result, "image not found")
}

// Delete removes an image row; image_tags links go with it via cascade.
func (r *imageRepository) Delete(ctx context.Context, userID string, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM images WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	return requireRowAffected(result, "image not found")
}

// IncrementViewCount bumps an image's view counter.
func (r *imageRepository) IncrementViewCount(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE images SET view_count = view_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("incrementing view count: %w", err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*Image, error) {
	img := &Image{}
	var thumbnail, location sql.NullString
	var width, height sql.NullInt64

	err := row.Scan(
		&img.ID, &img.UserID, &img.Filename, &img.FilePath, &thumbnail,
		&img.FileSize, &width, &height, &img.CaptureDate,
		&location, &img.Category, &img.ViewCount, &img.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	img.ThumbnailPath = thumbnail.String
	img.Location = location.String
	img.Width = int(width.Int64)
	img.Height = int(height.Int64)
	return img, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRowAffected(result sql.Result, notFoundMsg string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return apperror.NewNotFound(notFoundMsg)
	}
	return nil
}
