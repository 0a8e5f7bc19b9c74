package library

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/mattgren/viewfinder/internal/apperror"
	"github.com/mattgren/viewfinder/internal/auth"
	"github.com/mattgren/viewfinder/internal/ingest"
)

// Handler handles HTTP requests for library operations.
type Handler struct {
	service Service
}

// NewHandler creates a new library handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// Upload handles multipart image uploads (POST /api/v1/images).
func (h *Handler) Upload(c echo.Context) error {
	userID := auth.GetUserID(c)

	file, err := c.FormFile("file")
	if err != nil {
		return apperror.NewBadRequest("no file provided")
	}

	src, err := file.Open()
	if err != nil {
		return apperror.NewInternal(err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return apperror.NewInternal(err)
	}

	img, err := h.service.Upload(c.Request().Context(), userID, ingest.Upload{
		Data:         data,
		OriginalName: file.Filename,
		ContentType:  file.Header.Get("Content-Type"),
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, img.ToResponse())
}

// List returns a filtered, paginated listing (GET /api/v1/images).
func (h *Handler) List(c echo.Context) error {
	userID := auth.GetUserID(c)

	filter := ListFilter{
		Tag:      c.QueryParam("tag"),
		Category: c.QueryParam("category"),
		Query:    c.QueryParam("q"),
	}
	filter.Page, _ = strconv.Atoi(c.QueryParam("page"))
	filter.PageSize, _ = strconv.Atoi(c.QueryParam("page_size"))
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	images, total, err := h.service.List(c.Request().Context(), userID, filter)
	if err != nil {
		return err
	}

	responses := make([]ImageResponse, len(images))
	for i := range images {
		responses[i] = images[i].ToResponse()
	}

	return c.JSON(http.StatusOK, ListResponse{
		Images:   responses,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	})
}

// Get returns one image with tags (GET /api/v1/images/:id).
func (h *Handler) Get(c echo.Context) error {
	userID := auth.GetUserID(c)
	id, err := imageID(c)
	if err != nil {
		return err
	}

	img, err := h.service.Get(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, img.ToResponse())
}

// updateRequest is the PATCH body; absent fields stay unchanged.
type updateRequest struct {
	Filename *string `json:"filename"`
	Category *string `json:"category"`
}

// Update changes display filename and/or category (PATCH /api/v1/images/:id).
func (h *Handler) Update(c echo.Context) error {
	userID := auth.GetUserID(c)
	id, err := imageID(c)
	if err != nil {
		return err
	}

	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	img, err := h.service.Update(c.Request().Context(), userID, id, UpdateInput{
		Filename: req.Filename,
		Category: req.Category,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, img.ToResponse())
}

// Delete removes an image and its files (DELETE /api/v1/images/:id).
func (h *Handler) Delete(c echo.Context) error {
	userID := auth.GetUserID(c)
	id, err := imageID(c)
	if err != nil {
		return err
	}

	if err := h.service.Delete(c.Request().Context(), userID, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ServeFile serves the original image (GET /api/v1/images/:id/file).
// Stored filenames are unique per upload, so the content is immutable.
func (h *Handler) ServeFile(c echo.Context) error {
	userID := auth.GetUserID(c)
	id, err := imageID(c)
	if err != nil {
		return err
	}

	filePath, _, err := h.service.ArtifactPaths(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.File(filePath)
}

// ServeThumbnail serves the thumbnail (GET /api/v1/images/:id/thumbnail).
func (h *Handler) ServeThumbnail(c echo.Context) error {
	userID := auth.GetUserID(c)
	id, err := imageID(c)
	if err != nil {
		return err
	}

	_, thumbPath, err := h.service.ArtifactPaths(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}
	if thumbPath == "" {
		return apperror.NewNotFound("image has no thumbnail")
	}

	c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	return c.File(thumbPath)
}

// tagRequest is the POST body for manual tagging.
type tagRequest struct {
	Name string `json:"name"`
}

// AddTag links a tag to an image (POST /api/v1/images/:id/tags).
func (h *Handler) AddTag(c echo.Context) error {
	userID := auth.GetUserID(c)
	id, err := imageID(c)
	if err != nil {
		return err
	}

	var req tagRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request body")
	}

	tag, err := h.service.AddTag(c.Request().Context(), userID, id, req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, tag)
}

// RemoveTag unlinks a tag (DELETE /api/v1/images/:id/tags/:tagID).
func (h *Handler) RemoveTag(c echo.Context) error {
	userID := auth.GetUserID(c)
	id, err := imageID(c)
	if err != nil {
		return err
	}
	tagID, err := strconv.ParseInt(c.Param("tagID"), 10, 64)
	if err != nil {
		return apperror.NewBadRequest("invalid tag id")
	}

	if err := h.service.RemoveTag(c.Request().Context(), userID, id, tagID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ListTags returns the global tag vocabulary (GET /api/v1/tags).
func (h *Handler) ListTags(c echo.Context) error {
	tags, err := h.service.ListTags(c.Request().Context())
	if err != nil {
		return err
	}
	if tags == nil {
		tags = []Tag{}
	}
	return c.JSON(http.StatusOK, tags)
}

// Describe returns an AI-generated description (GET /api/v1/images/:id/description).
func (h *Handler) Describe(c echo.Context) error {
	userID := auth.GetUserID(c)
	id, err := imageID(c)
	if err != nil {
		return err
	}

	description, err := h.service.Describe(c.Request().Context(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"description": description})
}

func imageID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, apperror.NewBadRequest("invalid image id")
	}
	return id, nil
}
