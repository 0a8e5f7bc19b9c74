package search

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mattgren/viewfinder/internal/auth"
	"github.com/mattgren/viewfinder/internal/library"
)

// Handler handles HTTP requests for search.
type Handler struct {
	service Service
}

// NewHandler creates a new search handler.
func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

// searchResponse wraps ranked results with the echoed query.
type searchResponse struct {
	Query   string                  `json:"query"`
	Count   int                     `json:"count"`
	Results []library.ImageResponse `json:"results"`
}

// Search runs relevance-ranked search (GET /api/v1/search?q=...).
func (h *Handler) Search(c echo.Context) error {
	query := c.QueryParam("q")

	images, err := h.service.Search(c.Request().Context(), auth.GetUserID(c), query)
	if err != nil {
		return err
	}

	results := make([]library.ImageResponse, len(images))
	for i := range images {
		results[i] = images[i].ToResponse()
	}

	return c.JSON(http.StatusOK, searchResponse{
		Query:   query,
		Count:   len(results),
		Results: results,
	})
}

// RegisterRoutes sets up the search route on the authenticated API group.
func RegisterRoutes(g *echo.Group, h *Handler, authSvc auth.Service) {
	g.GET("/search", h.Search, auth.RequireAuth(authSvc))
}
