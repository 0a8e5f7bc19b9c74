package library

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mattgren/viewfinder/internal/auth"
	"github.com/mattgren/viewfinder/internal/middleware"
)

// RegisterRoutes sets up the library routes on the authenticated API group.
// maxUploadSize limits the upload request body so oversized payloads are
// rejected before being read into memory.
func RegisterRoutes(g *echo.Group, h *Handler, authSvc auth.Service, maxUploadSize int64) {
	authMw := auth.RequireAuth(authSvc)

	// Rate limit uploads: 30 per minute per IP.
	uploadRateLimit := middleware.RateLimit(30, time.Minute)

	// 10% margin above maxUploadSize to account for multipart encoding overhead.
	bodyLimit := bodyLimitMiddleware(maxUploadSize + maxUploadSize/10)

	g.POST("/images", h.Upload, authMw, uploadRateLimit, bodyLimit)
	g.GET("/images", h.List, authMw)
	g.GET("/images/:id", h.Get, authMw)
	g.PATCH("/images/:id", h.Update, authMw)
	g.DELETE("/images/:id", h.Delete, authMw)
	g.GET("/images/:id/file", h.ServeFile, authMw)
	g.GET("/images/:id/thumbnail", h.ServeThumbnail, authMw)
	g.GET("/images/:id/description", h.Describe, authMw)
	g.POST("/images/:id/tags", h.AddTag, authMw)
	g.DELETE("/images/:id/tags/:tagID", h.RemoveTag, authMw)
	g.GET("/tags", h.ListTags, authMw)
}

// bodyLimitMiddleware rejects request bodies exceeding the given size in
// bytes, applied before the handler reads the body into memory.
func bodyLimitMiddleware(maxBytes int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().ContentLength > maxBytes {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
					fmt.Sprintf("request body too large; maximum is %d MB", maxBytes/(1024*1024)))
			}
			c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, maxBytes)
			return next(c)
		}
	}
}
