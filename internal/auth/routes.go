package auth

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mattgren/viewfinder/internal/middleware"
)

// RegisterRoutes sets up the auth routes on the API group. Register and
// login are public; they are rate-limited per IP to slow brute-force and
// credential-stuffing attempts.
func RegisterRoutes(g *echo.Group, h *Handler, service Service) {
	g.POST("/auth/register", h.Register, middleware.RateLimit(5, time.Minute))
	g.POST("/auth/login", h.Login, middleware.RateLimit(10, time.Minute))
	g.POST("/auth/logout", h.Logout)
	g.GET("/auth/me", h.Me, RequireAuth(service))
}
