package app

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mattgren/viewfinder/internal/ai"
	"github.com/mattgren/viewfinder/internal/auth"
	"github.com/mattgren/viewfinder/internal/geocode"
	"github.com/mattgren/viewfinder/internal/ingest"
	"github.com/mattgren/viewfinder/internal/library"
	"github.com/mattgren/viewfinder/internal/search"
	"github.com/mattgren/viewfinder/internal/tagging"
)

// Services bundles the constructed feature services so main can reuse them
// when wiring the background worker.
type Services struct {
	Auth    auth.Service
	Library library.Service
	Search  search.Service
	Tags    library.TagRepository
	AI      *ai.Client
}

// RegisterRoutes constructs the feature services and registers every route.
func (a *App) RegisterRoutes() *Services {
	// Infrastructure adapters.
	aiClient := ai.NewClient(a.Config.AI)
	geocoder := geocode.NewClient(a.Config.Geocode)
	processor := ingest.NewProcessor(geocoder, a.Config.Upload)

	// Repositories.
	users := auth.NewUserRepository(a.DB)
	images := library.NewImageRepository(a.DB)
	tags := library.NewTagRepository(a.DB)

	// Services.
	authSvc := auth.NewService(users, a.Redis, a.Config.Auth.SessionTTL)
	enqueuer := tagging.NewEnqueuer(a.Queue)
	librarySvc := library.NewService(images, tags, users, processor, enqueuer, aiClient)
	searchSvc := search.NewService(images, tags, aiClient)

	// Routes.
	api := a.Echo.Group("/api/v1")
	auth.RegisterRoutes(api, auth.NewHandler(authSvc, a.Config.Auth.SessionTTL), authSvc)
	library.RegisterRoutes(api, library.NewHandler(librarySvc), authSvc, a.Config.Upload.MaxSize)
	search.RegisterRoutes(api, search.NewHandler(searchSvc), authSvc)

	// Ops endpoints.
	a.Echo.GET("/healthz", a.healthz)
	a.Echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return &Services{
		Auth:    authSvc,
		Library: librarySvc,
		Search:  searchSvc,
		Tags:    tags,
		AI:      aiClient,
	}
}

// healthz reports whether the DB and Redis are reachable.
func (a *App) healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]string{"database": "ok", "redis": "ok"}

	if err := a.DB.PingContext(ctx); err != nil {
		checks["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, checks)
}
