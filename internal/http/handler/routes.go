package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"

	"fortunemagnet/internal/http/middleware"
	"fortunemagnet/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// requireAuth guards the photo functions; health probes stay public.
func RegisterRoutes(app *fiber.App, db *sql.DB, photoSvc service.PhotoService, requireAuth fiber.Handler) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	fn := app.Group("/functions", middleware.NoStore(), requireAuth)
	fn.Post("/photo-ticket", IssueTicket(photoSvc))
	fn.Post("/fortune-photo", FortunePhoto(photoSvc))
	fn.Get("/fortune-photo", GetFortunePhoto(photoSvc))
}
