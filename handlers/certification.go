package handlers

import (
	"habit-duel-service/middleware"
	"habit-duel-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupCertificationRoutes(app *fiber.App, certService *services.CertificationService, mediaService *services.MediaService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/certifications", certService.CreateCertification)
	secured.Get("/certifications/today", certService.GetTodayCertifiedHabits)

	// Photo proof upload happens before the certification is recorded
	secured.Post("/media/photos", mediaService.UploadPhoto)
	secured.Get("/media/:id", mediaService.GetMediaAsset)
}
