package handlers

import (
	"habit-duel-service/middleware"
	"habit-duel-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupNotificationRoutes(app *fiber.App, notificationService *services.NotificationService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/notifications", notificationService.GetNotifications)
	secured.Get("/notifications/unread-count", notificationService.GetUnreadCount)
	secured.Post("/notifications/:id/read", notificationService.MarkRead)
	secured.Post("/notifications/read-all", notificationService.MarkAllRead)
}
