package handlers

import (
	"habit-duel-service/middleware"
	"habit-duel-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupHabitRoutes(app *fiber.App, habitService *services.HabitService) {
	// 🔐 Authenticated routes — search needs the caller id too, to exclude
	// their own habits from the results
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/habits/search", habitService.SearchHabits)
	secured.Post("/habits", habitService.CreateHabit)
	secured.Put("/habits/:id", habitService.UpdateHabit)
	secured.Post("/habits/:id/cancel", habitService.CancelHabit)
	secured.Get("/habits/completed", habitService.GetMyCompletedHabits)

	// Settle every expired solo habit owned by the caller
	secured.Post("/habits/settle", habitService.SettleMyHabits)

	// Home screen summary (today's habits + active duel cards + counters)
	secured.Get("/home", habitService.GetHomeSummary)
}
