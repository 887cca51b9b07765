package handlers

import (
	"habit-duel-service/middleware"
	"habit-duel-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupDuelRoutes(app *fiber.App, duelService *services.DuelService, exchangeService *services.ExchangeService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	// Duels
	secured.Get("/duels", duelService.GetActiveDuels)
	secured.Get("/duels/:id/conversation", duelService.GetDuelConversation)
	secured.Post("/duels/:id/give-up", duelService.GiveUpDuel)

	// Exchange requests (duel invitations)
	secured.Post("/exchanges", exchangeService.CreateExchangeRequest)
	secured.Get("/exchanges/incoming", exchangeService.GetIncomingRequests)
	secured.Post("/exchanges/:id/reject", exchangeService.RejectExchangeRequest)

	// Accepting an exchange creates the duel and both habit copies
	secured.Post("/exchanges/accept", duelService.CreateDuelFromExchange)
}
