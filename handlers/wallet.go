package handlers

import (
	"habit-duel-service/middleware"
	"habit-duel-service/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWalletRoutes(app *fiber.App, walletService *services.WalletService, attendanceService *services.AttendanceService, userService *services.UserService) {
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Get("/me", userService.GetMe)

	secured.Get("/wallet", walletService.GetWallet)
	secured.Get("/wallet/ledger", walletService.GetLedger)
	secured.Get("/wallet/audit", walletService.AuditWallet)

	secured.Post("/attendance/check-in", attendanceService.CheckIn)
}
