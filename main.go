package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"habit-duel-service/handlers"
	"habit-duel-service/middleware"
	"habit-duel-service/models"
	"habit-duel-service/services"
	"habit-duel-service/utils"
	"habit-duel-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024, // photo proofs only, 20MB is plenty
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-Service-Token, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.BalanceEntry{},
		&models.Habit{},
		&models.UserHabit{},
		&models.Duel{},
		&models.ExchangeRequest{},
		&models.Certification{},
		&models.MediaAsset{},
		&models.AttendanceLog{},
		&models.Notification{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	storage, err := utils.NewStorage()
	if err != nil {
		log.Fatal("failed to initialize storage:", err)
	}

	loc := services.LoadLocalZone(os.Getenv("LOCAL_TZ"))

	notificationService := services.NewNotificationService(db)
	walletService := services.NewWalletService(db)
	userService := services.NewUserService(db)
	duelService := services.NewDuelService(db, loc, notificationService)
	certService := services.NewCertificationService(db, loc, notificationService, duelService)
	habitService := services.NewHabitService(db, loc)
	exchangeService := services.NewExchangeService(db, loc, notificationService)
	attendanceService := services.NewAttendanceService(db, loc)
	mediaService := services.NewMediaService(db, storage)

	// --- CONFIGURE profile sync against the profile service ---
	profileServiceURL := os.Getenv("PROFILE_SERVICE_URL")
	if profileServiceURL == "" {
		log.Fatal("PROFILE_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("HABIT_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("HABIT_SERVICE_TOKEN environment variable not set")
	}
	// --- END CONFIG ---

	profileSyncWorker := workers.NewProfileSyncWorker(db, profileServiceURL, "/api/v1/public/profiles", serviceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Println("Starting Profile Sync Worker...")
		profileSyncWorker.Start(ctx, 30*time.Second)
	}()

	pushGatewayURL := os.Getenv("PUSH_GATEWAY_URL")
	if pushGatewayURL != "" {
		pushClient := workers.NewPushClient(db, pushGatewayURL, serviceToken)
		go workers.PollNotifications(ctx, pushClient, 10*time.Second)
	} else {
		log.Println("⚠️  PUSH_GATEWAY_URL not set, push delivery disabled")
	}

	scheduler, err := services.StartSettlementScheduler(userService, certService)
	if err != nil {
		log.Fatal("failed to start settlement scheduler:", err)
	}
	defer func() { _ = scheduler.Shutdown() }()

	// Static uploads go first: photo URLs from the local-disk driver need no
	// user context, only the gateway token checked above.
	app.Static("/uploads", "./uploads")

	// ✅ Setup routes — enforced Gateway auth on every route
	handlers.SetupHabitRoutes(app, habitService)
	handlers.SetupDuelRoutes(app, duelService, exchangeService)
	handlers.SetupCertificationRoutes(app, certService, mediaService)
	handlers.SetupWalletRoutes(app, walletService, attendanceService, userService)
	handlers.SetupNotificationRoutes(app, notificationService)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Profile Sync Worker running")
	log.Println("✅ Settlement scheduler running (deadline sweep every minute)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
