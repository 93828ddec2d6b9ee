package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cyber-duel-server/content"
	"cyber-duel-server/handlers"
	"cyber-duel-server/models"
	"cyber-duel-server/services"
	"cyber-duel-server/utils"
	"cyber-duel-server/workers"

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

	app := fiber.New()

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
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	catalog, err := content.Load()
	if err != nil {
		log.Fatal("failed to load theme catalog:", err)
	}
	log.Printf("✅ Theme catalog loaded: %d theme(s)", catalog.Size())

	// Persistence is optional: without DATABASE_URL the server is
	// memory-only and gameplay is unaffected.
	var db *gorm.DB
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatal("failed to connect to database:", err)
		}
		if err := db.AutoMigrate(
			&models.SessionMirror{},
			&models.MatchRecord{},
		); err != nil {
			log.Fatal("failed to migrate database:", err)
		}
		log.Println("✅ Session mirror database connected")
	} else {
		log.Println("⚠️  DATABASE_URL not set — running memory-only, no session mirror")
	}

	archivingEnabled, err := utils.InitR2()
	if err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	store := services.NewSessionStore()
	engine := services.NewRoundEngine(store, catalog)
	hub := services.NewHub()
	mirror := services.NewMirrorService(db)
	archiver := workers.NewReportArchiver(archivingEnabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go mirror.Run(ctx)
	go archiver.Run(ctx)

	services.StartCleanupScheduler(store, mirror)

	ws := handlers.NewWSHandler(engine, store, hub, mirror, archiver)
	handlers.SetupRoutes(app, ws, store)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Session sweep running (every 10m, threshold 1h)")
	if archivingEnabled {
		log.Println("✅ Match report archiving enabled")
	}
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
