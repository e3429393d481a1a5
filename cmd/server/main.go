package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/otafleet/otafleet/internal/api"
	"github.com/otafleet/otafleet/internal/blobstore"
	"github.com/otafleet/otafleet/internal/config"
	"github.com/otafleet/otafleet/internal/database"
	"github.com/otafleet/otafleet/internal/repositories"
	"github.com/otafleet/otafleet/internal/services"
)

const defaultDeviceClass = "esp32"

func main() {
	ctx := context.Background()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create postgres pool: %v", err)
	}
	defer postgresPool.Close()

	if err := database.EnsureSchema(ctx, postgresPool); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create redis client: %v", err)
	}
	defer redisClient.Close()

	blobs, err := blobstore.NewFilesystemStore(cfg.FirmwareDir)
	if err != nil {
		log.Fatalf("Failed to open firmware store: %v", err)
	}

	// Wire repositories and services
	releaseRepo := repositories.NewPostgresReleaseRepository(postgresPool)
	stateRepo := repositories.NewPostgresDeviceStateRepository(postgresPool)
	outcomeRepo := repositories.NewPostgresOutcomeRepository(postgresPool)
	sensorRepo := repositories.NewPostgresSensorRepository(postgresPool)
	presenceRepo := repositories.NewRedisPresenceRepository(redisClient)

	firmwareService := services.NewFirmwareService(
		releaseRepo, blobs, cfg.MaxFirmwareSize, defaultDeviceClass, cfg.PublicBaseURL)
	telemetryService := services.NewTelemetryService(
		stateRepo, outcomeRepo, sensorRepo, presenceRepo)
	authService := services.NewAuthService(
		cfg.APIPasswordHash, cfg.JWTSecret, cfg.JWTExpiry)

	limiter := api.NewRateLimiter(redisClient, cfg.RateLimitPerMinute)
	apiServer := api.NewServer(
		firmwareService, telemetryService, authService,
		cfg.BuildArtifactPath, cfg.WebhookSecret)

	// Start Server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: apiServer.Router(limiter),
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("Starting server on port %s", cfg.ServerPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}
