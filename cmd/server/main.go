package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gate-backend/internal/auth"
	"gate-backend/internal/cache"
	"gate-backend/internal/config"
	"gate-backend/internal/database"
	"gate-backend/internal/db"
	h "gate-backend/internal/http"
	"gate-backend/internal/handlers"
	"gate-backend/internal/health"
	"gate-backend/internal/live"
	"gate-backend/internal/middleware"
	"gate-backend/internal/repositories"
	"gate-backend/internal/services"
	"gate-backend/internal/storage"
	"gate-backend/migrations"
)

func main() {
	// Parse command-line flags
	port := flag.Int("port", 0, "Server port (overrides config)")
	migrateOnly := flag.Bool("migrate-only", false, "Run database migrations and exit")
	flag.Parse()

	// Load configuration
	cfg := config.Load()
	if *port != 0 {
		cfg.Server.Port = *port
	}

	pool := db.Connect(cfg)
	defer pool.Close()

	// Run database migrations
	// Uses embedded migrations for standalone binary operation
	log.Println("Running database migrations...")
	migrator := database.NewMigratorWithFS(pool, migrations.FS, ".")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := migrator.RunMigrations(ctx); err != nil {
		cancel()
		log.Fatalf("Failed to run migrations: %v", err)
	}
	cancel()
	if *migrateOnly {
		log.Println("Migrations complete")
		return
	}

	// Redis is optional: without it login throttling is off
	redisClient := cache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
	if redisClient != nil {
		defer redisClient.Close()
	}
	limiter := cache.NewLoginLimiter(redisClient, cfg.Redis.MaxAttempts, time.Duration(cfg.Redis.WindowMins)*time.Minute)

	var archive services.ReportArchiver
	if cfg.Archive.Enabled {
		a, err := storage.NewArchive(context.Background(), storage.ArchiveConfig{
			Endpoint:  cfg.Archive.Endpoint,
			Region:    cfg.Archive.Region,
			Bucket:    cfg.Archive.Bucket,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		})
		if err != nil {
			log.Printf("[Archive] Disabled: %v", err)
		} else {
			if err := a.Check(context.Background()); err != nil {
				log.Printf("[Archive] Bucket %s not reachable yet: %v", cfg.Archive.Bucket, err)
			}
			archive = a
		}
	}

	// Initialize JWT manager
	jwtManager := auth.NewJWTManager(cfg)

	// Initialize repositories
	userRepo := repositories.NewUserRepository(pool)
	warehouseRepo := repositories.NewWarehouseRepository(pool)
	movementRepo := repositories.NewGateMovementRepository(pool)
	rawMaterialRepo := repositories.NewRawMaterialRepository(pool)

	// Live feed
	hub := live.NewHub(cfg.Server.CorsAllowedOrigins)
	stopHub := make(chan struct{})
	go hub.Run(stopHub)

	// Initialize services
	policy := services.NewEditPolicy(time.Duration(cfg.EditWindowHours()) * time.Hour)
	numbers := services.NewGateNumberGenerator(cfg.Gate.NumberWidth)

	gateService := services.NewGateMovementService(movementRepo, warehouseRepo, numbers, policy)
	gateService.Notifier = hub
	if cfg.Gate.QueryLimit > 0 {
		gateService.QueryLimit = cfg.Gate.QueryLimit
	}
	if cfg.Gate.UnassignedHoursBack > 0 {
		gateService.UnassignedHoursBack = cfg.Gate.UnassignedHoursBack
	}

	rawMaterialService := services.NewRawMaterialService(rawMaterialRepo, warehouseRepo, numbers, policy)
	if cfg.Gate.QueryLimit > 0 {
		rawMaterialService.QueryLimit = cfg.Gate.QueryLimit
	}

	userService := services.NewUserService(userRepo, warehouseRepo, jwtManager, limiter)
	reportService := services.NewReportService(movementRepo, archive)

	// Initialize handlers
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, userRepo)
	router := h.NewRouter(
		handlers.NewAuthHandler(userService),
		handlers.NewUserHandler(userService),
		handlers.NewWarehouseHandler(warehouseRepo),
		handlers.NewGateMovementHandler(gateService),
		handlers.NewRawMaterialHandler(rawMaterialService),
		handlers.NewReportHandler(reportService),
		handlers.NewLiveHandler(hub),
		handlers.NewHealthHandler(health.NewHealthChecker(pool)),
		authMiddleware,
	)

	corsMiddleware := middleware.NewCORS(cfg)
	handler := middleware.PanicRecovery(middleware.RequestLogger(corsMiddleware(router)))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Server running on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	close(stopHub)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}
