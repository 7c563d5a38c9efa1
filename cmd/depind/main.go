package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"depin-engine-backend/config"
	"depin-engine-backend/internal/allocation"
	"depin-engine-backend/internal/api"
	"depin-engine-backend/internal/assets"
	"depin-engine-backend/internal/db"
	"depin-engine-backend/internal/devices"
	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/events"
	"depin-engine-backend/internal/feed"
	"depin-engine-backend/internal/maintenance"
	"depin-engine-backend/internal/model"
	"depin-engine-backend/internal/oracle"
	"depin-engine-backend/internal/token"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "depin-engine ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	// Check for VAPID keys
	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	// Initialize database
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	if err := db.Seed(gormDB, cfg); err != nil {
		logger.Fatalf("failed to seed bootstrap state: %v", err)
	}
	logger.Println("bootstrap state seeded")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// State engine and domain services
	eng := engine.New(gormDB)
	ledger := token.Ledger{}

	sources := make([]feed.Source, 0, len(cfg.Feeds.Sources))
	for _, sc := range cfg.Feeds.Sources {
		sources = append(sources, feed.NewHTTPSource(sc, cfg.Feeds.HTTPProxy, nil))
	}

	svc := api.Services{
		Engine:      eng,
		Token:       ledger,
		Allocation:  allocation.NewService(eng, ledger),
		Assets:      assets.NewService(eng),
		Maintenance: maintenance.NewService(eng, ledger),
		Devices:     devices.NewService(eng),
		Oracle:      oracle.NewService(eng),
		Integration: oracle.NewIntegration(eng),
		Sources:     sources,
	}

	// Push delivery of committed events
	pool := events.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	pool.Start(ctx)
	eng.OnEvent = func(ev model.Event) {
		pool.Dispatch(ev.ID)
	}
	logger.Println("event worker pool started")

	// Price-feed poller driving the oracle integration
	poller := feed.NewPoller(svc.Integration, sources, cfg.Feeds.Interval, cfg.Feeds.Enabled)
	go poller.Run(ctx)

	// Initialize router
	handler := api.NewHandler(svc, gormDB, &webpushOptions)
	router := api.NewRouter(handler, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
