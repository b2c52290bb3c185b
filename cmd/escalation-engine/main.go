package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"

	"github.com/getdatasurge/escalation-engine/internal/alerts"
	"github.com/getdatasurge/escalation-engine/internal/clock"
	"github.com/getdatasurge/escalation-engine/internal/config"
	"github.com/getdatasurge/escalation-engine/internal/database"
	"github.com/getdatasurge/escalation-engine/internal/dispatch"
	"github.com/getdatasurge/escalation-engine/internal/escalation"
	"github.com/getdatasurge/escalation-engine/internal/handlers"
	"github.com/getdatasurge/escalation-engine/internal/middleware"
	"github.com/getdatasurge/escalation-engine/internal/notify"
	"github.com/getdatasurge/escalation-engine/internal/policy"
	slackutil "github.com/getdatasurge/escalation-engine/internal/slack"
)

func main() {
	// Load .env file if it exists (ignore error if file doesn't exist)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading it (this is fine if using environment variables): %v", err)
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting escalation engine...")

	// Initialize JWT authentication middleware
	if cfg.AdminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is not set")
	}

	passwordHash, err := middleware.HashPassword(cfg.AdminPassword)
	if err != nil {
		log.Fatalf("Failed to hash admin password: %v", err)
	}

	jwtAuthMiddleware := middleware.NewJWTAuthMiddleware(&middleware.JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     cfg.AdminUsername,
		AdminPasswordHash: passwordHash,
		JWTSecret:         cfg.JWTSecret,
		JWTExpiryHours:    cfg.JWTExpiryHours,
		SkipPaths: []string{
			"/health",
			"/webhook/*",
			"/auth/login",
		},
	})
	log.Printf("JWT authentication enabled for user: %s", cfg.AdminUsername)

	// Initialize database connection
	if err := database.Connect(cfg.DatabaseURL, logger.Warn); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run database migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Initialize default database records
	if err := database.InitializeDefaults(); err != nil {
		log.Fatalf("Failed to initialize database defaults: %v", err)
	}

	db := database.GetDB()
	clk := clock.New()

	// Channel senders
	emailSender := notify.NewSMTPEmailSender(cfg.SMTP)
	if cfg.SMTP.IsConfigured() {
		log.Printf("Email sender configured (%s:%d)", cfg.SMTP.Host, cfg.SMTP.Port)
	} else {
		log.Printf("Email sender NOT configured, email deliveries will be marked unavailable")
	}
	smsSender := notify.NewHTTPSMSSender(cfg.SMSGateway)
	if cfg.SMSGateway.IsConfigured() {
		log.Printf("SMS gateway configured (%s)", cfg.SMSGateway.URL)
	} else {
		log.Printf("SMS gateway NOT configured, sms deliveries will be marked unavailable")
	}

	// Message templates
	templates, err := notify.LoadTemplateStore(cfg.TemplatesPath)
	if err != nil {
		log.Fatalf("Failed to load message templates: %v", err)
	}

	// Policy resolver with effective-policy cache
	policyStore := database.NewPolicyStore(db)
	contactStore := database.NewContactStore(db)
	resolver := policy.NewResolver(policyStore, contactStore)

	// Dispatcher and scheduler
	dispatcher := dispatch.NewDispatcher(db, emailSender, smsSender, templates, clk)
	scheduler := escalation.NewScheduler(db, resolver, dispatcher, clk)

	// Slack ops mirror (best-effort)
	notifier := slackutil.NewNotifier(db)

	// Live event stream for dashboards
	eventHub := handlers.NewEventHub()

	// State machine fans transitions out to scheduler, Slack and websockets
	stateMachine := alerts.NewStateMachine(db)
	stateMachine.Subscribe(scheduler)
	stateMachine.Subscribe(notifier)
	stateMachine.Subscribe(eventHub)

	// HTTP surface
	alertStore := database.NewAlertStore(db)
	sourceStore := database.NewSourceStore(db)
	alertHandler := handlers.NewAlertHandler(alertStore, sourceStore, contactStore, stateMachine, scheduler, notifier)
	httpHandler := handlers.NewHTTPHandler(alertHandler)
	apiHandler := handlers.NewAPIHandler(db, resolver, stateMachine, notifier, eventHub)
	authHandler := handlers.NewAuthHandler(jwtAuthMiddleware)

	mux := http.NewServeMux()
	httpHandler.SetupRoutes(mux)
	apiHandler.SetupRoutes(mux)
	authHandler.SetupRoutes(mux)

	// Wrap all routes with CORS first, then JWT authentication
	corsMiddleware := middleware.NewCORSMiddleware()
	handler := middleware.RequestIDMiddleware(corsMiddleware.Wrap(jwtAuthMiddleware.Wrap(mux)))

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: handler,
	}

	go func() {
		log.Printf("Starting HTTP server on port %d", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Recovery sweep: re-derives plans for open alerts at startup and on
	// an interval afterwards.
	sweepStop := make(chan struct{})
	go scheduler.Start(sweepStop)

	log.Println("Escalation engine is running! Press Ctrl+C to exit.")
	log.Printf("Alert webhook endpoint: http://localhost:%d/webhook/alert/{instance_uuid}", cfg.HTTPPort)
	log.Printf("Health check endpoint: http://localhost:%d/health", cfg.HTTPPort)
	log.Printf("API base URL: http://localhost:%d/api", cfg.HTTPPort)

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Received shutdown signal, cleaning up...")
	close(sweepStop)

	log.Println("Shutting down HTTP server...")
	if err := httpServer.Close(); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	scheduler.Stop()
	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
	log.Println("Shutdown complete")
}
