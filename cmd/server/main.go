package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"journey-app/internal/auth"
	"journey-app/internal/config"
	"journey-app/internal/database"
	"journey-app/internal/handlers"
	"journey-app/internal/metrics"
	"journey-app/internal/services"
	"journey-app/internal/websocket"
	"journey-app/pkg/logger"

	"github.com/go-chi/chi/v5"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.NewPostgresDB(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize services
	authService := auth.NewService(db, cfg)
	journeyService := services.NewJourneyService(db)

	// Initialize WebSocket hub manager
	hubManager := websocket.NewManager()

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(authService)
	journeyHandlers := handlers.NewJourneyHandlers(journeyService, hubManager)
	wsHandlers := handlers.NewWebSocketHandlers(authService, journeyService, hubManager, db)

	// Setup routes
	router := setupRouter(authService, authHandlers, journeyHandlers, wsHandlers)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      corsMiddleware(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("Server started on http://localhost%s", cfg.Server.Port)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")
}

func setupRouter(authService *auth.Service, authHandlers *handlers.AuthHandlers, journeyHandlers *handlers.JourneyHandlers, wsHandlers *handlers.WebSocketHandlers) http.Handler {
	router := chi.NewRouter()

	// Auth routes
	router.Post("/register", authHandlers.Register)
	router.Post("/login", authHandlers.Login)

	// Journey routes
	router.Group(func(r chi.Router) {
		r.Use(handlers.RequireAuth(authService))
		r.Post("/journeys", journeyHandlers.CreateJourney)
		r.Get("/journeys/{code}", journeyHandlers.JoinJourney)
		r.Put("/journeys/{journeyId}/destination", journeyHandlers.UpdateDestination)
	})

	// WebSocket route (token authenticated in the handshake)
	router.Get("/ws", wsHandlers.HandleWebSocket)

	// Metrics
	router.Handle("/metrics", metrics.Handler())

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
