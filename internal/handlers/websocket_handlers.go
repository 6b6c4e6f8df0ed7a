package handlers

import (
	"net/http"

	"journey-app/internal/auth"
	"journey-app/internal/database"
	"journey-app/internal/services"
	ws "journey-app/internal/websocket"
	"journey-app/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	authService    *auth.Service
	journeyService *services.JourneyService
	hubManager     *ws.Manager
	db             database.Database
	upgrader       websocket.Upgrader
}

func NewWebSocketHandlers(authService *auth.Service, journeyService *services.JourneyService, hubManager *ws.Manager, db database.Database) *WebSocketHandlers {
	return &WebSocketHandlers{
		authService:    authService,
		journeyService: journeyService,
		hubManager:     hubManager,
		db:             db,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // Configure for production
		},
	}
}

// HandleWebSocket authenticates the handshake and hands the connection to
// the gateway. Auth failures reject before the upgrade: fail closed, no
// room operation is reachable without an identity.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	user, err := h.authService.GetUserFromToken(r.Context(), tokenStr)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewConn(h.hubManager, conn, *user, h.journeyService, h.db)
	logger.Info("User %s connected", user.Username)

	go client.WritePump()
	go client.ReadPump()
}
