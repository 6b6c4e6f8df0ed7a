package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"journey-app/internal/models"
	"journey-app/internal/services"
	ws "journey-app/internal/websocket"
	"journey-app/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type JourneyHandlers struct {
	journeyService *services.JourneyService
	hubManager     *ws.Manager
}

func NewJourneyHandlers(journeyService *services.JourneyService, hubManager *ws.Manager) *JourneyHandlers {
	return &JourneyHandlers{
		journeyService: journeyService,
		hubManager:     hubManager,
	}
}

func (h *JourneyHandlers) CreateJourney(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.CreateJourneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	journey, err := h.journeyService.Create(r.Context(), user.ID, req.Destination)
	if err != nil {
		logger.Error("Create journey error: %v", err)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(journey)
}

// JoinJourney is the join-by-code endpoint: fetching a session by code adds
// the caller to the member set (idempotently) and returns the session.
func (h *JourneyHandlers) JoinJourney(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	code := chi.URLParam(r, "code")
	journey, err := h.journeyService.JoinByCode(r.Context(), code, user.ID)
	if err != nil {
		logger.Error("Join journey error: %v", err)
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(journey)
}

// UpdateDestination persists a leader's destination change and propagates it
// to the session's room over the messaging channel.
func (h *JourneyHandlers) UpdateDestination(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	journeyID, err := strconv.Atoi(chi.URLParam(r, "journeyId"))
	if err != nil {
		http.Error(w, "invalid journey ID", http.StatusBadRequest)
		return
	}

	var req models.UpdateDestinationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	journey, err := h.journeyService.UpdateDestination(r.Context(), journeyID, user.ID, req.Destination)
	if err != nil {
		logger.Error("Update destination error: %v", err)
		writeServiceError(w, err)
		return
	}

	event := models.EventJourneyMessage + "-" + models.MessageTypeDestinationUpdated
	if err := h.hubManager.Send(journey.Code, event, models.DestinationUpdated{
		Destination: journey.Destination,
		UpdatedBy:   user.Username,
	}); err != nil {
		logger.Error("Error propagating destination update for %s: %v", journey.Code, err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(journey)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "journey not found", http.StatusNotFound)
	case errors.Is(err, models.ErrForbidden):
		http.Error(w, "only group leaders can update destination", http.StatusForbidden)
	case errors.Is(err, models.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
