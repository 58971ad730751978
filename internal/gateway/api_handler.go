package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/speakuphq/gdhub/internal/leaderboard"
	"github.com/speakuphq/gdhub/internal/models"
)

// QueueApp defines what the API needs from the queue manager.
type QueueApp interface {
	Join(ctx context.Context, userID, displayName string) (models.QueueStatus, error)
	Leave(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (models.QueueStatus, error)
}

// RoomApp defines what the API needs from the room coordinator.
type RoomApp interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	MarkJoined(ctx context.Context, roomID, userID string) (*models.Room, error)
	LeaveRoom(ctx context.Context, roomID, userID string) error
	StartCall(ctx context.Context, roomID string) (*models.Room, error)
	CompleteRoom(ctx context.Context, roomID string) (*models.Room, error)
}

// LeaderboardApp defines what the API needs from the gamification layer.
type LeaderboardApp interface {
	Top(ctx context.Context, n int) ([]leaderboard.Entry, error)
	Rank(ctx context.Context, userID string) (leaderboard.Entry, error)
}

// APIHandler exposes the matchmaking REST API consumed by clients.
type APIHandler struct {
	queue QueueApp
	rooms RoomApp
	board LeaderboardApp
	auth  *Authenticator
}

// NewAPIHandler creates a new API handler.
func NewAPIHandler(queue QueueApp, rooms RoomApp, board LeaderboardApp, auth *Authenticator) *APIHandler {
	return &APIHandler{
		queue: queue,
		rooms: rooms,
		board: board,
		auth:  auth,
	}
}

// RegisterRoutes registers the REST routes with an HTTP mux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/global-gd/join", h.handleJoin)
	mux.HandleFunc("POST /api/global-gd/leave", h.handleLeave)
	mux.HandleFunc("GET /api/global-gd/status", h.handleStatus)
	mux.HandleFunc("POST /api/global-gd/leave-room", h.handleLeaveRoom)
	mux.HandleFunc("GET /api/global-gd/rooms/{id}", h.handleGetRoom)
	mux.HandleFunc("POST /api/global-gd/rooms/{id}/join", h.handleMarkJoined)
	mux.HandleFunc("POST /api/global-gd/rooms/{id}/start", h.handleStartCall)
	mux.HandleFunc("POST /api/global-gd/rooms/{id}/complete", h.handleCompleteRoom)
	mux.HandleFunc("GET /api/leaderboard", h.handleLeaderboard)
	mux.HandleFunc("GET /api/leaderboard/me", h.handleMyRank)
}

func (h *APIHandler) handleJoin(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identify(w, r)
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req) // body is optional
	displayName := ident.DisplayName
	if displayName == "" {
		displayName = req.Name
	}

	status, err := h.queue.Join(r.Context(), ident.UserID, displayName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *APIHandler) handleLeave(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identify(w, r)
	if !ok {
		return
	}

	if err := h.queue.Leave(r.Context(), ident.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *APIHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identify(w, r)
	if !ok {
		return
	}

	status, err := h.queue.Status(r.Context(), ident.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *APIHandler) handleLeaveRoom(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identify(w, r)
	if !ok {
		return
	}

	var req struct {
		RoomID string `json:"room_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.ErrInvalidArgument)
		return
	}

	if err := h.rooms.LeaveRoom(r.Context(), req.RoomID, ident.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *APIHandler) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identify(w, r); !ok {
		return
	}

	rm, err := h.rooms.GetRoom(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (h *APIHandler) handleMarkJoined(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identify(w, r)
	if !ok {
		return
	}

	rm, err := h.rooms.MarkJoined(r.Context(), r.PathValue("id"), ident.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (h *APIHandler) handleStartCall(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identify(w, r); !ok {
		return
	}

	rm, err := h.rooms.StartCall(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (h *APIHandler) handleCompleteRoom(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.identify(w, r); !ok {
		return
	}

	rm, err := h.rooms.CompleteRoom(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (h *APIHandler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	n := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			n = parsed
		}
	}

	entries, err := h.board.Top(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *APIHandler) handleMyRank(w http.ResponseWriter, r *http.Request) {
	ident, ok := h.identify(w, r)
	if !ok {
		return
	}

	entry, err := h.board.Rank(r.Context(), ident.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *APIHandler) identify(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	ident, err := h.auth.Identify(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return Identity{}, false
	}
	return ident, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrRoomClosed):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
