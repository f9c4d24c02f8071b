// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/erilali/gameroom/internal/chat"
	"github.com/erilali/gameroom/internal/hub"
	"github.com/erilali/gameroom/internal/message"
	"github.com/erilali/gameroom/internal/records"
	"github.com/erilali/gameroom/internal/room"
)

const (
	defaultCommentLimit = 50
	maxCommentLimit     = 100
	maxSaveBody         = 1 << 20
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

// intParam reads a non-negative integer query parameter, falling back to def.
func intParam(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// gameParam parses the optional game filter. An empty filter matches every game.
func gameParam(r *http.Request) (room.GameType, bool) {
	raw := r.URL.Query().Get("game")
	if raw == "" {
		return "", true
	}
	return room.ParseGameType(raw)
}

func roomIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !message.ValidRoomID(id) {
		writeError(w, http.StatusBadRequest, message.CodeInvalidInput, "invalid room id")
		return "", false
	}
	return id, true
}

func (s *Server) storageStatus(r *http.Request) string {
	if records.IsDisabled(s.store) {
		return "disabled"
	}
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.WithError(err).Warn("Storage ping failed")
		return "down"
	}
	return "ok"
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storage := s.storageStatus(r)
	status := "ok"
	if storage == "down" {
		status = "degraded"
	}
	natsStatus := "disconnected"
	if s.events.Connected() {
		natsStatus = "connected"
	}

	health := map[string]interface{}{
		"status":         status,
		"version":        Version,
		"uptime_seconds": int(time.Since(s.started).Seconds()),
		"storage":        storage,
		"nats":           natsStatus,
	}
	if s.hub != nil {
		health["sessions"] = s.hub.Sessions()
	}
	if info := s.events.StreamInfo(); info != nil {
		health["jetstream"] = map[string]interface{}{"streams": info}
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"rooms": s.rooms.Stats(),
	}
	if s.chat != nil {
		resp["chat"] = s.chat.Stats()
	}
	if s.hub != nil {
		resp["sessions"] = s.hub.Sessions()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	gt, ok := gameParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, message.CodeUnknownGame, "unknown game type")
		return
	}
	rooms := s.rooms.List(gt)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rooms": rooms,
		"count": len(rooms),
	})
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(w, r)
	if !ok {
		return
	}
	gt, ok := s.rooms.GameOf(id)
	if !ok {
		writeError(w, http.StatusNotFound, message.CodeRoomNotFound, "room not found")
		return
	}
	eng, ok := s.engines.Lookup(gt)
	if !ok {
		writeError(w, http.StatusNotFound, message.CodeRoomNotFound, "room not found")
		return
	}
	view, ok := eng.Describe(id)
	if !ok {
		writeError(w, http.StatusNotFound, message.CodeRoomNotFound, "room not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(w, r)
	if !ok {
		return
	}
	limit, ok := intParam(r, "limit", defaultCommentLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, message.CodeInvalidInput, "limit must be a non-negative integer")
		return
	}
	if limit == 0 || limit > maxCommentLimit {
		limit = maxCommentLimit
	}
	comments := []chat.Comment{}
	if s.chat != nil {
		comments = append(comments, s.chat.Recent(id, limit)...)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":  id,
		"comments": comments,
		"count":    len(comments),
	})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	id, ok := roomIDParam(w, r)
	if !ok {
		return
	}
	comments, err := s.events.Replay(id)
	switch {
	case errors.Is(err, hub.ErrEventsDisabled):
		writeError(w, http.StatusServiceUnavailable, "jetstream_unavailable", "JetStream not available")
		return
	case err != nil:
		s.logger.WithError(err).Errorf("Error replaying archive of room %s", id)
		writeError(w, http.StatusInternalServerError, message.CodeInternal, "error retrieving archive")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room_id":   id,
		"comments":  comments,
		"count":     len(comments),
		"timestamp": time.Now(),
	})
}

func (s *Server) handleListGames(w http.ResponseWriter, r *http.Request) {
	gt, ok := gameParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, message.CodeUnknownGame, "unknown game type")
		return
	}
	limit, okLimit := intParam(r, "limit", records.DefaultLimit)
	offset, okOffset := intParam(r, "offset", 0)
	if !okLimit || !okOffset {
		writeError(w, http.StatusBadRequest, message.CodeInvalidInput, "limit and offset must be non-negative integers")
		return
	}

	q := records.Query{GameType: string(gt), Limit: limit, Offset: offset}.Normalize()
	games, err := s.store.QueryGames(r.Context(), q)
	degraded := records.IsDisabled(s.store)
	if err != nil {
		s.logger.WithError(err).Warn("Game history unavailable")
		games, degraded = []records.Record{}, true
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"games":    games,
		"count":    len(games),
		"limit":    q.Limit,
		"offset":   q.Offset,
		"degraded": degraded,
	})
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, message.CodeInvalidInput, "invalid game id")
		return
	}
	rec, err := s.store.GameByID(r.Context(), id)
	switch {
	case errors.Is(err, records.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "game not found")
	case err != nil:
		s.logger.WithError(err).Warnf("Game %d unavailable", id)
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"error": "storage_unavailable", "degraded": true})
	default:
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleGameStats(w http.ResponseWriter, r *http.Request) {
	gt, ok := gameParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, message.CodeUnknownGame, "unknown game type")
		return
	}
	st, err := s.store.GameStats(r.Context(), string(gt))
	degraded := records.IsDisabled(s.store)
	if err != nil {
		s.logger.WithError(err).Warn("Game stats unavailable")
		st, degraded = records.Stats{GameType: string(gt)}, true
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":    st,
		"degraded": degraded,
	})
}

// SaveGameRequest is the body of the legacy POST /save_game.
type SaveGameRequest struct {
	Moves    json.RawMessage `json:"moves"`
	Winner   string          `json:"winner" validate:"max=64"`
	GameType string          `json:"game_type" validate:"omitempty,oneof=gomoku landlord racing"`
	RoomID   string          `json:"room_id" validate:"omitempty,max=64,roomid"`
	Duration int             `json:"duration" validate:"min=0"`
}

func (s *Server) handleSaveGame(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSaveBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, message.CodeInvalidInput, "unreadable body")
		return
	}
	var req SaveGameRequest
	if err := message.Decode(body, &req); err != nil {
		rej, _ := message.AsRejection(err)
		writeError(w, http.StatusBadRequest, rej.Code, rej.Message)
		return
	}
	if req.GameType == "" {
		req.GameType = string(room.Gomoku)
	}

	id, err := s.store.RecordGame(r.Context(), records.Record{
		GameType:    req.GameType,
		RoomID:      req.RoomID,
		Moves:       req.Moves,
		Winner:      req.Winner,
		PlayerCount: seatsOf(req.GameType),
		Duration:    req.Duration,
		CreatedAt:   time.Now().UTC(),
	})
	s.metrics.RecordWrite(err)
	if err != nil {
		s.logger.WithError(err).Error("Legacy save failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "error", "degraded": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "success", "id": id})
}

func seatsOf(gameType string) int {
	if gt, ok := room.ParseGameType(gameType); ok {
		return gt.Seats()
	}
	return 0
}
