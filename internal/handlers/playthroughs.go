package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/jwebster45206/novel-engine/internal/logger"
	"github.com/jwebster45206/novel-engine/internal/middleware"
	"github.com/jwebster45206/novel-engine/internal/playthrough"
	"github.com/jwebster45206/novel-engine/pkg/chat"
	"github.com/jwebster45206/novel-engine/pkg/state"
	"github.com/jwebster45206/novel-engine/pkg/storage"
)

// OrchestratorFactory builds a fresh orchestrator bound to a request logger.
type OrchestratorFactory func(logger *slog.Logger) *playthrough.Orchestrator

type CreatePlaythroughRequest struct {
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`
}

type TurnRequest struct {
	Text string `json:"text"`
}

type RewindRequest struct {
	LineIdx *int `json:"lineIdx"`
}

type SettingsRequest struct {
	Liked      *bool             `json:"liked,omitempty"`
	Visibility *state.Visibility `json:"visibility,omitempty"`
}

type HintResponse struct {
	Line chat.DisplayLine `json:"line"`
}

type SyncResponse struct {
	Synced      bool               `json:"synced"`
	Playthrough *state.Playthrough `json:"playthrough"`
}

type ListPlaythroughsResponse struct {
	IDs []uuid.UUID `json:"ids"`
}

type PlaythroughHandler struct {
	store           storage.Storage
	newOrchestrator OrchestratorFactory
	logger          *slog.Logger
}

func NewPlaythroughHandler(store storage.Storage, newOrchestrator OrchestratorFactory, logger *slog.Logger) *PlaythroughHandler {
	return &PlaythroughHandler{
		store:           store,
		newOrchestrator: newOrchestrator,
		logger:          logger,
	}
}

// Register mounts the playthrough routes. Each request loads the stored
// playthrough into its own orchestrator; concurrent writers are resolved by
// the storage version check.
func (h *PlaythroughHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/playthroughs", h.handleList)
	mux.HandleFunc("POST /v1/playthroughs", h.handleCreate)
	mux.HandleFunc("GET /v1/playthroughs/{id}", h.handleGet)
	mux.HandleFunc("PATCH /v1/playthroughs/{id}", h.handlePatch)
	mux.HandleFunc("DELETE /v1/playthroughs/{id}", h.handleDelete)
	mux.HandleFunc("POST /v1/playthroughs/{id}/turns", h.handleTurn)
	mux.HandleFunc("POST /v1/playthroughs/{id}/hint", h.handleHint)
	mux.HandleFunc("POST /v1/playthroughs/{id}/rewind", h.handleRewind)
	mux.HandleFunc("POST /v1/playthroughs/{id}/branch", h.handleBranch)
	mux.HandleFunc("POST /v1/playthroughs/{id}/restart", h.handleRestart)
	mux.HandleFunc("POST /v1/playthroughs/{id}/sync", h.handleSync)
	mux.HandleFunc("GET /v1/playthroughs/{id}/staleness", h.handleStaleness)
}

func (h *PlaythroughHandler) handleList(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	projectID := r.URL.Query().Get("projectId")
	userID := r.URL.Query().Get("userId")
	if projectID == "" || userID == "" {
		writeError(w, log, http.StatusBadRequest, "projectId and userId are required")
		return
	}
	ids, err := h.store.ListPlaythroughs(r.Context(), projectID, userID)
	if err != nil {
		writeFailure(w, log, err)
		return
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	writeJSON(w, log, http.StatusOK, ListPlaythroughsResponse{IDs: ids})
}

func (h *PlaythroughHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)

	var req CreatePlaythroughRequest
	if !decodeBody(w, r, log, &req) {
		return
	}
	if req.ProjectID == "" || req.UserID == "" {
		writeError(w, log, http.StatusBadRequest, "projectId and userId are required")
		return
	}

	pt, err := h.newOrchestrator(log).Start(r.Context(), req.ProjectID, req.UserID)
	if err != nil {
		writeFailure(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusCreated, pt)
}

func (h *PlaythroughHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	orch, log, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, log, http.StatusOK, orch.Current())
}

func (h *PlaythroughHandler) handlePatch(w http.ResponseWriter, r *http.Request) {
	orch, log, ok := h.load(w, r)
	if !ok {
		return
	}
	var req SettingsRequest
	if !decodeBody(w, r, log, &req) {
		return
	}
	if err := orch.UpdateSettings(r.Context(), req.Liked, req.Visibility); err != nil {
		writeFailure(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, orch.Current())
}

func (h *PlaythroughHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	id, ok := parseID(w, r, log)
	if !ok {
		return
	}
	if err := h.store.DeletePlaythrough(r.Context(), id); err != nil {
		writeFailure(w, log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PlaythroughHandler) handleTurn(w http.ResponseWriter, r *http.Request) {
	orch, log, ok := h.load(w, r)
	if !ok {
		return
	}
	var req TurnRequest
	if !decodeBody(w, r, log, &req) {
		return
	}
	out, err := orch.Advance(r.Context(), req.Text)
	if err != nil {
		writeFailure(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, out)
}

func (h *PlaythroughHandler) handleHint(w http.ResponseWriter, r *http.Request) {
	orch, log, ok := h.load(w, r)
	if !ok {
		return
	}
	line, err := orch.Hint(r.Context())
	if err != nil {
		writeFailure(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, HintResponse{Line: line})
}

func (h *PlaythroughHandler) handleRewind(w http.ResponseWriter, r *http.Request) {
	orch, log, ok := h.load(w, r)
	if !ok {
		return
	}
	var req RewindRequest
	if !decodeBody(w, r, log, &req) {
		return
	}
	if req.LineIdx == nil {
		writeError(w, log, http.StatusBadRequest, "lineIdx is required")
		return
	}
	if err := orch.Rewind(r.Context(), *req.LineIdx); err != nil {
		writeFailure(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, orch.Current())
}

func (h *PlaythroughHandler) handleBranch(w http.ResponseWriter, r *http.Request) {
	orch, log, ok := h.load(w, r)
	if !ok {
		return
	}
	pt, err := orch.Branch(r.Context())
	if err != nil {
		writeFailure(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusCreated, pt)
}

func (h *PlaythroughHandler) handleRestart(w http.ResponseWriter, r *http.Request) {
	orch, log, ok := h.load(w, r)
	if !ok {
		return
	}
	pt, err := orch.Restart(r.Context())
	if err != nil {
		writeFailure(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusCreated, pt)
}

func (h *PlaythroughHandler) handleSync(w http.ResponseWriter, r *http.Request) {
	orch, log, ok := h.load(w, r)
	if !ok {
		return
	}
	synced, err := orch.SyncSnapshot(r.Context())
	if err != nil {
		writeFailure(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, SyncResponse{Synced: synced, Playthrough: orch.Current()})
}

func (h *PlaythroughHandler) handleStaleness(w http.ResponseWriter, r *http.Request) {
	orch, log, ok := h.load(w, r)
	if !ok {
		return
	}
	s, err := orch.Staleness(r.Context())
	if err != nil {
		writeFailure(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, s)
}

// load parses the path id and loads that playthrough into a new orchestrator.
// It writes the error response itself and reports false on failure.
func (h *PlaythroughHandler) load(w http.ResponseWriter, r *http.Request) (*playthrough.Orchestrator, *slog.Logger, bool) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	id, ok := parseID(w, r, log)
	if !ok {
		return nil, nil, false
	}
	log = logger.WithPlaythrough(log, id.String())

	orch := h.newOrchestrator(log)
	if _, err := orch.Load(r.Context(), id); err != nil {
		writeFailure(w, log, err)
		return nil, nil, false
	}
	return orch, log, true
}

func parseID(w http.ResponseWriter, r *http.Request, log *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		log.Warn("Invalid playthrough ID", "id", r.PathValue("id"), "error", err)
		writeError(w, log, http.StatusBadRequest, "Invalid playthrough ID format")
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, log *slog.Logger, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		log.Warn("Invalid request body", "error", err)
		writeError(w, log, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}
