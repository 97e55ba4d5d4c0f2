package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/novel-engine/internal/middleware"
	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/storage"
)

// maxProjectBytes bounds an uploaded project document.
const maxProjectBytes = 4 << 20

type SaveProjectResponse struct {
	Project *cartridge.Project `json:"project"`
	Repairs []cartridge.Repair `json:"repairs"`
	// Playable is false when the repaired graph still fails validation,
	// e.g. a missing starting scene. The project is stored either way.
	Playable bool   `json:"playable"`
	Error    string `json:"error,omitempty"`
}

type ValidateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type ProjectHandler struct {
	store  storage.Storage
	logger *slog.Logger
}

func NewProjectHandler(store storage.Storage, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{store: store, logger: logger}
}

// Register mounts the project routes:
// PUT  /v1/projects/{id}          - Sanitize and store a project
// GET  /v1/projects/{id}          - Read a stored project
// POST /v1/projects/{id}/validate - Validate the body, or the stored project when the body is empty
func (h *ProjectHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("PUT /v1/projects/{id}", h.handlePut)
	mux.HandleFunc("GET /v1/projects/{id}", h.handleGet)
	mux.HandleFunc("POST /v1/projects/{id}/validate", h.handleValidate)
}

func (h *ProjectHandler) handlePut(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger).With("project_id", r.PathValue("id"))

	var p cartridge.Project
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxProjectBytes)).Decode(&p); err != nil {
		log.Warn("Invalid project body", "error", err)
		writeError(w, log, http.StatusBadRequest, "Invalid project JSON: "+err.Error())
		return
	}
	if p.ID != "" && p.ID != r.PathValue("id") {
		writeError(w, log, http.StatusBadRequest, "Project id in body does not match path")
		return
	}
	p.ID = r.PathValue("id")

	saved, repairs, err := storage.SaveProject(r.Context(), h.store, &p, log)
	if err != nil {
		writeFailure(w, log, err)
		return
	}

	resp := SaveProjectResponse{Project: saved, Repairs: repairs, Playable: true}
	if resp.Repairs == nil {
		resp.Repairs = []cartridge.Repair{}
	}
	if err := cartridge.ValidateProject(saved); err != nil {
		resp.Playable = false
		resp.Error = err.Error()
	}
	log.Info("Project saved", "repairs", len(repairs), "playable", resp.Playable)
	writeJSON(w, log, http.StatusOK, resp)
}

func (h *ProjectHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)
	p, err := h.store.LoadProject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeFailure(w, log, err)
		return
	}
	writeJSON(w, log, http.StatusOK, p)
}

func (h *ProjectHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	log := middleware.LoggerFrom(r.Context(), h.logger)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxProjectBytes))
	if err != nil {
		writeError(w, log, http.StatusBadRequest, "Failed to read body")
		return
	}

	if len(body) == 0 {
		p, loadErr := h.store.LoadProject(r.Context(), r.PathValue("id"))
		if loadErr != nil {
			writeFailure(w, log, loadErr)
			return
		}
		err = cartridge.ValidateProject(p)
	} else {
		_, err = cartridge.ValidateJSON(body)
	}

	if err != nil {
		writeJSON(w, log, http.StatusUnprocessableEntity, ValidateResponse{Error: err.Error()})
		return
	}
	writeJSON(w, log, http.StatusOK, ValidateResponse{Valid: true})
}
