package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jwebster45206/novel-engine/internal/playthrough"
	"github.com/jwebster45206/novel-engine/pkg/cartridge"
	"github.com/jwebster45206/novel-engine/pkg/state"
	"github.com/jwebster45206/novel-engine/pkg/storage"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, msg string) {
	writeJSON(w, logger, status, ErrorResponse{Error: msg})
}

// writeFailure maps domain errors onto HTTP status codes.
func writeFailure(w http.ResponseWriter, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	} else {
		logger.Warn("Request rejected", "error", err, "status", status)
	}
	writeError(w, logger, status, err.Error())
}

func statusFor(err error) int {
	var verr *cartridge.ValidationError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrVersionConflict),
		errors.Is(err, playthrough.ErrGameEnded),
		errors.Is(err, playthrough.ErrBranchRequired):
		return http.StatusConflict
	case errors.Is(err, playthrough.ErrInvalidProject), errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, playthrough.ErrEmptyTurn),
		errors.Is(err, playthrough.ErrInvalidSetting),
		errors.Is(err, state.ErrLineOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, playthrough.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
