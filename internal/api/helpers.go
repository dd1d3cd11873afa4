package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/vdavid/statusreport/backend/internal/models"
)

// writeJSON encodes v to a buffer first so a failed encoding never leaves a partial body.
func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Warn("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, detail, requestID string) {
	writeJSON(w, logger, status, models.ErrorResponse{Detail: detail, RequestID: requestID})
}
