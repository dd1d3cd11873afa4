package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vdavid/statusreport/backend/internal/models"
)

const docsPath = "/api/v1/docs"

type RootHandler struct {
	projectName string
	version     string
	logger      *zap.Logger
}

func NewRootHandler(projectName, version string, logger *zap.Logger) *RootHandler {
	return &RootHandler{projectName: projectName, version: version, logger: logger}
}

// Get returns the welcome payload.
func (h *RootHandler) Get(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.logger, http.StatusOK, models.RootResponse{
		Message: "Welcome to the " + h.projectName,
		Version: h.version,
		Docs:    docsPath,
	})
}
