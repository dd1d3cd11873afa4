package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/vdavid/statusreport/backend/internal/logging"
	"github.com/vdavid/statusreport/backend/internal/middleware"
	"github.com/vdavid/statusreport/backend/internal/models"
	"github.com/vdavid/statusreport/backend/internal/trello"
)

// ReportRunner produces one status report.
type ReportRunner interface {
	Run(ctx context.Context, requestID string) (*models.ReportResponse, error)
}

// ReportHandler serves GET /api/v1/report.
type ReportHandler struct {
	runner ReportRunner
	logger *zap.Logger
}

func NewReportHandler(runner ReportRunner, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{runner: runner, logger: logger}
}

// Get runs the pipeline and maps its failures to status codes.
// Board failures keep their own code; anything else is a 500 with a generic detail.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	requestID, ok := middleware.RequestIDFromContext(r.Context())
	if !ok {
		requestID = middleware.NewRequestID()
	}
	logger := logging.FromContext(r.Context(), h.logger)

	resp, err := h.runner.Run(r.Context(), requestID)
	if err != nil {
		var apiErr *trello.APIError
		if errors.As(err, &apiErr) {
			logger.Warn("Report aborted by board failure",
				zap.Int("status", apiErr.StatusCode), zap.Error(err))
			writeError(w, logger, apiErr.StatusCode,
				fmt.Sprintf("%s (Request ID: %s)", apiErr.Detail, requestID), requestID)
			return
		}

		logger.Error("Report generation failed unexpectedly", zap.Error(err))
		writeError(w, logger, http.StatusInternalServerError,
			fmt.Sprintf(middleware.UnexpectedErrorDetail, requestID), requestID)
		return
	}

	writeJSON(w, logger, http.StatusOK, resp)
}
