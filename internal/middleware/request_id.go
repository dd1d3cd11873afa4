package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vdavid/statusreport/backend/internal/logging"
	"github.com/vdavid/statusreport/backend/internal/models"
)

// RequestIDHeader is read from incoming requests and echoed on every response.
const RequestIDHeader = "X-Request-ID"

const maxIncomingIDLength = 64

// WithRequestID assigns a short request ID unless the caller sent a usable one,
// stores it in the request context and echoes it in the response header.
func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if requestID == "" || len(requestID) > maxIncomingIDLength {
			requestID = NewRequestID()
		}

		w.Header().Set(RequestIDHeader, requestID)
		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NewRequestID returns 8 random hex characters.
func NewRequestID() string {
	return uuid.NewString()[:8]
}

// RequestIDFromContext returns the request ID from the context.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	return logging.RequestIDFromContext(ctx)
}

// Recover turns a panic in a later handler into the generic 500 payload.
// The panic value only goes to the log.
func Recover(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			requestID, _ := RequestIDFromContext(r.Context())
			logger.Error("Recovered from panic while handling request",
				logging.RequestID(requestID),
				zap.String("path", r.URL.Path),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)

			var buf bytes.Buffer
			_ = json.NewEncoder(&buf).Encode(models.ErrorResponse{
				Detail:    fmt.Sprintf(UnexpectedErrorDetail, requestID),
				RequestID: requestID,
			})
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write(buf.Bytes())
		}()

		next.ServeHTTP(w, r)
	})
}

// UnexpectedErrorDetail is the user-facing detail for any unhandled failure.
const UnexpectedErrorDetail = "Unexpected server error. Please contact support with Request ID: %s"
