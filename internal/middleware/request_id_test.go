package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vdavid/statusreport/backend/internal/models"
)

func TestWithRequestID(t *testing.T) {
	var seen string
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := RequestIDFromContext(r.Context())
		if !ok {
			t.Error("Expected request ID in context")
			return
		}
		seen = id
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates an ID when none is sent", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", rr.Code)
		}
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{8}$`), seen)
		assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
	})

	t.Run("keeps the caller's ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, "trace-42")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Equal(t, "trace-42", seen)
		assert.Equal(t, "trace-42", rr.Header().Get(RequestIDHeader))
	})

	t.Run("replaces an oversized ID", func(t *testing.T) {
		long := make([]byte, maxIncomingIDLength+1)
		for i := range long {
			long[i] = 'x'
		}
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(RequestIDHeader, string(long))
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		assert.Len(t, seen, 8)
	})
}

func TestRequestIDFromContextMissing(t *testing.T) {
	req := httptest.NewRequest("GET", "/test", nil)
	_, ok := RequestIDFromContext(req.Context())
	assert.False(t, ok)
}

func TestRecover(t *testing.T) {
	handler := WithRequestID(Recover(zap.NewNop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("secret internal detail")
	})))

	req := httptest.NewRequest("GET", "/api/v1/report", nil)
	req.Header.Set(RequestIDHeader, "abcd1234")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("Expected status 500, got %d", rr.Code)
	}
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.NotContains(t, rr.Body.String(), "secret internal detail")

	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "abcd1234", body.RequestID)
	assert.Equal(t, "Unexpected server error. Please contact support with Request ID: abcd1234", body.Detail)
}
