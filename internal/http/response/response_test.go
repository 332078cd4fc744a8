package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
	"github.com/calendararchive/calendar-server/internal/store"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusCreated, map[string]string{"id": "evt-1"}, nil)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"evt-1"}`, w.Body.String())
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		write  func(http.ResponseWriter)
		code   string
		status int
	}{
		{func(w http.ResponseWriter) { Unauthorized(w, "no", nil) }, "UNAUTHORIZED", http.StatusUnauthorized},
		{func(w http.ResponseWriter) { Forbidden(w, "no", nil) }, "FORBIDDEN", http.StatusForbidden},
		{func(w http.ResponseWriter) { MethodNotAllowed(w, nil) }, "VALIDATION", http.StatusMethodNotAllowed},
		{func(w http.ResponseWriter) { InternalError(w, "no", nil) }, "INTERNAL", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decode(t, w).Code)
		})
	}
}

func TestTooManyRequests(t *testing.T) {
	w := httptest.NewRecorder()
	TooManyRequests(w, "slow down", 1500*time.Millisecond, nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decode(t, w).Code)

	w = httptest.NewRecorder()
	TooManyRequests(w, "slow down", 0, nil)
	assert.Empty(t, w.Header().Get("Retry-After"))
}

func TestHandleError(t *testing.T) {
	t.Run("domain error keeps details", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleError(w, domainerrors.ValidationWithDetails("bad", map[string]string{"date": "required"}), nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		body := decode(t, w)
		assert.Equal(t, "VALIDATION", body.Code)
		assert.Equal(t, map[string]any{"date": "required"}, body.Details)
	})

	t.Run("store error", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleError(w, store.ErrNotFound.WithMessage("event not found"), nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, ErrorBody{Code: "NOT_FOUND", Message: "event not found"}, decode(t, w))
	})

	t.Run("unknown error hides message", func(t *testing.T) {
		w := httptest.NewRecorder()
		HandleError(w, errors.New("disk on fire"), nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "disk on fire")
	})
}

func TestCodeForStatus(t *testing.T) {
	assert.Equal(t, domainerrors.CodeValidation, CodeForStatus(http.StatusUnprocessableEntity))
	assert.Equal(t, domainerrors.CodeConflict, CodeForStatus(http.StatusConflict))
	assert.Equal(t, domainerrors.CodeInternal, CodeForStatus(http.StatusTeapot))
}
