package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
	"github.com/calendararchive/calendar-server/internal/logger"
	"github.com/calendararchive/calendar-server/internal/store"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "remote addr", remoteAddr: "192.0.2.1:1234", want: "192.0.2.1"},
		{name: "ipv6 remote addr", remoteAddr: "[2001:db8::1]:8080", want: "2001:db8::1"},
		{
			name:       "forwarded for wins",
			remoteAddr: "10.0.0.1:1",
			headers:    map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2", "X-Real-IP": "198.51.100.7"},
			want:       "203.0.113.5",
		},
		{
			name:       "real ip",
			remoteAddr: "10.0.0.1:1",
			headers:    map[string]string{"X-Real-IP": " 198.51.100.7 "},
			want:       "198.51.100.7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(r))
		})
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(1, time.Hour, 1)
	t.Cleanup(limiter.Stop)

	var buf bytes.Buffer
	log := logger.New(logger.Config{Writer: &buf, Format: logger.FormatJSON}).Logger

	handler := RateLimitMiddleware(limiter, log, "/limited")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(method, path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(method, path, http.NoBody)
		r.RemoteAddr = "192.0.2.1:5555"
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/limited").Code)

	w := do(http.MethodPost, "/limited/")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, buf.String(), "rate limit exceeded")

	assert.Equal(t, http.StatusOK, do(http.MethodGet, "/limited").Code)
	assert.Equal(t, http.StatusOK, do(http.MethodPost, "/other").Code)
}

func TestErrorHandler(t *testing.T) {
	RegisterErrorHandler()

	tests := []struct {
		name       string
		err        error
		status     int
		wantStatus int
		wantCode   string
	}{
		{
			name:       "domain error keeps its status",
			err:        domainerrors.Forbidden("not yours"),
			status:     http.StatusInternalServerError,
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name:       "wrapped domain error",
			err:        fmt.Errorf("handler: %w", domainerrors.NotFound("event not found")),
			status:     http.StatusInternalServerError,
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "store not found",
			err:        store.ErrNotFound.WithMessage("missing"),
			status:     http.StatusInternalServerError,
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "unknown error stays internal",
			err:        errors.New("disk on fire"),
			status:     http.StatusInternalServerError,
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL",
		},
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "RATE_LIMITED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errs []error
			if tt.err != nil {
				errs = append(errs, tt.err)
			}
			got := huma.NewError(tt.status, "request failed", errs...)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantStatus, got.GetStatus())

			var apiErr *APIError
			require.ErrorAs(t, got, &apiErr)
			assert.Equal(t, tt.wantCode, apiErr.Code)
		})
	}
}
