package api

import (
	"archive/zip"
	"bytes"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calendararchive/calendar-server/internal/backup"
)

func TestBackups_AdminOnly(t *testing.T) {
	ts := setupTestServer(t, Options{})
	user := ts.register(t, "bob@example.com")

	resp := ts.api.Post("/api/v1/admin/backups")
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	resp = ts.api.Post("/api/v1/admin/backups", bearer(user))
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, resp))

	resp = ts.api.Get("/api/v1/admin/backups", bearer(user))
	assert.Equal(t, http.StatusForbidden, resp.Code)
}

func TestBackups_Lifecycle(t *testing.T) {
	ts := setupTestServer(t, Options{})
	admin := ts.register(t, "admin@example.com")
	ts.addEvent(t, admin, map[string]any{"title": "New Year", "date": "2026-01-01"})

	resp := ts.api.Post("/api/v1/admin/backups", bearer(admin))
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	created := decode[backup.Result](t, resp)
	assert.Equal(t, 1, created.Counts.GlobalEvents)
	assert.Equal(t, 1, created.Counts.Users)

	resp = ts.api.Get("/api/v1/admin/backups", bearer(admin))
	require.Equal(t, http.StatusOK, resp.Code)
	list := decode[struct {
		Backups []backup.Info `json:"backups"`
	}](t, resp)
	require.Len(t, list.Backups, 1)
	assert.Equal(t, created.ID, list.Backups[0].ID)

	resp = ts.api.Get("/api/v1/admin/backups/"+created.ID, bearer(admin))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/zip", resp.Header().Get("Content-Type"))
	body := resp.Body.Bytes()
	_, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	assert.NoError(t, err)

	resp = ts.api.Get("/api/v1/admin/backups/"+created.ID+"/validate", bearer(admin))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, decode[backup.ValidationResult](t, resp).Valid)

	resp = ts.api.Post("/api/v1/admin/backups/"+created.ID+"/restore?dry_run=true", bearer(admin))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	restored := decode[backup.RestoreResult](t, resp)
	assert.True(t, restored.DryRun)
	assert.Equal(t, 1, restored.Skipped["events"])

	resp = ts.api.Delete("/api/v1/admin/backups/"+created.ID, bearer(admin))
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = ts.api.Get("/api/v1/admin/backups/"+created.ID, bearer(admin))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, resp))
}
