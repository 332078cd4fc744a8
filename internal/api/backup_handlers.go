package api

import (
	"context"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2"

	"github.com/calendararchive/calendar-server/internal/backup"
	"github.com/calendararchive/calendar-server/internal/domain"
	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
)

func (s *Server) registerBackupRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createBackup",
		Method:        http.MethodPost,
		Path:          "/api/v1/admin/backups",
		Summary:       "Create backup",
		Description:   "Writes a zip archive of all users, notifications and events",
		Tags:          []string{"Backup"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateBackup)

	huma.Register(s.api, huma.Operation{
		OperationID: "listBackups",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/backups",
		Summary:     "List backups",
		Tags:        []string{"Backup"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListBackups)

	huma.Register(s.api, huma.Operation{
		OperationID: "downloadBackup",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/backups/{id}",
		Summary:     "Download backup",
		Tags:        []string{"Backup"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDownloadBackup)

	huma.Register(s.api, huma.Operation{
		OperationID: "validateBackup",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/backups/{id}/validate",
		Summary:     "Validate backup",
		Description: "Checks the manifest against the archive contents",
		Tags:        []string{"Backup"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleValidateBackup)

	huma.Register(s.api, huma.Operation{
		OperationID:   "deleteBackup",
		Method:        http.MethodDelete,
		Path:          "/api/v1/admin/backups/{id}",
		Summary:       "Delete backup",
		Tags:          []string{"Backup"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusNoContent,
	}, s.handleDeleteBackup)

	huma.Register(s.api, huma.Operation{
		OperationID: "restoreBackup",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/backups/{id}/restore",
		Summary:     "Restore backup",
		Description: "Merges a backup into the live data. Existing users and events are kept.",
		Tags:        []string{"Backup"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRestoreBackup)
}

// BackupIDInput addresses one backup.
type BackupIDInput struct {
	Authorization string `header:"Authorization"`
	ID            string `path:"id" pattern:"^[A-Za-z0-9_-]+$" maxLength:"100"`
}

// RestoreBackupInput adds restore options.
type RestoreBackupInput struct {
	BackupIDInput
	DryRun bool `query:"dry_run" doc:"Count what would be restored without writing"`
}

// BackupOutput wraps a created backup.
type BackupOutput struct {
	Body *backup.Result
}

// BackupListOutput wraps the backup listing.
type BackupListOutput struct {
	Body struct {
		Backups []backup.Info `json:"backups"`
	}
}

// ValidateBackupOutput wraps a validation report.
type ValidateBackupOutput struct {
	Body *backup.ValidationResult
}

// RestoreBackupOutput wraps a restore report.
type RestoreBackupOutput struct {
	Body *backup.RestoreResult
}

// requireBackupAdmin resolves an admin actor and checks backups are enabled.
func (s *Server) requireBackupAdmin(ctx context.Context, authHeader string) (*domain.Actor, error) {
	actor, err := s.requireUser(ctx, authHeader)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, domainerrors.Forbidden("admin access required")
	}
	if s.services.Backup == nil {
		return nil, huma.Error503ServiceUnavailable("backups are not available")
	}
	return actor, nil
}

func (s *Server) handleCreateBackup(ctx context.Context, input *AdminInput) (*BackupOutput, error) {
	if _, err := s.requireBackupAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}
	result, err := s.services.Backup.Create(ctx)
	if err != nil {
		return nil, err
	}
	return &BackupOutput{Body: result}, nil
}

func (s *Server) handleListBackups(ctx context.Context, input *AdminInput) (*BackupListOutput, error) {
	if _, err := s.requireBackupAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}
	backups, err := s.services.Backup.List(ctx)
	if err != nil {
		return nil, err
	}
	out := &BackupListOutput{}
	out.Body.Backups = backups
	return out, nil
}

func (s *Server) handleDownloadBackup(ctx context.Context, input *BackupIDInput) (*FileOutput, error) {
	if _, err := s.requireBackupAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}
	info, err := s.services.Backup.Get(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(info.Path)
	if err != nil {
		return nil, err
	}
	return &FileOutput{
		ContentType:        "application/zip",
		ContentDisposition: attachment(info.ID + ".calendar.zip"),
		Body:               data,
	}, nil
}

func (s *Server) handleValidateBackup(ctx context.Context, input *BackupIDInput) (*ValidateBackupOutput, error) {
	if _, err := s.requireBackupAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}
	result, err := s.services.Backup.Validate(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &ValidateBackupOutput{Body: result}, nil
}

func (s *Server) handleDeleteBackup(ctx context.Context, input *BackupIDInput) (*struct{}, error) {
	if _, err := s.requireBackupAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}
	if err := s.services.Backup.Delete(ctx, input.ID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Server) handleRestoreBackup(ctx context.Context, input *RestoreBackupInput) (*RestoreBackupOutput, error) {
	actor, err := s.requireBackupAdmin(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	s.logger.Info("restore requested",
		"backup_id", input.ID,
		"dry_run", input.DryRun,
		"by", actor.ID())
	result, err := s.services.Backup.Restore(ctx, input.ID, backup.RestoreOptions{DryRun: input.DryRun})
	if err != nil {
		return nil, err
	}
	return &RestoreBackupOutput{Body: result}, nil
}
