package api

import (
	"bytes"
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/calendararchive/calendar-server/internal/export"
)

func (s *Server) registerExportRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "exportICS",
		Method:      http.MethodGet,
		Path:        "/api/v1/export/ics",
		Summary:     "Export personal events as ICS",
		Tags:        []string{"Export"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleExportICS)

	huma.Register(s.api, huma.Operation{
		OperationID: "exportDocument",
		Method:      http.MethodGet,
		Path:        "/api/v1/export/document",
		Summary:     "Export personal events as a document",
		Description: "Returns a paginated plain-text listing of the caller's personal events",
		Tags:        []string{"Export"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleExportDocument)
}

// ExportInput selects the export title.
type ExportInput struct {
	Authorization string `header:"Authorization"`
	Name          string `query:"name" maxLength:"100" doc:"Calendar or document title"`
}

// ExportDocumentInput adds pagination.
type ExportDocumentInput struct {
	ExportInput
	PerPage int `query:"per_page" minimum:"0" maximum:"100" doc:"Entries per page (0 uses the default)"`
}

// FileOutput is a downloadable file.
type FileOutput struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func attachment(name string) string {
	return `attachment; filename="` + name + `"`
}

func (s *Server) handleExportICS(ctx context.Context, input *ExportInput) (*FileOutput, error) {
	actor, err := s.requireUser(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	events, err := s.services.Calendar.PersonalEvents(ctx, actor)
	if err != nil {
		return nil, err
	}

	name := input.Name
	if name == "" {
		name = export.DefaultName
	}
	cal := export.ICS(events, name, s.services.Calendar.Location(), s.services.Calendar.Now())
	return &FileOutput{
		ContentType:        "text/calendar; charset=utf-8",
		ContentDisposition: attachment(export.FileName(name, "ics")),
		Body:               []byte(cal),
	}, nil
}

func (s *Server) handleExportDocument(ctx context.Context, input *ExportDocumentInput) (*FileOutput, error) {
	actor, err := s.requireUser(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}
	events, err := s.services.Calendar.PersonalEvents(ctx, actor)
	if err != nil {
		return nil, err
	}

	title := input.Name
	if title == "" {
		title = "My Events"
	}
	doc := export.NewDocument(events, title, s.services.Calendar.Now(), input.PerPage)

	var buf bytes.Buffer
	if err := doc.RenderText(&buf); err != nil {
		return nil, huma.Error500InternalServerError("failed to render document", err)
	}
	return &FileOutput{
		ContentType:        "text/plain; charset=utf-8",
		ContentDisposition: attachment(export.FileName(title, "txt")),
		Body:               buf.Bytes(),
	}, nil
}
