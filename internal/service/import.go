package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/calendararchive/calendar-server/internal/domain"
	domainerrors "github.com/calendararchive/calendar-server/internal/errors"
	"github.com/calendararchive/calendar-server/internal/normalize"
	"github.com/calendararchive/calendar-server/internal/sse"
	"github.com/calendararchive/calendar-server/internal/store"
)

// MaxImportBytes bounds a single import payload.
const MaxImportBytes = 10 << 20

// ImportFormat is the syntax of a bulk import payload.
type ImportFormat string

// Supported import formats.
const (
	FormatCSV ImportFormat = "csv"
	FormatICS ImportFormat = "ics"
)

// ErrUnsupportedFormat is returned for payloads that are neither CSV nor ICS.
var ErrUnsupportedFormat = domainerrors.Validation("unsupported import format, expected CSV or ICS")

// DetectFormat picks a format from a file name or content type.
func DetectFormat(name, contentType string) (ImportFormat, error) {
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	switch strings.TrimSpace(mediaType) {
	case "text/csv", "application/csv":
		return FormatCSV, nil
	case "text/calendar":
		return FormatICS, nil
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, nil
	case ".ics", ".ical":
		return FormatICS, nil
	}
	return "", ErrUnsupportedFormat
}

// ImportRequest is one bulk import run.
type ImportRequest struct {
	Data   io.Reader
	Format ImportFormat
	// Source names the payload in reports, e.g. the uploaded file name.
	Source string
}

// RowIssue explains why a row was not imported. Line is the CSV line, or
// the 1-based VEVENT position for ICS.
type RowIssue struct {
	Title  string `json:"title,omitempty"`
	Reason string `json:"reason"`
	Line   int    `json:"line"`
}

// ImportReport summarizes an import run.
type ImportReport struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	RunID      string       `json:"run_id"`
	Format     ImportFormat `json:"format"`
	Source     string       `json:"source,omitempty"`
	ImportedBy string       `json:"imported_by"`
	Skipped    []RowIssue   `json:"skipped"`
	Failed     []RowIssue   `json:"failed"`
	Total      int          `json:"total"`
	Imported   int          `json:"imported"`
}

// ImportService loads global events in bulk. Rows are written one at a
// time with no rollback: a bad row is reported and the run continues.
type ImportService struct {
	store       store.Store
	sseManager  *sse.Manager
	location    *time.Location
	logger      *slog.Logger
	now         func() time.Time
	concurrency int
	onReport    func(*ImportReport)
}

// NewImportService creates an import service. concurrency <= 1 writes rows
// sequentially; larger values bound parallel writes.
func NewImportService(st store.Store, sseManager *sse.Manager, loc *time.Location, concurrency int, logger *slog.Logger) *ImportService {
	if loc == nil {
		loc = time.Local
	}
	return &ImportService{
		store:       st,
		sseManager:  sseManager,
		location:    loc,
		logger:      orDiscard(logger),
		now:         time.Now,
		concurrency: max(concurrency, 1),
	}
}

// SetReportHook registers fn to receive every finished report.
func (s *ImportService) SetReportHook(fn func(*ImportReport)) {
	s.onReport = fn
}

type importRow struct {
	fields map[string]string
	line   int
}

// Import parses the whole payload, then writes every row with a valid date
// to the global partition. Only a malformed payload fails the run; per-row
// problems land in the report. Writes are not canceled with ctx.
func (s *ImportService) Import(ctx context.Context, actor *domain.Actor, req ImportRequest) (*ImportReport, error) {
	if err := requireAdmin(actor, "import events"); err != nil {
		return nil, err
	}

	rows, err := s.parse(req)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{
		StartedAt:  s.now(),
		RunID:      uuid.NewString(),
		Format:     req.Format,
		Source:     req.Source,
		ImportedBy: actor.ID(),
		Skipped:    []RowIssue{},
		Failed:     []RowIssue{},
		Total:      len(rows),
	}

	type pending struct {
		doc   store.Document
		title string
		line  int
	}
	writes := make([]pending, 0, len(rows))
	for _, row := range rows {
		doc, issue := s.buildDocument(row, actor.ID())
		if issue != nil {
			report.Skipped = append(report.Skipped, *issue)
			continue
		}
		writes = append(writes, pending{doc: doc, title: doc.String(store.FieldTitle), line: row.line})
	}

	writeCtx := context.WithoutCancel(ctx)
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, w := range writes {
		g.Go(func() error {
			_, err := s.store.CreateEvent(writeCtx, store.Global(), w.doc)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed = append(report.Failed, RowIssue{Line: w.line, Title: w.title, Reason: err.Error()})
				return nil
			}
			report.Imported++
			return nil
		})
	}
	_ = g.Wait() // row failures are recorded, never returned

	slices.SortFunc(report.Failed, func(a, b RowIssue) int { return a.Line - b.Line })
	report.FinishedAt = s.now()

	s.logger.Info("import completed",
		"run_id", report.RunID,
		"format", report.Format,
		"source", report.Source,
		"total", report.Total,
		"imported", report.Imported,
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		"duration", report.FinishedAt.Sub(report.StartedAt))

	if s.onReport != nil {
		s.onReport(report)
	}

	if s.sseManager != nil {
		s.sseManager.Emit(sse.NewImportCompletedEvent(sse.ImportCompletedEventData{
			StartedAt:  report.StartedAt,
			FinishedAt: report.FinishedAt,
			RunID:      report.RunID,
			Format:     string(report.Format),
			Source:     report.Source,
			ImportedBy: report.ImportedBy,
			Total:      report.Total,
			Imported:   report.Imported,
			Skipped:    len(report.Skipped),
			Failed:     len(report.Failed),
		}))
	}
	return report, nil
}

// buildDocument applies import defaults. A row without a usable date is
// skipped.
func (s *ImportService) buildDocument(row importRow, importedBy string) (store.Document, *RowIssue) {
	title := row.fields["title"]
	date, ok := normalize.Time(row.fields["date"], s.location)
	if !ok {
		reason := "invalid date"
		if row.fields["date"] == "" {
			reason = "missing date"
		}
		return nil, &RowIssue{Line: row.line, Title: title, Reason: fmt.Sprintf("%s %q", reason, row.fields["date"])}
	}

	doc := store.Document{
		store.FieldTitle:       cmpOr(title, domain.DefaultImportTitle),
		store.FieldDate:        date.UTC().Format(time.RFC3339Nano),
		store.FieldDescription: row.fields["description"],
		store.FieldCategory:    cmpOr(row.fields["category"], domain.DefaultGlobalCategory),
		store.FieldCountry:     row.fields["country"],
		store.FieldColor:       domain.DefaultGlobalColor,
	}
	if importedBy != "" {
		doc[store.FieldImportedBy] = importedBy
	}
	return doc, nil
}

func cmpOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func (s *ImportService) parse(req ImportRequest) ([]importRow, error) {
	if req.Data == nil {
		return nil, domainerrors.Parse("empty import payload", nil)
	}
	data, err := io.ReadAll(io.LimitReader(req.Data, MaxImportBytes+1))
	if err != nil {
		return nil, domainerrors.Parse("read import payload", err)
	}
	if len(data) > MaxImportBytes {
		return nil, domainerrors.Parse(fmt.Sprintf("import payload exceeds %d bytes", MaxImportBytes), nil)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, domainerrors.Parse("empty import payload", nil)
	}

	switch req.Format {
	case FormatCSV:
		return parseCSV(data)
	case FormatICS:
		return s.parseICS(data)
	default:
		return nil, ErrUnsupportedFormat
	}
}

// parseCSV reads a header row and one record per line. Header names are
// trimmed and lower-cased; rows whose cells are all blank are dropped.
func parseCSV(data []byte) ([]importRow, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\ufeff"))))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, domainerrors.Parse("read CSV header", err)
	}
	for i, name := range header {
		header[i] = strings.ToLower(strings.TrimSpace(name))
	}

	var rows []importRow
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domainerrors.Parse("malformed CSV", err)
		}
		line, _ := r.FieldPos(0)

		fields := make(map[string]string, len(header))
		blank := true
		for i, value := range record {
			value = strings.TrimSpace(value)
			if value != "" {
				blank = false
			}
			if i < len(header) && header[i] != "" {
				fields[header[i]] = value
			}
		}
		if blank {
			continue
		}
		rows = append(rows, importRow{line: line, fields: fields})
	}
	return rows, nil
}

// parseICS maps each VEVENT onto the CSV columns.
func (s *ImportService) parseICS(data []byte) ([]importRow, error) {
	cal, err := ical.ParseCalendar(bytes.NewReader(data))
	if err != nil {
		return nil, domainerrors.Parse("malformed calendar", err)
	}

	events := cal.Events()
	rows := make([]importRow, 0, len(events))
	for i, ve := range events {
		fields := map[string]string{
			"title":       propValue(ve, ical.ComponentPropertySummary),
			"description": propValue(ve, ical.ComponentPropertyDescription),
			"country":     propValue(ve, ical.ComponentPropertyLocation),
			"date":        s.icsStart(ve),
		}
		if cats := propValue(ve, ical.ComponentPropertyCategories); cats != "" {
			first, _, _ := strings.Cut(cats, ",")
			fields["category"] = strings.TrimSpace(first)
		}

		dates := s.occurrences(ve)
		if len(dates) == 0 {
			rows = append(rows, importRow{line: i + 1, fields: fields})
			continue
		}
		for _, date := range dates {
			occ := maps.Clone(fields)
			occ["date"] = date
			rows = append(rows, importRow{line: i + 1, fields: occ})
		}
	}
	return rows, nil
}

func propValue(ve *ical.VEvent, prop ical.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}

