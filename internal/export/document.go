package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/calendararchive/calendar-server/internal/domain"
)

// DefaultPerPage is the number of entries on a document page.
const DefaultPerPage = 10

const (
	generatedLayout = "January 2, 2006"
	wrapWidth       = 72
	pageBreak       = "\f"
)

// Entry is one numbered event in a Document.
type Entry struct {
	Number      int      `json:"number"`
	Title       string   `json:"title"`
	Date        string   `json:"date"`
	Category    string   `json:"category,omitempty"`
	Country     string   `json:"country,omitempty"`
	Description []string `json:"description,omitempty"`
}

// Page is a run of entries.
type Page struct {
	Number  int     `json:"number"`
	Entries []Entry `json:"entries"`
}

// Document is a printable event listing.
type Document struct {
	Title     string `json:"title"`
	Generated string `json:"generated"`
	Pages     []Page `json:"pages"`
	Total     int    `json:"total"`
}

// NewDocument lays events out in input order, perPage entries to a page.
// An empty input still yields one empty page so the header renders.
func NewDocument(events []domain.Event, title string, now time.Time, perPage int) Document {
	if title == "" {
		title = DefaultName
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}

	doc := Document{
		Title:     title,
		Generated: "Generated on " + now.Format(generatedLayout),
		Total:     len(events),
	}

	page := Page{Number: 1, Entries: make([]Entry, 0, perPage)}
	for i, ev := range events {
		if len(page.Entries) == perPage {
			doc.Pages = append(doc.Pages, page)
			page = Page{Number: page.Number + 1, Entries: make([]Entry, 0, perPage)}
		}
		page.Entries = append(page.Entries, Entry{
			Number:      i + 1,
			Title:       ev.Title,
			Date:        ev.Date.In(now.Location()).Format(generatedLayout),
			Category:    ev.Category,
			Country:     ev.Country,
			Description: wrap(ev.Description, wrapWidth),
		})
	}
	doc.Pages = append(doc.Pages, page)
	return doc
}

// RenderText writes doc as plain text. Pages after the first start with a
// form feed.
func (d Document) RenderText(w io.Writer) error {
	var b strings.Builder
	b.WriteString(d.Title + "\n")
	b.WriteString(d.Generated + "\n\n")

	for i, page := range d.Pages {
		if i > 0 {
			b.WriteString(pageBreak)
		}
		for _, e := range page.Entries {
			fmt.Fprintf(&b, "%d. %s\n", e.Number, e.Title)
			fmt.Fprintf(&b, "   Date: %s\n", e.Date)
			if e.Category != "" {
				fmt.Fprintf(&b, "   Category: %s\n", e.Category)
			}
			if e.Country != "" {
				fmt.Fprintf(&b, "   Country: %s\n", e.Country)
			}
			for _, line := range e.Description {
				fmt.Fprintf(&b, "   %s\n", line)
			}
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Page %d of %d\n", page.Number, len(d.Pages))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// wrap splits s into lines of at most width runes, breaking on spaces.
// Words longer than width stand on their own line.
func wrap(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len([]rune(line))+1+len([]rune(w)) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}
