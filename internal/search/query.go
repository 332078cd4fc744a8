package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Sort orders.
const (
	SortRelevance = "relevance"
	SortDate      = "date"
)

// Params configures a search.
type Params struct {
	Query    string
	Country  string
	Category string
	From     time.Time // inclusive, zero for unbounded
	To       time.Time // inclusive, zero for unbounded

	// UserID selects the personal events visible besides global ones.
	// Empty searches global events only.
	UserID string

	Limit     int
	Offset    int
	SortBy    string
	Highlight bool
}

// DefaultParams returns the defaults used by the API.
func DefaultParams() Params {
	return Params{Limit: 20, SortBy: SortRelevance, Highlight: true}
}

// Result is a page of hits.
type Result struct {
	Query  string `json:"query"`
	Total  uint64 `json:"total"`
	TookMs int64  `json:"took_ms"`
	Hits   []Hit  `json:"hits"`
}

// Hit is one matching event.
type Hit struct {
	Date        time.Time         `json:"date"`
	Highlights  map[string]string `json:"highlights,omitempty"`
	EventID     string            `json:"event_id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Category    string            `json:"category,omitempty"`
	Country     string            `json:"country,omitempty"`
	Score       float64           `json:"score"`
	IsPersonal  bool              `json:"is_personal"`
}

// Search runs params against the index. Results never include another
// user's personal events.
func (s *SearchIndex) Search(ctx context.Context, params Params) (*Result, error) {
	if params.Limit <= 0 {
		params.Limit = DefaultParams().Limit
	}

	req := bleve.NewSearchRequestOptions(buildQuery(params), params.Limit, params.Offset, false)
	switch params.SortBy {
	case SortDate:
		req.SortBy([]string{"date", "-_score"})
	default:
		req.SortBy([]string{"-_score", "date"})
	}
	if params.Highlight {
		req.Highlight = bleve.NewHighlight()
		req.Highlight.AddField("title")
		req.Highlight.AddField("description")
	}
	req.Fields = []string{"event_id", "title", "description", "category", "country", "date", "personal"}

	s.mu.RLock()
	res, err := s.index.SearchInContext(ctx, req)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}

	out := &Result{
		Query:  params.Query,
		Total:  res.Total,
		TookMs: res.Took.Milliseconds(),
		Hits:   make([]Hit, 0, len(res.Hits)),
	}
	for _, h := range res.Hits {
		hit := Hit{
			EventID:     stringField(h.Fields, "event_id"),
			Title:       stringField(h.Fields, "title"),
			Description: stringField(h.Fields, "description"),
			Category:    stringField(h.Fields, "category"),
			Country:     stringField(h.Fields, "country"),
			Score:       h.Score,
		}
		if ms, ok := h.Fields["date"].(float64); ok {
			hit.Date = time.UnixMilli(int64(ms)).In(s.location)
		}
		if p, ok := h.Fields["personal"].(bool); ok {
			hit.IsPersonal = p
		}
		if len(h.Fragments) > 0 {
			hit.Highlights = make(map[string]string, len(h.Fragments))
			for field, fragments := range h.Fragments {
				if len(fragments) > 0 {
					hit.Highlights[field] = fragments[0]
				}
			}
		}
		out.Hits = append(out.Hits, hit)
	}
	return out, nil
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}

// buildQuery combines the text match with the visibility and field
// filters. Every clause must hold.
func buildQuery(params Params) query.Query {
	clauses := []query.Query{textQuery(params.Query), visibilityQuery(params.UserID)}

	if params.Country != "" {
		clauses = append(clauses, termQuery("country", params.Country))
	}
	if params.Category != "" {
		clauses = append(clauses, termQuery("category", params.Category))
	}
	if !params.From.IsZero() || !params.To.IsZero() {
		clauses = append(clauses, dateQuery(params.From, params.To))
	}
	return bleve.NewConjunctionQuery(clauses...)
}

func textQuery(text string) query.Query {
	text = strings.TrimSpace(text)
	if text == "" {
		return bleve.NewMatchAllQuery()
	}

	title := bleve.NewMatchQuery(text)
	title.SetField("title")
	title.SetBoost(3)

	desc := bleve.NewMatchQuery(text)
	desc.SetField("description")

	prefix := bleve.NewPrefixQuery(strings.ToLower(text))
	prefix.SetField("title")
	prefix.SetBoost(2)

	options := []query.Query{title, desc, prefix}
	if len([]rune(text)) >= 4 {
		fuzzy := bleve.NewMatchQuery(text)
		fuzzy.SetField("title")
		fuzzy.SetFuzziness(1)
		options = append(options, fuzzy)
	}
	return bleve.NewDisjunctionQuery(options...)
}

func visibilityQuery(userID string) query.Query {
	options := []query.Query{termQuery("visibility", visibilityGlobal)}
	if userID != "" {
		options = append(options, termQuery("visibility", "user:"+userID))
	}
	return bleve.NewDisjunctionQuery(options...)
}

func termQuery(field, term string) query.Query {
	q := bleve.NewTermQuery(term)
	q.SetField(field)
	return q
}

func dateQuery(from, to time.Time) query.Query {
	var lo, hi *float64
	if !from.IsZero() {
		v := float64(from.UnixMilli())
		lo = &v
	}
	if !to.IsZero() {
		v := float64(to.UnixMilli())
		hi = &v
	}
	inclusive := true
	q := bleve.NewNumericRangeInclusiveQuery(lo, hi, &inclusive, &inclusive)
	q.SetField("date")
	return q
}
