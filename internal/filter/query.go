package filter

import (
	"net/url"
	"strconv"
	"strings"
)

// FromQuery reads criteria from the search, country, category and strict
// query parameters. An unparseable strict value counts as false.
func FromQuery(q url.Values) Criteria {
	strict, _ := strconv.ParseBool(q.Get("strict"))
	return Criteria{
		SearchTerm: strings.TrimSpace(q.Get("search")),
		Country:    strings.TrimSpace(q.Get("country")),
		Category:   strings.TrimSpace(q.Get("category")),
		Strict:     strict,
	}
}
