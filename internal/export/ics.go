// Package export renders event collections for download: an iCalendar
// feed and a paginated document.
package export

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/calendararchive/calendar-server/internal/domain"
	"github.com/calendararchive/calendar-server/internal/util"
)

// Calendar identity written into every ICS export.
const (
	ProductID = "-//Calendar Archive//Calendar Events//EN"
	UIDDomain = "calendararchive.com"

	DefaultName = "Calendar Events"
)

// ICS renders events as an iCalendar document. Each event becomes an
// all-day VEVENT on its calendar date in loc.
func ICS(events []domain.Event, name string, loc *time.Location, now time.Time) string {
	if loc == nil {
		loc = time.Local
	}
	if name == "" {
		name = DefaultName
	}

	cal := ical.NewCalendar()
	cal.SetProductId(ProductID)
	cal.SetCalscale("GREGORIAN")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(name)

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID + "@" + UIDDomain)
		ve.SetDtStampTime(now.UTC())
		ve.SetAllDayStartAt(ev.Date.In(loc))
		ve.SetSummary(ev.Title)
		ve.SetDescription(ev.Description)
		if ev.Category != "" {
			ve.SetProperty(ical.ComponentPropertyCategories, ev.Category)
		}
		if ev.Country != "" {
			ve.SetLocation(ev.Country)
		}
	}
	return cal.Serialize()
}

// FileName returns the download name for an export titled title.
func FileName(title, ext string) string {
	return util.SlugOr(title, util.Slug(DefaultName)) + "." + ext
}
