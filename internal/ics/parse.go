package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "runon/internal/log"
	"runon/internal/model"
)

// Entry is one VEVENT before recurrence expansion.
type Entry struct {
	Feed Feed

	UID         string
	Summary     string
	Description string
	Location    string
	URL         string
	Geo         *model.Coordinate

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule   string
	ExDates []time.Time

	// RecurrenceID is set on an override of one instance of a recurring event.
	RecurrenceID *time.Time
}

// ParseFeed parses an iCalendar document. Broken VEVENTs are logged and
// skipped; only an unreadable document is an error.
func ParseFeed(feed Feed, body []byte) ([]Entry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty calendar", model.ErrDecode)
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}

	entries := make([]Entry, 0)
	for _, ve := range cal.Events() {
		e, err := parseVEvent(feed, ve)
		if err != nil {
			appLog.Warn("skipping vevent", "feed", feed.ID, "err", err)
			continue
		}
		entries = append(entries, e)
	}
	appLog.Debug("ics parsed", "feed", feed.ID, "entries", len(entries))
	return entries, nil
}

func parseVEvent(feed Feed, ve *ical.VEvent) (Entry, error) {
	e := Entry{Feed: feed}

	uid := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return e, errors.New("missing UID")
	}
	e.UID = uid.Value

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		e.Summary = p.Value
	}
	if e.Summary == "" {
		return e, fmt.Errorf("vevent %s: missing SUMMARY", e.UID)
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		e.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		e.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyUrl); p != nil {
		e.URL = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyGeo); p != nil {
		if c, err := parseGeo(p.Value); err == nil {
			e.Geo = &c
		}
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return e, fmt.Errorf("vevent %s: DTSTART: %w", e.UID, err)
	}
	e.Start = start
	if end, err := ve.GetEndAt(); err == nil {
		e.End = end
	} else {
		e.End = start
	}

	if p := ve.GetProperty(ical.ComponentPropertyDtStart); p != nil {
		if vs := p.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
			e.AllDay = true
		}
		if !strings.Contains(p.Value, "T") {
			e.AllDay = true
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		e.RRule = p.Value
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, start.Location()); err == nil {
				e.ExDates = append(e.ExDates, t)
			}
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertyRecurrenceId); p != nil {
		if t, err := parseICSTime(p.Value, start.Location()); err == nil {
			e.RecurrenceID = &t
		}
	}

	return e, nil
}

// parseGeo reads the GEO value "lat;lon".
func parseGeo(v string) (model.Coordinate, error) {
	latStr, lonStr, ok := strings.Cut(v, ";")
	if !ok {
		return model.Coordinate{}, fmt.Errorf("GEO %q: missing ';'", v)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return model.Coordinate{}, err
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return model.Coordinate{}, err
	}
	c := model.Coordinate{Latitude: lat, Longitude: lon}
	if !c.Valid() {
		return model.Coordinate{}, fmt.Errorf("GEO %q out of range", v)
	}
	return c, nil
}

// parseICSTime handles the bare DATE / DATE-TIME / UTC forms used by
// EXDATE and RECURRENCE-ID. Floating values are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
