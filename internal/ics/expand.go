package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "runon/internal/log"
	"runon/internal/model"
)

const defaultMaxOccurrences = 5000

// Window bounds recurrence expansion.
type Window struct {
	Start time.Time
	End   time.Time

	// Location is the zone occurrences are converted to. Nil means time.Local.
	Location *time.Location

	// MaxOccurrences caps instances per UID; zero means 5000.
	MaxOccurrences int
}

// ExpandResult is the occurrences inside the window, sorted by date.
type ExpandResult struct {
	Events []model.Event
	// Truncated lists UIDs that hit MaxOccurrences.
	Truncated []string
}

// Expand turns entries into concrete events inside w. Recurring entries
// follow their RRULE minus EXDATEs; RECURRENCE-ID overrides replace the
// instance they name. A recurring instance gets the ID "<uid>/<utc start>"
// so that every occurrence is individually addressable.
func Expand(entries []Entry, w Window) (ExpandResult, error) {
	var res ExpandResult
	if w.End.Before(w.Start) {
		return res, errors.New("ics: window end before start")
	}
	if w.Location == nil {
		w.Location = time.Local
	}
	if w.MaxOccurrences <= 0 {
		w.MaxOccurrences = defaultMaxOccurrences
	}

	var (
		order     []string
		base      = map[string][]Entry{}
		overrides = map[string][]Entry{}
	)
	for _, e := range entries {
		key := e.Feed.ID + "\x00" + e.UID
		if e.RecurrenceID != nil {
			overrides[key] = append(overrides[key], e)
			continue
		}
		if _, seen := base[key]; !seen {
			order = append(order, key)
		}
		base[key] = append(base[key], e)
	}

	for _, key := range order {
		for _, e := range base[key] {
			if e.RRule == "" {
				if overlaps(e.Start, e.End, w.Start, w.End) {
					res.Events = append(res.Events, toEvent(e, e.UID, e.Start, w.Location))
				}
				continue
			}
			occ, capped := expandRecurring(e, overrides[key], w)
			res.Events = append(res.Events, occ...)
			if capped {
				res.Truncated = append(res.Truncated, e.UID)
				appLog.Warn("recurrence truncated", "uid", e.UID, "cap", w.MaxOccurrences)
			}
		}
	}

	sort.SliceStable(res.Events, func(i, j int) bool {
		return res.Events[i].Date.Before(res.Events[j].Date)
	})
	return res, nil
}

func expandRecurring(e Entry, overrides []Entry, w Window) ([]model.Event, bool) {
	r, err := rrule.StrToRRule(e.RRule)
	if err != nil {
		appLog.Error("invalid RRULE", err, "uid", e.UID, "rrule", e.RRule)
		return nil, false
	}
	r.DTStart(e.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(e.Start.Location()))
	}

	loc := e.Start.Location()
	starts := set.Between(w.Start.In(loc), w.End.In(loc), true)
	capped := false
	if len(starts) > w.MaxOccurrences {
		starts = starts[:w.MaxOccurrences]
		capped = true
	}

	out := make([]model.Event, 0, len(starts))
	for _, start := range starts {
		inst := e
		at := start
		if ov, ok := findOverride(overrides, start); ok {
			inst = ov
			at = ov.Start
		}
		id := e.UID + "/" + start.UTC().Format("20060102T150405Z")
		out = append(out, toEvent(inst, id, at, w.Location))
	}
	return out, capped
}

func findOverride(overrides []Entry, start time.Time) (Entry, bool) {
	for _, ov := range overrides {
		if ov.RecurrenceID.Equal(start) {
			return ov, true
		}
	}
	return Entry{}, false
}

func toEvent(e Entry, id string, start time.Time, loc *time.Location) model.Event {
	ev := model.Event{
		ID:          id,
		Title:       e.Summary,
		Description: e.Description,
		Date:        start.In(loc),
		Location:    e.Location,
		URL:         e.URL,
	}
	if e.AllDay {
		// All-day events stay on their calendar date regardless of zone.
		y, m, d := start.Date()
		ev.Date = time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
	if e.Geo != nil {
		c := *e.Geo
		ev.Coordinates = &c
	}
	return ev
}

func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(aStart) {
		aEnd = aStart
	}
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
