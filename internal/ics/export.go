package ics

import (
	"io"
	"strconv"
	"time"

	ical "github.com/arran4/golang-ical"

	"runon/internal/model"
)

const defaultEventDuration = time.Hour

// WriteCalendar exports events as an iCalendar document that calendar apps
// can subscribe to or import.
func WriteCalendar(w io.Writer, events []model.Event, stamp time.Time) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//runon//events//EN")

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID)
		ve.SetDtStampTime(stamp.UTC())
		ve.SetStartAt(ev.Date.UTC())
		ve.SetEndAt(ev.Date.Add(defaultEventDuration).UTC())
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		if ev.URL != "" {
			ve.SetProperty(ical.ComponentPropertyUrl, ev.URL)
		}
		if c := ev.Coordinates; c != nil {
			ve.SetProperty(ical.ComponentPropertyGeo,
				strconv.FormatFloat(c.Latitude, 'f', -1, 64)+";"+strconv.FormatFloat(c.Longitude, 'f', -1, 64))
		}
	}
	return cal.SerializeTo(w)
}
