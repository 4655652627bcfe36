package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"runon/internal/model"
)

// eventDTO is the backend's JSON shape. Older endpoints send "name",
// newer ones "title".
type eventDTO struct {
	ID          *string  `json:"id"`
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	Location    string   `json:"location"`
	URL         string   `json:"url"`
	Distance    float64  `json:"distance"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type eventsEnvelope struct {
	Events []eventDTO `json:"events"`
}

// naiveLayout matches ISO datetimes without an offset.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// decodeEvents accepts a bare array or {"events": [...]}.
func decodeEvents(body []byte) ([]model.Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", model.ErrDecode)
	}

	var dtos []eventDTO
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &dtos); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
		}
	case '{':
		var env eventsEnvelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
		}
		dtos = env.Events
	default:
		return nil, fmt.Errorf("%w: unexpected payload", model.ErrDecode)
	}

	out := make([]model.Event, 0, len(dtos))
	for i, d := range dtos {
		ev, err := d.toModel()
		if err != nil {
			return nil, fmt.Errorf("%w: event %d: %v", model.ErrDecode, i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (d eventDTO) toModel() (model.Event, error) {
	title := d.Title
	if title == "" {
		title = d.Name
	}
	if title == "" {
		return model.Event{}, fmt.Errorf("missing name")
	}

	date, err := parseDate(d.Date)
	if err != nil {
		return model.Event{}, fmt.Errorf("date %q: %v", d.Date, err)
	}

	// Search results scraped from the web carry no id; give them one so
	// the list stays addressable.
	id := uuid.NewString()
	if d.ID != nil && *d.ID != "" {
		id = *d.ID
	}

	ev := model.Event{
		ID:          id,
		Title:       title,
		Description: d.Description,
		Date:        date,
		Location:    d.Location,
		URL:         d.URL,
		DistanceKm:  d.Distance,
	}
	if ev.DistanceKm < 0 {
		ev.DistanceKm = 0
	}
	if d.Latitude != nil && d.Longitude != nil {
		c := model.Coordinate{Latitude: *d.Latitude, Longitude: *d.Longitude}
		if c.Valid() {
			ev.Coordinates = &c
		}
	}
	return ev, nil
}

// parseDate accepts RFC 3339 and the offset-less ISO form the backend
// emits for naive datetimes, which are UTC.
func parseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t, nil
	}
	return time.ParseInLocation(naiveLayout, v, time.UTC)
}
