package search

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"runon/internal/model"
)

const locationQueryPrefix = "near:"

var ErrNotLocationQuery = errors.New("search: not a location query")

// LocationQuery encodes c as "near:<lat>,<lon>" using the shortest
// decimal form that parses back to the same float.
func LocationQuery(c model.Coordinate) string {
	return locationQueryPrefix +
		strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," +
		strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}

// ParseLocationQuery is the inverse of LocationQuery. Sources use it to
// tell location-scoped queries apart from free text.
func ParseLocationQuery(q string) (model.Coordinate, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(q), locationQueryPrefix)
	if !ok {
		return model.Coordinate{}, ErrNotLocationQuery
	}
	latStr, lonStr, ok := strings.Cut(rest, ",")
	if !ok {
		return model.Coordinate{}, fmt.Errorf("search: malformed location query %q", q)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("search: latitude in %q: %w", q, err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
	if err != nil {
		return model.Coordinate{}, fmt.Errorf("search: longitude in %q: %w", q, err)
	}
	c := model.Coordinate{Latitude: lat, Longitude: lon}
	if !c.Valid() {
		return model.Coordinate{}, fmt.Errorf("search: coordinate out of range in %q", q)
	}
	return c, nil
}

// normalizeQuery trims surrounding whitespace and composes the text to NFC
// so that visually equal queries are sent identically.
func normalizeQuery(q string) string {
	return strings.TrimSpace(norm.NFC.String(q))
}
