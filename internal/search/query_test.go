package search

import (
	"errors"
	"fmt"
	"testing"

	"runon/internal/model"
)

func TestLocationQueryRoundTrip(t *testing.T) {
	coords := []model.Coordinate{
		{Latitude: 37.5665, Longitude: 126.978},
		{Latitude: -33.8688, Longitude: 151.2093},
		{Latitude: 0, Longitude: 0},
		{Latitude: 40.712776, Longitude: -74.005974},
	}
	for _, c := range coords {
		q := LocationQuery(c)
		got, err := ParseLocationQuery(q)
		if err != nil {
			t.Fatalf("ParseLocationQuery(%q): %v", q, err)
		}
		if got != c {
			t.Fatalf("round trip %q = %+v, want %+v", q, got, c)
		}
	}
	if got := LocationQuery(model.Coordinate{Latitude: 37.5, Longitude: 127}); got != "near:37.5,127" {
		t.Fatalf("LocationQuery = %q", got)
	}
}

func TestParseLocationQueryRejects(t *testing.T) {
	if _, err := ParseLocationQuery("marathon"); !errors.Is(err, ErrNotLocationQuery) {
		t.Fatalf("free text err = %v", err)
	}
	for _, q := range []string{"near:", "near:1", "near:a,b", "near:95,0"} {
		if _, err := ParseLocationQuery(q); err == nil || errors.Is(err, ErrNotLocationQuery) {
			t.Errorf("ParseLocationQuery(%q) err = %v, want malformed error", q, err)
		}
	}
}

func TestMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{model.ErrUnauthorized, "Unauthorized access"},
		{fmt.Errorf("api: %w", model.ErrUnauthorized), "Unauthorized access"},
		{&model.ServerError{StatusCode: 503}, "Server error: 503"},
		{&model.NetworkError{Err: errors.New("timeout")}, "Network error: timeout"},
		{&model.NetworkError{}, "Network error"},
		{fmt.Errorf("%w: bad json", model.ErrDecode), "Failed to decode response"},
		{errors.New("other"), "fallback"},
	}
	for _, tc := range cases {
		if got := Message(tc.err, "fallback"); got != tc.want {
			t.Errorf("Message(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
