package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"runon/internal/model"
)

func TestSearchEvents(t *testing.T) {
	var (
		mu                           sync.Mutex
		gotMethod, gotQuery, gotAuth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		gotMethod = r.Method
		gotQuery = r.URL.Query().Get("query")
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/events/search" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": "1", "name": "Han River 10K", "date": "2025-04-06T08:00:00.000Z",
			 "location": "Yeouido", "description": "flat course", "url": "https://example.com/1",
			 "distance": 3.2, "latitude": 37.528, "longitude": 126.932},
			{"name": "Seoul Marathon", "date": "2025-03-16T07:30:00+09:00",
			 "location": "Gwanghwamun", "description": "", "url": ""}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithToken("secret"))
	events, err := c.SearchEvents(context.Background(), "near:37.5,127")
	if err != nil {
		t.Fatalf("SearchEvents: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotMethod != http.MethodPost || gotQuery != "near:37.5,127" || gotAuth != "Bearer secret" {
		t.Fatalf("request = %s query=%q auth=%q", gotMethod, gotQuery, gotAuth)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}

	first := events[0]
	if first.ID != "1" || first.Title != "Han River 10K" || first.DistanceKm != 3.2 {
		t.Fatalf("first = %+v", first)
	}
	if !first.Date.Equal(time.Date(2025, time.April, 6, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("first date = %v", first.Date)
	}
	if first.Coordinates == nil || first.Coordinates.Latitude != 37.528 {
		t.Fatalf("first coordinates = %+v", first.Coordinates)
	}

	second := events[1]
	if _, err := uuid.Parse(second.ID); err != nil {
		t.Fatalf("missing id should be replaced by a UUID, got %q", second.ID)
	}
	if second.Coordinates != nil || second.DistanceKm != 0 {
		t.Fatalf("second = %+v", second)
	}
}

func TestFetchUserEventsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events/user" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("unexpected Authorization header without token")
		}
		_, _ = w.Write([]byte(`{"events": [{"id": "7", "title": "Trail 21K", "date": "2025-05-01T06:00:00Z"}], "metadata": {}}`))
	}))
	defer srv.Close()

	events, err := NewClient(srv.URL).FetchUserEvents(context.Background())
	if err != nil {
		t.Fatalf("FetchUserEvents: %v", err)
	}
	if len(events) != 1 || events[0].ID != "7" || events[0].Title != "Trail 21K" {
		t.Fatalf("events = %+v", events)
	}
}

func TestOffsetlessDatesAreUTC(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id": "1", "name": "Spring 10K", "date": "2024-03-15T00:00:00"},
			{"id": "2", "name": "Night Run", "date": "2024-03-16T19:30:00.250000"}
		]`))
	}))
	defer srv.Close()

	events, err := NewClient(srv.URL).SearchEvents(context.Background(), "10k")
	if err != nil {
		t.Fatalf("SearchEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if want := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC); !events[0].Date.Equal(want) {
		t.Fatalf("first date = %v, want %v", events[0].Date, want)
	}
	if want := time.Date(2024, time.March, 16, 19, 30, 0, 250_000_000, time.UTC); !events[1].Date.Equal(want) {
		t.Fatalf("second date = %v, want %v", events[1].Date, want)
	}
}

func TestUnparseableDateFailsDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": "1", "name": "Spring 10K", "date": "15/03/2024"}]`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).FetchUserEvents(context.Background())
	if !errors.Is(err, model.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestRegistrationRequests(t *testing.T) {
	type hit struct{ method, path string }
	var (
		mu   sync.Mutex
		hits []hit
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, hit{r.Method, r.URL.EscapedPath()})
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	if err := c.RegisterForEvent(context.Background(), "42"); err != nil {
		t.Fatalf("RegisterForEvent: %v", err)
	}
	if err := c.UnregisterFromEvent(context.Background(), "a/b"); err != nil {
		t.Fatalf("UnregisterFromEvent: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []hit{
		{http.MethodPost, "/events/42/register"},
		{http.MethodDelete, "/events/a%2Fb/unregister"},
	}
	if len(hits) != len(want) {
		t.Fatalf("hits = %+v", hits)
	}
	for i := range want {
		if hits[i] != want[i] {
			t.Fatalf("hit %d = %+v, want %+v", i, hits[i], want[i])
		}
	}
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"unauthorized", http.StatusUnauthorized, "", func(err error) bool {
			return errors.Is(err, model.ErrUnauthorized)
		}},
		{"server error", http.StatusBadGateway, "", func(err error) bool {
			var se *model.ServerError
			return errors.As(err, &se) && se.StatusCode == http.StatusBadGateway
		}},
		{"bad json", http.StatusOK, `{"events": [`, func(err error) bool {
			return errors.Is(err, model.ErrDecode)
		}},
		{"bad date", http.StatusOK, `[{"id":"1","name":"x","date":"tomorrow"}]`, func(err error) bool {
			return errors.Is(err, model.ErrDecode)
		}},
		{"missing name", http.StatusOK, `[{"id":"1","date":"2025-01-01T00:00:00Z"}]`, func(err error) bool {
			return errors.Is(err, model.ErrDecode)
		}},
		{"empty body", http.StatusOK, ``, func(err error) bool {
			return errors.Is(err, model.ErrDecode)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).SearchEvents(context.Background(), "5k")
			if !tc.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := srv.URL
	srv.Close()

	_, err := NewClient(base).FetchUserEvents(context.Background())
	var ne *model.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("err = %v, want NetworkError", err)
	}
}

func TestRedactPath(t *testing.T) {
	if got := redactPath("/events/search?query=near%3A1%2C2"); got != "/events/search?...(redacted)" {
		t.Fatalf("redactPath = %q", got)
	}
	if got := redactPath("/events/user"); got != "/events/user" {
		t.Fatalf("redactPath = %q", got)
	}
}
