package ics

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	appLog "runon/internal/log"
	"runon/internal/model"
	"runon/internal/search"
)

// ErrReadOnly is returned for registration changes; feeds can only be read.
var ErrReadOnly = errors.New("ics: feeds are read-only")

const (
	defaultHorizon  = 180 * 24 * time.Hour
	defaultBackfill = 7 * 24 * time.Hour
	defaultRadiusKm = 50
)

// Source serves events from subscribed iCalendar feeds. It satisfies the
// same contract as the backend client so the search coordinator can run
// against either.
type Source struct {
	fetcher  *Fetcher
	feeds    []Feed
	loc      *time.Location
	horizon  time.Duration
	backfill time.Duration
	radiusKm float64
	now      func() time.Time
}

type SourceOption func(*Source)

func WithLocation(loc *time.Location) SourceOption {
	return func(s *Source) { s.loc = loc }
}

// WithHorizon sets how far ahead (and behind) of now occurrences are expanded.
func WithHorizon(ahead, behind time.Duration) SourceOption {
	return func(s *Source) {
		if ahead > 0 {
			s.horizon = ahead
		}
		if behind >= 0 {
			s.backfill = behind
		}
	}
}

// WithRadiusKm sets the cut-off for location queries.
func WithRadiusKm(km float64) SourceOption {
	return func(s *Source) {
		if km > 0 {
			s.radiusKm = km
		}
	}
}

func WithClock(now func() time.Time) SourceOption {
	return func(s *Source) { s.now = now }
}

func NewSource(fetcher *Fetcher, feeds []Feed, opts ...SourceOption) *Source {
	s := &Source{
		fetcher:  fetcher,
		feeds:    feeds,
		loc:      time.Local,
		horizon:  defaultHorizon,
		backfill: defaultBackfill,
		radiusKm: defaultRadiusKm,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchUserEvents returns every occurrence in the window, sorted by date.
func (s *Source) FetchUserEvents(ctx context.Context) ([]model.Event, error) {
	return s.occurrences(ctx)
}

// SearchEvents handles "near:<lat>,<lon>" queries by distance and anything
// else as a case-insensitive text match.
func (s *Source) SearchEvents(ctx context.Context, query string) ([]model.Event, error) {
	all, err := s.occurrences(ctx)
	if err != nil {
		return nil, err
	}

	if at, err := search.ParseLocationQuery(query); err == nil {
		return s.near(all, at), nil
	}

	fold := cases.Fold()
	needle := fold.String(strings.TrimSpace(query))
	out := make([]model.Event, 0)
	for _, ev := range all {
		hay := fold.String(ev.Title + "\n" + ev.Description + "\n" + ev.Location)
		if strings.Contains(hay, needle) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *Source) RegisterForEvent(context.Context, string) error {
	return ErrReadOnly
}

func (s *Source) UnregisterFromEvent(context.Context, string) error {
	return ErrReadOnly
}

func (s *Source) near(events []model.Event, at model.Coordinate) []model.Event {
	out := make([]model.Event, 0)
	for _, ev := range events {
		if ev.Coordinates == nil {
			continue
		}
		d := at.DistanceKm(*ev.Coordinates)
		if d > s.radiusKm {
			continue
		}
		ev.DistanceKm = d
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceKm < out[j].DistanceKm
	})
	return out
}

// occurrences fetches all feeds. One failing feed is logged and skipped;
// the call fails only when every feed failed.
func (s *Source) occurrences(ctx context.Context) ([]model.Event, error) {
	var (
		entries  []Entry
		firstErr error
		ok       int
	)
	for _, feed := range s.feeds {
		body, err := s.fetcher.Fetch(ctx, feed)
		if err == nil {
			var parsed []Entry
			parsed, err = ParseFeed(feed, body)
			entries = append(entries, parsed...)
		}
		if err != nil {
			appLog.Error("ics feed unavailable", err, "feed", feed.ID, "url", redactURL(feed.URL))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ok++
	}
	if ok == 0 && firstErr != nil {
		return nil, firstErr
	}

	now := s.now().In(s.loc)
	res, err := Expand(entries, Window{
		Start:    now.Add(-s.backfill),
		End:      now.Add(s.horizon),
		Location: s.loc,
	})
	if err != nil {
		return nil, err
	}
	return res.Events, nil
}
