// Package search keeps the list of discovered events in step with the
// user's query text and location.
//
// Every operation returns immediately and performs its source call on a
// goroutine. Outbound loads are numbered when they are issued; a response
// is applied only if no later-issued response has been applied already,
// so a slow stale request can never overwrite a newer result. Nothing is
// cancelled: superseded responses are simply discarded.
package search

import (
	"context"
	"sync"

	"runon/internal/location"
	appLog "runon/internal/log"
	"runon/internal/model"
)

// EventSource is the backend the coordinator reads from.
type EventSource interface {
	SearchEvents(ctx context.Context, query string) ([]model.Event, error)
	FetchUserEvents(ctx context.Context) ([]model.Event, error)
	RegisterForEvent(ctx context.Context, eventID string) error
	UnregisterFromEvent(ctx context.Context, eventID string) error
}

// State is a read-only snapshot of the coordinator.
type State struct {
	// Events are in source response order.
	Events    []model.Event `json:"events"`
	IsLoading bool          `json:"is_loading"`
	// Error is the last failure message; empty when the last applied
	// result succeeded.
	Error         string            `json:"error,omitempty"`
	KnownLocation *model.Coordinate `json:"known_location,omitempty"`
}

type Option func(*Coordinator)

// WithContext sets the context passed to every source call. Cancelling it
// fails in-flight calls the way the source reports cancellation.
func WithContext(ctx context.Context) Option {
	return func(c *Coordinator) {
		c.ctx = ctx
	}
}

type Coordinator struct {
	src EventSource
	ctx context.Context

	mu      sync.Mutex
	state   State
	issued  uint64 // sequence number of the latest load issued
	applied uint64 // sequence number of the latest load applied

	wg sync.WaitGroup
}

func New(src EventSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		src: src,
		ctx: context.Background(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Events = []model.Event{}
	return c
}

// Snapshot returns a copy of the current state that the caller may keep.
func (c *Coordinator) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.state
	s.Events = append([]model.Event(nil), c.state.Events...)
	if c.state.KnownLocation != nil {
		loc := *c.state.KnownLocation
		s.KnownLocation = &loc
	}
	return s
}

// Wait blocks until every source call started so far has finished and
// its result has been applied or discarded.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Attach starts p with OnLocationUpdate as its callback.
func (c *Coordinator) Attach(ctx context.Context, p location.Provider) error {
	return p.Start(ctx, c.OnLocationUpdate)
}

// LoadInitial loads events near the known location, or the user's events
// when no location is known yet.
func (c *Coordinator) LoadInitial() {
	c.mu.Lock()
	seq := c.begin()
	loc := c.state.KnownLocation
	var query string
	if loc != nil {
		query = LocationQuery(*loc)
	}
	c.mu.Unlock()

	if loc != nil {
		appLog.Info("loading events near location", "seq", seq)
		appLog.Debug("location query", "seq", seq, "query", query)
		c.run(seq, fallbackLoad, func(ctx context.Context) ([]model.Event, error) {
			return c.src.SearchEvents(ctx, query)
		})
		return
	}

	appLog.Info("loading user events", "seq", seq)
	c.run(seq, fallbackLoad, c.src.FetchUserEvents)
}

// Search issues a free-text search. An empty query clears the results
// synchronously and issues nothing; responses still in flight become stale.
func (c *Coordinator) Search(query string) {
	query = normalizeQuery(query)

	c.mu.Lock()
	if query == "" {
		c.issued++
		c.applied = c.issued
		seq := c.issued
		c.state.Events = []model.Event{}
		c.state.Error = ""
		c.state.IsLoading = false
		c.mu.Unlock()
		appLog.Debug("empty search, results cleared", "seq", seq)
		return
	}
	seq := c.begin()
	c.mu.Unlock()

	appLog.Info("searching events", "seq", seq, "query", query)
	c.run(seq, fallbackSearch, func(ctx context.Context) ([]model.Event, error) {
		return c.src.SearchEvents(ctx, query)
	})
}

// OnLocationUpdate records coord as the known location and reloads with
// it. Loads already in flight are not cancelled.
func (c *Coordinator) OnLocationUpdate(coord model.Coordinate) {
	c.mu.Lock()
	loc := coord
	c.state.KnownLocation = &loc
	c.mu.Unlock()

	appLog.Debug("location updated", "lat", coord.Latitude, "lon", coord.Longitude)
	c.LoadInitial()
}

// RegisterOrUnregister changes the user's registration for eventID. The
// event list changes only after the source confirms: a successful
// unregister removes the event locally, a successful register leaves the
// list for the next load to refresh.
func (c *Coordinator) RegisterOrUnregister(eventID string, wantRegistered bool) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		var err error
		fallback := fallbackRegister
		if wantRegistered {
			err = c.src.RegisterForEvent(c.ctx, eventID)
		} else {
			fallback = fallbackUnregister
			err = c.src.UnregisterFromEvent(c.ctx, eventID)
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if err != nil {
			c.state.Error = Message(err, fallback)
			appLog.Error("registration change failed", err, "event_id", eventID, "register", wantRegistered)
			return
		}
		appLog.Info("registration changed", "event_id", eventID, "register", wantRegistered)
		if !wantRegistered {
			c.state.Events = removeByID(c.state.Events, eventID)
		}
	}()
}

// begin allocates the next sequence number and marks the coordinator as
// loading. c.mu must be held.
func (c *Coordinator) begin() uint64 {
	c.issued++
	c.state.IsLoading = true
	return c.issued
}

func (c *Coordinator) run(seq uint64, fallback string, fetch func(context.Context) ([]model.Event, error)) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		events, err := fetch(c.ctx)
		c.complete(seq, fallback, events, err)
	}()
}

func (c *Coordinator) complete(seq uint64, fallback string, events []model.Event, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if seq == c.issued {
		c.state.IsLoading = false
	}
	if seq <= c.applied {
		appLog.Debug("discarding stale response", "seq", seq, "applied", c.applied)
		return
	}
	c.applied = seq

	if err != nil {
		c.state.Error = Message(err, fallback)
		appLog.Error("event load failed", err, "seq", seq)
		return
	}
	c.state.Events = append(make([]model.Event, 0, len(events)), events...)
	c.state.Error = ""
	appLog.Debug("response applied", "seq", seq, "count", len(events))
}

func removeByID(events []model.Event, id string) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if ev.ID != id {
			out = append(out, ev)
		}
	}
	return out
}
