// Package location supplies coordinate updates to the event search. A
// Provider is started with a callback and may deliver any number of
// updates until it is stopped.
package location

import (
	"context"
	"errors"
	"fmt"
	"sync"

	appLog "runon/internal/log"
	"runon/internal/model"
)

var (
	ErrAlreadyStarted    = errors.New("location: provider already started")
	ErrNotStarted        = errors.New("location: provider not started")
	ErrInvalidCoordinate = errors.New("location: invalid coordinate")
	ErrBufferFull        = errors.New("location: feed buffer full")
)

// Provider delivers coordinates to onUpdate after Start. Cadence and
// permission handling belong to the provider.
type Provider interface {
	Start(ctx context.Context, onUpdate func(model.Coordinate)) error
	Stop()
}

// Static reports one fixed coordinate right after Start, e.g. a home
// location from config when no device positioning is available.
type Static struct {
	coord model.Coordinate

	mu      sync.Mutex
	started bool
}

func NewStatic(c model.Coordinate) (*Static, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidCoordinate, c)
	}
	return &Static{coord: c}, nil
}

func (s *Static) Start(_ context.Context, onUpdate func(model.Coordinate)) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	appLog.Debug("static location delivered", "lat", s.coord.Latitude, "lon", s.coord.Longitude)
	onUpdate(s.coord)
	return nil
}

func (s *Static) Stop() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
}

// Feed is a push-driven provider: whatever is handed to Push is delivered
// in order on the feed's own goroutine.
type Feed struct {
	mu      sync.Mutex
	ch      chan model.Coordinate
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewFeed creates a feed buffering up to size pending updates.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 16
	}
	return &Feed{ch: make(chan model.Coordinate, size)}
}

func (f *Feed) Start(ctx context.Context, onUpdate func(model.Coordinate)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	f.started = true

	go func(done chan struct{}) {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-f.ch:
				onUpdate(c)
			}
		}
	}(f.done)
	return nil
}

// Push queues c for delivery. It fails for invalid coordinates, when the
// feed is not running, or when the buffer is full.
func (f *Feed) Push(c model.Coordinate) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %+v", ErrInvalidCoordinate, c)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return ErrNotStarted
	}

	select {
	case f.ch <- c:
		return nil
	default:
		appLog.Warn("location feed full, dropping update", "lat", c.Latitude, "lon", c.Longitude)
		return ErrBufferFull
	}
}

// Stop halts delivery and waits for an in-progress callback to return.
// Queued updates that were not delivered yet are discarded.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return
	}
	f.started = false
	cancel, done := f.cancel, f.done
	f.mu.Unlock()

	cancel()
	<-done

	for {
		select {
		case <-f.ch:
		default:
			return
		}
	}
}
