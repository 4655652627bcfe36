package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"runon/internal/model"
)

type recorder struct {
	mu   sync.Mutex
	got  []model.Coordinate
	seen chan struct{}
}

func newRecorder() *recorder {
	return &recorder{seen: make(chan struct{}, 64)}
}

func (r *recorder) onUpdate(c model.Coordinate) {
	r.mu.Lock()
	r.got = append(r.got, c)
	r.mu.Unlock()
	r.seen <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) []model.Coordinate {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-r.seen:
		case <-deadline:
			t.Fatalf("timed out waiting for update %d of %d", i+1, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Coordinate(nil), r.got...)
}

func TestStaticDeliversOnce(t *testing.T) {
	home := model.Coordinate{Latitude: 37.5, Longitude: 127.0}
	s, err := NewStatic(home)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}

	rec := newRecorder()
	if err := s.Start(context.Background(), rec.onUpdate); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := rec.wait(t, 1)
	if len(got) != 1 || got[0] != home {
		t.Fatalf("got %+v", got)
	}
	if err := s.Start(context.Background(), rec.onUpdate); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start err = %v", err)
	}
}

func TestStaticRejectsInvalid(t *testing.T) {
	if _, err := NewStatic(model.Coordinate{Latitude: 120}); !errors.Is(err, ErrInvalidCoordinate) {
		t.Fatalf("err = %v, want ErrInvalidCoordinate", err)
	}
}

func TestFeedDeliversInOrder(t *testing.T) {
	f := NewFeed(8)
	rec := newRecorder()
	if err := f.Start(context.Background(), rec.onUpdate); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop()

	want := []model.Coordinate{{Latitude: 1, Longitude: 1}, {Latitude: 2, Longitude: 2}, {Latitude: 3, Longitude: 3}}
	for _, c := range want {
		if err := f.Push(c); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	got := rec.wait(t, len(want))
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("update %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFeedPushErrors(t *testing.T) {
	f := NewFeed(1)
	if err := f.Push(model.Coordinate{}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("push before start err = %v", err)
	}

	if err := f.Start(context.Background(), func(model.Coordinate) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.Push(model.Coordinate{Latitude: -91}); !errors.Is(err, ErrInvalidCoordinate) {
		t.Fatalf("invalid push err = %v", err)
	}

	f.Stop()
	if err := f.Push(model.Coordinate{}); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("push after stop err = %v", err)
	}
}

func TestFeedStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := NewFeed(4)
	rec := newRecorder()
	if err := f.Start(ctx, rec.onUpdate); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	// Stop must not hang once the loop has already exited.
	f.Stop()
}
