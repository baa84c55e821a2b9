package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"coinfeed/internal/domain"
)

type recordSink struct {
	mu    sync.Mutex
	live  []string
	snaps []string
}

func (s *recordSink) WriteLive(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = append(s.live, line)
	return nil
}

func (s *recordSink) WriteSnapshot(ts time.Time, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, line)
	return nil
}

func (s *recordSink) NewLine() error { return nil }

func (s *recordSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live), len(s.snaps)
}

func (s *recordSink) lastLive() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.live) == 0 {
		return ""
	}
	return s.live[len(s.live)-1]
}

type recordSaver struct {
	mu    sync.Mutex
	calls int
}

func (r *recordSaver) SaveSnapshot(ctx context.Context, ts int64, snap map[string]domain.Tick) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return len(snap), nil
}

func (r *recordSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestMonitorRedrawsOnlyOnChange(t *testing.T) {
	board := domain.NewBoard()
	sink := &recordSink{}
	saver := &recordSaver{}
	svc := NewService(ServiceDeps{
		Board:         board,
		Symbols:       func() []string { return []string{"BTC"} },
		LiveEvery:     5 * time.Millisecond,
		SnapshotEvery: 20 * time.Millisecond,
		Sink:          sink,
		Snapshots:     saver,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	waitUntil(t, func() bool { n, _ := sink.counts(); return n == 1 })
	time.Sleep(30 * time.Millisecond)
	if n, _ := sink.counts(); n != 1 {
		t.Errorf("no board change means no redraw, got %d live lines", n)
	}

	board.Merge(map[string]domain.Tick{"BTC": {Price: 65000}})
	waitUntil(t, func() bool { return strings.Contains(sink.lastLive(), "65,000.00") })
	waitUntil(t, func() bool { _, s := sink.counts(); return s > 0 && saver.count() > 0 })

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected Canceled, got %v", err)
	}
}

func TestMonitorRequiresDeps(t *testing.T) {
	if err := NewService(ServiceDeps{}).Run(context.Background()); err == nil {
		t.Fatal("expected error without board")
	}
}
