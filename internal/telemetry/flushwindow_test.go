package telemetry

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestFlushWindow_Claim(t *testing.T) {
	client, _ := newTestRedis(t)
	ctx := context.Background()
	w := NewFlushWindow(client, "test:flush", time.Minute)
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"first claim", 0, true},
		{"inside window", 30 * time.Second, false},
		{"exactly at interval", time.Minute, false},
		{"past interval", time.Minute + time.Millisecond, true},
		{"inside next window", time.Minute + 10*time.Second, false},
	}

	for _, tt := range tests {
		got, err := w.Claim(ctx, base.Add(tt.offset))
		if err != nil {
			t.Fatalf("%s: Claim error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}

	last, ok, err := w.LastFlushedAt(ctx)
	if err != nil || !ok {
		t.Fatalf("LastFlushedAt: ok=%v err=%v", ok, err)
	}
	want := base.Add(time.Minute + time.Millisecond)
	if !last.Equal(want) {
		t.Errorf("expected last flush %v, got %v", want, last)
	}
}

func TestFlushWindow_LastFlushedAtEmpty(t *testing.T) {
	client, _ := newTestRedis(t)
	w := NewFlushWindow(client, "", 0)

	_, ok, err := w.LastFlushedAt(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("expected no flush recorded")
	}
}

func TestFlushWindow_ConcurrentClaimsSingleWinner(t *testing.T) {
	client, _ := newTestRedis(t)
	w := NewFlushWindow(client, "test:flush", time.Minute)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := w.Claim(context.Background(), now)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", wins.Load())
	}
}
