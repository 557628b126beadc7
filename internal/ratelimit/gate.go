package ratelimit

import (
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Gate is a keyed timestamp gate. A key passes when it has never passed
// before or when at least the requested interval has elapsed since it last
// passed. The interval is supplied per call so one gate can serve keys with
// different cadences.
type Gate struct {
	clock clock.Clock
	last  map[string]time.Time
	mu    sync.Mutex
}

func NewGate(clk clock.Clock) *Gate {
	if clk == nil {
		clk = clock.New()
	}
	return &Gate{
		clock: clk,
		last:  make(map[string]time.Time),
	}
}

func (g *Gate) Allow(key string, interval time.Duration) bool {
	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	if last, ok := g.last[key]; ok && now.Sub(last) < interval {
		return false
	}
	g.last[key] = now
	return true
}

func (g *Gate) Reset(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, key)
}

// Forget drops every key starting with prefix.
func (g *Gate) Forget(prefix string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key := range g.last {
		if strings.HasPrefix(key, prefix) {
			delete(g.last, key)
			removed++
		}
	}
	return removed
}

// Sweep drops keys that last passed more than maxAge ago.
func (g *Gate) Sweep(maxAge time.Duration) int {
	cutoff := g.clock.Now().Add(-maxAge)

	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for key, last := range g.last {
		if last.Before(cutoff) {
			delete(g.last, key)
			removed++
		}
	}
	return removed
}

func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.last)
}
