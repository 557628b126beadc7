package quality

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/eleven-am/tutor-backend/internal/ratelimit"
	"github.com/redis/go-redis/v9"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

type recordingObserver struct {
	id       string
	mu       sync.Mutex
	messages []*OutboundMessage
	reject   bool
}

func (o *recordingObserver) ID() string {
	return o.id
}

func (o *recordingObserver) Send(msg *OutboundMessage) bool {
	if o.reject {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, msg)
	return true
}

func (o *recordingObserver) byType(typ MessageType) []*OutboundMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*OutboundMessage
	for _, m := range o.messages {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (o *recordingObserver) alertsOfKind(kind AlertKind) int {
	n := 0
	for _, m := range o.byType(MessageTypeAlert) {
		for _, a := range m.Alerts {
			if a.Kind == kind {
				n++
			}
		}
	}
	return n
}

type gatewayFixture struct {
	gateway  *Gateway
	store    *StateStore
	registry *Registry
	observer *recordingObserver
	clock    *clock.Mock
	mr       *miniredis.Miniredis
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	client, mr := newTestRedis(t)
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC))

	f := &gatewayFixture{
		store:    NewStateStore(client, time.Minute*5),
		registry: NewRegistry(nil),
		observer: &recordingObserver{id: "obs_1"},
		clock:    mock,
		mr:       mr,
	}
	f.registry.Subscribe(f.observer)
	f.gateway = NewGateway(GatewayConfig{
		Store:    f.store,
		Registry: f.registry,
		Gate:     ratelimit.NewGate(mock),
		Clock:    mock,
		Log:      newTestLogger(),
	})
	return f
}
