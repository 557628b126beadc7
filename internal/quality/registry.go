package quality

import (
	"errors"
	"sync"
)

var ErrObserverAlreadySubscribed = errors.New("observer already subscribed")

type Observer interface {
	ID() string
	// Send queues msg without blocking and reports whether it was accepted.
	Send(msg *OutboundMessage) bool
}

// Registry is the single broadcast group of quality observers.
type Registry struct {
	observers map[string]Observer
	mu        sync.RWMutex
	metrics   *Metrics
}

func NewRegistry(metrics *Metrics) *Registry {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Registry{
		observers: make(map[string]Observer),
		metrics:   metrics,
	}
}

func (r *Registry) Subscribe(o Observer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.observers[o.ID()]; ok {
		return ErrObserverAlreadySubscribed
	}
	r.observers[o.ID()] = o
	r.metrics.observers.Set(float64(len(r.observers)))
	return nil
}

func (r *Registry) Unsubscribe(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.observers, id)
	r.metrics.observers.Set(float64(len(r.observers)))
}

// Broadcast hands msg to every current observer and returns how many
// accepted it.
func (r *Registry) Broadcast(msg *OutboundMessage) int {
	r.mu.RLock()
	targets := make([]Observer, 0, len(r.observers))
	for _, o := range r.observers {
		targets = append(targets, o)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, o := range targets {
		if o.Send(msg) {
			delivered++
		} else {
			r.metrics.dropped.Inc()
		}
	}
	r.metrics.broadcasts.WithLabelValues(string(msg.Type)).Inc()
	return delivered
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.observers)
}
