package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memoryBuffer struct {
	mu      sync.Mutex
	entries [][]byte
	err     error
	block   chan struct{}
}

func (m *memoryBuffer) Push(ctx context.Context, data []byte) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, data)
	return nil
}

func (m *memoryBuffer) Drain(ctx context.Context, max int) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	n := max
	if n > len(m.entries) {
		n = len(m.entries)
	}
	out := m.entries[:n]
	m.entries = m.entries[n:]
	return out, nil
}

func (m *memoryBuffer) Len(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.entries)), nil
}

func (m *memoryBuffer) Capacity() int {
	return 1000
}

func TestCollector_CloseFlushesQueued(t *testing.T) {
	buf := &memoryBuffer{}
	c := NewCollector(CollectorConfig{Buffer: buf, Log: newTestLogger()})

	for i := 0; i < 50; i++ {
		c.Collect(newSample("/api/test", "GET", 200, 10, 20, 5))
	}
	c.Close()

	n, _ := c.Size(context.Background())
	if n != 50 {
		t.Errorf("expected 50 buffered samples, got %d", n)
	}
	if c.Capacity() != 1000 {
		t.Errorf("expected capacity 1000, got %d", c.Capacity())
	}
}

func TestCollector_EncodesSamples(t *testing.T) {
	buf := &memoryBuffer{}
	c := NewCollector(CollectorConfig{Buffer: buf, Log: newTestLogger()})

	in := newSample("/api/items/:id", "PUT", 201, 128, 64, 12)
	in.ActorID = "user_1"
	c.Collect(in)
	c.Close()

	entries, _ := buf.Drain(context.Background(), 10)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	out, err := decodeSample(entries[0])
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if out.Endpoint != in.Endpoint || out.Method != in.Method || out.StatusCode != 201 {
		t.Errorf("unexpected sample: %+v", out)
	}
	if out.RequestBytes != 128 || out.ResponseBytes != 64 || out.ElapsedMs != 12 {
		t.Errorf("unexpected sizes: %+v", out)
	}
	if out.ActorID != "user_1" {
		t.Errorf("expected actor user_1, got %q", out.ActorID)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("expected timestamp %v, got %v", in.Timestamp, out.Timestamp)
	}
}

func TestCollector_CollectAfterCloseIsIgnored(t *testing.T) {
	buf := &memoryBuffer{}
	c := NewCollector(CollectorConfig{Buffer: buf, Log: newTestLogger()})
	c.Close()

	c.Collect(newSample("/api/test", "GET", 200, 0, 0, 1))

	n, _ := buf.Len(context.Background())
	if n != 0 {
		t.Errorf("expected no samples after close, got %d", n)
	}
}

func TestCollector_BufferFailureDoesNotSurface(t *testing.T) {
	buf := &memoryBuffer{err: errors.New("redis down")}
	c := NewCollector(CollectorConfig{Buffer: buf, Log: newTestLogger()})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			c.Collect(newSample("/api/test", "GET", 200, 0, 0, 1))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Collect blocked on a failing buffer")
	}
	c.Close()
}

func TestCollector_DropsWhenQueueFull(t *testing.T) {
	buf := &memoryBuffer{block: make(chan struct{})}
	c := NewCollector(CollectorConfig{Buffer: buf, QueueSize: 2, Log: newTestLogger()})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			c.Collect(newSample("/api/test", "GET", 200, 0, 0, 1))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Collect blocked on a full queue")
	}

	close(buf.block)
	c.Close()

	n, _ := buf.Len(context.Background())
	if n == 0 || n > 3 {
		t.Errorf("expected between 1 and 3 stored samples, got %d", n)
	}
}
