package quality

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsObserver is a subscribed dashboard connection. Reads only service
// control frames; writes come from the broadcast group.
type wsObserver struct {
	ws     *websocket.Conn
	id     string
	logger *slog.Logger
	send   chan *OutboundMessage
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newWSObserver(ws *websocket.Conn, id string, logger *slog.Logger) *wsObserver {
	return &wsObserver{
		ws:     ws,
		id:     id,
		logger: logger.With("observer_id", id),
		send:   make(chan *OutboundMessage, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (o *wsObserver) ID() string {
	return o.id
}

func (o *wsObserver) Send(msg *OutboundMessage) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}

	select {
	case o.send <- msg:
		return true
	default:
		o.logger.Warn("send buffer full, dropping message", "type", msg.Type)
		return false
	}
}

func (o *wsObserver) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	close(o.done)
	o.mu.Unlock()

	return o.ws.Close()
}

func (o *wsObserver) readPump(ctx context.Context) {
	defer o.Close()

	o.ws.SetReadLimit(maxMessageSize)
	_ = o.ws.SetReadDeadline(time.Now().Add(pongWait))
	o.ws.SetPongHandler(func(string) error {
		_ = o.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.done:
			return
		default:
		}

		if _, _, err := o.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				o.logger.Debug("observer read error", "error", err)
			}
			return
		}
	}
}

func (o *wsObserver) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		o.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.done:
			_ = o.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = o.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-o.send:
			data, err := json.Marshal(msg)
			if err != nil {
				o.logger.Error("failed to marshal message", "error", err)
				continue
			}

			_ = o.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				o.logger.Debug("observer write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = o.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := o.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type updateSink interface {
	OnUpdate(ctx context.Context, sessionID, participantID string, update ParticipantState) error
}

// wsProducer reads updates for one participant. Messages above the
// connection's rate limit are dropped before they reach the gateway.
type wsProducer struct {
	ws            *websocket.Conn
	sessionID     string
	participantID string
	limiter       *rate.Limiter
	sink          updateSink
	metrics       *Metrics
	logger        *slog.Logger
}

func newWSProducer(ws *websocket.Conn, sessionID, participantID string, limiter *rate.Limiter, sink updateSink, metrics *Metrics, logger *slog.Logger) *wsProducer {
	return &wsProducer{
		ws:            ws,
		sessionID:     sessionID,
		participantID: participantID,
		limiter:       limiter,
		sink:          sink,
		metrics:       metrics,
		logger:        logger.With("session_id", sessionID, "participant_id", participantID),
	}
}

func (p *wsProducer) readPump(ctx context.Context) {
	defer p.ws.Close()

	p.ws.SetReadLimit(maxMessageSize)
	_ = p.ws.SetReadDeadline(time.Now().Add(pongWait))
	p.ws.SetPongHandler(func(string) error {
		_ = p.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.logger.Debug("producer read error", "error", err)
			}
			return
		}
		_ = p.ws.SetReadDeadline(time.Now().Add(pongWait))

		if !p.limiter.Allow() {
			p.metrics.updates.WithLabelValues(updateRateLimited).Inc()
			continue
		}

		var msg UpdateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			p.metrics.updates.WithLabelValues(updateInvalid).Inc()
			p.logger.Warn("invalid quality update", "error", err)
			continue
		}

		sessionID := p.sessionID
		if sessionID == "" {
			sessionID = msg.SessionID
		}

		// errors are logged by the gateway and must not end the stream
		_ = p.sink.OnUpdate(ctx, sessionID, p.participantID, msg.Metrics)
	}
}
