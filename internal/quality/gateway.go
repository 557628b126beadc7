package quality

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/eleven-am/tutor-backend/internal/ratelimit"
)

const (
	DefaultRoutineInterval   = 2000 * time.Millisecond
	DefaultSecondaryInterval = 1000 * time.Millisecond
	defaultSweepInterval     = time.Minute
)

var ErrMissingParticipant = errors.New("session and participant ids are required")

type StateMerger interface {
	Merge(ctx context.Context, sessionID, participantID string, update ParticipantState, now time.Time) (*ParticipantState, error)
}

type Broadcaster interface {
	Broadcast(msg *OutboundMessage) int
}

type GatewayConfig struct {
	Store             StateMerger
	Registry          Broadcaster
	Gate              *ratelimit.Gate
	Clock             clock.Clock
	RoutineInterval   time.Duration
	SecondaryInterval time.Duration
	AlertCooldown     time.Duration
	StateTTL          time.Duration
	Metrics           *Metrics
	Log               *slog.Logger
}

// Gateway merges partial participant updates, raises alerts on every update
// and fans routine state out at most once per throttle interval per
// participant.
type Gateway struct {
	store             StateMerger
	registry          Broadcaster
	gate              *ratelimit.Gate
	clock             clock.Clock
	alerts            *alertRules
	routineInterval   time.Duration
	secondaryInterval time.Duration
	stateTTL          time.Duration
	metrics           *Metrics
	logger            *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Gate == nil {
		cfg.Gate = ratelimit.NewGate(cfg.Clock)
	}
	if cfg.RoutineInterval <= 0 {
		cfg.RoutineInterval = DefaultRoutineInterval
	}
	if cfg.SecondaryInterval <= 0 {
		cfg.SecondaryInterval = DefaultSecondaryInterval
	}
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = DefaultAlertCooldown
	}
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		store:             cfg.Store,
		registry:          cfg.Registry,
		gate:              cfg.Gate,
		clock:             cfg.Clock,
		alerts:            &alertRules{gate: cfg.Gate, cooldown: cfg.AlertCooldown},
		routineInterval:   cfg.RoutineInterval,
		secondaryInterval: cfg.SecondaryInterval,
		stateTTL:          cfg.StateTTL,
		metrics:           cfg.Metrics,
		logger:            cfg.Log.With("component", "quality_gateway"),
		ctx:               ctx,
		cancel:            cancel,
	}
}

func throttleKey(sessionID, participantID string) string {
	return throttlePrefix(sessionID) + participantID
}

func throttlePrefix(sessionID string) string {
	return "throttle:" + sessionID + ":"
}

func (g *Gateway) OnUpdate(ctx context.Context, sessionID, participantID string, update ParticipantState) error {
	if sessionID == "" || participantID == "" {
		g.metrics.updates.WithLabelValues(updateInvalid).Inc()
		return ErrMissingParticipant
	}

	now := g.clock.Now()
	logger := g.logger.With("session_id", sessionID, "participant_id", participantID)

	merged, err := g.store.Merge(ctx, sessionID, participantID, update, now)
	if err != nil {
		g.metrics.updates.WithLabelValues(updateMergeFailed).Inc()
		logger.Error("failed to merge participant state", "error", err)
		return err
	}
	g.metrics.updates.WithLabelValues(updateOK).Inc()

	if alerts := g.alerts.evaluate(participantID, update); len(alerts) > 0 {
		for _, a := range alerts {
			g.metrics.alerts.WithLabelValues(string(a.Kind)).Inc()
		}
		g.registry.Broadcast(&OutboundMessage{
			Type:          MessageTypeAlert,
			SessionID:     sessionID,
			ParticipantID: participantID,
			Alerts:        alerts,
			Timestamp:     now.UnixMilli(),
		})
		logger.Debug("quality alerts raised", "count", len(alerts))
	}

	interval := g.routineInterval
	if update.hasSecondaryBitrate() {
		interval = g.secondaryInterval
	}
	if !g.gate.Allow(throttleKey(sessionID, participantID), interval) {
		g.metrics.throttled.Inc()
		return nil
	}

	g.registry.Broadcast(&OutboundMessage{
		Type:          MessageTypeUpdate,
		SessionID:     sessionID,
		ParticipantID: participantID,
		Metrics:       merged,
		Timestamp:     now.UnixMilli(),
	})
	return nil
}

// ForgetParticipant clears the throttle and cooldown timers of one
// participant.
func (g *Gateway) ForgetParticipant(sessionID, participantID string) {
	g.gate.Reset(throttleKey(sessionID, participantID))
	g.gate.Forget(cooldownPrefix(participantID))
}

func (g *Gateway) ForgetSession(sessionID string, participants []string) {
	g.gate.Forget(throttlePrefix(sessionID))
	for _, p := range participants {
		g.gate.Forget(cooldownPrefix(p))
	}
}

// Sweep drops gate entries older than the state TTL.
func (g *Gateway) Sweep() int {
	return g.gate.Sweep(g.stateTTL)
}

func (g *Gateway) runSweeper(ctx context.Context) {
	ticker := g.clock.Ticker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.Sweep(); n > 0 {
				g.logger.Debug("swept idle gate keys", "removed", n)
			}
		}
	}
}

func (g *Gateway) Start() {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.runSweeper(g.ctx)
	}()
}

func (g *Gateway) Close() error {
	g.cancel()
	g.wg.Wait()
	return nil
}
