package quality

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGateway_RoutineThrottle(t *testing.T) {
	tests := []struct {
		name  string
		gap   time.Duration
		wants int
	}{
		{"500ms apart", 500 * time.Millisecond, 1},
		{"1999ms apart", 1999 * time.Millisecond, 1},
		{"2100ms apart", 2100 * time.Millisecond, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGatewayFixture(t)
			ctx := context.Background()

			f.gateway.OnUpdate(ctx, "sess_1", "p1", ParticipantState{Latency: Ptr(40.0)})
			f.clock.Add(tt.gap)
			f.gateway.OnUpdate(ctx, "sess_1", "p1", ParticipantState{Latency: Ptr(45.0)})

			if got := len(f.observer.byType(MessageTypeUpdate)); got != tt.wants {
				t.Errorf("expected %d routine broadcasts, got %d", tt.wants, got)
			}
		})
	}
}

func TestGateway_SecondaryBitrateTightensThrottle(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	update := ParticipantState{Secondary: &SecondaryMetrics{Bitrate: Ptr(1500.0)}}

	f.gateway.OnUpdate(ctx, "sess_1", "p1", update)
	f.clock.Add(1100 * time.Millisecond)
	f.gateway.OnUpdate(ctx, "sess_1", "p1", update)

	if got := len(f.observer.byType(MessageTypeUpdate)); got != 2 {
		t.Errorf("expected 2 broadcasts at the secondary cadence, got %d", got)
	}
}

func TestGateway_SuppressedUpdateStillMerged(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	f.gateway.OnUpdate(ctx, "sess_1", "p1", ParticipantState{Latency: Ptr(40.0)})
	f.clock.Add(500 * time.Millisecond)
	f.gateway.OnUpdate(ctx, "sess_1", "p1", ParticipantState{Quality: Ptr(GradeFair)})

	state, err := f.store.Get(ctx, "sess_1", "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.Quality == nil || *state.Quality != GradeFair {
		t.Error("suppressed update should still be merged")
	}

	f.clock.Add(2 * time.Second)
	f.gateway.OnUpdate(ctx, "sess_1", "p1", ParticipantState{DownloadBitrate: Ptr(900.0)})

	updates := f.observer.byType(MessageTypeUpdate)
	if len(updates) != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", len(updates))
	}
	last := updates[1].Metrics
	if *last.Latency != 40 || *last.Quality != GradeFair || *last.DownloadBitrate != 900 {
		t.Errorf("expected broadcast of the full merged state, got %+v", last)
	}
}

func TestGateway_ThrottleIsPerParticipant(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	f.gateway.OnUpdate(ctx, "sess_1", "p1", ParticipantState{Latency: Ptr(40.0)})
	f.gateway.OnUpdate(ctx, "sess_1", "p2", ParticipantState{Latency: Ptr(40.0)})
	f.gateway.OnUpdate(ctx, "sess_2", "p1", ParticipantState{Latency: Ptr(40.0)})

	if got := len(f.observer.byType(MessageTypeUpdate)); got != 3 {
		t.Errorf("expected 3 independent broadcasts, got %d", got)
	}
}

func TestGateway_AlertBypassesThrottle(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	f.gateway.OnUpdate(ctx, "sess_1", "p1", ParticipantState{Latency: Ptr(40.0)})
	f.clock.Add(10 * time.Millisecond)
	f.gateway.OnUpdate(ctx, "sess_1", "p1", ParticipantState{Latency: Ptr(41.0)})
	f.clock.Add(10 * time.Millisecond)
	f.gateway.OnUpdate(ctx, "sess_1", "p1", ParticipantState{Quality: Ptr(GradePoor)})

	if got := len(f.observer.byType(MessageTypeUpdate)); got != 1 {
		t.Errorf("expected 1 routine broadcast, got %d", got)
	}

	alerts := f.observer.byType(MessageTypeAlert)
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert batch, got %d", len(alerts))
	}
	a := alerts[0].Alerts
	if len(a) != 1 || a[0].Kind != AlertPoorConnection || a[0].Severity != SeverityCritical {
		t.Errorf("unexpected alerts: %+v", a)
	}
	if alerts[0].SessionID != "sess_1" || alerts[0].ParticipantID != "p1" {
		t.Errorf("unexpected alert envelope: %+v", alerts[0])
	}
}

func TestGateway_PacketLossScenario(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	if err := f.gateway.OnUpdate(ctx, "sess_1", "p1", ParticipantState{PacketLoss: Ptr(7.0)}); err != nil {
		t.Fatalf("OnUpdate: %v", err)
	}

	alerts := f.observer.byType(MessageTypeAlert)
	if len(alerts) != 1 || len(alerts[0].Alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %+v", alerts)
	}
	if a := alerts[0].Alerts[0]; a.Kind != AlertPacketLoss || a.Severity != SeverityWarning {
		t.Errorf("expected packet-loss warning, got %+v", a)
	}

	state, err := f.store.Get(ctx, "sess_1", "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if state.PacketLoss == nil || *state.PacketLoss != 7 {
		t.Errorf("expected stored packet loss 7, got %v", state.PacketLoss)
	}
}

func TestGateway_SecondaryAlertCooldown(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	update := ParticipantState{Secondary: &SecondaryMetrics{Bitrate: Ptr(6500.0)}}

	f.gateway.OnUpdate(ctx, "sess_1", "p1", update)
	f.clock.Add(10 * time.Second)
	f.gateway.OnUpdate(ctx, "sess_1", "p1", update)

	if got := f.observer.alertsOfKind(AlertHighSecondaryBandwidth); got != 1 {
		t.Fatalf("expected 1 bandwidth alert within cooldown, got %d", got)
	}

	f.clock.Add(25 * time.Second)
	f.gateway.OnUpdate(ctx, "sess_1", "p1", update)

	if got := f.observer.alertsOfKind(AlertHighSecondaryBandwidth); got != 2 {
		t.Errorf("expected 2 bandwidth alerts after cooldown, got %d", got)
	}
}

func TestGateway_AlertOrderAndFlags(t *testing.T) {
	f := newGatewayFixture(t)

	f.gateway.OnUpdate(context.Background(), "sess_1", "p1", ParticipantState{
		Latency:    Ptr(450.0),
		PacketLoss: Ptr(12.0),
		UsingRelay: Ptr(true),
		Quality:    Ptr(GradePoor),
		Secondary:  &SecondaryMetrics{Bitrate: Ptr(8000.0)},
	})

	batches := f.observer.byType(MessageTypeAlert)
	if len(batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(batches))
	}
	alerts := batches[0].Alerts

	want := []struct {
		kind     AlertKind
		severity Severity
		cost     bool
	}{
		{AlertHighLatency, SeverityWarning, false},
		{AlertPacketLoss, SeverityWarning, false},
		{AlertUsingRelay, SeverityInfo, true},
		{AlertPoorConnection, SeverityCritical, false},
		{AlertHighSecondaryBandwidth, SeverityWarning, true},
	}
	if len(alerts) != len(want) {
		t.Fatalf("expected %d alerts, got %d", len(want), len(alerts))
	}
	for i, w := range want {
		a := alerts[i]
		if a.Kind != w.kind || a.Severity != w.severity || a.CostRelevant != w.cost {
			t.Errorf("alert %d: expected %s/%s/%v, got %s/%s/%v", i, w.kind, w.severity, w.cost, a.Kind, a.Severity, a.CostRelevant)
		}
		if a.Message == "" {
			t.Errorf("alert %d: expected a message", i)
		}
	}
}

func TestGateway_ThresholdsAreExclusive(t *testing.T) {
	f := newGatewayFixture(t)

	f.gateway.OnUpdate(context.Background(), "sess_1", "p1", ParticipantState{
		Latency:    Ptr(300.0),
		PacketLoss: Ptr(5.0),
		UsingRelay: Ptr(false),
		Quality:    Ptr(GradeFair),
		Secondary:  &SecondaryMetrics{Bitrate: Ptr(5000.0)},
	})

	if got := len(f.observer.byType(MessageTypeAlert)); got != 0 {
		t.Errorf("expected no alerts at the thresholds, got %d", got)
	}
}

type failingMerger struct {
	failFor string
	next    StateMerger
}

func (m *failingMerger) Merge(ctx context.Context, sessionID, participantID string, update ParticipantState, now time.Time) (*ParticipantState, error) {
	if participantID == m.failFor {
		return nil, errors.New("store unavailable")
	}
	return m.next.Merge(ctx, sessionID, participantID, update, now)
}

func TestGateway_ErrorsIsolatedPerParticipant(t *testing.T) {
	f := newGatewayFixture(t)
	gw := NewGateway(GatewayConfig{
		Store:    &failingMerger{failFor: "broken", next: f.store},
		Registry: f.registry,
		Clock:    f.clock,
		Log:      newTestLogger(),
	})
	ctx := context.Background()

	if err := gw.OnUpdate(ctx, "sess_1", "broken", ParticipantState{Quality: Ptr(GradePoor)}); err == nil {
		t.Error("expected merge error for broken participant")
	}
	if err := gw.OnUpdate(ctx, "sess_1", "healthy", ParticipantState{Latency: Ptr(20.0)}); err != nil {
		t.Errorf("healthy participant affected: %v", err)
	}

	updates := f.observer.byType(MessageTypeUpdate)
	if len(updates) != 1 || updates[0].ParticipantID != "healthy" {
		t.Errorf("expected one broadcast for healthy participant, got %+v", updates)
	}
}

func TestGateway_MissingIDs(t *testing.T) {
	f := newGatewayFixture(t)

	err := f.gateway.OnUpdate(context.Background(), "", "p1", ParticipantState{})
	if !errors.Is(err, ErrMissingParticipant) {
		t.Errorf("expected ErrMissingParticipant, got %v", err)
	}
}

func TestGateway_ForgetSessionResetsTimers(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	hot := ParticipantState{Secondary: &SecondaryMetrics{Bitrate: Ptr(9000.0)}}

	f.gateway.OnUpdate(ctx, "sess_1", "p1", hot)
	f.gateway.ForgetSession("sess_1", []string{"p1"})
	f.gateway.OnUpdate(ctx, "sess_1", "p1", hot)

	if got := len(f.observer.byType(MessageTypeUpdate)); got != 2 {
		t.Errorf("expected throttle reset, got %d routine broadcasts", got)
	}
	if got := f.observer.alertsOfKind(AlertHighSecondaryBandwidth); got != 2 {
		t.Errorf("expected cooldown reset, got %d alerts", got)
	}
}

func TestGateway_Sweep(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()

	f.gateway.OnUpdate(ctx, "sess_1", "p1", ParticipantState{Latency: Ptr(1.0)})
	f.clock.Add(10 * time.Minute)
	f.gateway.OnUpdate(ctx, "sess_1", "p2", ParticipantState{Latency: Ptr(1.0)})

	if removed := f.gateway.Sweep(); removed != 1 {
		t.Errorf("expected 1 idle key swept, got %d", removed)
	}
}
