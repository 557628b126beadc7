package quality

import (
	"fmt"
	"time"

	"github.com/eleven-am/tutor-backend/internal/ratelimit"
)

const (
	LatencyThresholdMs        = 300
	PacketLossThresholdPct    = 5
	SecondaryBitrateThreshold = 5000
	DefaultAlertCooldown      = 30 * time.Second
)

func cooldownKey(participantID string, kind AlertKind) string {
	return cooldownPrefix(participantID) + string(kind)
}

func cooldownPrefix(participantID string) string {
	return "cooldown:" + participantID + ":"
}

type alertRules struct {
	gate     *ratelimit.Gate
	cooldown time.Duration
}

// evaluate checks the fields reported in one update. Rules run in a fixed
// order and each contributes at most one alert.
func (r *alertRules) evaluate(participantID string, u ParticipantState) []AlertEvent {
	var alerts []AlertEvent

	if u.Latency != nil && *u.Latency > LatencyThresholdMs {
		alerts = append(alerts, AlertEvent{
			Kind:     AlertHighLatency,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("High latency: %.0fms", *u.Latency),
		})
	}

	if u.PacketLoss != nil && *u.PacketLoss > PacketLossThresholdPct {
		alerts = append(alerts, AlertEvent{
			Kind:     AlertPacketLoss,
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("Packet loss at %.1f%%", *u.PacketLoss),
		})
	}

	if u.UsingRelay != nil && *u.UsingRelay {
		alerts = append(alerts, AlertEvent{
			Kind:         AlertUsingRelay,
			Severity:     SeverityInfo,
			Message:      "Connection is relayed through TURN",
			CostRelevant: true,
		})
	}

	if u.Quality != nil && *u.Quality == GradePoor {
		alerts = append(alerts, AlertEvent{
			Kind:     AlertPoorConnection,
			Severity: SeverityCritical,
			Message:  "Connection quality is poor",
		})
	}

	if u.hasSecondaryBitrate() && *u.Secondary.Bitrate > SecondaryBitrateThreshold {
		if r.gate.Allow(cooldownKey(participantID, AlertHighSecondaryBandwidth), r.cooldown) {
			alerts = append(alerts, AlertEvent{
				Kind:         AlertHighSecondaryBandwidth,
				Severity:     SeverityWarning,
				Message:      fmt.Sprintf("Screen share bitrate at %.0f kbps", *u.Secondary.Bitrate),
				CostRelevant: true,
			})
		}
	}

	return alerts
}
