package quality

import "time"

type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeFair      Grade = "fair"
	GradePoor      Grade = "poor"
)

func (g Grade) Valid() bool {
	switch g {
	case GradeExcellent, GradeGood, GradeFair, GradePoor:
		return true
	}
	return false
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type AlertKind string

const (
	AlertHighLatency            AlertKind = "high_latency"
	AlertPacketLoss             AlertKind = "packet_loss"
	AlertUsingRelay             AlertKind = "using_relay"
	AlertPoorConnection         AlertKind = "poor_connection"
	AlertHighSecondaryBandwidth AlertKind = "high_secondary_bandwidth"
)

type AlertEvent struct {
	Kind         AlertKind `json:"kind"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
	CostRelevant bool      `json:"costRelevant"`
}

// SecondaryMetrics describes the high-bandwidth media sub-stream (screen
// share) of a participant.
type SecondaryMetrics struct {
	Bitrate         *float64 `json:"bitrate,omitempty"`
	Quality         *Grade   `json:"quality,omitempty"`
	BytesReceived   *int64   `json:"bytesReceived,omitempty"`
	BufferingEvents *int64   `json:"bufferingEvents,omitempty"`
}

func (m *SecondaryMetrics) merge(u *SecondaryMetrics) {
	if u.Bitrate != nil {
		m.Bitrate = u.Bitrate
	}
	if u.Quality != nil {
		m.Quality = u.Quality
	}
	if u.BytesReceived != nil {
		m.BytesReceived = u.BytesReceived
	}
	if u.BufferingEvents != nil {
		m.BufferingEvents = u.BufferingEvents
	}
}

// ParticipantState is both the stored per-participant quality record and the
// shape of a partial update. A nil field in an update means "not reported".
// Bitrates are kbps, latency is ms, packet loss is a percentage.
type ParticipantState struct {
	UploadBitrate   *float64          `json:"uploadBitrate,omitempty"`
	DownloadBitrate *float64          `json:"downloadBitrate,omitempty"`
	Latency         *float64          `json:"latency,omitempty"`
	Quality         *Grade            `json:"quality,omitempty"`
	UsingRelay      *bool             `json:"usingRelay,omitempty"`
	PacketLoss      *float64          `json:"packetLoss,omitempty"`
	Secondary       *SecondaryMetrics `json:"secondary,omitempty"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Merge copies every field present in u over s.
func (s *ParticipantState) Merge(u ParticipantState) {
	if u.UploadBitrate != nil {
		s.UploadBitrate = u.UploadBitrate
	}
	if u.DownloadBitrate != nil {
		s.DownloadBitrate = u.DownloadBitrate
	}
	if u.Latency != nil {
		s.Latency = u.Latency
	}
	if u.Quality != nil {
		s.Quality = u.Quality
	}
	if u.UsingRelay != nil {
		s.UsingRelay = u.UsingRelay
	}
	if u.PacketLoss != nil {
		s.PacketLoss = u.PacketLoss
	}
	if u.Secondary != nil {
		if s.Secondary == nil {
			s.Secondary = &SecondaryMetrics{}
		}
		s.Secondary.merge(u.Secondary)
	}
}

func (s ParticipantState) hasSecondaryBitrate() bool {
	return s.Secondary != nil && s.Secondary.Bitrate != nil
}

func (s ParticipantState) IsEmpty() bool {
	return s.UploadBitrate == nil &&
		s.DownloadBitrate == nil &&
		s.Latency == nil &&
		s.Quality == nil &&
		s.UsingRelay == nil &&
		s.PacketLoss == nil &&
		s.Secondary == nil
}

// UpdateMessage is what a producer sends for one participant. IsFullState is
// accepted for compatibility; updates are merged either way.
type UpdateMessage struct {
	SessionID   string           `json:"sessionId"`
	Metrics     ParticipantState `json:"metrics"`
	IsFullState bool             `json:"isFullState,omitempty"`
	Timestamp   int64            `json:"timestamp,omitempty"`
}

type MessageType string

const (
	MessageTypeUpdate MessageType = "quality_update"
	MessageTypeAlert  MessageType = "quality_alert"
)

type OutboundMessage struct {
	Type          MessageType       `json:"type"`
	SessionID     string            `json:"sessionId"`
	ParticipantID string            `json:"participantId"`
	Metrics       *ParticipantState `json:"metrics,omitempty"`
	Alerts        []AlertEvent      `json:"alerts,omitempty"`
	Timestamp     int64             `json:"timestamp"`
}

func Ptr[T any](v T) *T {
	return &v
}
