package quality

import (
	"encoding/json"
	"testing"
)

func TestParticipantState_MergeKeepsAbsentFields(t *testing.T) {
	state := ParticipantState{
		Latency: Ptr(50.0),
		Quality: Ptr(GradeGood),
	}

	state.Merge(ParticipantState{Latency: Ptr(120.0)})

	if state.Latency == nil || *state.Latency != 120 {
		t.Errorf("expected latency 120, got %v", state.Latency)
	}
	if state.Quality == nil || *state.Quality != GradeGood {
		t.Errorf("expected quality good to survive, got %v", state.Quality)
	}
	if state.PacketLoss != nil {
		t.Errorf("expected packet loss unset, got %v", *state.PacketLoss)
	}
}

func TestParticipantState_MergeSecondaryFieldByField(t *testing.T) {
	state := ParticipantState{
		Secondary: &SecondaryMetrics{
			Bitrate:         Ptr(1200.0),
			BufferingEvents: Ptr(int64(2)),
		},
	}

	state.Merge(ParticipantState{
		Secondary: &SecondaryMetrics{Bitrate: Ptr(3000.0), BytesReceived: Ptr(int64(4096))},
	})

	s := state.Secondary
	if *s.Bitrate != 3000 {
		t.Errorf("expected bitrate 3000, got %v", *s.Bitrate)
	}
	if s.BufferingEvents == nil || *s.BufferingEvents != 2 {
		t.Errorf("expected buffering events to survive, got %v", s.BufferingEvents)
	}
	if s.BytesReceived == nil || *s.BytesReceived != 4096 {
		t.Errorf("expected bytes received 4096, got %v", s.BytesReceived)
	}
}

func TestParticipantState_MergeFalseRelay(t *testing.T) {
	state := ParticipantState{UsingRelay: Ptr(true)}
	state.Merge(ParticipantState{UsingRelay: Ptr(false)})

	if state.UsingRelay == nil || *state.UsingRelay {
		t.Error("expected explicit false to overwrite true")
	}
}

func TestUpdateMessage_Decode(t *testing.T) {
	raw := `{"sessionId":"sess_1","metrics":{"latency":42,"quality":"fair","secondary":{"bitrate":6000}},"isFullState":true,"timestamp":1710000000000}`

	var msg UpdateMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.SessionID != "sess_1" || !msg.IsFullState || msg.Timestamp != 1710000000000 {
		t.Errorf("unexpected envelope: %+v", msg)
	}
	if msg.Metrics.Latency == nil || *msg.Metrics.Latency != 42 {
		t.Errorf("unexpected latency: %v", msg.Metrics.Latency)
	}
	if !msg.Metrics.hasSecondaryBitrate() {
		t.Error("expected secondary bitrate present")
	}
	if msg.Metrics.UploadBitrate != nil {
		t.Error("expected upload bitrate absent")
	}
}

func TestGrade_Valid(t *testing.T) {
	for _, g := range []Grade{GradeExcellent, GradeGood, GradeFair, GradePoor} {
		if !g.Valid() {
			t.Errorf("expected %s valid", g)
		}
	}
	if Grade("terrible").Valid() {
		t.Error("expected unknown grade invalid")
	}
}
