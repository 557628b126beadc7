package quality

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/eleven-am/tutor-backend/internal/shared"
	"github.com/labstack/echo/v4"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
)

const (
	eventRoomFinished    = "room_finished"
	eventParticipantLeft = "participant_left"
)

// WebhookHandler clears participant state when LiveKit reports that a room
// (session) ended or a participant left. The room name is the session id and
// the participant identity is the participant id.
type WebhookHandler struct {
	keys    auth.KeyProvider
	store   *StateStore
	gateway *Gateway
	logger  *slog.Logger
}

func NewWebhookHandler(apiKey, apiSecret string, store *StateStore, gateway *Gateway, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		keys:    auth.NewSimpleKeyProvider(apiKey, apiSecret),
		store:   store,
		gateway: gateway,
		logger:  logger,
	}
}

func (h *WebhookHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/livekit/webhook", h.Receive)
}

// Receive godoc
// @Summary      LiveKit webhook
// @Tags         quality
// @Accept       json
// @Success      204
// @Failure      401  {object}  shared.APIError
// @Router       /quality/livekit/webhook [post]
func (h *WebhookHandler) Receive(c echo.Context) error {
	event, err := webhook.ReceiveWebhookEvent(c.Request(), h.keys)
	if err != nil {
		h.logger.Warn("rejected livekit webhook", "error", err)
		return shared.Unauthorized("invalid_webhook", "invalid webhook signature")
	}

	if err := h.HandleEvent(c.Request().Context(), event); err != nil {
		return shared.InternalError("webhook_failed", "failed to process webhook")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *WebhookHandler) HandleEvent(ctx context.Context, event *livekit.WebhookEvent) error {
	sessionID := event.GetRoom().GetName()
	if sessionID == "" {
		return nil
	}

	switch event.GetEvent() {
	case eventRoomFinished:
		participants, err := h.store.DeleteSession(ctx, sessionID)
		if err != nil {
			h.logger.Error("failed to clear session state", "error", err, "session_id", sessionID)
			return err
		}
		h.gateway.ForgetSession(sessionID, participants)
		h.logger.Info("session quality state cleared", "session_id", sessionID, "participants", len(participants))

	case eventParticipantLeft:
		participantID := event.GetParticipant().GetIdentity()
		if participantID == "" {
			return nil
		}
		if err := h.store.Delete(ctx, sessionID, participantID); err != nil {
			h.logger.Error("failed to clear participant state", "error", err,
				"session_id", sessionID, "participant_id", participantID)
			return err
		}
		h.gateway.ForgetParticipant(sessionID, participantID)
		h.logger.Debug("participant quality state cleared", "session_id", sessionID, "participant_id", participantID)
	}
	return nil
}
