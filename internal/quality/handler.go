package quality

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/eleven-am/tutor-backend/internal/shared"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	DefaultProducerRate  = 20
	DefaultProducerBurst = 40
)

type Handler struct {
	gateway       *Gateway
	store         *StateStore
	registry      *Registry
	producerRate  rate.Limit
	producerBurst int
	metrics       *Metrics
	logger        *slog.Logger
}

func NewHandler(gateway *Gateway, store *StateStore, registry *Registry, producerRate float64, producerBurst int, metrics *Metrics, logger *slog.Logger) *Handler {
	if producerRate <= 0 {
		producerRate = DefaultProducerRate
	}
	if producerBurst <= 0 {
		producerBurst = DefaultProducerBurst
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Handler{
		gateway:       gateway,
		store:         store,
		registry:      registry,
		producerRate:  rate.Limit(producerRate),
		producerBurst: producerBurst,
		metrics:       metrics,
		logger:        logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleProducer)
	g.GET("/observe", h.HandleObserver)
	g.POST("/sessions/:session_id/participants/:participant_id", h.PostUpdate)
	g.GET("/sessions/:session_id/participants/:participant_id", h.GetState)
}

// HandleProducer godoc
// @Summary      Stream participant quality updates
// @Description  Upgrades to a websocket that accepts UpdateMessage frames for one participant
// @Tags         quality
// @Param        session_id      query  string  true  "Session ID"
// @Param        participant_id  query  string  true  "Participant ID"
// @Success      101
// @Failure      400  {object}  shared.APIError
// @Router       /quality/ws [get]
func (h *Handler) HandleProducer(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	participantID := c.QueryParam("participant_id")
	if sessionID == "" || participantID == "" {
		return shared.BadRequest("missing_participant", "session_id and participant_id are required")
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return nil
	}

	limiter := rate.NewLimiter(h.producerRate, h.producerBurst)
	producer := newWSProducer(ws, sessionID, participantID, limiter, h.gateway, h.metrics, h.logger)

	h.logger.Info("quality producer connected", "session_id", sessionID, "participant_id", participantID)
	producer.readPump(c.Request().Context())
	h.logger.Info("quality producer disconnected", "session_id", sessionID, "participant_id", participantID)
	return nil
}

// HandleObserver godoc
// @Summary      Observe live quality
// @Description  Upgrades to a websocket receiving quality_update and quality_alert messages for every session
// @Tags         quality
// @Success      101
// @Router       /quality/observe [get]
func (h *Handler) HandleObserver(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return nil
	}

	observer := newWSObserver(ws, shared.NewID("obs_"), h.logger)
	if err := h.registry.Subscribe(observer); err != nil {
		h.logger.Error("failed to subscribe observer", "error", err)
		_ = observer.Close()
		return nil
	}
	defer h.registry.Unsubscribe(observer.ID())

	h.logger.Info("quality observer connected", "observer_id", observer.ID())

	ctx := c.Request().Context()
	go observer.writePump(ctx)
	observer.readPump(ctx)

	h.logger.Info("quality observer disconnected", "observer_id", observer.ID())
	return nil
}

// PostUpdate godoc
// @Summary      Submit a participant quality update
// @Tags         quality
// @Accept       json
// @Param        session_id      path  string         true  "Session ID"
// @Param        participant_id  path  string         true  "Participant ID"
// @Param        request         body  UpdateMessage  true  "Partial metrics"
// @Success      202
// @Failure      400  {object}  shared.APIError
// @Failure      500  {object}  shared.APIError
// @Router       /quality/sessions/{session_id}/participants/{participant_id} [post]
func (h *Handler) PostUpdate(c echo.Context) error {
	var msg UpdateMessage
	if err := c.Bind(&msg); err != nil {
		h.metrics.updates.WithLabelValues(updateInvalid).Inc()
		return shared.BadRequest("invalid_request", "invalid request body")
	}

	err := h.gateway.OnUpdate(c.Request().Context(), c.Param("session_id"), c.Param("participant_id"), msg.Metrics)
	if errors.Is(err, ErrMissingParticipant) {
		return shared.BadRequest("missing_participant", err.Error())
	}
	if err != nil {
		return shared.InternalError("update_failed", "failed to apply quality update")
	}
	return c.NoContent(http.StatusAccepted)
}

// GetState godoc
// @Summary      Current merged participant quality
// @Tags         quality
// @Produce      json
// @Param        session_id      path  string  true  "Session ID"
// @Param        participant_id  path  string  true  "Participant ID"
// @Success      200  {object}  ParticipantState
// @Failure      404  {object}  shared.APIError
// @Failure      500  {object}  shared.APIError
// @Router       /quality/sessions/{session_id}/participants/{participant_id} [get]
func (h *Handler) GetState(c echo.Context) error {
	state, err := h.store.Get(c.Request().Context(), c.Param("session_id"), c.Param("participant_id"))
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NotFound("state_not_found", "no recent quality state for participant")
	}
	if err != nil {
		h.logger.Error("failed to read participant state", "error", err)
		return shared.InternalError("state_read_failed", "failed to read participant state")
	}
	return c.JSON(http.StatusOK, state)
}
