package telemetry

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/eleven-am/tutor-backend/internal/shared"
	"github.com/labstack/echo/v4"
)

const (
	defaultRollupHours = 24
	maxRollupHours     = 24 * 31
	defaultRollupLimit = 500
)

type BufferStatus struct {
	Size          int64      `json:"size"`
	Capacity      int        `json:"capacity"`
	LastFlushedAt *time.Time `json:"last_flushed_at,omitempty"`
}

type LiveResponse struct {
	Entries []*LiveEntry `json:"entries"`
}

type RollupsResponse struct {
	Hours   int             `json:"hours"`
	Rollups []*HourlyRollup `json:"rollups"`
}

type Handler struct {
	collector *Collector
	live      *LiveView
	rollups   *RollupStore
	window    *FlushWindow
	logger    *slog.Logger
}

func NewHandler(collector *Collector, live *LiveView, rollups *RollupStore, window *FlushWindow, logger *slog.Logger) *Handler {
	return &Handler{
		collector: collector,
		live:      live,
		rollups:   rollups,
		window:    window,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/live", h.GetLive)
	g.GET("/rollups", h.GetRollups)
	g.GET("/buffer", h.GetBuffer)
}

// GetLive godoc
// @Summary      Live request metrics
// @Description  Per-endpoint counters for traffic seen in the last few minutes
// @Tags         telemetry
// @Produce      json
// @Success      200  {object}  LiveResponse
// @Failure      500  {object}  shared.APIError
// @Router       /telemetry/live [get]
func (h *Handler) GetLive(c echo.Context) error {
	entries, err := h.live.List(c.Request().Context())
	if err != nil {
		h.logger.Error("failed to list live view", "error", err)
		return shared.InternalError("live_view_failed", "failed to read live metrics")
	}
	return c.JSON(http.StatusOK, LiveResponse{Entries: entries})
}

// GetRollups godoc
// @Summary      Hourly request rollups
// @Tags         telemetry
// @Produce      json
// @Param        hours  query  int  false  "Hours to look back"  default(24)
// @Param        limit  query  int  false  "Maximum rows"        default(500)
// @Success      200  {object}  RollupsResponse
// @Failure      400  {object}  shared.APIError
// @Failure      500  {object}  shared.APIError
// @Router       /telemetry/rollups [get]
func (h *Handler) GetRollups(c echo.Context) error {
	hours := defaultRollupHours
	if v := c.QueryParam("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxRollupHours {
			return shared.BadRequest("invalid_hours", "hours must be between 1 and 744")
		}
		hours = n
	}

	limit := defaultRollupLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return shared.BadRequest("invalid_limit", "limit must be a positive integer")
		}
		limit = n
	}

	since := time.Now().UTC().Add(-time.Duration(hours-1) * time.Hour)
	rollups, err := h.rollups.ListSince(c.Request().Context(), since, limit)
	if err != nil {
		h.logger.Error("failed to list rollups", "error", err, "hours", hours)
		return shared.InternalError("rollups_failed", "failed to read hourly rollups")
	}

	return c.JSON(http.StatusOK, RollupsResponse{Hours: hours, Rollups: rollups})
}

// GetBuffer godoc
// @Summary      Sample buffer depth
// @Tags         telemetry
// @Produce      json
// @Success      200  {object}  BufferStatus
// @Failure      500  {object}  shared.APIError
// @Router       /telemetry/buffer [get]
func (h *Handler) GetBuffer(c echo.Context) error {
	ctx := c.Request().Context()

	size, err := h.collector.Size(ctx)
	if err != nil {
		h.logger.Error("failed to read buffer size", "error", err)
		return shared.InternalError("buffer_size_failed", "failed to read buffer size")
	}

	status := BufferStatus{Size: size, Capacity: h.collector.Capacity()}
	if last, ok, err := h.window.LastFlushedAt(ctx); err != nil {
		h.logger.Warn("failed to read last flush time", "error", err)
	} else if ok {
		status.LastFlushedAt = &last
	}

	return c.JSON(http.StatusOK, status)
}
