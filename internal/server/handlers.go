package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/referral-swap/internal/ai"
	"github.com/aman-zulfiqar/referral-swap/internal/models"
	"github.com/aman-zulfiqar/referral-swap/internal/referral"
	"github.com/aman-zulfiqar/referral-swap/internal/swapengine"
)

// RecentSwapSource serves the recent swaps list.
type RecentSwapSource interface {
	RecentSwaps(ctx context.Context, limit int) ([]*models.SwapEvent, error)
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Engine   *swapengine.Engine // Swap orchestrator
	Registry referral.Registry  // Referral registry admin (optional)
	Recent   RecentSwapSource   // Recent swaps cache (optional)
	AI       *ai.Agent          // History questions; per-request models derive from it (optional)
	DevMode  bool               // Enable detailed error responses in development
	Logger   *logrus.Logger     // Structured logger
	Now      func() time.Time   // Clock; defaults to time.Now
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// fail maps a domain error to its status. 5xx responses are logged.
func (h *Handlers) fail(c echo.Context, op string, err error) error {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger().WithError(err).WithField("op", op).Error("request failed")
	}
	return h.err(c, code, msg, map[string]any{"err": err.Error()})
}

func (h *Handlers) logger() *logrus.Logger {
	if h.Logger == nil {
		h.Logger = logrus.New()
	}
	return h.Logger
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health pings the engine's backends
func (h *Handlers) Health(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Engine.Ping(ctx); err != nil {
		return h.err(c, http.StatusServiceUnavailable, "unhealthy", map[string]any{"err": err.Error()})
	}
	return c.JSON(http.StatusOK, HealthResponse{OK: true})
}

// RecentSwaps returns the most recent swap events with optional limit parameter
// Accepts limit query parameter (default: 100, range: 1-100)
func (h *Handlers) RecentSwaps(c echo.Context) error {
	if h.Recent == nil {
		return h.err(c, http.StatusBadRequest, "recent swaps are not configured", nil)
	}

	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 100 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 100"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Recent.RecentSwaps(ctx, limit)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get swaps", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

// Leaderboard pages the ranked codes.
// Accepts start_after (code) and limit (default and max 50).
func (h *Handlers) Leaderboard(c echo.Context) error {
	var startAfter *string
	if v := strings.TrimSpace(c.QueryParam("start_after")); v != "" {
		startAfter = &v
	}

	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be a non-negative integer"})
		}
		limit = n
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	page, err := h.Engine.Leaderboard(ctx, startAfter, limit)
	if err != nil {
		return h.fail(c, "leaderboard", err)
	}
	return c.JSON(http.StatusOK, page)
}

// LeaderboardPosition returns one code's rank
func (h *Handlers) LeaderboardPosition(c echo.Context) error {
	code := c.Param("code")

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	pos, err := h.Engine.PositionOf(ctx, code)
	if err != nil {
		return h.fail(c, "leaderboard_position", err)
	}
	normalized, _ := referral.Normalize(code)
	return c.JSON(http.StatusOK, PositionResponse{Code: normalized, Ranked: pos != nil, Rank: pos})
}

// Pause stops swaps until Resume
func (h *Handlers) Pause(c echo.Context) error {
	return h.setPaused(c, true)
}

func (h *Handlers) Resume(c echo.Context) error {
	return h.setPaused(c, false)
}

func (h *Handlers) setPaused(c echo.Context, paused bool) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Engine.SetPaused(ctx, paused); err != nil {
		return h.fail(c, "set_paused", err)
	}
	return c.JSON(http.StatusOK, PauseResponse{Paused: paused})
}

// AIAsk processes natural language questions about swap history using AI
// Supports optional model override for one-off requests
// Returns SQL query and answer with execution time
func (h *Handlers) AIAsk(c echo.Context) error {
	if h.AI == nil {
		return h.err(c, http.StatusBadRequest, "ai is not configured", nil)
	}

	var req AIAskRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return h.err(c, http.StatusBadRequest, "question is required", map[string]any{"question": "required"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 45*time.Second)
	defer cancel()

	start := time.Now()

	agent := h.AI
	if m := strings.TrimSpace(req.Model); m != "" {
		tmp, err := h.AI.WithModel(m)
		if err != nil {
			return h.err(c, http.StatusInternalServerError, "failed to create ai agent", nil)
		}
		agent = tmp
	}

	res, err := agent.Ask(ctx, req.Question)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "ai ask failed", map[string]any{"err": err.Error()})
	}

	return c.JSON(http.StatusOK, AIAskResponse{
		SQL:     res.SQL,
		Answer:  res.Answer,
		Rows:    res.Rows,
		Recipes: res.Recipes,
		TookMs:  time.Since(start).Milliseconds(),
	})
}
