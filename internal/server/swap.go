package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/referral-swap/internal/num"
)

// Swap executes one conversion
func (h *Handlers) Swap(c echo.Context) error {
	var req SwapRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", map[string]any{"err": err.Error()})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	res, err := h.Engine.Swap(ctx, &req, h.now())
	if err != nil {
		return h.fail(c, "swap", err)
	}
	return c.JSON(http.StatusOK, res)
}

// Simulate previews a swap without writing.
// Accepts amount (required, input smallest units) and code (optional).
func (h *Handlers) Simulate(c echo.Context) error {
	amountStr := strings.TrimSpace(c.QueryParam("amount"))
	if amountStr == "" {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"amount": "required"})
	}
	amount, err := num.Uint128FromString(amountStr)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid amount", map[string]any{"amount": "must be an unsigned 128-bit integer"})
	}
	code := strings.TrimSpace(c.QueryParam("code"))

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	sim, err := h.Engine.Simulate(ctx, amount, code, h.now())
	if err != nil {
		return h.fail(c, "simulate", err)
	}
	return c.JSON(http.StatusOK, sim)
}

// Rate returns the current conversion rate
func (h *Handlers) Rate(c echo.Context) error {
	info, err := h.Engine.CurrentRate(h.now())
	if err != nil {
		return h.fail(c, "rate", err)
	}
	return c.JSON(http.StatusOK, info)
}

// Status returns the swap window and pause state
func (h *Handlers) Status(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	st, err := h.Engine.Status(ctx, h.now())
	if err != nil {
		return h.fail(c, "status", err)
	}
	return c.JSON(http.StatusOK, st)
}

// Stats returns the global swap accumulators
func (h *Handlers) Stats(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	st, err := h.Engine.Stats(ctx)
	if err != nil {
		return h.fail(c, "stats", err)
	}
	return c.JSON(http.StatusOK, st)
}
