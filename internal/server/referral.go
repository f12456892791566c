package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/referral-swap/internal/referral"
)

// requireRegistry rejects registry routes when the service only has a
// remote oracle.
func (h *Handlers) requireRegistry(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.Registry == nil {
			return h.err(c, http.StatusNotImplemented, "referral registry is not available on this service", nil)
		}
		return next(c)
	}
}

// ReferralRegister creates a code for an owner
// Returns 409 when the code is taken or the owner is at the limit
func (h *Handlers) ReferralRegister(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	if _, err := referral.Normalize(req.Code); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid referral code", map[string]any{"code": "1-20 characters of a-z, 0-9, _ or -"})
	}
	if err := referral.ValidateOwner(req.Owner); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid owner", map[string]any{"owner": "invalid format"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Registry.Register(ctx, req.Code, req.Owner)
	if err != nil {
		return h.fail(c, "referral_register", err)
	}
	return c.JSON(http.StatusCreated, out)
}

// ReferralGet retrieves a registered code
// Returns 404 if the code doesn't exist
func (h *Handlers) ReferralGet(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Registry.Get(ctx, c.Param("code"))
	if err != nil {
		return h.fail(c, "referral_get", err)
	}
	return c.JSON(http.StatusOK, out)
}

// ReferralList returns the codes owned by ?owner=
func (h *Handlers) ReferralList(c echo.Context) error {
	owner := strings.TrimSpace(c.QueryParam("owner"))
	if owner == "" {
		return h.err(c, http.StatusBadRequest, "owner is required", map[string]any{"owner": "required"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Registry.ListByOwner(ctx, owner)
	if err != nil {
		return h.fail(c, "referral_list", err)
	}
	return c.JSON(http.StatusOK, ReferralListResponse{Owner: owner, Items: items})
}

// ReferralDelete removes a code
// Returns 204 No Content on successful deletion
func (h *Handlers) ReferralDelete(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Registry.Delete(ctx, c.Param("code")); err != nil {
		return h.fail(c, "referral_delete", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ReferralValidate answers the oracle question for a code. This is the
// endpoint referral.Client calls when another service is the oracle.
func (h *Handlers) ReferralValidate(c echo.Context) error {
	code := c.Param("code")

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	v, err := h.Registry.ValidateCode(ctx, code)
	if err != nil {
		return h.fail(c, "referral_validate", err)
	}
	if normalized, err := referral.Normalize(code); err == nil {
		code = normalized
	}
	return c.JSON(http.StatusOK, ValidateResponse{Code: code, Validation: v})
}

// ReferralStats returns a code's owner and cumulative stats
func (h *Handlers) ReferralStats(c echo.Context) error {
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Engine.CodeStats(ctx, c.Param("code"))
	if err != nil {
		return h.fail(c, "referral_stats", err)
	}
	return c.JSON(http.StatusOK, out)
}
