package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/referral-swap/internal/referral"
	"github.com/aman-zulfiqar/referral-swap/internal/storage"
	"github.com/aman-zulfiqar/referral-swap/internal/swapengine"
)

// NotFoundJSON returns a custom HTTP error handler that returns JSON responses
// This ensures all errors (including 404s) have consistent JSON format
func NotFoundJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		// Don't send response if already committed
		if c.Response().Committed {
			return
		}

		// Handle Echo HTTP errors (like 404, 400, etc.)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, ErrorResponse{
				Error: http.StatusText(he.Code),
				Code:  he.Code,
			})
			return
		}

		// Handle all other errors as internal server error
		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}

// statusFor maps domain errors to an HTTP status and a stable message.
// Anything unrecognised is a 500.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, swapengine.ErrZeroAmount),
		errors.Is(err, swapengine.ErrBelowMinimum):
		return http.StatusBadRequest, "invalid amount"
	case errors.Is(err, swapengine.ErrInvalidCode),
		errors.Is(err, referral.ErrInvalidCode):
		return http.StatusBadRequest, "invalid referral code"
	case errors.Is(err, referral.ErrInvalidOwner):
		return http.StatusBadRequest, "invalid owner"
	case errors.Is(err, swapengine.ErrCodeNotRegistered):
		return http.StatusBadRequest, "referral code not registered"
	case errors.Is(err, swapengine.ErrSwapNotStarted):
		return http.StatusConflict, "swap period has not started"
	case errors.Is(err, swapengine.ErrSwapEnded):
		return http.StatusConflict, "swap period has ended"
	case errors.Is(err, swapengine.ErrSwapPaused):
		return http.StatusConflict, "swaps are paused"
	case errors.Is(err, referral.ErrCodeTaken):
		return http.StatusConflict, "referral code already registered"
	case errors.Is(err, referral.ErrOwnerLimit):
		return http.StatusConflict, "owner has reached the referral code limit"
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, "state changed concurrently, retry"
	case errors.Is(err, swapengine.ErrSafetyLimit):
		return http.StatusUnprocessableEntity, "mint exceeds safety limit"
	case errors.Is(err, referral.ErrNotFound):
		return http.StatusNotFound, "referral code not found"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
