package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"auction-market/internal/biddingerrors"
	"auction-market/utils"

	"github.com/gin-gonic/gin"
)

// retryAfterSeconds is sent with 503 responses for lock timeouts
const retryAfterSeconds = "1"

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrCategoryNotFound):
		return http.StatusNotFound, "category not found"
	case errors.Is(err, biddingerrors.ErrWalletNotFound):
		return http.StatusNotFound, "wallet not found"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for auction"
	case errors.Is(err, biddingerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid amount"
	case errors.Is(err, biddingerrors.ErrSearchTooShort):
		return http.StatusBadRequest, "search term too short"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAuctionClosed):
		return http.StatusConflict, "auction is closed"
	case errors.Is(err, biddingerrors.ErrSelfBid):
		return http.StatusForbidden, "auctioneer cannot bid on own auction"
	case errors.Is(err, biddingerrors.ErrNotOwner):
		return http.StatusForbidden, "user does not own auction"
	}

	switch biddingerrors.KindOf(err) {
	case biddingerrors.KindValidation:
		return http.StatusBadRequest, "invalid request"
	case biddingerrors.KindConflict:
		return http.StatusConflict, conflictMessage(err)
	case biddingerrors.KindBusiness:
		return http.StatusUnprocessableEntity, businessMessage(err)
	case biddingerrors.KindRetryable:
		return http.StatusServiceUnavailable, "resource busy, retry later"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func conflictMessage(err error) string {
	for _, sentinel := range []error{
		biddingerrors.ErrCategoryExists,
		biddingerrors.ErrWalletExists,
		biddingerrors.ErrAuctionLocked,
		biddingerrors.ErrAuctionOpen,
		biddingerrors.ErrAlreadySettled,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "conflict with current state"
}

func businessMessage(err error) string {
	if errors.Is(err, biddingerrors.ErrInsufficientFunds) {
		return biddingerrors.ErrInsufficientFunds.Error()
	}
	return biddingerrors.ErrNoSolventBidder.Error()
}

// RespondError writes the mapped error response and logs it. Server-side
// failures are logged as errors, everything else as a warning.
func RespondError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", retryAfterSeconds)
	}
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["status"] = status
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request failed", fields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
