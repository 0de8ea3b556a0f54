package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// UserIDHeader carries the acting user's id, set by the upstream gateway
const (
	UserIDHeader = "X-User-ID"
	UserIDKey    = "user_id"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators adds the custom binding rules used by the request DTOs
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("unexpected binding validator engine")
			return
		}
		registerErr = v.RegisterValidation("auctionstatus", func(fl validator.FieldLevel) bool {
			return model.AuctionStatus(strings.ToUpper(fl.Field().String())).Valid()
		})
	})
	return registerErr
}

// CurrentUser returns the acting user id stored by the auth middleware, falling back to the header
func CurrentUser(c *gin.Context) string {
	if id := c.GetString(UserIDKey); id != "" {
		return id
	}
	return strings.TrimSpace(c.GetHeader(UserIDHeader))
}

// ToMinorUnits converts an exact decimal into a positive whole number of minor units
func ToMinorUnits(d *decimal.Decimal, field string) (int64, error) {
	if d == nil {
		return 0, fmt.Errorf("%w: %s is required", biddingerrors.ErrValidation, field)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: %s must be positive", biddingerrors.ErrValidation, field)
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%w: %s must be a whole number of minor units", biddingerrors.ErrValidation, field)
	}
	n := d.BigInt()
	if !n.IsInt64() {
		return 0, fmt.Errorf("%w: %s is out of range", biddingerrors.ErrValidation, field)
	}
	return n.Int64(), nil
}

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONErrorWithDetails(c, http.StatusBadRequest, wrappedErr, biddingerrors.Code(biddingerrors.ErrValidation), "invalid request payload", nil)
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrUnauthenticated):
		return http.StatusUnauthorized, "missing user identity"
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for auction"
	case errors.Is(err, biddingerrors.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, biddingerrors.ErrSelfBid):
		return http.StatusBadRequest, "seller cannot bid on own auction"
	case errors.Is(err, biddingerrors.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrAuctionNotActive):
		return http.StatusConflict, "auction is not accepting bids"
	case errors.Is(err, biddingerrors.ErrInvalidState):
		return http.StatusConflict, "operation not allowed in current auction status"
	case errors.Is(err, biddingerrors.ErrBusy):
		return http.StatusServiceUnavailable, "auction is busy, retry shortly"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// errorDetails extracts what a client needs to correct and resubmit
func errorDetails(err error) map[string]any {
	var rej *biddingerrors.BidRejection
	if errors.As(err, &rej) {
		return map[string]any{"minimum_bid": rej.MinimumBid, "auction_status": rej.Status}
	}
	var stateErr *biddingerrors.StateError
	if errors.As(err, &stateErr) {
		return map[string]any{"auction_status": stateErr.Status, "allowed_statuses": stateErr.Allowed}
	}
	return nil
}

// HandleServiceError writes the error envelope for a service failure and logs it
func HandleServiceError(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := MapErrorToHTTP(err)
	if errors.Is(err, biddingerrors.ErrBusy) {
		c.Header("Retry-After", "1")
	}
	utils.JSONErrorWithDetails(c, status, fmt.Errorf("%s: %w", message, err), biddingerrors.Code(err), message, errorDetails(err))

	if fields == nil {
		fields = map[string]any{}
	}
	fields["handler"] = handlerName
	fields["error"] = err.Error()
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": "+message, fields)
		return
	}
	utils.Warn(handlerName+": "+message, fields)
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
