package biddingerrors

import (
	"errors"
	"fmt"
	"strings"

	model "auction-engine/internal/models"
)

// Repository-level errors
var (
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrNoBids            = errors.New("no bids found for auction")
	ErrUserNoBids        = errors.New("user has not placed any bids")
	ErrOrderingViolation = errors.New("bid ordering violation")
	ErrStorage           = errors.New("storage failure")
)

// business logic errors
var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidState     = errors.New("operation not allowed in current auction status")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthenticated  = errors.New("missing user identity")
	ErrBusy             = errors.New("auction is busy")
	ErrAuctionNotActive = errors.New("auction is not accepting bids")
	ErrSelfBid          = errors.New("seller cannot bid on own auction")
	ErrBidTooLow        = errors.New("bid amount too low")
)

// BidRejection is returned by the bid validator. Reason is one of ErrAuctionNotActive,
// ErrSelfBid or ErrBidTooLow; MinimumBid is the smallest amount the auction would accept now.
type BidRejection struct {
	Reason     error
	Amount     int64
	MinimumBid int64
	Status     model.AuctionStatus
}

func (e *BidRejection) Error() string {
	switch e.Reason {
	case ErrBidTooLow:
		return fmt.Sprintf("%s: %d is below the minimum of %d", e.Reason, e.Amount, e.MinimumBid)
	case ErrAuctionNotActive:
		return fmt.Sprintf("%s: auction is %s", e.Reason, e.Status)
	default:
		return e.Reason.Error()
	}
}

func (e *BidRejection) Unwrap() error { return e.Reason }

// StateError reports an operation blocked by the auction's status
type StateError struct {
	Op      string
	Status  model.AuctionStatus
	Allowed []model.AuctionStatus
}

func (e *StateError) Error() string {
	allowed := make([]string, 0, len(e.Allowed))
	for _, s := range e.Allowed {
		allowed = append(allowed, string(s))
	}
	return fmt.Sprintf("%s: cannot %s an auction that is %s (allowed only while %s)",
		ErrInvalidState, e.Op, e.Status, strings.Join(allowed, " or "))
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// Code returns the stable machine-readable code clients match on
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBidTooLow):
		return "BID_TOO_LOW"
	case errors.Is(err, ErrAuctionNotActive):
		return "AUCTION_NOT_ACTIVE"
	case errors.Is(err, ErrSelfBid):
		return "SELF_BID_FORBIDDEN"
	case errors.Is(err, ErrBusy):
		return "BUSY"
	case errors.Is(err, ErrAuctionNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrNoBids):
		return "NO_BIDS"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_FAILED"
	case errors.Is(err, ErrInvalidState):
		return "INVALID_STATE"
	case errors.Is(err, ErrForbidden):
		return "FORBIDDEN"
	case errors.Is(err, ErrUnauthenticated):
		return "UNAUTHENTICATED"
	default:
		return "INTERNAL"
	}
}
