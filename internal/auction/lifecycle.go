package auction

import (
	"time"

	model "auction-engine/internal/models"
)

// EffectiveStatus is the status an auction has at now, whether or not the stored status
// has caught up yet. Terminal states are returned as stored.
func EffectiveStatus(a model.Auction, now time.Time) model.AuctionStatus {
	if a.Status.Terminal() {
		return a.Status
	}
	switch {
	case !now.Before(a.EndAt):
		return model.StatusEnded
	case !now.Before(a.StartAt):
		return model.StatusRunning
	default:
		return model.StatusScheduled
	}
}

// IsEffectivelyRunning reports whether bids may be accepted at now
func IsEffectivelyRunning(a model.Auction, now time.Time) bool {
	return EffectiveStatus(a, now) == model.StatusRunning
}

// NextBoundary returns the next startAt/endAt that lies after now for a non-terminal
// auction. ok is false for terminal auctions.
func NextBoundary(a model.Auction, now time.Time) (t time.Time, ok bool) {
	if a.Status.Terminal() {
		return time.Time{}, false
	}
	if a.Status == model.StatusScheduled && a.StartAt.After(now) {
		return a.StartAt, true
	}
	return a.EndAt, true
}

// IsDue reports whether the stored status lags behind the effective one
func IsDue(a model.Auction, now time.Time) bool {
	return EffectiveStatus(a, now) != a.Status
}

// Cancelable lists the statuses from which a seller may cancel
var Cancelable = []model.AuctionStatus{model.StatusScheduled, model.StatusRunning}

// Editable lists the statuses in which price, time and content fields may change
var Editable = []model.AuctionStatus{model.StatusScheduled}
