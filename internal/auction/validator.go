package auction

import (
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
)

// Decision is the outcome of an accepted bid
type Decision struct {
	MinimumBid int64
	// Buyout is set when the bid reaches the buyout price and must end the auction.
	Buyout bool
}

// MinimumBid is the smallest amount the auction accepts next. A buyout bid obeys the
// same increment, so it may have to exceed the buyout price.
func MinimumBid(a model.Auction) int64 {
	return a.CurrentPrice + a.BidStep
}

// Validate applies the bid acceptance rules in order; the first failing rule wins.
// It has no side effects.
func Validate(a model.Auction, bidderID string, amount int64, now time.Time) (Decision, error) {
	minBid := MinimumBid(a)

	if status := EffectiveStatus(a, now); status != model.StatusRunning {
		return Decision{}, &biddingerrors.BidRejection{
			Reason: biddingerrors.ErrAuctionNotActive, Amount: amount, MinimumBid: minBid, Status: status,
		}
	}
	if bidderID == a.SellerID {
		return Decision{}, &biddingerrors.BidRejection{
			Reason: biddingerrors.ErrSelfBid, Amount: amount, MinimumBid: minBid, Status: model.StatusRunning,
		}
	}
	if amount < minBid {
		return Decision{}, &biddingerrors.BidRejection{
			Reason: biddingerrors.ErrBidTooLow, Amount: amount, MinimumBid: minBid, Status: model.StatusRunning,
		}
	}

	return Decision{
		MinimumBid: minBid,
		Buyout:     a.BuyoutPrice != nil && amount >= *a.BuyoutPrice,
	}, nil
}
