package bidding

import (
	"auction-engine/internal/auction"
	"auction-engine/internal/events"
	model "auction-engine/internal/models"
	"context"
	"fmt"
)

// Transition brings the stored status in line with the clock. An auction whose start and end
// have both passed goes straight to ENDED; the winner is the highest bidder, if any.
// changed is false when there was nothing to do, so repeated calls are harmless.
func (s *BiddingService) Transition(ctx context.Context, auctionID string) (a model.Auction, changed bool, err error) {
	unlock, err := s.locks.acquire(ctx, auctionID, s.lockTimeout)
	if err != nil {
		return model.Auction{}, false, fmt.Errorf("service: %w", err)
	}
	defer unlock()

	la, err := s.load(ctx, auctionID)
	if err != nil {
		return model.Auction{}, false, err
	}
	a = la.auction
	now := s.now()

	status := auction.EffectiveStatus(a, now)
	if status == a.Status && !la.dirty {
		return a, false, nil
	}

	from := a.Status
	a.Status = status
	if status == model.StatusEnded && a.WinnerID == nil && la.latest != nil {
		winner := la.latest.BidderID
		a.WinnerID = &winner
	}
	a.UpdatedAt = now

	if err := s.repo.UpdateAuction(ctx, a); err != nil {
		return model.Auction{}, false, fmt.Errorf("service: failed to transition auction %s from %s to %s: %w",
			auctionID, from, status, err)
	}

	s.events.Publish(events.Event{Type: events.AuctionUpdated, AuctionID: auctionID, Data: a, At: now})
	if status == model.StatusEnded && from != model.StatusEnded {
		s.events.Publish(events.Event{Type: events.AuctionEnded, AuctionID: auctionID, Data: a, At: now})
	}
	return a, true, nil
}
