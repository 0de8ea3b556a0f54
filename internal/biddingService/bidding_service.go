package bidding

import (
	"auction-engine/internal/auction"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/clock"
	"auction-engine/internal/events"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultLockTimeout  = 5 * time.Second
	DefaultMinPriceUnit = int64(1000)
)

// BiddingService owns every auction mutation. Bids, edits, cancellations and lifecycle
// transitions for one auction are serialized on that auction's lock; different auctions
// proceed in parallel.
type BiddingService struct {
	repo        repository.AuctionDB
	ledger      repository.BidLedger
	clock       clock.Clock
	events      events.Publisher
	locks       *auctionLocks
	lockTimeout time.Duration
	minUnit     int64
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(s *BiddingService) { s.clock = c }
}

// WithPublisher sends auction notifications to p
func WithPublisher(p events.Publisher) Option {
	return func(s *BiddingService) { s.events = p }
}

// WithLockTimeout bounds how long a caller waits for an auction's lock before ErrBusy
func WithLockTimeout(d time.Duration) Option {
	return func(s *BiddingService) { s.lockTimeout = d }
}

// WithMinPriceUnit sets the smallest allowed start price and bid step
func WithMinPriceUnit(unit int64) Option {
	return func(s *BiddingService) { s.minUnit = unit }
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, ledger repository.BidLedger, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:        repo,
		ledger:      ledger,
		clock:       clock.Real{},
		events:      events.Discard{},
		locks:       newAuctionLocks(),
		lockTimeout: DefaultLockTimeout,
		minUnit:     DefaultMinPriceUnit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// now is truncated to the precision every store can round-trip
func (s *BiddingService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

// lockedAuction is an auction read under its lock together with the ledger's highest bid
type lockedAuction struct {
	auction model.Auction
	latest  *model.Bid
	// dirty is set when the stored record lags the ledger and must be written back
	dirty bool
}

// load re-reads the auction and its highest bid. The ledger wins over the stored price, so an
// auction update lost after a successful append is repaired by the next mutation.
func (s *BiddingService) load(ctx context.Context, auctionID string) (lockedAuction, error) {
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return lockedAuction{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}
	la := lockedAuction{auction: a}

	latest, err := s.ledger.LatestBid(ctx, auctionID)
	switch {
	case errors.Is(err, biddingerrors.ErrNoBids):
		return la, nil
	case err != nil:
		return lockedAuction{}, fmt.Errorf("service: failed to read latest bid for auction %s: %w", auctionID, err)
	}
	la.latest = &latest

	if latest.Amount > la.auction.CurrentPrice {
		la.auction.CurrentPrice = latest.Amount
		la.dirty = true
	}
	if !la.auction.Status.Terminal() && la.auction.BuyoutPrice != nil && latest.Amount >= *la.auction.BuyoutPrice {
		winner := latest.BidderID
		la.auction.Status = model.StatusEnded
		la.auction.WinnerID = &winner
		la.dirty = true
	}
	return la, nil
}

// PlaceBid validates and records a bid. Rejections are *biddingerrors.BidRejection values and
// are never retried; storage failures surface immediately.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount int64) (model.BidResult, error) {
	if auctionID == "" || bidderID == "" {
		return model.BidResult{}, fmt.Errorf("service: %w - missing auctionID or bidderID", biddingerrors.ErrValidation)
	}
	if amount <= 0 {
		return model.BidResult{}, fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrValidation)
	}

	unlock, err := s.locks.acquire(ctx, auctionID, s.lockTimeout)
	if err != nil {
		s.publishBidFailed(auctionID, bidderID, amount, err)
		return model.BidResult{}, fmt.Errorf("service: %w", err)
	}
	defer unlock()

	la, err := s.load(ctx, auctionID)
	if err != nil {
		return model.BidResult{}, err
	}
	a := la.auction
	now := s.now()

	decision, err := auction.Validate(a, bidderID, amount, now)
	if err != nil {
		if la.dirty {
			s.persistRepair(ctx, a, now)
		}
		s.publishBidFailed(auctionID, bidderID, amount, err)
		return model.BidResult{}, fmt.Errorf("service: bid rejected: %w", err)
	}

	createdAt := now
	if la.latest != nil && !createdAt.After(la.latest.CreatedAt) {
		createdAt = la.latest.CreatedAt.Add(time.Microsecond)
	}

	bid := model.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    amount,
		CreatedAt: createdAt,
	}

	if err := s.ledger.AppendBid(ctx, bid); err != nil {
		return model.BidResult{}, fmt.Errorf("service: failed to record bid for auction %s by user %s: %w", auctionID, bidderID, err)
	}

	a.CurrentPrice = amount
	if a.Status == model.StatusScheduled {
		a.Status = model.StatusRunning
	}
	if decision.Buyout {
		winner := bidderID
		a.Status = model.StatusEnded
		a.WinnerID = &winner
	}
	a.UpdatedAt = now

	if err := s.repo.UpdateAuction(ctx, a); err != nil {
		utils.Error("PlaceBid: bid recorded but auction update failed", map[string]any{
			"auction_id": auctionID,
			"bid_id":     bid.BidID,
			"error":      err.Error(),
		})
		return model.BidResult{}, fmt.Errorf("service: failed to update auction %s after bid: %w", auctionID, err)
	}

	result := model.BidResult{
		Bid:          bid,
		CurrentPrice: a.CurrentPrice,
		Status:       a.Status,
		Ended:        a.Status == model.StatusEnded,
		WinnerID:     a.WinnerID,
	}

	s.events.Publish(events.Event{Type: events.BidPlaced, AuctionID: auctionID, Data: result, At: now})
	if result.Ended {
		s.events.Publish(events.Event{Type: events.AuctionEnded, AuctionID: auctionID, Data: a, At: now})
	}
	return result, nil
}

// persistRepair writes back a reconciled auction; failures are left for the next mutation
func (s *BiddingService) persistRepair(ctx context.Context, a model.Auction, now time.Time) {
	a.UpdatedAt = now
	if err := s.repo.UpdateAuction(ctx, a); err != nil {
		utils.Warn("auction repair failed", map[string]any{"auction_id": a.AuctionID, "error": err.Error()})
	}
}

func (s *BiddingService) publishBidFailed(auctionID, bidderID string, amount int64, err error) {
	data := map[string]any{
		"bidder_id": bidderID,
		"amount":    amount,
		"code":      biddingerrors.Code(err),
	}
	var rej *biddingerrors.BidRejection
	if errors.As(err, &rej) {
		data["minimum_bid"] = rej.MinimumBid
	}
	s.events.Publish(events.Event{Type: events.BidFailed, AuctionID: auctionID, Data: data, At: s.now()})
}

// GetBidHistory returns a page of an auction's bids, newest first
func (s *BiddingService) GetBidHistory(ctx context.Context, auctionID string, limit, offset int) ([]model.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrValidation)
	}
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("service: %w - negative limit or offset", biddingerrors.ErrValidation)
	}

	bids, err := s.ledger.BidHistory(ctx, auctionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	return bids, nil
}

// GetWinningBid returns the highest bid for an auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error) {
	if auctionID == "" {
		return model.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrValidation)
	}
	if _, err := s.repo.GetAuction(ctx, auctionID); err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}

	winningBid, err := s.ledger.LatestBid(ctx, auctionID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}
	return winningBid, nil
}

// GetAuctionsByBidder returns all auctions a user has placed bids on
func (s *BiddingService) GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrValidation)
	}

	ids, err := s.ledger.GetAuctionIDsByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", bidderID, err)
	}

	auctions := make([]model.Auction, 0, len(ids))
	for _, id := range ids {
		a, err := s.repo.GetAuction(ctx, id)
		if errors.Is(err, biddingerrors.ErrAuctionNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("service: failed to get auction %s for user %s: %w", id, bidderID, err)
		}
		auctions = append(auctions, a)
	}
	return auctions, nil
}
