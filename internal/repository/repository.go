package repository

import (
	"auction-engine/internal/auction"
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

//go:generate mockgen -destination=mock_repository.go -package=repository auction-engine/internal/repository AuctionDB,BidLedger

// AuctionDB defines the auction storage interface
type AuctionDB interface {
	CreateAuction(ctx context.Context, a model.Auction) error
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	UpdateAuction(ctx context.Context, a model.Auction) error
	ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error)
	// ListDue returns non-terminal auctions whose stored status lags behind now
	ListDue(ctx context.Context, now time.Time) ([]model.Auction, error)
	// NextBoundary returns the earliest start/end time after now among non-terminal auctions
	NextBoundary(ctx context.Context, now time.Time) (time.Time, bool, error)
}

// BidLedger defines the append-only bid storage interface
type BidLedger interface {
	AppendBid(ctx context.Context, bid model.Bid) error
	LatestBid(ctx context.Context, auctionID string) (model.Bid, error)
	BidHistory(ctx context.Context, auctionID string, limit, offset int) ([]model.Bid, error)
	GetAuctionIDsByBidder(ctx context.Context, bidderID string) ([]string, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB and BidLedger
type MemoryRepo struct {
	mu          sync.RWMutex
	auctions    map[string]model.Auction // key: auctionID -> value: auction
	bids        map[string][]model.Bid   // key: auctionID -> value: bids in acceptance order
	userAuction map[string][]string      // key: bidderID -> value: auctionIDs the user has bid on
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:    make(map[string]model.Auction),
		bids:        make(map[string][]model.Bid),
		userAuction: make(map[string][]string),
	}
}

// CreateAuction stores a new auction
func (r *MemoryRepo) CreateAuction(_ context.Context, a model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.auctions[a.AuctionID]; exists {
		return fmt.Errorf("create auction %s: %w: duplicate id", a.AuctionID, biddingerrors.ErrStorage)
	}
	r.auctions[a.AuctionID] = a.Clone()
	return nil
}

// GetAuction returns a copy of the stored auction
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return a.Clone(), nil
}

// UpdateAuction replaces the stored auction
func (r *MemoryRepo) UpdateAuction(_ context.Context, a model.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[a.AuctionID]; !ok {
		return fmt.Errorf("update auction %s: %w", a.AuctionID, biddingerrors.ErrAuctionNotFound)
	}
	r.auctions[a.AuctionID] = a.Clone()
	return nil
}

// ListAuctions returns one page of auctions, newest first
func (r *MemoryRepo) ListAuctions(_ context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	matched := make([]model.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.SellerID != "" && a.SellerID != filter.SellerID {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(a.Title), query) &&
			!strings.Contains(strings.ToLower(a.Description), query) {
			continue
		}
		matched = append(matched, a)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].AuctionID < matched[j].AuctionID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	offset := filter.Offset()
	if offset >= len(matched) {
		return []model.Auction{}, nil
	}
	end := len(matched)
	if filter.Limit > 0 && offset+filter.Limit < end {
		end = offset + filter.Limit
	}

	page := make([]model.Auction, 0, end-offset)
	for _, a := range matched[offset:end] {
		page = append(page, a.Clone())
	}
	return page, nil
}

// ListDue returns auctions whose start or end boundary has passed without a transition
func (r *MemoryRepo) ListDue(_ context.Context, now time.Time) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	due := make([]model.Auction, 0)
	for _, a := range r.auctions {
		if auction.IsDue(a, now) {
			due = append(due, a.Clone())
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].AuctionID < due[j].AuctionID })
	return due, nil
}

// NextBoundary returns the closest upcoming start or end time of a live auction
func (r *MemoryRepo) NextBoundary(_ context.Context, now time.Time) (time.Time, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var next time.Time
	found := false
	for _, a := range r.auctions {
		t, ok := auction.NextBoundary(a, now)
		if !ok {
			continue
		}
		if !found || t.Before(next) {
			next, found = t, true
		}
	}
	return next, found, nil
}

// AppendBid records an accepted bid. Bids must arrive in increasing amount and time order.
func (r *MemoryRepo) AppendBid(_ context.Context, bid model.Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.auctions[bid.AuctionID]; !ok {
		return fmt.Errorf("append bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}

	bids := r.bids[bid.AuctionID]
	if n := len(bids); n > 0 {
		last := bids[n-1]
		if bid.Amount < last.Amount || !bid.CreatedAt.After(last.CreatedAt) {
			return fmt.Errorf("append bid for auction %s: %w: amount %d at %s after %d at %s",
				bid.AuctionID, biddingerrors.ErrOrderingViolation,
				bid.Amount, bid.CreatedAt.Format(time.RFC3339Nano), last.Amount, last.CreatedAt.Format(time.RFC3339Nano))
		}
	}
	r.bids[bid.AuctionID] = append(bids, bid)

	for _, id := range r.userAuction[bid.BidderID] {
		if id == bid.AuctionID {
			return nil
		}
	}
	r.userAuction[bid.BidderID] = append(r.userAuction[bid.BidderID], bid.AuctionID)

	return nil
}

// LatestBid returns the highest bid for an auction
func (r *MemoryRepo) LatestBid(_ context.Context, auctionID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids := r.bids[auctionID]
	if len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("latest bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}

	latest := bids[0]
	for _, b := range bids[1:] {
		if b.Amount > latest.Amount {
			latest = b
		}
	}
	return latest, nil
}

// BidHistory returns a page of bids, newest first
func (r *MemoryRepo) BidHistory(_ context.Context, auctionID string, limit, offset int) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.auctions[auctionID]; !ok {
		return nil, fmt.Errorf("bid history for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}

	bids := r.bids[auctionID]
	page := make([]model.Bid, 0, limit)
	for i := len(bids) - 1 - offset; i >= 0; i-- {
		if limit > 0 && len(page) == limit {
			break
		}
		page = append(page, bids[i])
	}
	return page, nil
}

// GetAuctionIDsByBidder returns the auctions a user has bid on, in first-bid order
func (r *MemoryRepo) GetAuctionIDsByBidder(_ context.Context, bidderID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.userAuction[bidderID]
	if !ok || len(ids) == 0 {
		return nil, fmt.Errorf("get auctions for bidder %s: %w", bidderID, biddingerrors.ErrUserNoBids)
	}
	return append([]string(nil), ids...), nil
}

// Health reports the in-memory store's size
func (r *MemoryRepo) Health(_ context.Context) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, bids := range r.bids {
		total += len(bids)
	}
	return map[string]string{
		"status":   "up",
		"driver":   "memory",
		"auctions": fmt.Sprint(len(r.auctions)),
		"bids":     fmt.Sprint(total),
	}
}
