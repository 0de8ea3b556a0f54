package bidding

import (
	"auction-engine/internal/auction"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/events"
	model "auction-engine/internal/models"
	"auction-engine/utils"
	"context"
	"fmt"
	"time"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

func normalizeSpec(spec model.AuctionSpec) model.AuctionSpec {
	spec.StartAt = spec.StartAt.UTC().Truncate(time.Microsecond)
	spec.EndAt = spec.EndAt.UTC().Truncate(time.Microsecond)
	if spec.ImageURLs == nil {
		spec.ImageURLs = []string{}
	}
	return spec
}

func applySpec(a *model.Auction, spec model.AuctionSpec) {
	a.Title = spec.Title
	a.Description = spec.Description
	a.ImageURLs = spec.ImageURLs
	a.StartPrice = spec.StartPrice
	a.BidStep = spec.BidStep
	a.BuyoutPrice = spec.BuyoutPrice
	a.StartAt = spec.StartAt
	a.EndAt = spec.EndAt
}

// CreateAuction validates spec and stores a new SCHEDULED auction owned by sellerID
func (s *BiddingService) CreateAuction(ctx context.Context, sellerID string, spec model.AuctionSpec) (model.Auction, error) {
	if sellerID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty seller ID", biddingerrors.ErrValidation)
	}

	now := s.now()
	spec = normalizeSpec(spec)
	if err := auction.CheckSpec(spec, now, s.minUnit); err != nil {
		return model.Auction{}, fmt.Errorf("service: %w", err)
	}

	a := model.Auction{
		AuctionID:    utils.GenerateID(),
		SellerID:     sellerID,
		CurrentPrice: spec.StartPrice,
		Status:       model.StatusScheduled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	applySpec(&a, spec)

	if err := s.repo.CreateAuction(ctx, a); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to create auction: %w", err)
	}
	return a, nil
}

// GetAuction returns one auction
func (s *BiddingService) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	if auctionID == "" {
		return model.Auction{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrValidation)
	}
	a, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to get auction %s: %w", auctionID, err)
	}
	return a, nil
}

// ListAuctions returns one page of auctions matching filter. Page defaults to 1 and limit to
// DefaultPageLimit; limits above MaxPageLimit are clamped.
func (s *BiddingService) ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("service: %w - unknown status %q", biddingerrors.ErrValidation, filter.Status)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = DefaultPageLimit
	case filter.Limit > MaxPageLimit:
		filter.Limit = MaxPageLimit
	}

	auctions, err := s.repo.ListAuctions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}
	return auctions, nil
}

// UpdateAuction applies a seller's patch. Content, price and time fields may change only while
// the auction is SCHEDULED; a status-only patch to CANCELED cancels the auction.
func (s *BiddingService) UpdateAuction(ctx context.Context, auctionID, actorID string, patch model.AuctionPatch) (model.Auction, error) {
	if patch.Status != nil {
		if *patch.Status != model.StatusCanceled {
			return model.Auction{}, fmt.Errorf("service: %w - status can only be changed to %s",
				biddingerrors.ErrValidation, model.StatusCanceled)
		}
		if patch.HasFieldChanges() {
			return model.Auction{}, fmt.Errorf("service: %w - cancellation cannot be combined with other changes",
				biddingerrors.ErrValidation)
		}
		return s.CancelAuction(ctx, auctionID, actorID)
	}
	if !patch.HasFieldChanges() {
		return model.Auction{}, fmt.Errorf("service: %w - nothing to update", biddingerrors.ErrValidation)
	}

	unlock, err := s.locks.acquire(ctx, auctionID, s.lockTimeout)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: %w", err)
	}
	defer unlock()

	la, err := s.load(ctx, auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	a := la.auction
	now := s.now()

	if a.SellerID != actorID {
		return model.Auction{}, fmt.Errorf("service: %w - only the seller may edit auction %s", biddingerrors.ErrForbidden, auctionID)
	}
	if status := auction.EffectiveStatus(a, now); status != model.StatusScheduled {
		return model.Auction{}, fmt.Errorf("service: %w", &biddingerrors.StateError{
			Op: "edit", Status: status, Allowed: auction.Editable,
		})
	}

	spec := normalizeSpec(auction.ApplyPatch(auction.SpecOf(a), patch))
	if err := auction.CheckSpec(spec, now, s.minUnit); err != nil {
		return model.Auction{}, fmt.Errorf("service: %w", err)
	}

	applySpec(&a, spec)
	a.CurrentPrice = a.StartPrice
	a.UpdatedAt = now

	if err := s.repo.UpdateAuction(ctx, a); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to update auction %s: %w", auctionID, err)
	}
	s.events.Publish(events.Event{Type: events.AuctionUpdated, AuctionID: auctionID, Data: a, At: now})
	return a, nil
}

// CancelAuction lets the seller withdraw an auction that has not ended yet
func (s *BiddingService) CancelAuction(ctx context.Context, auctionID, actorID string) (model.Auction, error) {
	unlock, err := s.locks.acquire(ctx, auctionID, s.lockTimeout)
	if err != nil {
		return model.Auction{}, fmt.Errorf("service: %w", err)
	}
	defer unlock()

	la, err := s.load(ctx, auctionID)
	if err != nil {
		return model.Auction{}, err
	}
	a := la.auction
	now := s.now()

	if a.SellerID != actorID {
		return model.Auction{}, fmt.Errorf("service: %w - only the seller may cancel auction %s", biddingerrors.ErrForbidden, auctionID)
	}
	status := auction.EffectiveStatus(a, now)
	if status != model.StatusScheduled && status != model.StatusRunning {
		if la.dirty {
			s.persistRepair(ctx, a, now)
		}
		return model.Auction{}, fmt.Errorf("service: %w", &biddingerrors.StateError{
			Op: "cancel", Status: status, Allowed: auction.Cancelable,
		})
	}

	a.Status = model.StatusCanceled
	a.UpdatedAt = now
	if err := s.repo.UpdateAuction(ctx, a); err != nil {
		return model.Auction{}, fmt.Errorf("service: failed to cancel auction %s: %w", auctionID, err)
	}
	s.events.Publish(events.Event{Type: events.AuctionUpdated, AuctionID: auctionID, Data: a, At: now})
	return a, nil
}
