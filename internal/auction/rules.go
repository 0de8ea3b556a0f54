package auction

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
)

const (
	MaxTitleLength       = 100
	MinDescriptionLength = 10
)

// CheckSpec enforces the invariants every auction must satisfy when created or edited.
// startAt is compared to now at second granularity so a form submitted "now" is accepted.
func CheckSpec(spec model.AuctionSpec, now time.Time, minUnit int64) error {
	title := strings.TrimSpace(spec.Title)
	switch {
	case title == "":
		return fmt.Errorf("%w: title is required", biddingerrors.ErrValidation)
	case utf8.RuneCountInString(title) > MaxTitleLength:
		return fmt.Errorf("%w: title must be at most %d characters", biddingerrors.ErrValidation, MaxTitleLength)
	case utf8.RuneCountInString(strings.TrimSpace(spec.Description)) < MinDescriptionLength:
		return fmt.Errorf("%w: description must be at least %d characters", biddingerrors.ErrValidation, MinDescriptionLength)
	}

	for _, raw := range spec.ImageURLs {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: invalid image url %q", biddingerrors.ErrValidation, raw)
		}
	}

	if spec.StartPrice < minUnit {
		return fmt.Errorf("%w: start price must be at least %d", biddingerrors.ErrValidation, minUnit)
	}
	if spec.BidStep < minUnit {
		return fmt.Errorf("%w: bid step must be at least %d", biddingerrors.ErrValidation, minUnit)
	}
	if spec.BuyoutPrice != nil && *spec.BuyoutPrice <= spec.StartPrice {
		return fmt.Errorf("%w: buyout price %d must be greater than start price %d",
			biddingerrors.ErrValidation, *spec.BuyoutPrice, spec.StartPrice)
	}

	if spec.StartAt.IsZero() || spec.EndAt.IsZero() {
		return fmt.Errorf("%w: start and end time are required", biddingerrors.ErrValidation)
	}
	if !spec.EndAt.After(spec.StartAt) {
		return fmt.Errorf("%w: end time must be after start time", biddingerrors.ErrValidation)
	}
	if spec.StartAt.Before(now.Truncate(time.Second)) {
		return fmt.Errorf("%w: start time must not be in the past", biddingerrors.ErrValidation)
	}
	return nil
}

// SpecOf extracts the seller-controlled fields of an existing auction
func SpecOf(a model.Auction) model.AuctionSpec {
	c := a.Clone()
	return model.AuctionSpec{
		Title:       c.Title,
		Description: c.Description,
		ImageURLs:   c.ImageURLs,
		StartPrice:  c.StartPrice,
		BidStep:     c.BidStep,
		BuyoutPrice: c.BuyoutPrice,
		StartAt:     c.StartAt,
		EndAt:       c.EndAt,
	}
}

// ApplyPatch returns spec with every non-nil patch field applied
func ApplyPatch(spec model.AuctionSpec, p model.AuctionPatch) model.AuctionSpec {
	if p.Title != nil {
		spec.Title = *p.Title
	}
	if p.Description != nil {
		spec.Description = *p.Description
	}
	if p.ImageURLs != nil {
		spec.ImageURLs = append([]string(nil), (*p.ImageURLs)...)
	}
	if p.StartPrice != nil {
		spec.StartPrice = *p.StartPrice
	}
	if p.BidStep != nil {
		spec.BidStep = *p.BidStep
	}
	if p.ClearBuyout {
		spec.BuyoutPrice = nil
	} else if p.BuyoutPrice != nil {
		v := *p.BuyoutPrice
		spec.BuyoutPrice = &v
	}
	if p.StartAt != nil {
		spec.StartAt = *p.StartAt
	}
	if p.EndAt != nil {
		spec.EndAt = *p.EndAt
	}
	return spec
}
