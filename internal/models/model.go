package models

import "time"

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	StatusScheduled AuctionStatus = "SCHEDULED"
	StatusRunning   AuctionStatus = "RUNNING"
	StatusEnded     AuctionStatus = "ENDED"
	StatusCanceled  AuctionStatus = "CANCELED"
)

// Valid reports whether s is one of the known statuses
func (s AuctionStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusRunning, StatusEnded, StatusCanceled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible from s
func (s AuctionStatus) Terminal() bool {
	return s == StatusEnded || s == StatusCanceled
}

// Auction represents one item up for bid. Prices are in currency minor units.
type Auction struct {
	AuctionID    string        `json:"auction_id"`
	SellerID     string        `json:"seller_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	ImageURLs    []string      `json:"image_urls"`
	StartPrice   int64         `json:"start_price"`
	CurrentPrice int64         `json:"current_price"`
	BidStep      int64         `json:"bid_step"`
	BuyoutPrice  *int64        `json:"buyout_price,omitempty"`
	StartAt      time.Time     `json:"start_at"`
	EndAt        time.Time     `json:"end_at"`
	Status       AuctionStatus `json:"status"`
	WinnerID     *string       `json:"winner_id,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so callers never share slices or pointers with storage
func (a Auction) Clone() Auction {
	out := a
	if a.ImageURLs != nil {
		out.ImageURLs = append([]string(nil), a.ImageURLs...)
	}
	if a.BuyoutPrice != nil {
		v := *a.BuyoutPrice
		out.BuyoutPrice = &v
	}
	if a.WinnerID != nil {
		v := *a.WinnerID
		out.WinnerID = &v
	}
	return out
}

// Bid represents one accepted bid on an auction
type Bid struct {
	BidID     string    `json:"bid_id"`
	AuctionID string    `json:"auction_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

// AuctionSpec holds the seller-supplied fields of a new auction
type AuctionSpec struct {
	Title       string
	Description string
	ImageURLs   []string
	StartPrice  int64
	BidStep     int64
	BuyoutPrice *int64
	StartAt     time.Time
	EndAt       time.Time
}

// AuctionPatch lists the fields a seller wants to change; nil means unchanged.
// ClearBuyout removes an existing buyout price.
type AuctionPatch struct {
	Title       *string
	Description *string
	ImageURLs   *[]string
	StartPrice  *int64
	BidStep     *int64
	BuyoutPrice *int64
	ClearBuyout bool
	StartAt     *time.Time
	EndAt       *time.Time
	Status      *AuctionStatus
}

// HasFieldChanges reports whether the patch touches anything besides status
func (p AuctionPatch) HasFieldChanges() bool {
	return p.Title != nil || p.Description != nil || p.ImageURLs != nil ||
		p.StartPrice != nil || p.BidStep != nil || p.BuyoutPrice != nil || p.ClearBuyout ||
		p.StartAt != nil || p.EndAt != nil
}

// AuctionFilter narrows an auction listing. Page is 1-based.
type AuctionFilter struct {
	Status   AuctionStatus
	SellerID string
	Query    string
	Page     int
	Limit    int
}

// Offset returns the number of rows to skip for the filter's page
func (f AuctionFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// BidResult is what the bidder gets back from an accepted bid
type BidResult struct {
	Bid          Bid           `json:"bid"`
	CurrentPrice int64         `json:"current_price"`
	Status       AuctionStatus `json:"status"`
	Ended        bool          `json:"ended"`
	WinnerID     *string       `json:"winner_id,omitempty"`
}
