package helpers

import (
	"time"

	"auction-engine/internal/auction"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs. Monetary fields accept JSON numbers or strings and are decoded exactly.
type CreateAuctionRequest struct {
	Title       string           `json:"title" binding:"required,max=100"`
	Description string           `json:"description" binding:"required,min=10"`
	ImageURLs   []string         `json:"image_urls" binding:"omitempty,dive,url"`
	StartPrice  *decimal.Decimal `json:"start_price" binding:"required"`
	BidStep     *decimal.Decimal `json:"bid_step" binding:"required"`
	BuyoutPrice *decimal.Decimal `json:"buyout_price"`
	StartAt     time.Time        `json:"start_at" binding:"required"`
	EndAt       time.Time        `json:"end_at" binding:"required,gtfield=StartAt"`
}

type PatchAuctionRequest struct {
	Title       *string          `json:"title" binding:"omitempty,min=1,max=100"`
	Description *string          `json:"description" binding:"omitempty,min=10"`
	ImageURLs   *[]string        `json:"image_urls" binding:"omitempty,dive,url"`
	StartPrice  *decimal.Decimal `json:"start_price"`
	BidStep     *decimal.Decimal `json:"bid_step"`
	BuyoutPrice *decimal.Decimal `json:"buyout_price"`
	ClearBuyout bool             `json:"clear_buyout"`
	StartAt     *time.Time       `json:"start_at"`
	EndAt       *time.Time       `json:"end_at"`
	Status      *string          `json:"status" binding:"omitempty,auctionstatus"`
}

type PlaceBidRequest struct {
	Amount *decimal.Decimal `json:"amount" binding:"required"`
}

type ListAuctionsQuery struct {
	Status   string `form:"status" binding:"omitempty,auctionstatus"`
	SellerID string `form:"seller_id"`
	Query    string `form:"q"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	Limit    int    `form:"limit" binding:"omitempty,min=1"`
}

type BidHistoryQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

const DefaultHistoryLimit = 50

type AuctionResponse struct {
	AuctionID    string              `json:"auction_id"`
	SellerID     string              `json:"seller_id"`
	Title        string              `json:"title"`
	Description  string              `json:"description"`
	ImageURLs    []string            `json:"image_urls"`
	StartPrice   int64               `json:"start_price"`
	CurrentPrice int64               `json:"current_price"`
	BidStep      int64               `json:"bid_step"`
	BuyoutPrice  *int64              `json:"buyout_price,omitempty"`
	MinimumBid   int64               `json:"minimum_bid"`
	StartAt      string              `json:"start_at"`
	EndAt        string              `json:"end_at"`
	Status       model.AuctionStatus `json:"status"`
	WinnerID     *string             `json:"winner_id,omitempty"`
	CreatedAt    string              `json:"created_at"`
	UpdatedAt    string              `json:"updated_at"`
}

type BidResponse struct {
	BidID     string `json:"bid_id"`
	AuctionID string `json:"auction_id"`
	BidderID  string `json:"bidder_id"`
	Amount    int64  `json:"amount"`
	CreatedAt string `json:"created_at"`
}

type PlaceBidResponse struct {
	BidResponse
	CurrentPrice int64               `json:"current_price"`
	Status       model.AuctionStatus `json:"status"`
	Ended        bool                `json:"ended"`
	WinnerID     *string             `json:"winner_id,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ToAuctionResponse converts an auction for the wire
func ToAuctionResponse(a model.Auction) AuctionResponse {
	images := a.ImageURLs
	if images == nil {
		images = []string{}
	}
	return AuctionResponse{
		AuctionID:    a.AuctionID,
		SellerID:     a.SellerID,
		Title:        a.Title,
		Description:  a.Description,
		ImageURLs:    images,
		StartPrice:   a.StartPrice,
		CurrentPrice: a.CurrentPrice,
		BidStep:      a.BidStep,
		BuyoutPrice:  a.BuyoutPrice,
		MinimumBid:   auction.MinimumBid(a),
		StartAt:      formatTime(a.StartAt),
		EndAt:        formatTime(a.EndAt),
		Status:       a.Status,
		WinnerID:     a.WinnerID,
		CreatedAt:    formatTime(a.CreatedAt),
		UpdatedAt:    formatTime(a.UpdatedAt),
	}
}

// ToAuctionResponses converts a list, never returning nil
func ToAuctionResponses(auctions []model.Auction) []AuctionResponse {
	out := make([]AuctionResponse, 0, len(auctions))
	for _, a := range auctions {
		out = append(out, ToAuctionResponse(a))
	}
	return out
}

// ToBidResponse converts a bid for the wire
func ToBidResponse(b model.Bid) BidResponse {
	return BidResponse{
		BidID:     b.BidID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    b.Amount,
		CreatedAt: formatTime(b.CreatedAt),
	}
}

// ToBidResponses converts a list, never returning nil
func ToBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, ToBidResponse(b))
	}
	return out
}

// ToPlaceBidResponse converts the coordinator's result for the wire
func ToPlaceBidResponse(r model.BidResult) PlaceBidResponse {
	return PlaceBidResponse{
		BidResponse:  ToBidResponse(r.Bid),
		CurrentPrice: r.CurrentPrice,
		Status:       r.Status,
		Ended:        r.Ended,
		WinnerID:     r.WinnerID,
	}
}
