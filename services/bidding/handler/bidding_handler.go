package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/events"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -destination=mock_bidding_service.go -package=handler auction-engine/services/bidding/handler BiddingServiceInterface

type BiddingServiceInterface interface {
	CreateAuction(ctx context.Context, sellerID string, spec model.AuctionSpec) (model.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListAuctions(ctx context.Context, filter model.AuctionFilter) ([]model.Auction, error)
	UpdateAuction(ctx context.Context, auctionID, actorID string, patch model.AuctionPatch) (model.Auction, error)
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount int64) (model.BidResult, error)
	GetBidHistory(ctx context.Context, auctionID string, limit, offset int) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error)
	Transition(ctx context.Context, auctionID string) (model.Auction, bool, error)
}

// EventSubscriber hands out per-auction notification streams
type EventSubscriber interface {
	Subscribe(auctionID string) (<-chan events.Event, func())
}

const DefaultHeartbeat = 15 * time.Second

type BiddingHandler struct {
	service   BiddingServiceInterface
	events    EventSubscriber
	heartbeat time.Duration
}

func NewBiddingHandler(service BiddingServiceInterface, subscriber EventSubscriber) *BiddingHandler {
	return &BiddingHandler{service: service, events: subscriber, heartbeat: DefaultHeartbeat}
}

// CreateAuctionHandler handles POST /auctions
func (h *BiddingHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	spec, err := specFromRequest(req)
	if err != nil {
		helpers.HandleServiceError(c, "CreateAuctionHandler", err, nil)
		return
	}

	sellerID := helpers.CurrentUser(c)
	a, err := h.service.CreateAuction(c.Request.Context(), sellerID, spec)
	if err != nil {
		helpers.HandleServiceError(c, "CreateAuctionHandler", err, map[string]any{"seller_id": sellerID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToAuctionResponse(a), "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": a.AuctionID,
		"seller_id":  sellerID,
	})
}

func specFromRequest(req helpers.CreateAuctionRequest) (model.AuctionSpec, error) {
	startPrice, err := helpers.ToMinorUnits(req.StartPrice, "start_price")
	if err != nil {
		return model.AuctionSpec{}, err
	}
	bidStep, err := helpers.ToMinorUnits(req.BidStep, "bid_step")
	if err != nil {
		return model.AuctionSpec{}, err
	}

	spec := model.AuctionSpec{
		Title:       req.Title,
		Description: req.Description,
		ImageURLs:   req.ImageURLs,
		StartPrice:  startPrice,
		BidStep:     bidStep,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
	}
	if req.BuyoutPrice != nil {
		buyout, err := helpers.ToMinorUnits(req.BuyoutPrice, "buyout_price")
		if err != nil {
			return model.AuctionSpec{}, err
		}
		spec.BuyoutPrice = &buyout
	}
	return spec, nil
}

// ListAuctionsHandler handles GET /auctions
func (h *BiddingHandler) ListAuctionsHandler(c *gin.Context) {
	var q helpers.ListAuctionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "ListAuctionsHandler", err)
		return
	}

	filter := model.AuctionFilter{
		Status:   model.AuctionStatus(strings.ToUpper(q.Status)),
		SellerID: q.SellerID,
		Query:    q.Query,
		Page:     q.Page,
		Limit:    q.Limit,
	}
	auctions, err := h.service.ListAuctions(c.Request.Context(), filter)
	if err != nil {
		helpers.HandleServiceError(c, "ListAuctionsHandler", err, nil)
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponses(auctions), "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"count": len(auctions),
		"page":  q.Page,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *BiddingHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	a, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(a), "auction retrieved successfully")
}

// UpdateAuctionHandler handles PATCH /auctions/:auction_id
func (h *BiddingHandler) UpdateAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.PatchAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateAuctionHandler", err)
		return
	}

	patch, err := patchFromRequest(req)
	if err != nil {
		helpers.HandleServiceError(c, "UpdateAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	actorID := helpers.CurrentUser(c)
	a, err := h.service.UpdateAuction(c.Request.Context(), auctionID, actorID, patch)
	if err != nil {
		helpers.HandleServiceError(c, "UpdateAuctionHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    actorID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(a), "auction updated successfully")
	helpers.LogSuccess("UpdateAuctionHandler", "auction updated successfully", map[string]any{
		"auction_id": auctionID,
		"status":     a.Status,
	})
}

func patchFromRequest(req helpers.PatchAuctionRequest) (model.AuctionPatch, error) {
	patch := model.AuctionPatch{
		Title:       req.Title,
		Description: req.Description,
		ImageURLs:   req.ImageURLs,
		ClearBuyout: req.ClearBuyout,
		StartAt:     req.StartAt,
		EndAt:       req.EndAt,
	}

	if req.StartPrice != nil {
		v, err := helpers.ToMinorUnits(req.StartPrice, "start_price")
		if err != nil {
			return model.AuctionPatch{}, err
		}
		patch.StartPrice = &v
	}
	if req.BidStep != nil {
		v, err := helpers.ToMinorUnits(req.BidStep, "bid_step")
		if err != nil {
			return model.AuctionPatch{}, err
		}
		patch.BidStep = &v
	}
	if req.BuyoutPrice != nil {
		if req.ClearBuyout {
			return model.AuctionPatch{}, fmt.Errorf("%w: buyout_price and clear_buyout are mutually exclusive", biddingerrors.ErrValidation)
		}
		v, err := helpers.ToMinorUnits(req.BuyoutPrice, "buyout_price")
		if err != nil {
			return model.AuctionPatch{}, err
		}
		patch.BuyoutPrice = &v
	}
	if req.Status != nil {
		status := model.AuctionStatus(strings.ToUpper(*req.Status))
		patch.Status = &status
	}
	return patch, nil
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	amount, err := helpers.ToMinorUnits(req.Amount, "amount")
	if err != nil {
		helpers.HandleServiceError(c, "PlaceBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	bidderID := helpers.CurrentUser(c)
	res, err := h.service.PlaceBid(c.Request.Context(), auctionID, bidderID, amount)
	if err != nil {
		helpers.HandleServiceError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    bidderID,
			"amount":     amount,
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToPlaceBidResponse(res), "bid recorded successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":     res.Bid.BidID,
		"auction_id": auctionID,
		"user_id":    bidderID,
		"amount":     amount,
		"ended":      res.Ended,
	})
}

// GetBidsHandler handles GET /auctions/:auction_id/bids
func (h *BiddingHandler) GetBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var q helpers.BidHistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "GetBidsHandler", err)
		return
	}
	if q.Limit == 0 {
		q.Limit = helpers.DefaultHistoryLimit
	}

	bids, err := h.service.GetBidHistory(c.Request.Context(), auctionID, q.Limit, q.Offset)
	if err != nil {
		helpers.HandleServiceError(c, "GetBidsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONErrorWithDetails(c, http.StatusNotFound, err, biddingerrors.Code(err), "no winning bid found", nil)
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"auction_id": auctionID})
			return
		}
		helpers.HandleServiceError(c, "GetWinningBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(bid), "winning bid retrieved successfully")
}

// StatusCheckHandler handles POST /auctions/:auction_id/status-check
func (h *BiddingHandler) StatusCheckHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	a, changed, err := h.service.Transition(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "StatusCheckHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponse(a), "auction status checked")
	if changed {
		helpers.LogSuccess("StatusCheckHandler", "auction transitioned", map[string]any{
			"auction_id": auctionID,
			"status":     a.Status,
		})
	}
}

// GetAuctionsByUserHandler handles GET /users/:user_id/auctions
func (h *BiddingHandler) GetAuctionsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	auctions, err := h.service.GetAuctionsByBidder(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, biddingerrors.ErrUserNoBids) {
		helpers.HandleServiceError(c, "GetAuctionsByUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToAuctionResponses(auctions), "auctions retrieved successfully")
	helpers.LogSuccess("GetAuctionsByUserHandler", "auctions retrieved successfully", map[string]any{
		"user_id":        userID,
		"auctions_count": len(auctions),
	})
}

// EventsHandler handles GET /auctions/:auction_id/events as a server-sent event stream.
// Events are notifications only; clients re-read the auction over REST to reconcile.
func (h *BiddingHandler) EventsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	ctx := c.Request.Context()

	if _, err := h.service.GetAuction(ctx, auctionID); err != nil {
		helpers.HandleServiceError(c, "EventsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	stream, unsubscribe := h.events.Subscribe(auctionID)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	utils.Debug("EventsHandler: subscriber connected", map[string]any{"auction_id": auctionID})
	for {
		select {
		case <-ctx.Done():
			utils.Debug("EventsHandler: subscriber disconnected", map[string]any{"auction_id": auctionID})
			return
		case e, ok := <-stream:
			if !ok {
				return
			}
			c.SSEvent(string(e.Type), e)
			c.Writer.Flush()
		case <-heartbeat.C:
			c.SSEvent("heartbeat", gin.H{"at": time.Now().UTC().Format(time.RFC3339)})
			c.Writer.Flush()
		}
	}
}

// HealthChecker reports storage health
type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

// HealthHandler handles GET /health
func HealthHandler(checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := checker.Health(c.Request.Context())
		status := http.StatusOK
		if stats["status"] != "up" {
			status = http.StatusServiceUnavailable
		}
		utils.JSONResponse(c, status, stats, "health check")
	}
}
