package server

import (
	"fmt"
	"slices"
	"time"

	handler "auction-engine/services/bidding/handler"
	"auction-engine/services/bidding/helpers"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Dependencies are the collaborators the HTTP layer is built from
type Dependencies struct {
	Service     handler.BiddingServiceInterface
	Events      handler.EventSubscriber
	Health      handler.HealthChecker
	CORSOrigins []string
}

func corsConfig(origins []string) (cors.Config, error) {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", helpers.UserIDHeader},
		ExposeHeaders:    []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	if err := cfg.Validate(); err != nil {
		return cors.Config{}, fmt.Errorf("server: invalid CORS settings: %w", err)
	}
	return cfg, nil
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Dependencies) (*gin.Engine, error) {
	if err := helpers.RegisterValidators(); err != nil {
		return nil, fmt.Errorf("server: register validators: %w", err)
	}
	corsCfg, err := corsConfig(deps.CORSOrigins)
	if err != nil {
		return nil, err
	}

	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	router.Use(cors.New(corsCfg))

	biddingHandler := handler.NewBiddingHandler(deps.Service, deps.Events)

	router.GET("/health", handler.HealthHandler(deps.Health))

	auctions := router.Group("/auctions")
	{
		auctions.GET("", biddingHandler.ListAuctionsHandler)
		auctions.POST("", RequireUser, biddingHandler.CreateAuctionHandler)
		auctions.GET("/:auction_id", biddingHandler.GetAuctionHandler)
		auctions.PATCH("/:auction_id", RequireUser, biddingHandler.UpdateAuctionHandler)
		auctions.POST("/:auction_id/bids", RequireUser, biddingHandler.PlaceBidHandler)
		auctions.GET("/:auction_id/bids", biddingHandler.GetBidsHandler)
		auctions.GET("/:auction_id/winning", biddingHandler.GetWinningBidHandler)
		auctions.POST("/:auction_id/status-check", biddingHandler.StatusCheckHandler)
		auctions.GET("/:auction_id/events", biddingHandler.EventsHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/auctions", biddingHandler.GetAuctionsByUserHandler)
	}

	return router, nil
}
