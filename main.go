package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/clock"
	"auction-engine/internal/config"
	"auction-engine/internal/events"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/scheduler"
	"auction-engine/internal/server"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// storage is what the engine needs from a backend: auctions, the bid ledger and a health probe
type storage interface {
	repository.AuctionDB
	repository.BidLedger
	Health(ctx context.Context) map[string]string
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.Fatal("failed to load configuration", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLogLevel(cfg.LogLevel); err != nil {
		utils.Warn("unknown log level, keeping info", map[string]any{"log_level": cfg.LogLevel})
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		utils.Error("auction server stopped with error", map[string]any{"error": err.Error()})
		os.Exit(1)
	}
	utils.Info("auction server stopped", nil)
}

func run(ctx context.Context, cfg config.Config) error {
	store, closeStore, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	broker := events.NewBroker(cfg.EventBuffer)
	biddingSvc := bidding.NewBiddingService(store, store,
		bidding.WithPublisher(broker),
		bidding.WithLockTimeout(cfg.LockTimeout),
		bidding.WithMinPriceUnit(cfg.MinPriceUnit),
	)

	if cfg.SeedDemoData {
		prepopulateAuctions(ctx, biddingSvc)
	}

	sched := scheduler.New(store, biddingSvc, clock.Real{}, scheduler.Config{
		MinInterval: cfg.SchedulerMinInterval,
		MaxInterval: cfg.SchedulerMaxInterval,
		Retries:     cfg.SweepRetries,
	})

	router, err := server.SetupRouter(server.Dependencies{
		Service:     biddingSvc,
		Events:      broker,
		Health:      store,
		CORSOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		return err
	}

	// event streams never finish on their own, so their contexts end when shutdown begins
	streamCtx, cancelStreams := context.WithCancel(context.Background())
	defer cancelStreams()
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return streamCtx },
	}
	srv.RegisterOnShutdown(cancelStreams)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(func() error {
		utils.Info("starting auction server", map[string]any{
			"addr":    srv.Addr,
			"storage": cfg.StorageDriver,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		utils.Info("shutting down auction server", map[string]any{"timeout": cfg.ShutdownTimeout.String()})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// openStorage selects the configured backend
func openStorage(ctx context.Context, cfg config.Config) (storage, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		repo, err := repository.NewPostgresRepo(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {
			if err := repo.Close(); err != nil {
				utils.Warn("failed to close database", map[string]any{"error": err.Error()})
			}
		}, nil
	default:
		return repository.NewMemoryRepo(), func() {}, nil
	}
}

// prepopulateAuctions adds sample auctions when the store is empty
func prepopulateAuctions(ctx context.Context, svc *bidding.BiddingService) {
	existing, err := svc.ListAuctions(ctx, model.AuctionFilter{Limit: 1})
	if err != nil {
		utils.Warn("skipping demo data", map[string]any{"error": err.Error()})
		return
	}
	if len(existing) > 0 {
		return
	}

	now := time.Now().UTC().Truncate(time.Minute).Add(time.Minute)
	buyout := int64(500000)
	specs := []model.AuctionSpec{
		{
			Title:       "Mechanical keyboard",
			Description: "Tenkeyless board with brown switches, lightly used",
			StartPrice:  50000,
			BidStep:     5000,
			BuyoutPrice: &buyout,
			StartAt:     now,
			EndAt:       now.Add(2 * time.Hour),
		},
		{
			Title:       "Film camera",
			Description: "35mm rangefinder, shutter serviced last year",
			ImageURLs:   []string{"https://images.example.com/camera.jpg"},
			StartPrice:  120000,
			BidStep:     10000,
			StartAt:     now.Add(10 * time.Minute),
			EndAt:       now.Add(24 * time.Hour),
		},
		{
			Title:       "Road bike",
			Description: "Aluminium frame, 54cm, new tyres and chain",
			StartPrice:  300000,
			BidStep:     20000,
			StartAt:     now.Add(time.Hour),
			EndAt:       now.Add(48 * time.Hour),
		},
	}

	for _, spec := range specs {
		a, err := svc.CreateAuction(ctx, "demo-seller", spec)
		if err != nil {
			utils.Warn("failed to seed demo auction", map[string]any{"title": spec.Title, "error": err.Error()})
			continue
		}
		utils.Debug("seeded demo auction", map[string]any{"auction_id": a.AuctionID, "title": a.Title})
	}
}
