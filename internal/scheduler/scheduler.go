package scheduler

import (
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/clock"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

//go:generate mockgen -destination=mock_transitioner.go -package=scheduler auction-engine/internal/scheduler Transitioner

// Transitioner applies the lifecycle transition for one auction under its lock
type Transitioner interface {
	Transition(ctx context.Context, auctionID string) (model.Auction, bool, error)
}

// Config tunes the sweep loop
type Config struct {
	MinInterval time.Duration
	MaxInterval time.Duration
	// Retries bounds the extra attempts made for one auction inside a single sweep
	Retries      int
	RetryInitial time.Duration
}

// DefaultConfig matches the cadence clients poll with
func DefaultConfig() Config {
	return Config{
		MinInterval:  time.Second,
		MaxInterval:  30 * time.Second,
		Retries:      3,
		RetryInitial: 100 * time.Millisecond,
	}
}

// Scheduler drives time-based transitions without waiting for client traffic
type Scheduler struct {
	repo  repository.AuctionDB
	svc   Transitioner
	clock clock.Clock
	cfg   Config
}

// New creates a Scheduler
func New(repo repository.AuctionDB, svc Transitioner, c clock.Clock, cfg Config) *Scheduler {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	if cfg.MaxInterval < cfg.MinInterval {
		cfg.MaxInterval = cfg.MinInterval
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = 100 * time.Millisecond
	}
	return &Scheduler{repo: repo, svc: svc, clock: c, cfg: cfg}
}

// SweepResult summarizes one pass over due auctions
type SweepResult struct {
	Due          int
	Transitioned int
	Failed       int
}

// NextInterval maps the distance to the closest boundary onto a polling cadence
func NextInterval(distance time.Duration) time.Duration {
	switch {
	case distance < time.Minute:
		return time.Second
	case distance < 5*time.Minute:
		return 2 * time.Second
	case distance < 10*time.Minute:
		return 5 * time.Second
	case distance < 30*time.Minute:
		return 10 * time.Second
	default:
		return 30 * time.Second
	}
}

func (s *Scheduler) clamp(d time.Duration) time.Duration {
	if d < s.cfg.MinInterval {
		return s.cfg.MinInterval
	}
	if d > s.cfg.MaxInterval {
		return s.cfg.MaxInterval
	}
	return d
}

// Interval returns how long to wait before the next sweep
func (s *Scheduler) Interval(ctx context.Context) time.Duration {
	now := s.clock.Now()
	next, ok, err := s.repo.NextBoundary(ctx, now)
	if err != nil {
		utils.Warn("scheduler: next boundary lookup failed", map[string]any{"error": err.Error()})
		return s.cfg.MinInterval
	}
	if !ok {
		return s.cfg.MaxInterval
	}
	return s.clamp(NextInterval(next.Sub(now)))
}

// Sweep transitions every due auction. It stops early only when ctx is cancelled, and never
// in the middle of one auction's transition.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	due, err := s.repo.ListDue(ctx, s.clock.Now())
	if err != nil {
		return SweepResult{}, err
	}

	res := SweepResult{Due: len(due)}
	for _, a := range due {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		changed, err := s.transition(ctx, a.AuctionID)
		if err != nil {
			res.Failed++
			utils.Error("scheduler: transition failed, will retry next tick", map[string]any{
				"auction_id": a.AuctionID,
				"status":     a.Status,
				"error":      err.Error(),
			})
			continue
		}
		if changed {
			res.Transitioned++
		}
	}

	if res.Due > 0 {
		utils.Debug("scheduler: sweep finished", map[string]any{
			"due":          res.Due,
			"transitioned": res.Transitioned,
			"failed":       res.Failed,
		})
	}
	return res, nil
}

// transition retries storage and lock-contention failures with bounded exponential backoff
func (s *Scheduler) transition(ctx context.Context, auctionID string) (bool, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.cfg.RetryInitial
	eb.MaxInterval = s.cfg.MaxInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.cfg.Retries)), ctx)

	var changed bool
	err := backoff.Retry(func() error {
		_, c, err := s.svc.Transition(context.WithoutCancel(ctx), auctionID)
		if err == nil {
			changed = c
			return nil
		}
		if errors.Is(err, biddingerrors.ErrStorage) || errors.Is(err, biddingerrors.ErrBusy) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
	return changed, err
}

// Run sweeps until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	utils.Info("scheduler: started", map[string]any{
		"min_interval": s.cfg.MinInterval.String(),
		"max_interval": s.cfg.MaxInterval.String(),
	})

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			utils.Info("scheduler: stopped", nil)
			return nil
		case <-timer.C:
		}

		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			utils.Error("scheduler: sweep failed", map[string]any{"error": err.Error()})
		}
		timer.Reset(s.Interval(ctx))
	}
}
