package bidding

import (
	"auction-engine/internal/biddingerrors"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// auctionLocks hands out one FIFO lock per auction. Entries are reference counted and
// dropped as soon as nobody holds or waits for them.
type auctionLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newAuctionLocks() *auctionLocks {
	return &auctionLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until the auction's lock is held, timeout elapses (ErrBusy) or ctx is done.
// A non-positive timeout waits for ctx only.
func (l *auctionLocks) acquire(ctx context.Context, auctionID string, timeout time.Duration) (func(), error) {
	e := l.ref(auctionID)

	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := e.sem.Acquire(waitCtx, 1); err != nil {
		l.unref(auctionID, e)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: waited %s for auction %s", biddingerrors.ErrBusy, timeout, auctionID)
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.unref(auctionID, e)
		})
	}, nil
}

func (l *auctionLocks) ref(auctionID string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[auctionID]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[auctionID] = e
	}
	e.refs++
	return e
}

func (l *auctionLocks) unref(auctionID string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 && l.entries[auctionID] == e {
		delete(l.entries, auctionID)
	}
}

// size returns the number of live lock entries
func (l *auctionLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
