package events

import (
	"sync"
	"time"
)

// Type names an auction notification
type Type string

const (
	BidPlaced      Type = "bid:placed"
	AuctionUpdated Type = "auction:updated"
	AuctionEnded   Type = "auction:ended"
	BidFailed      Type = "bid:failed"
)

// Event is a notification about one auction. Events are hints for clients to refresh;
// the repository and ledger remain the source of truth.
type Event struct {
	Type      Type      `json:"type"`
	AuctionID string    `json:"auction_id"`
	Data      any       `json:"data,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events without blocking the caller
type Publisher interface {
	Publish(e Event)
}

// Broker fans events out to per-auction subscribers. A subscriber whose buffer is full
// misses the event instead of slowing the publisher down.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{} // key: auctionID -> value: subscriber channels
	buffer int
}

// NewBroker creates a broker whose subscriber channels hold up to buffer events
func NewBroker(buffer int) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{
		subs:   make(map[string]map[chan Event]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers interest in one auction. The returned func unsubscribes and closes the channel;
// it is safe to call more than once.
func (b *Broker) Subscribe(auctionID string) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if b.subs[auctionID] == nil {
		b.subs[auctionID] = make(map[chan Event]struct{})
	}
	b.subs[auctionID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[auctionID], ch)
			if len(b.subs[auctionID]) == 0 {
				delete(b.subs, auctionID)
			}
			close(ch)
		})
	}
}

// Publish delivers e to every current subscriber of e.AuctionID
func (b *Broker) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[e.AuctionID] {
		select {
		case ch <- e:
		default:
		}
	}
}

// SubscriberCount returns the number of live subscriptions for an auction
func (b *Broker) SubscriberCount(auctionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[auctionID])
}

// Discard is a Publisher that drops everything
type Discard struct{}

func (Discard) Publish(Event) {}
