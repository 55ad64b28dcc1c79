package notify

import (
	"context"
	"sync"
	"time"

	"github.com/web3-feed/internal/models"
	"github.com/web3-feed/pkg/logger"
)

// EventContentInserted is emitted once per newly stored content row
const EventContentInserted = "content_inserted"

// DefaultBufferSize is the per-subscriber queue length
const DefaultBufferSize = 64

// Event is one change notification
type Event struct {
	Type     string             `json:"type"`
	CallerID string             `json:"callerId"`
	Item     models.ContentItem `json:"item"`
	At       time.Time          `json:"at"`
}

// BrokerOption configures a Broker
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber queue length
func WithBufferSize(n int) BrokerOption {
	return func(b *Broker) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

type subscriber struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() {
		close(s.events)
		close(s.done)
	})
}

// Broker fans inserted content out to subscribers of the owning caller.
// Delivery is at-most-once: events for a subscriber whose queue is full are dropped.
type Broker struct {
	mu         sync.RWMutex
	subs       map[string]map[uint64]*subscriber
	nextID     uint64
	bufferSize int
	closed     bool
	now        func() time.Time
	log        *logger.Logger
}

// NewBroker creates a broker
func NewBroker(log *logger.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		subs:       make(map[string]map[uint64]*subscriber),
		bufferSize: DefaultBufferSize,
		now:        time.Now,
		log:        log.WithComponent("notify"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers for events of one caller. The channel is closed when
// cleanup is called, ctx is done or the broker is closed.
func (b *Broker) Subscribe(ctx context.Context, callerID string) (events <-chan Event, cleanup func()) {
	s := &subscriber{events: make(chan Event, b.bufferSize), done: make(chan struct{})}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.close()
		return s.events, func() {}
	}
	id := b.nextID
	b.nextID++
	if b.subs[callerID] == nil {
		b.subs[callerID] = make(map[uint64]*subscriber)
	}
	b.subs[callerID][id] = s
	b.mu.Unlock()

	b.log.Debug().Str("caller_id", callerID).Msg("Client subscribed")

	cleanup = func() { b.remove(callerID, id) }

	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-s.done:
		}
	}()

	return s.events, cleanup
}

// Publish delivers one event per item to the caller's subscribers without
// blocking. It returns how many events were queued.
func (b *Broker) Publish(callerID string, items []models.ContentItem) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subs := b.subs[callerID]
	if len(subs) == 0 || len(items) == 0 {
		return 0
	}

	at := b.now().UTC()
	sent, dropped := 0, 0
	for _, item := range items {
		ev := Event{Type: EventContentInserted, CallerID: callerID, Item: item, At: at}
		for _, s := range subs {
			select {
			case s.events <- ev:
				sent++
			default:
				dropped++
			}
		}
	}

	if dropped > 0 {
		b.log.Warn().
			Str("caller_id", callerID).
			Int("dropped", dropped).
			Msg("Subscriber queue full, events dropped")
	}
	return sent
}

// SubscriberCount returns the number of live subscriptions for a caller
func (b *Broker) SubscriberCount(callerID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[callerID])
}

// Close disconnects every subscriber
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for callerID, subs := range b.subs {
		for id, s := range subs {
			s.close()
			delete(subs, id)
		}
		delete(b.subs, callerID)
	}
}

func (b *Broker) remove(callerID string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[callerID]
	s, ok := subs[id]
	if !ok {
		return
	}
	s.close()
	delete(subs, id)
	if len(subs) == 0 {
		delete(b.subs, callerID)
	}
	b.log.Debug().Str("caller_id", callerID).Msg("Client unsubscribed")
}
