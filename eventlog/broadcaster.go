package eventlog

import (
	"sync"

	"go.uber.org/zap"
)

// defaultSubscriberBuffer bounds how far a subscriber may lag before
// events are dropped for it.
const defaultSubscriberBuffer = 64

// Subscription is one live event feed. Events arrive on C in publish
// order; a lagging subscriber loses events rather than blocking the
// publisher, and the durable store remains the source of truth for
// replay.
type Subscription struct {
	C <-chan *Entry

	cancel func()
	once   sync.Once
}

// Close detaches the subscription and closes C.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Broadcaster fans appended log entries out to live subscribers.
// Delivery is best-effort: publishing never blocks workflow execution.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	buffer int
	logger *zap.Logger
}

type subscriber struct {
	conversationID string // empty subscribes to all conversations
	ch             chan *Entry
}

// NewBroadcaster creates a broadcaster with the given per-subscriber
// buffer; zero means the default.
func NewBroadcaster(buffer int, logger *zap.Logger) *Broadcaster {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:   make(map[uint64]*subscriber),
		buffer: buffer,
		logger: logger.With(zap.String("component", "log_broadcaster")),
	}
}

// Subscribe registers a feed for one conversation, or for every
// conversation when conversationID is empty.
func (b *Broadcaster) Subscribe(conversationID string) *Subscription {
	ch := make(chan *Entry, b.buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{conversationID: conversationID, ch: ch}
	b.mu.Unlock()

	sub := &Subscription{C: ch}
	sub.cancel = func() {
		b.mu.Lock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
		b.mu.Unlock()
	}
	return sub
}

// Publish delivers entry to every matching subscriber without blocking.
func (b *Broadcaster) Publish(entry *Entry) {
	if entry == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.conversationID != "" && sub.conversationID != entry.ConversationID {
			continue
		}
		select {
		case sub.ch <- entry:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				zap.String("conversation_id", entry.ConversationID),
				zap.String("kind", string(entry.Kind)),
			)
		}
	}
}

// SubscriberCount returns the number of attached subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
