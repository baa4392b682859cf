package service

import (
	"sync"
	"time"

	"github.com/liliang-cn/paperchat/internal/domain"
	"go.uber.org/zap"
)

const subscriberBuffer = 16

// StatusBroker fans out ingestion status events to per-paper subscribers.
// A subscriber that does not keep up loses events; publishers never block.
type StatusBroker struct {
	mu     sync.RWMutex
	subs   map[string]map[chan domain.StatusEvent]struct{}
	logger *zap.Logger
}

// NewStatusBroker creates a new status broker
func NewStatusBroker(logger *zap.Logger) *StatusBroker {
	return &StatusBroker{
		subs:   make(map[string]map[chan domain.StatusEvent]struct{}),
		logger: logger.Named("status"),
	}
}

// Subscribe registers for a paper's events. The returned cancel func must be
// called once; it closes the channel.
func (b *StatusBroker) Subscribe(paperID string) (<-chan domain.StatusEvent, func()) {
	ch := make(chan domain.StatusEvent, subscriberBuffer)

	b.mu.Lock()
	if b.subs[paperID] == nil {
		b.subs[paperID] = make(map[chan domain.StatusEvent]struct{})
	}
	b.subs[paperID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[paperID], ch)
			if len(b.subs[paperID]) == 0 {
				delete(b.subs, paperID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of its paper
func (b *StatusBroker) Publish(event domain.StatusEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs[event.PaperID] {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropping status event for slow subscriber",
				zap.String("paper_id", event.PaperID),
				zap.String("status", event.Status))
		}
	}
}

// Subscribers returns the number of live subscriptions for a paper
func (b *StatusBroker) Subscribers(paperID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[paperID])
}
