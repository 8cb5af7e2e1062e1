package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Kind string

const (
	KindStealCompleted    Kind = "steal_completed"
	KindShieldPurchased   Kind = "shield_purchased"
	KindScenarioResolved  Kind = "scenario_resolved"
	KindScenarioCancelled Kind = "scenario_cancelled"
)

// Event is the payload fanned out after a committed state change. It carries
// the post-transfer snapshot so subscribers never need a follow-up read.
type Event struct {
	Kind       Kind            `json:"kind"`
	ScenarioID uint64          `json:"scenario_id"`
	ActorID    uint64          `json:"actor_id"`
	VictimID   *uint64         `json:"victim_id,omitempty"`
	Price      decimal.Decimal `json:"price"`
	StealCount int             `json:"steal_count"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Hub fans committed-change events out to in-process subscribers
// (notification forwarders, the websocket stream). Slow subscribers are
// dropped rather than blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs []chan Event

	logger  *zap.Logger
	dropped uint64
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{logger: logger}
}

// Subscribe returns a channel receiving every published event.
func (h *Hub) Subscribe(buf int) <-chan Event {
	if buf <= 0 {
		buf = 16
	}
	ch := make(chan Event, buf)
	h.mu.Lock()
	h.subs = append(h.subs, ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (h *Hub) Unsubscribe(ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, sub := range h.subs {
		if (<-chan Event)(sub) == ch {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Drop when subscriber is slow; hub must not block.
			total := atomic.AddUint64(&h.dropped, 1)
			if h.logger != nil {
				h.logger.Debug("event dropped, subscriber busy",
					zap.String("kind", string(ev.Kind)),
					zap.Uint64("total_dropped", total),
				)
			}
		}
	}
}

func (h *Hub) Dropped() uint64 {
	if h == nil {
		return 0
	}
	return atomic.LoadUint64(&h.dropped)
}
