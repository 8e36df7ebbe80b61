// Package monitor
package monitor

import (
	"sync"

	"go.uber.org/zap"

	"github.com/futarchyhub/coordinator-backend/chain"
	"github.com/futarchyhub/coordinator-backend/types"
)

type EventType string

const (
	EventProposalAdded   EventType = "proposal:added"
	EventProposalRemoved EventType = "proposal:removed"
	EventSwap            EventType = "swap"
)

// Event is one monitor emission. Proposal is set for added/removed; Swap is
// set alongside Proposal for swap events.
type Event struct {
	Type     EventType
	Proposal *types.MonitoredProposal
	Swap     *chain.ConditionalSwapEvent
}

type SubscriberID int

// Bus fans monitor emissions out to subscribers. Delivery is non-blocking: a
// subscriber that stops draining its channel loses events rather than
// stalling the monitor loop.
type Bus struct {
	logger *zap.Logger

	mu     sync.Mutex
	subs   map[SubscriberID]chan Event
	lastID SubscriberID
}

func NewBus(logger *zap.Logger) *Bus {
	return newBus(logger)
}

func newBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger: logger,
		subs:   make(map[SubscriberID]chan Event),
	}
}

func (b *Bus) Subscribe(buffer int) (SubscriberID, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastID++
	ch := make(chan Event, buffer)
	b.subs[b.lastID] = ch
	return b.lastID, ch
}

func (b *Bus) Unsubscribe(id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish fans one event out to every subscriber.
func (b *Bus) Publish(ev Event) {
	b.publish(ev)
}

func (b *Bus) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("subscriber queue full, dropping event",
				zap.Int("subscriber", int(id)),
				zap.String("type", string(ev.Type)))
		}
	}
}
