// Package eventbus provides the Bus interface and an in-memory implementation
// for streaming flight and chat events.
package eventbus

import (
	"sync"

	"github.com/jxucoder/uavlog/pkg/model"
)

// All subscribes to events for every flight.
const All = "*"

// Bus provides pub/sub for flight events, keyed by flight ID.
type Bus interface {
	Subscribe(flightID string) chan *model.Event
	Unsubscribe(flightID string, ch chan *model.Event)
	Publish(event *model.Event)
}

// InMemoryBus is the default in-memory Bus implementation.
type InMemoryBus struct {
	mu   sync.RWMutex
	subs map[string][]chan *model.Event
}

// NewInMemoryBus creates a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		subs: make(map[string][]chan *model.Event),
	}
}

// Subscribe creates a channel that receives events for a flight, or for
// every flight when flightID is All.
func (b *InMemoryBus) Subscribe(flightID string) chan *model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *model.Event, 64)
	b.subs[flightID] = append(b.subs[flightID], ch)
	return ch
}

// Unsubscribe removes a channel from the flight's subscribers and closes it.
func (b *InMemoryBus) Unsubscribe(flightID string, ch chan *model.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[flightID]
	for i, s := range subs {
		if s == ch {
			b.subs[flightID] = append(subs[:i], subs[i+1:]...)
			if len(b.subs[flightID]) == 0 {
				delete(b.subs, flightID)
			}
			close(ch)
			return
		}
	}
}

// Publish sends an event to the subscribers of its flight and to All
// subscribers. Slow subscribers miss events rather than block the caller.
func (b *InMemoryBus) Publish(event *model.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	send := func(subs []chan *model.Event) {
		for _, ch := range subs {
			select {
			case ch <- event:
			default:
			}
		}
	}
	if event.FlightID != "" && event.FlightID != All {
		send(b.subs[event.FlightID])
	}
	send(b.subs[All])
}
