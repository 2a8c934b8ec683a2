// README: In-process event bus fanning incident/responder changes out to consoles.
package events

import (
	"sync"
	"time"

	"aegis/internal/types"
)

type EventType string

const (
	IncidentCreated          EventType = "incident_created"
	IncidentAssigned         EventType = "incident_assigned"
	IncidentStatusChanged    EventType = "incident_status_changed"
	IncidentLocationUpdated  EventType = "incident_location_updated"
	IncidentMessageAdded     EventType = "incident_message_added"
	ResponderLocationUpdated EventType = "responder_location_updated"
	ResponderStatusChanged   EventType = "responder_status_changed"
	// ResyncRequired replaces dropped events when a subscriber's buffer
	// overflows. The subscriber must re-fetch affected streams.
	ResyncRequired EventType = "resync_required"
)

// Event is one change notification. Seq is strictly increasing per Stream
// (incident id or responder id) so a subscriber can detect gaps and trigger
// a full re-fetch as the reconciliation path.
type Event struct {
	Type    EventType   `json:"type"`
	Stream  types.ID    `json:"stream"`
	Seq     uint64      `json:"seq"`
	At      time.Time   `json:"at"`
	Payload interface{} `json:"payload,omitempty"`
}

// DefaultBuffer is the per-subscriber buffer capacity.
const DefaultBuffer = 64

// Bus is a bounded-buffer publish/subscribe fan-out. Publish never blocks
// and never fails; a slow subscriber loses its oldest events and receives a
// ResyncRequired sentinel instead.
type Bus struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	seqs   map[types.ID]uint64
	buffer int
	now    func() time.Time
}

// Subscription is one independent delivery channel. Events published after
// Subscribe are visible on C until Close.
type Subscription struct {
	bus *Bus
	ch  chan Event

	mu     sync.Mutex
	closed bool
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		subs:   make(map[*Subscription]struct{}),
		seqs:   make(map[types.ID]uint64),
		buffer: buffer,
		now:    time.Now,
	}
}

func (b *Bus) Subscribe() *Subscription {
	s := &Subscription{bus: b, ch: make(chan Event, b.buffer)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// C is the subscriber's receive channel.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close detaches the subscription. The channel is not closed so in-flight
// deliveries stay safe; the subscriber simply stops receiving.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Publish stamps the event with the next sequence number of its stream and
// fans it out to every current subscriber in bounded time. Stamping and
// delivery happen under one lock: two publishes can never reach a subscriber
// in reverse sequence order. Offers never block, so Publish stays bounded.
func (b *Bus) Publish(ev Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seqs[ev.Stream]++
	ev.Seq = b.seqs[ev.Stream]
	if ev.At.IsZero() {
		ev.At = b.now()
	}
	for s := range b.subs {
		s.offer(ev)
	}
	return ev
}

// offer delivers without blocking. On overflow the two oldest buffered
// events are discarded to make room for a ResyncRequired sentinel followed
// by the new event.
func (s *Subscription) offer(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- ev:
		return
	default:
	}

	for i := 0; i < 2; i++ {
		select {
		case <-s.ch:
		default:
		}
	}
	resync := Event{Type: ResyncRequired, Stream: ev.Stream, Seq: ev.Seq, At: ev.At}
	select {
	case s.ch <- resync:
	default:
	}
	select {
	case s.ch <- ev:
	default:
	}
}
