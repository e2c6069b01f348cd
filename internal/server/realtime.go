package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const (
	RealtimeEventItineraryChanged = "itinerary-change"
	realtimeEventHeartbeat        = "heartbeat"
	realtimeSourceBackend         = "plantrip-backend"
)

// RealtimeMessage announces a committed change to one trip's itinerary.
type RealtimeMessage struct {
	TripID    string
	EventType string
	Entity    string
	EntityIDs []string
	ActorID   string
	Timestamp time.Time
}

// RealtimeDispatcher fans messages out to the subscribers of each trip. Slow
// subscribers miss messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	active      atomic.Int64
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[string]map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a listener scoped to tripID. The stream only carries
// messages published for that trip, so callers must have checked the
// subscriber's access to the trip before subscribing. The registration ends
// when ctx is done or cleanup is called. An empty tripID yields a closed
// stream.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, tripID string) (<-chan RealtimeMessage, func()) {
	if tripID == "" {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(tripID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregisterSubscriber(tripID, subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Active reports whether anyone is listening at all.
func (d *RealtimeDispatcher) Active() bool {
	return d.active.Load() > 0
}

// Publish delivers message to the subscribers of message.TripID only. Messages
// without a trip or event type are dropped. Delivery never blocks: a
// subscriber whose buffer is full misses the message.
func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.TripID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.TripID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(tripID string, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[tripID]; !ok {
		d.subscribers[tripID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[tripID][subscriber.id] = subscriber
	d.active.Add(1)
}

func (d *RealtimeDispatcher) unregisterSubscriber(tripID string, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[tripID]
	if subscribers != nil {
		if _, ok := subscribers[subscriberID]; ok {
			delete(subscribers, subscriberID)
			d.active.Add(-1)
		}
		if len(subscribers) == 0 {
			delete(d.subscribers, tripID)
		}
	}
	d.mu.Unlock()
}
