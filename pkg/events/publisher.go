package events

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/hololinked-dev/hololinked-go/pkg/codec"
)

// Publisher errors.
var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrDuplicateEvent = errors.New("event already declared")
	ErrClosed         = errors.New("publisher is closed")
)

const (
	// DefaultMinInterval is the rate ceiling applied to events that do not
	// declare their own. Roughly 30 Hz.
	DefaultMinInterval = 33 * time.Millisecond

	// DefaultQueueCapacity bounds each subscriber's delivery queue.
	DefaultQueueCapacity = 16
)

// Observer receives publisher lifecycle notifications (metrics hook).
type Observer interface {
	EventEmitted(thingID, event string)
	EventDropped(thingID, event string)
	SubscriberAdded(thingID, event string)
	SubscriberRemoved(thingID, event string)
}

// Options configures a Publisher.
type Options struct {
	// QueueCapacity bounds each subscriber's delivery queue.
	// Zero selects DefaultQueueCapacity.
	QueueCapacity int

	// MinInterval is the rate ceiling for events declared with a zero
	// interval. Zero selects DefaultMinInterval.
	MinInterval time.Duration

	// Observer receives delivery/drop notifications. May be nil.
	Observer Observer
}

// Publisher fans out event emissions to subscriber queues. Streams are
// declared per (thing, event) pair when a Thing is attached; Publish may be
// called from any goroutine, including background acquisition loops that
// never touch the dispatcher.
type Publisher struct {
	mu      sync.RWMutex
	streams map[string]*stream
	subs    map[string]*subscriber
	opts    Options
	closed  bool
}

// NewPublisher creates a publisher.
func NewPublisher(opts Options) *Publisher {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	return &Publisher{
		streams: make(map[string]*stream),
		subs:    make(map[string]*subscriber),
		opts:    opts,
	}
}

func streamKey(thingID, event string) string {
	return thingID + "/" + event
}

// Declare registers an event stream. A zero minInterval selects the
// publisher default; a negative one disables coalescing entirely.
func (p *Publisher) Declare(thingID, event string, minInterval time.Duration) error {
	if minInterval == 0 {
		minInterval = p.opts.MinInterval
	}
	if minInterval < 0 {
		minInterval = 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	key := streamKey(thingID, event)
	if _, ok := p.streams[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateEvent, key)
	}
	p.streams[key] = newStream(thingID, event, minInterval, p.opts.Observer)
	return nil
}

// Publish enqueues a value for delivery to every live subscription of the
// event. Never blocks: the value lands in the stream's coalescing slot and
// is fanned out when the interval timer expires.
func (p *Publisher) Publish(thingID, event string, value any) error {
	p.mu.RLock()
	st, ok := p.streams[streamKey(thingID, event)]
	closed := p.closed
	p.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrUnknownEvent, thingID, event)
	}
	st.publish(value)
	return nil
}

// Subscribe adds a subscription for an event, owned by owner (typically a
// connection id). Frames are encoded with c and handed to deliver from a
// dedicated goroutine. Returns the subscription id.
func (p *Publisher) Subscribe(thingID, event, owner string, c codec.Codec, deliver Delivery) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return "", ErrClosed
	}
	st, ok := p.streams[streamKey(thingID, event)]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrUnknownEvent, thingID, event)
	}

	id := xid.New().String()
	sub := newSubscriber(id, owner, event, p.opts.QueueCapacity, c, deliver)
	sub.st = st
	p.subs[id] = sub
	st.add(sub)

	if p.opts.Observer != nil {
		p.opts.Observer.SubscriberAdded(thingID, event)
	}
	return id, nil
}

// Unsubscribe removes a subscription. Idempotent: unknown ids are a no-op.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	sub, ok := p.subs[id]
	if ok {
		delete(p.subs, id)
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	p.detach(sub)
}

// ReleaseOwner removes every subscription owned by owner. Called by
// transports on connection loss.
func (p *Publisher) ReleaseOwner(owner string) {
	p.mu.Lock()
	var released []*subscriber
	for id, sub := range p.subs {
		if sub.owner == owner {
			delete(p.subs, id)
			released = append(released, sub)
		}
	}
	p.mu.Unlock()

	for _, sub := range released {
		p.detach(sub)
	}
}

// detach removes a subscriber from its stream and stops its delivery loop.
func (p *Publisher) detach(sub *subscriber) {
	sub.st.remove(sub.id)
	if p.opts.Observer != nil {
		p.opts.Observer.SubscriberRemoved(sub.st.thingID, sub.st.event)
	}
	sub.close()
}

// SubscriberCount returns the number of live subscriptions for an event.
func (p *Publisher) SubscriberCount(thingID, event string) int {
	p.mu.RLock()
	st, ok := p.streams[streamKey(thingID, event)]
	p.mu.RUnlock()

	if !ok {
		return 0
	}
	return st.count()
}

// Close stops all streams and subscriber delivery loops.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	streams := make([]*stream, 0, len(p.streams))
	for _, st := range p.streams {
		streams = append(streams, st)
	}
	subs := make([]*subscriber, 0, len(p.subs))
	for _, sub := range p.subs {
		subs = append(subs, sub)
	}
	p.subs = make(map[string]*subscriber)
	p.mu.Unlock()

	for _, st := range streams {
		st.stop()
	}
	for _, sub := range subs {
		sub.close()
	}
}

// Source binds a publisher to one Thing so handlers can emit without
// carrying the thing id around.
type Source struct {
	p       *Publisher
	thingID string
}

// Source returns an emitter bound to thingID.
func (p *Publisher) Source(thingID string) *Source {
	return &Source{p: p, thingID: thingID}
}

// Emit publishes a value for one of the bound Thing's events.
func (s *Source) Emit(event string, value any) error {
	return s.p.Publish(s.thingID, event, value)
}
