package events

import (
	"sync"
	"time"
)

// stream is the fan-out point for one (thing, event) pair. It owns the
// coalescing slot: a publish lands in the pending slot and arms the
// interval timer; the timer callback fans the latest value out to all
// subscriber queues. No value is emitted mid-interval, so deliveries are
// paced at most one per minInterval and always carry the newest payload.
type stream struct {
	thingID string
	event   string

	// minInterval is the rate ceiling. Zero disables coalescing and fans
	// out synchronously on publish.
	minInterval time.Duration

	observer Observer

	mu      sync.Mutex
	subs    map[string]*subscriber
	pending any
	armed   bool
	stopped bool
	timer   *time.Timer
}

func newStream(thingID, event string, minInterval time.Duration, observer Observer) *stream {
	return &stream{
		thingID:     thingID,
		event:       event,
		minInterval: minInterval,
		observer:    observer,
		subs:        make(map[string]*subscriber),
	}
}

// publish stores the value in the coalescing slot. The first publish of an
// interval arms the timer; later ones replace the pending value.
func (s *stream) publish(value any) {
	if s.minInterval == 0 {
		s.fanout(emission{value: value, ts: time.Now()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.pending = value
	if !s.armed {
		s.armed = true
		s.timer = time.AfterFunc(s.minInterval, s.fire)
	}
}

// fire is the timer callback: it takes the pending value and fans it out.
func (s *stream) fire() {
	s.mu.Lock()
	if s.stopped || !s.armed {
		s.mu.Unlock()
		return
	}
	value := s.pending
	s.pending = nil
	s.armed = false
	s.mu.Unlock()

	s.fanout(emission{value: value, ts: time.Now()})
}

// fanout enqueues one emission to every subscriber queue.
func (s *stream) fanout(e emission) {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		before := sub.droppedCount()
		sub.enqueue(e)
		if s.observer != nil {
			s.observer.EventEmitted(s.thingID, s.event)
			if sub.droppedCount() > before {
				s.observer.EventDropped(s.thingID, s.event)
			}
		}
	}
}

func (s *stream) add(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.id] = sub
}

func (s *stream) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

func (s *stream) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// stop disarms the timer and drops any pending value.
func (s *stream) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	s.armed = false
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
	}
}
