package events

import (
	"sync"
	"time"

	"github.com/hololinked-dev/hololinked-go/pkg/codec"
	"github.com/hololinked-dev/hololinked-go/pkg/wire"
)

// Delivery receives event frames for one subscription. It is called from
// the subscription's own delivery goroutine and may block (e.g. on a slow
// connection) without affecting publishers or other subscribers.
type Delivery func(frame *wire.Event)

// emission is one coalesced event value with its emission timestamp.
type emission struct {
	value any
	ts    time.Time
}

// subscriber is one live subscription with its bounded delivery queue.
// Publishers enqueue, exactly one consumer goroutine dequeues.
type subscriber struct {
	id    string
	owner string
	event string
	st    *stream
	codec codec.Codec

	deliver Delivery

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []emission
	cap     int
	dropped uint64
	closed  bool

	done chan struct{}
}

func newSubscriber(id, owner, event string, capacity int, c codec.Codec, deliver Delivery) *subscriber {
	s := &subscriber{
		id:      id,
		owner:   owner,
		event:   event,
		codec:   c,
		deliver: deliver,
		queue:   make([]emission, 0, capacity),
		cap:     capacity,
		done:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.run()
	return s
}

// enqueue adds an emission to the queue. When the queue is full the oldest
// unread entry is dropped and the drop counter incremented. Never blocks.
func (s *subscriber) enqueue(e emission) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if len(s.queue) >= s.cap {
		copy(s.queue, s.queue[1:])
		s.queue[len(s.queue)-1] = e
		s.dropped++
	} else {
		s.queue = append(s.queue, e)
	}
	s.cond.Signal()
}

// run is the delivery loop. It assigns the gapless per-subscriber sequence
// number at delivery time and snapshots the drop counter into each frame.
func (s *subscriber) run() {
	defer close(s.done)

	var seq uint64
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			s.mu.Unlock()
			return
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		dropped := s.dropped
		s.mu.Unlock()

		payload, err := s.codec.Encode(e.value)
		if err != nil {
			// Unencodable value counts as a drop for this subscriber.
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
			continue
		}

		seq++
		s.deliver(&wire.Event{
			Subscription: s.id,
			Event:        s.event,
			Seq:          seq,
			Dropped:      dropped,
			Timestamp:    e.ts.UnixNano(),
			Payload:      payload,
		})
	}
}

func (s *subscriber) droppedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// close stops the delivery loop. Undelivered queue entries are discarded.
func (s *subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.cond.Broadcast()
	s.mu.Unlock()

	<-s.done
}
