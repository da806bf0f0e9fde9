// Package progress implements the per-session progress fan-out bus: a
// bounded, non-blocking publish/subscribe channel that lets HTTP handlers
// or CLI front ends observe a running pipeline without coupling them to
// the supervisor's internals. Events fan out per session over buffered
// channels drained by long-lived consumer loops.
package progress

import (
	"sync"
	"time"
)

// EventType enumerates the kinds of events the bus carries.
type EventType string

const (
	EventWorkflowStarted  EventType = "workflow_started"
	EventAgentStarted     EventType = "agent_started"
	EventAgentProgress    EventType = "agent_progress"
	EventAgentCompleted   EventType = "agent_completed"
	EventDivergenceAlert  EventType = "divergence_alert"
	EventDivergenceClear  EventType = "divergence_clear"
	EventWorkflowComplete EventType = "workflow_complete"
	EventWorkflowError    EventType = "workflow_error"
	EventPing             EventType = "ping"
	EventLagged           EventType = "lagged"
)

// Event is one envelope published on the bus. Payload carries event-type
// specific data (e.g. a stage name, a divergence score, an error message);
// callers type-assert it the way sse.Message callers decode Data.
type Event struct {
	SessionID string
	Type      EventType
	Stage     string
	Payload   any
	Seq       uint64
}

const (
	// bufferSize bounds each subscriber's channel.
	bufferSize = 128
	// keepalive is how often a ping is sent to every subscriber so
	// intermediary proxies / browsers don't time out the connection.
	keepalive = 15 * time.Second
)

type subscriber struct {
	ch     chan Event
	done   chan struct{}
	lagged uint64
	closed bool
}

// Bus fans out events published for a session to every subscriber
// registered for that session. A Bus with no subscribers for a session
// silently drops events published to it (publishing is fire-and-forget;
// callers do not block on whether anyone is listening).
type Bus struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
	seq  map[string]*uint64
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[string]map[*subscriber]struct{}),
		seq:  make(map[string]*uint64),
	}
}

// Subscribe registers a new listener for sessionID and returns a channel
// of events plus an unsubscribe function the caller must call when done
// (typically via defer). The returned channel is closed by unsubscribe
// or, for every subscriber of the session, by Close.
func (b *Bus) Subscribe(sessionID string) (<-chan Event, func()) {
	s := &subscriber{
		ch:   make(chan Event, bufferSize),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[*subscriber]struct{})
	}
	b.subs[sessionID][s] = struct{}{}
	b.mu.Unlock()

	go b.keepaliveLoop(sessionID, s)

	// unsubscribe is idempotent and safe to call after the bus has
	// already closed the session server-side.
	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if s.closed {
			return
		}
		s.closed = true
		close(s.done)
		delete(b.subs[sessionID], s)
		if len(b.subs[sessionID]) == 0 {
			delete(b.subs, sessionID)
		}
		close(s.ch)
	}
	return s.ch, unsubscribe
}

func (b *Bus) keepaliveLoop(sessionID string, s *subscriber) {
	t := time.NewTicker(keepalive)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			b.deliver(s, Event{SessionID: sessionID, Type: EventPing})
		}
	}
}

// Publish delivers evt to every current subscriber of evt.SessionID in
// FIFO order relative to every other Publish call for the same session.
// Each
// subscriber has an independently bounded buffer; a slow subscriber that
// falls behind has its oldest buffered events (up to two) dropped to make
// room rather than blocking the publisher, and the new event is preceded
// by a synthetic EventLagged carrying the drop count.
func (b *Bus) Publish(sessionID string, evt Event) {
	evt.SessionID = sessionID

	b.mu.Lock()
	seqPtr, ok := b.seq[sessionID]
	if !ok {
		var z uint64
		seqPtr = &z
		b.seq[sessionID] = seqPtr
	}
	*seqPtr++
	evt.Seq = *seqPtr
	subs := make([]*subscriber, 0, len(b.subs[sessionID]))
	for s := range b.subs[sessionID] {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s, evt)
	}
}

// deliver sends evt to s without ever blocking. When the buffer is full
// it drops the two oldest buffered events to make room for a lagged
// marker followed by evt, so a slow subscriber keeps receiving fresh
// events and learns how many it missed. It holds the bus mutex for the
// whole operation so it can never race with unsubscribe/Close closing
// s.ch out from under it.
func (b *Bus) deliver(s *subscriber, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- evt:
		return
	default:
	}
	for range 2 {
		select {
		case old := <-s.ch:
			if old.Type != EventLagged {
				s.lagged++
			}
		default:
		}
	}
	select {
	case s.ch <- Event{SessionID: evt.SessionID, Type: EventLagged, Payload: s.lagged}:
	default:
	}
	select {
	case s.ch <- evt:
	default:
	}
}

// Close removes every subscriber for sessionID, e.g. once a pipeline run
// has terminated and no further events will be published for it.
func (b *Bus) Close(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[sessionID]
	delete(b.subs, sessionID)
	delete(b.seq, sessionID)
	for s := range subs {
		if s.closed {
			continue
		}
		s.closed = true
		close(s.done)
		close(s.ch)
	}
}
