// Package eventstore implements the kernel's append-only, hash-chained event
// log: the canonical source of truth every other component derives its view
// from. Nothing in this package imports taskqueue, contextmgr, verifier, or
// governor; snapshot inputs arrive as already-built core types so the store
// stays a leaf dependency for everything above it, mirroring runlog.Store's
// role in the teacher's runtime.
package eventstore

import (
	"context"
	"sync"
	"time"

	"github.com/goadesign/agent-kernel/internal/core"
	"github.com/goadesign/agent-kernel/internal/kernelerrors"
	"github.com/goadesign/agent-kernel/internal/telemetry"
)

type (
	// Subscriber reacts to appended events. HandleEvent must not block
	// indefinitely; the store invokes subscribers synchronously from
	// within Append. The order among subscribers is not defined.
	Subscriber interface {
		HandleEvent(ctx context.Context, event core.Event)
	}

	// SubscriberFunc adapts a plain function to the Subscriber interface.
	SubscriberFunc func(ctx context.Context, event core.Event)

	// Subscription represents an active registration. Close is idempotent.
	Subscription interface {
		Close()
	}

	subscription struct {
		store *Store
		once  sync.Once
	}

	// QueryOptions filters a Query call. A zero value matches every event.
	QueryOptions struct {
		Types  []core.EventType
		After  *time.Time
		Before *time.Time
		// Limit, when >0, returns at most Limit events, latest-first.
		Limit int
	}

	// Store is the append-only, hash-chained event log for a single run.
	Store struct {
		mu          sync.Mutex
		runID       string
		events      []core.Event
		snapshots   []core.Snapshot
		subscribers map[*subscription]Subscriber
		logger      telemetry.Logger
	}
)

// HandleEvent calls f.
func (f SubscriberFunc) HandleEvent(ctx context.Context, event core.Event) { f(ctx, event) }

// New constructs an empty event store for the given run.
func New(runID string, logger telemetry.Logger) *Store {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Store{
		runID:       runID,
		subscribers: make(map[*subscription]Subscriber),
		logger:      logger,
	}
}

// RunID returns the run this store belongs to.
func (s *Store) RunID() string {
	return s.runID
}

// Len returns the number of events currently in the log.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Subscribe registers sub to receive every subsequently appended event. The
// returned Subscription's Close unregisters it; Close is safe to call more
// than once.
func (s *Store) Subscribe(sub Subscriber) Subscription {
	sn := &subscription{store: s}
	s.mu.Lock()
	s.subscribers[sn] = sub
	s.mu.Unlock()
	return sn
}

func (sn *subscription) Close() {
	sn.once.Do(func() {
		sn.store.mu.Lock()
		delete(sn.store.subscribers, sn)
		sn.store.mu.Unlock()
	})
}

// Append assigns a sequence number and hash chain link to a new event of the
// given type and payload, stores it, and synchronously notifies every
// subscriber. Subscribers are kept in a map, so they are not notified in
// registration order; the order among them is not defined. A subscriber
// panic is recovered and
// replaced with an ERROR_RAISED event rather than propagating to the
// caller or halting delivery to the remaining subscribers.
func (s *Store) Append(ctx context.Context, typ core.EventType, payload map[string]any) core.Event {
	event := s.appendLocked(typ, payload)
	s.notify(ctx, event)
	return event
}

func (s *Store) appendLocked(typ core.EventType, payload map[string]any) core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := int64(len(s.events))
	prevHash := core.ChainSentinel
	if seq > 0 {
		prevHash = s.events[seq-1].HashSelf
	}
	event := core.Event{
		ID:             core.NewID(),
		RunID:          s.runID,
		Timestamp:      time.Now().UTC(),
		Type:           typ,
		Payload:        payload,
		HashPrev:       prevHash,
		SequenceNumber: seq,
	}
	event.HashSelf = computeHash(event)
	s.events = append(s.events, event)
	return event
}

func (s *Store) notify(ctx context.Context, event core.Event) {
	s.mu.Lock()
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		s.safeHandle(ctx, sub, event)
	}
}

func (s *Store) safeHandle(ctx context.Context, sub Subscriber, event core.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "event subscriber panicked", "event_type", event.Type, "recovered", r)
			kerr := kernelerrors.Newf(kernelerrors.KindSubscriberError, "subscriber panicked handling %s: %v", event.Type, r)
			errEvent := s.appendLocked(core.EventErrorRaised, kerr.Payload())
			s.notify(ctx, errEvent)
		}
	}()
	sub.HandleEvent(ctx, event)
}

// Query returns the events matching opts. With no Limit, results are
// returned oldest-first in storage order; with a positive Limit, results
// are latest-first and truncated to that many.
func (s *Store) Query(opts QueryOptions) []core.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	var typeSet map[core.EventType]struct{}
	if len(opts.Types) > 0 {
		typeSet = make(map[core.EventType]struct{}, len(opts.Types))
		for _, t := range opts.Types {
			typeSet[t] = struct{}{}
		}
	}

	matched := make([]core.Event, 0, len(s.events))
	for _, e := range s.events {
		if typeSet != nil {
			if _, ok := typeSet[e.Type]; !ok {
				continue
			}
		}
		if opts.After != nil && !e.Timestamp.After(*opts.After) {
			continue
		}
		if opts.Before != nil && !e.Timestamp.Before(*opts.Before) {
			continue
		}
		matched = append(matched, e)
	}

	if opts.Limit <= 0 {
		return matched
	}
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	if len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched
}
