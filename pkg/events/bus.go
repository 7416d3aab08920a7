// Package events is the publish/subscribe channel between the application
// facade and its observers. The editing core never publishes; the facade turns
// successful operations into events.
package events

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type identifies what changed
type Type string

const (
	CursorUpdate              Type = "cursor_update"
	MainImageDimensionsChange Type = "main_image_dimensions_change"
	SegmentationChange        Type = "segmentation_change"
	DisplayMappingChange      Type = "display_mapping_change"
	UndoHistoryChange         Type = "undo_history_change"
	ModeChange                Type = "mode_change"
)

// Event is one published notification
type Event struct {
	ID        string
	Type      Type
	Timestamp time.Time
	Data      any
}

// Handler receives events. Handlers run on the publishing goroutine.
type Handler func(event *Event)

type subscription struct {
	id      string
	seq     uint64
	handler Handler
	types   []Type
}

// Bus delivers events to subscribers in subscription order. It is safe for
// concurrent use.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	seq    uint64
	log    *zap.Logger
	recent []Event
	keep   int
}

// Option configures a Bus
type Option func(*Bus)

// WithLogger sets the logger used to report panicking handlers
func WithLogger(log *zap.Logger) Option {
	return func(b *Bus) {
		if log != nil {
			b.log = log
		}
	}
}

// WithBufferSize sets how many recent events Recent returns
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		b.keep = n
	}
}

// NewBus creates a bus with no subscribers
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs: make(map[string]*subscription),
		log:  zap.NewNop(),
		keep: 100,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.Named("events")
	return b
}

// Subscribe registers handler for the given types, or for every type when none
// are given, and returns the subscription id.
func (b *Bus) Subscribe(handler Handler, types ...Type) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	sub := &subscription{
		id:      uuid.NewString(),
		seq:     b.seq,
		handler: handler,
		types:   types,
	}
	b.subs[sub.id] = sub
	return sub.id
}

// Unsubscribe removes a subscription and reports whether it existed
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return false
	}
	delete(b.subs, id)
	return true
}

// Publish delivers an event to every matching subscriber. A panicking handler
// is logged and does not stop delivery to the others.
func (b *Bus) Publish(t Type, data any) {
	event := Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}

	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.wants(t) {
			subs = append(subs, sub)
		}
	}
	if b.keep > 0 {
		if len(b.recent) >= b.keep {
			b.recent = b.recent[1:]
		}
		b.recent = append(b.recent, event)
	}
	b.mu.Unlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })
	for _, sub := range subs {
		b.invoke(sub, &event)
	}
}

// Recent returns the most recently published events, oldest first
func (b *Bus) Recent() []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Event(nil), b.recent...)
}

func (b *Bus) invoke(sub *subscription, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				zap.String("event_type", string(event.Type)),
				zap.String("subscription", sub.id),
				zap.Any("panic", r))
		}
	}()
	sub.handler(event)
}

func (s *subscription) wants(t Type) bool {
	if len(s.types) == 0 {
		return true
	}
	for _, want := range s.types {
		if want == t {
			return true
		}
	}
	return false
}
