// Package eventbus is the per-room typed publish/subscribe fabric:
// priority-ordered fan-out, once-listeners, a composable middleware
// chain, a bounded history ring, and counters for observability. One bus
// exists per room and is never shared across rooms.
package eventbus

import (
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warlockgg/warlock-server/internal/events"
)

const DefaultHistorySize = 1000

// Event is one immutable occurrence on the bus.
type Event struct {
	Type      events.Type    `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	ID        string         `json:"eventId"`
	GameCode  string         `json:"gameCode"`
}

// Handler consumes an event. Returned errors are logged and never abort
// sibling handlers.
type Handler func(Event) error

// Middleware wraps emit. Call next to continue (possibly with a modified
// event); not calling next, or returning false, cancels the emit.
type Middleware func(e Event, next func(Event) bool) bool

// ListenerID identifies a registration for Off.
type ListenerID uint64

// SubscribeOptions tune a registration.
type SubscribeOptions struct {
	Once     bool
	Priority int
}

// Stats is a snapshot of bus counters.
type Stats struct {
	EventsEmitted   uint64
	EventsProcessed uint64
	EventsCancelled uint64
	HandlerErrors   uint64
	ListenerCount   int
	AvgProcessing   time.Duration
}

type listener struct {
	id       ListenerID
	handler  Handler
	once     bool
	priority int
	fired    bool
}

// Bus is the room-scoped event bus. Safe for concurrent use; the room
// actor is the primary writer but server timers may emit too.
type Bus struct {
	mu         sync.RWMutex
	gameCode   string
	logger     *zap.Logger
	listeners  map[events.Type][]*listener
	middleware []Middleware
	history    []Event
	maxHistory int
	nextID     ListenerID
	enabled    bool

	stats        Stats
	totalProcess time.Duration
}

// New creates a bus for one room. historySize <= 0 selects the default.
func New(gameCode string, historySize int, logger *zap.Logger) *Bus {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		gameCode:   gameCode,
		logger:     logger,
		listeners:  make(map[events.Type][]*listener),
		maxHistory: historySize,
		enabled:    true,
	}
}

// On registers a handler and returns its id for Off.
func (b *Bus) On(t events.Type, h Handler, opts ...SubscribeOptions) ListenerID {
	var o SubscribeOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	l := &listener{id: b.nextID, handler: h, once: o.Once, priority: o.Priority}
	b.listeners[t] = append(b.listeners[t], l)
	return l.id
}

// Once registers a handler removed after its first invocation.
func (b *Bus) Once(t events.Type, h Handler, opts ...SubscribeOptions) ListenerID {
	var o SubscribeOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	o.Once = true
	return b.On(t, h, o)
}

// Off removes a specific registration, reporting whether it was found.
func (b *Bus) Off(t events.Type, id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	ls := b.listeners[t]
	for i, l := range ls {
		if l.id == id {
			b.listeners[t] = append(ls[:i], ls[i+1:]...)
			if len(b.listeners[t]) == 0 {
				delete(b.listeners, t)
			}
			return true
		}
	}
	return false
}

// RemoveAllListeners clears one type's handlers, or every handler when no
// type is given.
func (b *Bus) RemoveAllListeners(types ...events.Type) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(types) == 0 {
		b.listeners = make(map[events.Type][]*listener)
		return
	}
	for _, t := range types {
		delete(b.listeners, t)
	}
}

// AddMiddleware appends to the chain; middleware run in registration
// order, outermost first.
func (b *Bus) AddMiddleware(m Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, m)
}

// EmitOptions tune one emit.
type EmitOptions struct {
	// Sync runs handlers sequentially in priority order instead of
	// fanning out over goroutines.
	Sync bool
}

// Emit publishes an event. It returns true iff middleware let the event
// through. Handler errors and panics are contained per handler.
func (b *Bus) Emit(t events.Type, payload map[string]any, opts ...EmitOptions) bool {
	var o EmitOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	b.mu.Lock()
	if !b.enabled {
		b.mu.Unlock()
		return false
	}
	b.stats.EventsEmitted++

	e := Event{
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		ID:        uuid.NewString(),
		GameCode:  b.gameCode,
	}

	// History is append-only within a round, FIFO-evicted at the cap.
	b.history = append(b.history, e)
	if len(b.history) > b.maxHistory {
		b.history = b.history[1:]
	}

	chain := make([]Middleware, len(b.middleware))
	copy(chain, b.middleware)
	b.mu.Unlock()

	final, ok := b.runChain(chain, e)
	if !ok {
		b.mu.Lock()
		b.stats.EventsCancelled++
		b.mu.Unlock()
		return false
	}

	start := time.Now()
	b.dispatch(final, o.Sync)

	elapsed := time.Since(start)
	b.mu.Lock()
	b.stats.EventsProcessed++
	b.totalProcess += elapsed
	b.stats.AvgProcessing = b.totalProcess / time.Duration(b.stats.EventsProcessed)
	b.mu.Unlock()
	return true
}

// runChain threads the event through the middleware. A middleware panic
// aborts the emit.
func (b *Bus) runChain(chain []Middleware, e Event) (final Event, ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			b.logger.Error("middleware panic",
				zap.String("game_code", b.gameCode),
				zap.String("event_type", string(e.Type)),
				zap.Any("panic", recovered),
				zap.ByteString("stack", debug.Stack()))
			ok = false
		}
	}()

	final = e
	var run func(i int, e Event) bool
	run = func(i int, e Event) bool {
		if i >= len(chain) {
			final = e
			return true
		}
		return chain[i](e, func(next Event) bool { return run(i+1, next) })
	}
	return final, run(0, e)
}

// dispatch invokes the handler set registered at emit time. Listeners
// added during fan-out do not see this event.
func (b *Bus) dispatch(e Event, synchronous bool) {
	b.mu.Lock()
	registered := b.listeners[e.Type]
	if len(registered) == 0 {
		b.mu.Unlock()
		return
	}
	snapshot := make([]*listener, len(registered))
	copy(snapshot, registered)
	// Stable: equal priorities keep registration order.
	sort.SliceStable(snapshot, func(i, j int) bool {
		return snapshot[i].priority > snapshot[j].priority
	})
	b.mu.Unlock()

	if synchronous {
		for _, l := range snapshot {
			b.invoke(l, e)
		}
	} else {
		var wg sync.WaitGroup
		for _, l := range snapshot {
			wg.Add(1)
			go func(l *listener) {
				defer wg.Done()
				b.invoke(l, e)
			}(l)
		}
		wg.Wait()
	}

	b.mu.Lock()
	for _, l := range snapshot {
		if l.once && l.fired {
			b.removeLocked(e.Type, l.id)
		}
	}
	b.mu.Unlock()
}

func (b *Bus) invoke(l *listener, e Event) {
	defer func() {
		if recovered := recover(); recovered != nil {
			b.mu.Lock()
			b.stats.HandlerErrors++
			b.mu.Unlock()
			b.logger.Error("handler panic",
				zap.String("game_code", b.gameCode),
				zap.String("event_type", string(e.Type)),
				zap.Any("panic", recovered),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	l.fired = true
	if err := l.handler(e); err != nil {
		b.mu.Lock()
		b.stats.HandlerErrors++
		b.mu.Unlock()
		b.logger.Warn("handler error",
			zap.String("game_code", b.gameCode),
			zap.String("event_type", string(e.Type)),
			zap.Error(err))
	}
}

func (b *Bus) removeLocked(t events.Type, id ListenerID) {
	ls := b.listeners[t]
	for i, l := range ls {
		if l.id == id {
			b.listeners[t] = append(ls[:i], ls[i+1:]...)
			if len(b.listeners[t]) == 0 {
				delete(b.listeners, t)
			}
			return
		}
	}
}

// GetStats returns a counter snapshot.
func (b *Bus) GetStats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.stats
	s.ListenerCount = b.listenerCountLocked()
	return s
}

// GetEventHistory returns the most recent events, newest last. limit <= 0
// returns the whole ring.
func (b *Bus) GetEventHistory(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// GetListenerCount returns the count for one type, or the total when no
// type is given.
func (b *Bus) GetListenerCount(types ...events.Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(types) == 0 {
		return b.listenerCountLocked()
	}
	return len(b.listeners[types[0]])
}

func (b *Bus) listenerCountLocked() int {
	total := 0
	for _, ls := range b.listeners {
		total += len(ls)
	}
	return total
}

// SetEnabled turns the bus on or off. A disabled bus drops emits and
// returns false.
func (b *Bus) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// Destroy disables the bus and drops listeners, middleware and history.
func (b *Bus) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = false
	b.listeners = make(map[events.Type][]*listener)
	b.middleware = nil
	b.history = nil
}
