package reverb

import (
	"sync"
)

// EventHandler receives one event. Handlers run on the dispatch goroutine and
// block the next frame until they return.
type EventHandler func(Event)

type registeredHandler struct {
	id      int
	handler EventHandler
}

// EventRouter is a Bot that fans each event out to registered handlers, in
// registration order.
type EventRouter struct {
	mu       sync.RWMutex
	handlers []registeredHandler
	nextID   int
}

func NewEventRouter() *EventRouter {
	return &EventRouter{}
}

// Dispatch implements Bot.
func (r *EventRouter) Dispatch(ev Event) {
	r.mu.RLock()
	handlers := make([]EventHandler, len(r.handlers))
	for i, h := range r.handlers {
		handlers[i] = h.handler
	}
	r.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// AddHandler registers handler for every event and returns a function that
// removes it.
func (r *EventRouter) AddHandler(handler EventHandler) func() {
	if handler == nil {
		return func() {}
	}

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.handlers = append(r.handlers, registeredHandler{id: id, handler: handler})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, h := range r.handlers {
			if h.id == id {
				r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
				return
			}
		}
	}
}

// Len reports the number of registered handlers.
func (r *EventRouter) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

func on[T Event](r *EventRouter, fn func(T)) func() {
	return r.AddHandler(func(ev Event) {
		if typed, ok := ev.(T); ok {
			fn(typed)
		}
	})
}

func (r *EventRouter) OnReady(fn func(ReadyEvent)) func() {
	return on(r, fn)
}

func (r *EventRouter) OnPlayerUpdate(fn func(PlayerUpdateEvent)) func() {
	return on(r, fn)
}

func (r *EventRouter) OnStats(fn func(StatsEvent)) func() {
	return on(r, fn)
}

func (r *EventRouter) OnTrackStart(fn func(TrackStartEvent)) func() {
	return on(r, fn)
}

func (r *EventRouter) OnTrackEnd(fn func(TrackEndEvent)) func() {
	return on(r, fn)
}

func (r *EventRouter) OnTrackStuck(fn func(TrackStuckEvent)) func() {
	return on(r, fn)
}

func (r *EventRouter) OnTrackException(fn func(TrackExceptionEvent)) func() {
	return on(r, fn)
}

func (r *EventRouter) OnWebSocketClosed(fn func(WebSocketClosedEvent)) func() {
	return on(r, fn)
}

// Factory functions for common handlers

// CreateLoggingHandler logs every event at info level. verbose adds the full
// notification as a field.
func CreateLoggingHandler(logger *Logger, verbose bool) EventHandler {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	logger = logger.WithComponent("events")
	return func(ev Event) {
		l := logger.WithField("event", EventName(ev))
		if guild, ok := GuildOf(ev.Notification()); ok {
			l = l.WithField("guild_id", guild)
		}
		if verbose {
			l.WithField("data", ev.Notification()).Info("Event received")
			return
		}
		l.Info("Event received")
	}
}

// CreateEventFilter passes through only events whose EventName is in names.
func CreateEventFilter(handler EventHandler, names ...string) EventHandler {
	allowed := make(map[string]struct{}, len(names))
	for _, n := range names {
		allowed[n] = struct{}{}
	}
	return func(ev Event) {
		if _, ok := allowed[EventName(ev)]; ok {
			handler(ev)
		}
	}
}

// CreateGuildFilter passes through only events for guildID. Stats and Ready
// carry no guild and are dropped.
func CreateGuildFilter(guildID uint64, handler EventHandler) EventHandler {
	return func(ev Event) {
		if guild, ok := GuildOf(ev.Notification()); ok && guild == guildID {
			handler(ev)
		}
	}
}

func CreateConditionalHandler(condition func(Event) bool, handler EventHandler) EventHandler {
	return func(ev Event) {
		if condition(ev) {
			handler(ev)
		}
	}
}

// CreateBufferedHandler hands events to handler on its own goroutine so a slow
// consumer does not hold up the gateway. Events are dropped when the buffer is
// full. A bufferSize below 1 is raised to 1. stop rejects further events and
// waits for queued ones to be handled.
func CreateBufferedHandler(bufferSize int, handler EventHandler, logger *Logger) (EventHandler, func()) {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	if bufferSize < 1 {
		bufferSize = 1
	}
	events := make(chan Event, bufferSize)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for ev := range events {
			handler(ev)
		}
	}()

	var (
		mu      sync.Mutex
		stopped bool
	)
	push := func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		if stopped {
			return
		}
		select {
		case events <- ev:
		default:
			logger.WithField("event", EventName(ev)).Warn("Event buffer full, dropping event")
		}
	}
	stop := func() {
		mu.Lock()
		if !stopped {
			stopped = true
			close(events)
		}
		mu.Unlock()
		<-done
	}
	return push, stop
}

// SequentialHandlers runs handlers one after another on the calling goroutine.
func SequentialHandlers(handlers ...EventHandler) EventHandler {
	return func(ev Event) {
		for _, h := range handlers {
			if h != nil {
				h(ev)
			}
		}
	}
}

// GuildOf returns the guild a notification is about, if any.
func GuildOf(n Notification) (uint64, bool) {
	switch v := n.(type) {
	case PlayerUpdate:
		return v.GuildID, true
	case TrackEvent:
		return v.Guild(), true
	}
	return 0, false
}
