package reverb

// Bot is the host application. The gateway hands every decoded event to
// Dispatch, one at a time, in the order the server sent them.
type Bot interface {
	Dispatch(event Event)
}

// DispatchFunc adapts a plain function to the Bot interface.
type DispatchFunc func(event Event)

func (f DispatchFunc) Dispatch(event Event) {
	f(event)
}

// Event is what the host receives: a decoded notification paired with the
// host application it was dispatched to.
type Event interface {
	App() Bot
	Notification() Notification
}

type baseEvent struct {
	app Bot
}

func (e baseEvent) App() Bot {
	return e.app
}

type ReadyEvent struct {
	baseEvent
	Data Ready
}

type PlayerUpdateEvent struct {
	baseEvent
	Data PlayerUpdate
}

type StatsEvent struct {
	baseEvent
	Data Stats
}

type TrackStartEvent struct {
	baseEvent
	Data TrackStart
}

type TrackEndEvent struct {
	baseEvent
	Data TrackEnd
}

type TrackStuckEvent struct {
	baseEvent
	Data TrackStuck
}

type TrackExceptionEvent struct {
	baseEvent
	Data TrackException
}

type WebSocketClosedEvent struct {
	baseEvent
	Data WebSocketClosed
}

func (e ReadyEvent) Notification() Notification           { return e.Data }
func (e PlayerUpdateEvent) Notification() Notification    { return e.Data }
func (e StatsEvent) Notification() Notification           { return e.Data }
func (e TrackStartEvent) Notification() Notification      { return e.Data }
func (e TrackEndEvent) Notification() Notification        { return e.Data }
func (e TrackStuckEvent) Notification() Notification      { return e.Data }
func (e TrackExceptionEvent) Notification() Notification  { return e.Data }
func (e WebSocketClosedEvent) Notification() Notification { return e.Data }

// NewEvent wraps n in the host event type for its variant.
func NewEvent(app Bot, n Notification) Event {
	base := baseEvent{app: app}
	switch data := n.(type) {
	case Ready:
		return ReadyEvent{base, data}
	case PlayerUpdate:
		return PlayerUpdateEvent{base, data}
	case Stats:
		return StatsEvent{base, data}
	case TrackStart:
		return TrackStartEvent{base, data}
	case TrackEnd:
		return TrackEndEvent{base, data}
	case TrackStuck:
		return TrackStuckEvent{base, data}
	case TrackException:
		return TrackExceptionEvent{base, data}
	case WebSocketClosed:
		return WebSocketClosedEvent{base, data}
	}
	// Notification is sealed; every implementation is listed above.
	panic("reverb: unhandled notification type")
}

// EventName returns a stable name for ev, used as a log field and routing key.
func EventName(ev Event) string {
	n := ev.Notification()
	if te, ok := n.(TrackEvent); ok {
		return string(te.EventType())
	}
	return string(n.Op())
}
