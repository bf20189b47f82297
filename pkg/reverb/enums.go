package reverb

// OpType is the top-level discriminator of every gateway frame.
type OpType string

const (
	OpReady        OpType = "ready"
	OpPlayerUpdate OpType = "playerUpdate"
	OpStats        OpType = "stats"
	OpEvent        OpType = "event"
)

// ParseOpType maps a wire op to its tag. Unknown ops report false.
func ParseOpType(s string) (OpType, bool) {
	switch op := OpType(s); op {
	case OpReady, OpPlayerUpdate, OpStats, OpEvent:
		return op, true
	}
	return "", false
}

// EventType selects the variant of an "event" op frame.
type EventType string

const (
	EventTrackStart      EventType = "TrackStartEvent"
	EventTrackEnd        EventType = "TrackEndEvent"
	EventTrackStuck      EventType = "TrackStuckEvent"
	EventTrackException  EventType = "TrackExceptionEvent"
	EventWebSocketClosed EventType = "WebSocketClosedEvent"
)

// ParseEventType maps a wire event name to its tag. Unknown names report false.
func ParseEventType(s string) (EventType, bool) {
	switch et := EventType(s); et {
	case EventTrackStart, EventTrackEnd, EventTrackStuck, EventTrackException, EventWebSocketClosed:
		return et, true
	}
	return "", false
}

// TrackEndReason explains why a track stopped playing.
type TrackEndReason string

const (
	TrackEndFinished   TrackEndReason = "FINISHED"
	TrackEndLoadFailed TrackEndReason = "LOAD_FAILED"
	TrackEndStopped    TrackEndReason = "STOPPED"
	TrackEndReplaced   TrackEndReason = "REPLACED"
	TrackEndCleanup    TrackEndReason = "CLEANUP"
)

func ParseTrackEndReason(s string) (TrackEndReason, bool) {
	switch r := TrackEndReason(s); r {
	case TrackEndFinished, TrackEndLoadFailed, TrackEndStopped, TrackEndReplaced, TrackEndCleanup:
		return r, true
	}
	return "", false
}

// MayStartNext reports whether the host should start the next queued track.
func (r TrackEndReason) MayStartNext() bool {
	return r == TrackEndFinished || r == TrackEndLoadFailed
}

// ExceptionSeverity classifies a TrackException.
type ExceptionSeverity string

const (
	SeverityCommon     ExceptionSeverity = "COMMON"
	SeveritySuspicious ExceptionSeverity = "SUSPICIOUS"
	SeverityFatal      ExceptionSeverity = "FATAL"
)

func ParseExceptionSeverity(s string) (ExceptionSeverity, bool) {
	switch sev := ExceptionSeverity(s); sev {
	case SeverityCommon, SeveritySuspicious, SeverityFatal:
		return sev, true
	}
	return "", false
}

// ConnectionState tracks the gateway lifecycle.
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
	Closed       ConnectionState = "closed"
	ErrorState   ConnectionState = "error"
)
