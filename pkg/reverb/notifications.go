package reverb

// Notification is one decoded unit of server-pushed state. The set of
// implementations is closed: Ready, PlayerUpdate, Stats and the TrackEvent
// variants.
type Notification interface {
	Op() OpType
	notification()
}

// TrackEvent is a Notification delivered under the "event" op.
type TrackEvent interface {
	Notification
	EventType() EventType
	Guild() uint64
}

// Ready is sent once after the gateway handshake.
type Ready struct {
	Resumed   bool   `json:"resumed"`
	SessionID string `json:"sessionId"`
}

// PlayerState is the playback snapshot carried by PlayerUpdate.
type PlayerState struct {
	Time      int64  `json:"time"`
	Position  *int64 `json:"position,omitempty"`
	Connected bool   `json:"connected"`
	Ping      int64  `json:"ping"`
}

// PlayerUpdate is sent periodically for every active player.
type PlayerUpdate struct {
	GuildID uint64      `json:"guildId,string"`
	State   PlayerState `json:"state"`
}

type Memory struct {
	Used       int64 `json:"used"`
	Free       int64 `json:"free"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

type CPU struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

// FrameStats is only reported while at least one player is playing.
type FrameStats struct {
	Sent    int64 `json:"sent"`
	Nulled  int64 `json:"nulled"`
	Deficit int64 `json:"deficit"`
}

// Stats describes node load. FrameStats is nil when the node has nothing playing.
type Stats struct {
	Players        int         `json:"players"`
	PlayingPlayers int         `json:"playingPlayers"`
	Uptime         int64       `json:"uptime"`
	Memory         Memory      `json:"memory"`
	CPU            CPU         `json:"cpu"`
	FrameStats     *FrameStats `json:"frameStats,omitempty"`
}

type TrackStart struct {
	GuildID      uint64 `json:"guildId,string"`
	EncodedTrack string `json:"encodedTrack"`
}

type TrackEnd struct {
	GuildID      uint64         `json:"guildId,string"`
	EncodedTrack string         `json:"encodedTrack"`
	Reason       TrackEndReason `json:"reason"`
}

type TrackStuck struct {
	GuildID      uint64 `json:"guildId,string"`
	EncodedTrack string `json:"encodedTrack"`
	ThresholdMs  int64  `json:"thresholdMs"`
}

// TrackExceptionDetail is the error reported by a TrackException. Message is
// nil when the server had nothing to say beyond the cause.
type TrackExceptionDetail struct {
	Message  *string           `json:"message"`
	Cause    string            `json:"cause"`
	Severity ExceptionSeverity `json:"severity"`
}

type TrackException struct {
	GuildID      uint64               `json:"guildId,string"`
	EncodedTrack string               `json:"encodedTrack"`
	Exception    TrackExceptionDetail `json:"exception"`
}

// WebSocketClosed reports that the server's voice connection for a guild closed.
type WebSocketClosed struct {
	GuildID  uint64 `json:"guildId,string"`
	Code     int    `json:"code"`
	Reason   string `json:"reason"`
	ByRemote bool   `json:"byRemote"`
}

func (Ready) Op() OpType           { return OpReady }
func (PlayerUpdate) Op() OpType    { return OpPlayerUpdate }
func (Stats) Op() OpType           { return OpStats }
func (TrackStart) Op() OpType      { return OpEvent }
func (TrackEnd) Op() OpType        { return OpEvent }
func (TrackStuck) Op() OpType      { return OpEvent }
func (TrackException) Op() OpType  { return OpEvent }
func (WebSocketClosed) Op() OpType { return OpEvent }

func (Ready) notification()           {}
func (PlayerUpdate) notification()    {}
func (Stats) notification()           {}
func (TrackStart) notification()      {}
func (TrackEnd) notification()        {}
func (TrackStuck) notification()      {}
func (TrackException) notification()  {}
func (WebSocketClosed) notification() {}

func (TrackStart) EventType() EventType      { return EventTrackStart }
func (TrackEnd) EventType() EventType        { return EventTrackEnd }
func (TrackStuck) EventType() EventType      { return EventTrackStuck }
func (TrackException) EventType() EventType  { return EventTrackException }
func (WebSocketClosed) EventType() EventType { return EventWebSocketClosed }

func (e TrackStart) Guild() uint64      { return e.GuildID }
func (e TrackEnd) Guild() uint64        { return e.GuildID }
func (e TrackStuck) Guild() uint64      { return e.GuildID }
func (e TrackException) Guild() uint64  { return e.GuildID }
func (e WebSocketClosed) Guild() uint64 { return e.GuildID }
