package reverb

import (
	"sort"
	"sync"
)

// PlayerStatus is what a PlayerTracker knows about one guild's player.
type PlayerStatus struct {
	GuildID       uint64
	State         PlayerState
	EncodedTrack  string
	Playing       bool
	LastEndReason TrackEndReason
	Stuck         int
	Exceptions    int
}

// PlayerTracker follows per-guild player state from the event stream. It
// keeps only the latest value per guild, not a history.
type PlayerTracker struct {
	mu        sync.Mutex
	players   map[uint64]*PlayerStatus
	lastStats *Stats
	sessionID string
}

func NewPlayerTracker() *PlayerTracker {
	return &PlayerTracker{players: make(map[uint64]*PlayerStatus)}
}

// Attach registers the tracker on r and returns a function that detaches it.
func (pt *PlayerTracker) Attach(r *EventRouter) func() {
	return r.AddHandler(pt.Handle)
}

// Handle is an EventHandler.
func (pt *PlayerTracker) Handle(ev Event) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	switch n := ev.Notification().(type) {
	case Ready:
		pt.sessionID = n.SessionID
		if !n.Resumed {
			pt.players = make(map[uint64]*PlayerStatus)
		}
	case Stats:
		stats := n
		pt.lastStats = &stats
	case PlayerUpdate:
		pt.player(n.GuildID).State = n.State
	case TrackStart:
		p := pt.player(n.GuildID)
		p.EncodedTrack = n.EncodedTrack
		p.Playing = true
	case TrackEnd:
		p := pt.player(n.GuildID)
		p.Playing = false
		p.LastEndReason = n.Reason
	case TrackStuck:
		pt.player(n.GuildID).Stuck++
	case TrackException:
		pt.player(n.GuildID).Exceptions++
	case WebSocketClosed:
		delete(pt.players, n.GuildID)
	}
}

// player must be called with mu held.
func (pt *PlayerTracker) player(guildID uint64) *PlayerStatus {
	p, ok := pt.players[guildID]
	if !ok {
		p = &PlayerStatus{GuildID: guildID}
		pt.players[guildID] = p
	}
	return p
}

func (pt *PlayerTracker) Player(guildID uint64) (PlayerStatus, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	p, ok := pt.players[guildID]
	if !ok {
		return PlayerStatus{}, false
	}
	return *p, true
}

// Players returns a copy of every tracked player, ordered by guild id.
func (pt *PlayerTracker) Players() []PlayerStatus {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	out := make([]PlayerStatus, 0, len(pt.players))
	for _, p := range pt.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}

func (pt *PlayerTracker) LastStats() (Stats, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pt.lastStats == nil {
		return Stats{}, false
	}
	return *pt.lastStats, true
}

func (pt *PlayerTracker) SessionID() string {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.sessionID
}

func (pt *PlayerTracker) Clear() {
	pt.mu.Lock()
	pt.players = make(map[uint64]*PlayerStatus)
	pt.lastStats = nil
	pt.sessionID = ""
	pt.mu.Unlock()
}
