package reverb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlayerTracker(t *testing.T) {
	router := NewEventRouter()
	tracker := NewPlayerTracker()
	detach := tracker.Attach(router)

	pos := int64(1000)
	for _, n := range []Notification{
		Ready{SessionID: "abc"},
		TrackStart{GuildID: 2, EncodedTrack: "t2"},
		TrackStart{GuildID: 1, EncodedTrack: "t1"},
		PlayerUpdate{GuildID: 1, State: PlayerState{Time: 5, Position: &pos, Connected: true, Ping: 20}},
		TrackStuck{GuildID: 1},
		TrackException{GuildID: 1},
		TrackEnd{GuildID: 2, Reason: TrackEndStopped},
		Stats{Players: 2, PlayingPlayers: 1},
	} {
		router.Dispatch(NewEvent(router, n))
	}

	assert.Equal(t, "abc", tracker.SessionID())

	p1, ok := tracker.Player(1)
	require.True(t, ok)
	assert.True(t, p1.Playing)
	assert.Equal(t, "t1", p1.EncodedTrack)
	assert.Equal(t, int64(20), p1.State.Ping)
	assert.Equal(t, 1, p1.Stuck)
	assert.Equal(t, 1, p1.Exceptions)

	p2, ok := tracker.Player(2)
	require.True(t, ok)
	assert.False(t, p2.Playing)
	assert.Equal(t, TrackEndStopped, p2.LastEndReason)

	players := tracker.Players()
	require.Len(t, players, 2)
	assert.Equal(t, uint64(1), players[0].GuildID)

	stats, ok := tracker.LastStats()
	require.True(t, ok)
	assert.Equal(t, 1, stats.PlayingPlayers)

	router.Dispatch(NewEvent(router, WebSocketClosed{GuildID: 2}))
	_, ok = tracker.Player(2)
	assert.False(t, ok)

	detach()
	router.Dispatch(NewEvent(router, TrackStart{GuildID: 3}))
	_, ok = tracker.Player(3)
	assert.False(t, ok)
}

func TestPlayerTrackerFreshSessionResets(t *testing.T) {
	tracker := NewPlayerTracker()
	tracker.Handle(NewEvent(nil, TrackStart{GuildID: 1}))

	tracker.Handle(NewEvent(nil, Ready{Resumed: true, SessionID: "s"}))
	_, ok := tracker.Player(1)
	assert.True(t, ok)

	tracker.Handle(NewEvent(nil, Ready{Resumed: false, SessionID: "t"}))
	_, ok = tracker.Player(1)
	assert.False(t, ok)

	tracker.Handle(NewEvent(nil, Stats{}))
	tracker.Clear()
	_, ok = tracker.LastStats()
	assert.False(t, ok)
	assert.Empty(t, tracker.SessionID())
}
