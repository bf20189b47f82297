package reverb

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterRunsHandlersInOrder(t *testing.T) {
	router := NewEventRouter()
	var calls []string
	router.AddHandler(func(Event) { calls = append(calls, "first") })
	router.AddHandler(func(Event) { calls = append(calls, "second") })
	router.AddHandler(nil)

	router.Dispatch(NewEvent(router, Ready{}))
	assert.Equal(t, []string{"first", "second"}, calls)
	assert.Equal(t, 2, router.Len())
}

func TestRouterUnsubscribe(t *testing.T) {
	router := NewEventRouter()
	var first, second int
	removeFirst := router.AddHandler(func(Event) { first++ })
	router.AddHandler(func(Event) { second++ })

	router.Dispatch(NewEvent(router, Ready{}))
	removeFirst()
	removeFirst()
	router.Dispatch(NewEvent(router, Ready{}))

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, 1, router.Len())
}

func TestRouterHandlerMayUnsubscribeItself(t *testing.T) {
	router := NewEventRouter()
	calls := 0
	var remove func()
	remove = router.AddHandler(func(Event) {
		calls++
		remove()
	})

	router.Dispatch(NewEvent(router, Ready{}))
	router.Dispatch(NewEvent(router, Ready{}))
	assert.Equal(t, 1, calls)
}

func TestRouterTypedHandlers(t *testing.T) {
	router := NewEventRouter()
	var got []string
	router.OnReady(func(ReadyEvent) { got = append(got, "ready") })
	router.OnPlayerUpdate(func(PlayerUpdateEvent) { got = append(got, "playerUpdate") })
	router.OnStats(func(StatsEvent) { got = append(got, "stats") })
	router.OnTrackStart(func(TrackStartEvent) { got = append(got, "start") })
	router.OnTrackEnd(func(ev TrackEndEvent) { got = append(got, "end:"+string(ev.Data.Reason)) })
	router.OnTrackStuck(func(TrackStuckEvent) { got = append(got, "stuck") })
	router.OnTrackException(func(TrackExceptionEvent) { got = append(got, "exception") })
	router.OnWebSocketClosed(func(WebSocketClosedEvent) { got = append(got, "closed") })

	for _, n := range []Notification{
		Ready{}, PlayerUpdate{}, Stats{}, TrackStart{}, TrackEnd{Reason: TrackEndReplaced},
		TrackStuck{}, TrackException{}, WebSocketClosed{},
	} {
		router.Dispatch(NewEvent(router, n))
	}

	assert.Equal(t, []string{
		"ready", "playerUpdate", "stats", "start", "end:REPLACED", "stuck", "exception", "closed",
	}, got)
}

func TestEventFilterAndGuildFilter(t *testing.T) {
	var names []string
	record := func(ev Event) { names = append(names, EventName(ev)) }

	byName := CreateEventFilter(record, "TrackEndEvent", "stats")
	byGuild := CreateGuildFilter(7, record)
	conditional := CreateConditionalHandler(func(ev Event) bool {
		_, ok := ev.(TrackStuckEvent)
		return ok
	}, record)
	handler := SequentialHandlers(byName, byGuild, conditional, nil)

	for _, n := range []Notification{
		Stats{},
		TrackEnd{GuildID: 7},
		TrackStart{GuildID: 8},
		TrackStuck{GuildID: 8},
		PlayerUpdate{GuildID: 7},
		Ready{},
	} {
		handler(NewEvent(nil, n))
	}

	assert.Equal(t, []string{"stats", "TrackEndEvent", "TrackEndEvent", "TrackStuckEvent", "playerUpdate"}, names)
}

func TestBufferedHandler(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	release := make(chan struct{})
	push, stop := CreateBufferedHandler(1, func(ev Event) {
		<-release
		mu.Lock()
		seen = append(seen, EventName(ev))
		mu.Unlock()
	}, NopLogger())

	push(NewEvent(nil, Ready{}))
	// The worker may or may not have taken the first event yet; either way
	// at most one more fits, so pushing several must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			push(NewEvent(nil, Stats{}))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("push blocked on a full buffer")
	}

	close(release)
	stop()
	push(NewEvent(nil, Ready{}))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, "ready", seen[0])
	assert.LessOrEqual(t, len(seen), 3)
}

func TestLoggingHandlerDoesNotPanic(t *testing.T) {
	h := CreateLoggingHandler(NopLogger(), true)
	h(NewEvent(nil, TrackEnd{GuildID: 1, Reason: TrackEndFinished}))
	h(NewEvent(nil, Stats{}))
}

func TestGuildOf(t *testing.T) {
	guild, ok := GuildOf(WebSocketClosed{GuildID: 9})
	assert.True(t, ok)
	assert.Equal(t, uint64(9), guild)

	_, ok = GuildOf(Ready{})
	assert.False(t, ok)
}

func TestBufferedHandlerClampsSize(t *testing.T) {
	for _, size := range []int{-3, 0} {
		var got []string
		var mu sync.Mutex
		push, stop := CreateBufferedHandler(size, func(ev Event) {
			mu.Lock()
			got = append(got, EventName(ev))
			mu.Unlock()
		}, NopLogger())

		// A one-slot buffer always accepts an event once the previous one
		// has been handled.
		push(NewEvent(nil, Ready{}))
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(got) == 1
		}, 2*time.Second, 5*time.Millisecond)
		push(NewEvent(nil, Stats{}))
		stop()

		mu.Lock()
		assert.Equal(t, []string{"ready", "stats"}, got, "size %d", size)
		mu.Unlock()
	}
}
