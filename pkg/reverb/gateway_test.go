package reverb

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAppID = 964195658468835358

// fakeNode is an in-process Lavalink stand-in: /version over HTTP and the
// event gateway over WebSocket.
type fakeNode struct {
	t        *testing.T
	server   *httptest.Server
	password string
	version  string

	// frames are written to every gateway connection after the upgrade.
	frames []string
	// hold keeps the connection open after frames are written, until the
	// client closes it.
	hold bool

	mu        sync.Mutex
	headers   []http.Header
	handshake atomic.Int32
	closeCode atomic.Int32
}

func newFakeNode(t *testing.T, frames ...string) *fakeNode {
	t.Helper()
	n := &fakeNode{t: t, password: DefaultPassword, version: "3.7.8", frames: frames, hold: true}
	mux := http.NewServeMux()
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != n.password {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(n.version))
	})
	mux.HandleFunc("/v3/websocket", n.serveGateway)
	n.server = httptest.NewServer(mux)
	t.Cleanup(n.server.Close)
	return n
}

func (n *fakeNode) serveGateway(w http.ResponseWriter, r *http.Request) {
	n.handshake.Add(1)
	n.mu.Lock()
	n.headers = append(n.headers, r.Header.Clone())
	n.mu.Unlock()

	if r.Header.Get("Authorization") != n.password {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close()

	for _, f := range n.frames {
		if err := c.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			return
		}
	}

	if !n.hold {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		// Wait for the client's close reply.
		_, _, _ = c.ReadMessage()
		return
	}

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				n.closeCode.Store(int32(ce.Code))
			}
			return
		}
	}
}

func (n *fakeNode) config() *Config {
	u, err := url.Parse(n.server.URL)
	require.NoError(n.t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(n.t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(n.t, err)

	return &Config{
		Host:             host,
		Port:             port,
		Password:         DefaultPassword,
		ApplicationID:    testAppID,
		APIVersion:       DefaultAPIVersion,
		ClientName:       "reverb/" + Version,
		ConnectAttempts:  1,
		RetryMaxDelay:    10 * time.Millisecond,
		HandshakeTimeout: 2 * time.Second,
		RequestTimeout:   2 * time.Second,
		DebugLevel:       "INFO",
	}
}

func (n *fakeNode) Headers() []http.Header {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]http.Header(nil), n.headers...)
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dispatch loop to exit")
	}
}

func TestGatewayHandshakeHeaders(t *testing.T) {
	node := newFakeNode(t)
	g := NewGateway(node.config(), &recordingBot{}, WithLogger(NopLogger()))

	require.NoError(t, g.Connect(context.Background()))
	defer g.Close()

	headers := node.Headers()
	require.Len(t, headers, 1)
	assert.Equal(t, DefaultPassword, headers[0].Get("Authorization"))
	assert.Equal(t, "964195658468835358", headers[0].Get("User-Id"))
	assert.Equal(t, "reverb/"+Version, headers[0].Get("Client-Name"))
	assert.True(t, g.IsConnected())
	assert.NotEmpty(t, g.ConnectionID())

	addr, err := g.RemoteAddr()
	require.NoError(t, err)
	assert.NotNil(t, addr)
}

func TestGatewayDispatchesFramesInOrder(t *testing.T) {
	node := newFakeNode(t, readyFrame, statsNoFrames, playerUpdateFrame, trackEndFrame)
	node.hold = false
	bot := &recordingBot{}
	g := NewGateway(node.config(), bot, WithLogger(NopLogger()))

	require.NoError(t, g.Connect(context.Background()))
	waitDone(t, g.Done())

	require.NoError(t, g.Err())
	assert.Equal(t, Closed, g.State())

	events := bot.Events()
	require.Len(t, events, 4)
	assert.IsType(t, ReadyEvent{}, events[0])
	assert.IsType(t, StatsEvent{}, events[1])
	assert.IsType(t, PlayerUpdateEvent{}, events[2])
	assert.IsType(t, TrackEndEvent{}, events[3])
}

func TestGatewayAuthFailureIsNotRetried(t *testing.T) {
	node := newFakeNode(t)
	cfg := node.config()
	cfg.Password = "wrong"
	cfg.ConnectAttempts = 3
	g := NewGateway(cfg, nil, WithLogger(NopLogger()))

	err := g.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, int32(1), node.handshake.Load())
	assert.Equal(t, ErrorState, g.State())

	rErr := err.(*Error)
	status, _ := rErr.GetDetail("status_code")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestGatewayHandshakeRetries(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	cfg := &Config{
		Host:             "127.0.0.1",
		Port:             port,
		Password:         DefaultPassword,
		ApplicationID:    testAppID,
		APIVersion:       DefaultAPIVersion,
		ConnectAttempts:  2,
		RetryMaxDelay:    5 * time.Millisecond,
		HandshakeTimeout: time.Second,
	}
	g := NewGateway(cfg, nil, WithLogger(NopLogger()))

	err = g.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshake)
	endpoint, _ := err.(*Error).GetDetail("url")
	assert.Contains(t, endpoint, "/v3/websocket")
}

func TestGatewayCloseIsIdempotent(t *testing.T) {
	node := newFakeNode(t, readyFrame)
	bot := &recordingBot{}
	g := NewGateway(node.config(), bot, WithLogger(NopLogger()))
	require.NoError(t, g.Connect(context.Background()))

	states := make(chan ConnectionState, 4)
	g.AddStateHandler(func(s ConnectionState) { states <- s })

	require.NoError(t, g.Close())
	require.NoError(t, g.Close())
	waitDone(t, g.Done())

	assert.Equal(t, Closed, g.State())
	assert.NoError(t, g.Err())
	select {
	case s := <-states:
		assert.Equal(t, Closed, s)
	case <-time.After(time.Second):
		t.Fatal("state handler not called")
	}

	require.Eventually(t, func() bool {
		return node.closeCode.Load() == websocket.CloseNormalClosure
	}, 2*time.Second, 10*time.Millisecond)

	_, err := g.RemoteAddr()
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestGatewayCloseFromDispatch(t *testing.T) {
	node := newFakeNode(t, readyFrame, trackEndFrame)

	var g *Gateway
	returned := make(chan struct{})
	bot := DispatchFunc(func(ev Event) {
		if _, ok := ev.(ReadyEvent); !ok {
			return
		}
		assert.NoError(t, g.Close())
		assert.NoError(t, g.Close())
		close(returned)
	})
	g = NewGateway(node.config(), bot, WithLogger(NopLogger()))
	require.NoError(t, g.Connect(context.Background()))

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("Close called from a handler did not return")
	}
	waitDone(t, g.Done())
	assert.Equal(t, Closed, g.State())
	assert.NoError(t, g.Err())
}

func TestGatewayStateHandlersSeeTransitionsInOrder(t *testing.T) {
	for i := 0; i < 20; i++ {
		node := newFakeNode(t, readyFrame)
		g := NewGateway(node.config(), &recordingBot{}, WithLogger(NopLogger()))

		var (
			mu  sync.Mutex
			log []string
		)
		record := func(name string) StateHandler {
			return func(s ConnectionState) {
				mu.Lock()
				log = append(log, name+":"+string(s))
				mu.Unlock()
			}
		}
		g.AddStateHandler(record("a"))
		remove := g.AddStateHandler(record("removed"))
		g.AddStateHandler(record("b"))
		remove()

		require.NoError(t, g.Connect(context.Background()))
		require.NoError(t, g.Close())
		waitDone(t, g.Done())

		mu.Lock()
		assert.Equal(t, []string{
			"a:" + string(Connecting), "b:" + string(Connecting),
			"a:" + string(Connected), "b:" + string(Connected),
			"a:" + string(Closed), "b:" + string(Closed),
		}, log, "iteration %d", i)
		mu.Unlock()
	}
}

func TestGatewayStateHandlerSeesFailedConnect(t *testing.T) {
	node := newFakeNode(t)
	cfg := node.config()
	cfg.Password = "wrong"
	g := NewGateway(cfg, nil, WithLogger(NopLogger()))

	var states []ConnectionState
	g.AddStateHandler(func(s ConnectionState) { states = append(states, s) })

	require.Error(t, g.Connect(context.Background()))
	assert.Equal(t, []ConnectionState{Connecting, ErrorState}, states)
}

func TestGatewayCloseBeforeConnect(t *testing.T) {
	g := NewGateway(nil, nil, WithLogger(NopLogger()))
	require.NoError(t, g.Close())
	waitDone(t, g.Done())

	err := g.Connect(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshake)
}

func TestGatewayConnectTwice(t *testing.T) {
	node := newFakeNode(t)
	g := NewGateway(node.config(), nil, WithLogger(NopLogger()))
	require.NoError(t, g.Connect(context.Background()))
	defer g.Close()

	err := g.Connect(context.Background())
	require.Error(t, err)
	state, _ := err.(*Error).GetDetail("state")
	assert.Equal(t, string(Connected), state)
}

func TestGatewayURL(t *testing.T) {
	cfg := &Config{Host: "node.example", Port: 2333, APIVersion: 3}
	u, err := cfg.GatewayURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://node.example:2333/v3/websocket", u)

	cfg.Host = "https://node.example"
	u, err = cfg.GatewayURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://node.example:2333/v3/websocket", u)

	cfg.Host = "node.example"
	cfg.Secure = true
	u, err = cfg.RESTURL()
	require.NoError(t, err)
	assert.Equal(t, "https://node.example:2333", u)
}
