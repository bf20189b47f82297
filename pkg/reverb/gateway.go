package reverb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const closeWriteTimeout = time.Second

// Gateway owns the persistent WebSocket connection to the server and the
// goroutine that dispatches its frames to the Bot.
type Gateway struct {
	config        *Config
	bot           Bot
	dialer        *websocket.Dialer
	logger        *Logger
	onDecodeError DecodeErrorHandler

	mu            sync.Mutex
	conn          *websocket.Conn
	state         ConnectionState
	connID        string
	cancel        context.CancelFunc
	done          chan struct{}
	doneOnce      sync.Once
	err           error
	stateHandlers []registeredStateHandler
	nextHandlerID int

	// pending holds transitions not yet delivered; notifying is set while
	// one goroutine drains it.
	pending   []stateNotice
	notifying bool

	// dispatching is set while the dispatch goroutine is inside Bot.Dispatch.
	dispatching atomic.Bool
}

type registeredStateHandler struct {
	id      int
	handler StateHandler
}

type stateNotice struct {
	state    ConnectionState
	handlers []StateHandler
}

// StateHandler is notified of gateway state transitions.
type StateHandler func(ConnectionState)

type GatewayOption func(*Gateway)

// WithDialer replaces the default dialer, e.g. to set a proxy or TLS config.
func WithDialer(d *websocket.Dialer) GatewayOption {
	return func(g *Gateway) {
		if d != nil {
			g.dialer = d
		}
	}
}

func WithLogger(l *Logger) GatewayOption {
	return func(g *Gateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithDecodeErrorHandler registers a hook for frames that failed to decode.
func WithDecodeErrorHandler(h DecodeErrorHandler) GatewayOption {
	return func(g *Gateway) {
		g.onDecodeError = h
	}
}

func NewGateway(config *Config, bot Bot, opts ...GatewayOption) *Gateway {
	if config == nil {
		config = NewConfig()
	}
	g := &Gateway{
		config: config,
		bot:    bot,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		},
		logger: GetGlobalLogger(),
		state:  Disconnected,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.WithComponent("gateway")
	return g
}

// Headers are the handshake headers that authenticate this client.
func (g *Gateway) Headers() http.Header {
	h := make(http.Header)
	h.Set("Authorization", g.config.Password)
	h.Set("User-Id", strconv.FormatUint(g.config.ApplicationID, 10))
	h.Set("Client-Name", g.config.ClientName)
	return h
}

// Connect performs the handshake and starts dispatching in the background.
// It returns once the dispatch goroutine is started; it does not wait for the
// first notification. A Gateway connects at most once.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	if g.state != Disconnected && g.state != ErrorState {
		state := g.state
		g.mu.Unlock()
		return NewError(fmt.Sprintf("gateway is %s", state), ErrCodeHandshakeFailed).AddDetail("state", string(state))
	}
	g.setState(Connecting)
	g.mu.Unlock()
	g.notifyState()

	conn, err := g.dialWithRetry(ctx)
	if err != nil {
		g.mu.Lock()
		if g.state == Connecting {
			g.setState(ErrorState)
		}
		g.mu.Unlock()
		g.notifyState()
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	connID := uuid.NewString()

	g.mu.Lock()
	if g.state == Closed {
		g.mu.Unlock()
		cancel()
		_ = conn.Close()
		return NewHandshakeError("gateway closed during handshake", nil)
	}
	g.conn = conn
	g.connID = connID
	g.cancel = cancel
	g.setState(Connected)
	g.mu.Unlock()
	g.notifyState()

	logger := g.logger.WithField("connection_id", connID)
	logger.LogConnectionEvent("connected", Connected, map[string]interface{}{
		"remote": conn.RemoteAddr().String(),
	})

	d := &dispatcher{
		bot:           g.bot,
		logger:        logger,
		onDecodeError: g.onDecodeError,
		debug:         g.config.DebugGateway,
		busy:          &g.dispatching,
	}
	go g.listen(loopCtx, d, conn)
	return nil
}

func (g *Gateway) dialWithRetry(ctx context.Context) (*websocket.Conn, error) {
	attempts := g.config.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		conn    *websocket.Conn
		lastErr error
	)
	err := retry.Do(func() error {
		c, err := g.dial(ctx)
		if err != nil {
			lastErr = err
			if IsCriticalError(err) {
				return retry.Unrecoverable(err)
			}
			return err
		}
		conn = c
		return nil
	},
		retry.Context(ctx),
		//nolint:gosec // attempts is validated to be positive
		retry.Attempts(uint(attempts)),
		retry.DelayType(retry.FullJitterBackoffDelay),
		retry.MaxDelay(g.config.RetryMaxDelay),
		retry.OnRetry(func(n uint, err error) {
			g.logger.WithError(err).WithField("attempt", n+1).Warn("Gateway handshake failed, retrying")
		}),
	)
	if conn != nil {
		return conn, nil
	}
	if lastErr == nil {
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	var rErr *Error
	if errors.As(lastErr, &rErr) {
		return nil, rErr
	}
	return nil, NewHandshakeError("gateway handshake failed", lastErr)
}

func (g *Gateway) dial(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := g.config.GatewayURL()
	if err != nil {
		return nil, err
	}

	conn, resp, err := g.dialer.DialContext(ctx, endpoint, g.Headers())
	if err == nil {
		return conn, nil
	}

	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, NewAuthError(fmt.Sprintf("gateway rejected credentials (%d)", status), status).
			AddDetail("url", endpoint)
	}
	hErr := NewHandshakeError("dial gateway", err).AddDetail("url", endpoint)
	if status != 0 {
		hErr.AddDetail("status_code", status)
	}
	return nil, hErr
}

func (g *Gateway) listen(ctx context.Context, d *dispatcher, conn *websocket.Conn) {
	defer g.closeDone()

	err := d.run(ctx, conn)
	_ = conn.Close()

	g.mu.Lock()
	g.err = err
	g.conn = nil
	g.setState(Closed)
	g.mu.Unlock()
	g.notifyState()

	fields := map[string]interface{}{}
	if err != nil {
		fields["error"] = err.Error()
	}
	d.logger.LogConnectionEvent("closed", Closed, fields)
}

// Close sends a close frame, tears the connection down and waits for the
// dispatch goroutine to exit. It is safe to call more than once. While a
// Bot.Dispatch call is in progress Close does not wait, so a handler may call
// it; the loop exits once Dispatch returns and Done is closed.
func (g *Gateway) Close() error {
	g.mu.Lock()
	conn := g.conn
	cancel := g.cancel
	prev := g.state
	g.setState(Closed)
	g.mu.Unlock()
	g.notifyState()

	switch {
	case prev == Closed:
		g.waitDone()
		return nil
	case prev != Connected || conn == nil:
		// No dispatch goroutine was started.
		g.closeDone()
		return nil
	}

	cancel()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client closing")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout)); err != nil &&
		!errors.Is(err, websocket.ErrCloseSent) {
		g.logger.WithError(err).Debug("Failed to send close frame")
	}
	_ = conn.Close()
	g.waitDone()
	return nil
}

func (g *Gateway) waitDone() {
	if g.dispatching.Load() {
		return
	}
	<-g.done
}

func (g *Gateway) closeDone() {
	g.doneOnce.Do(func() { close(g.done) })
}

// Done is closed when the dispatch goroutine exits.
func (g *Gateway) Done() <-chan struct{} {
	return g.done
}

// Err reports why the frame stream ended. It is nil while connected and after
// a clean close.
func (g *Gateway) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

func (g *Gateway) State() ConnectionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gateway) IsConnected() bool {
	return g.State() == Connected
}

// RemoteAddr is the server's address on the live connection.
func (g *Gateway) RemoteAddr() (net.Addr, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn == nil {
		return nil, NewNotConnectedError("gateway is " + string(g.state))
	}
	return g.conn.RemoteAddr(), nil
}

// ConnectionID is a random id assigned per connection, used in log fields.
func (g *Gateway) ConnectionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connID
}

// AddStateHandler registers h and returns a function that removes it.
// Handlers run synchronously in registration order, one transition at a time,
// in the order the transitions happened.
func (g *Gateway) AddStateHandler(h StateHandler) func() {
	g.mu.Lock()
	id := g.nextHandlerID
	g.nextHandlerID++
	g.stateHandlers = append(g.stateHandlers, registeredStateHandler{id: id, handler: h})
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		for i, rh := range g.stateHandlers {
			if rh.id == id {
				g.stateHandlers = append(g.stateHandlers[:i:i], g.stateHandlers[i+1:]...)
				return
			}
		}
	}
}

// setState must be called with mu held, followed by notifyState once mu is
// released.
func (g *Gateway) setState(state ConnectionState) {
	if g.state == state {
		return
	}
	g.state = state
	if len(g.stateHandlers) == 0 {
		return
	}
	handlers := make([]StateHandler, len(g.stateHandlers))
	for i, rh := range g.stateHandlers {
		handlers[i] = rh.handler
	}
	g.pending = append(g.pending, stateNotice{state: state, handlers: handlers})
}

// notifyState delivers queued transitions. Only one goroutine drains the queue
// at a time; a transition queued meanwhile, including one made by a handler,
// is delivered by that goroutine.
func (g *Gateway) notifyState() {
	g.mu.Lock()
	if g.notifying {
		g.mu.Unlock()
		return
	}
	g.notifying = true
	for len(g.pending) > 0 {
		n := g.pending[0]
		g.pending = g.pending[1:]
		g.mu.Unlock()
		for _, h := range n.handlers {
			g.runStateHandler(h, n.state)
		}
		g.mu.Lock()
	}
	g.notifying = false
	g.mu.Unlock()
}

func (g *Gateway) runStateHandler(h StateHandler, state ConnectionState) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.WithField("state", string(state)).
				WithError(fmt.Errorf("panic: %v", r)).
				Error("State handler panicked")
		}
	}()
	h(state)
}
