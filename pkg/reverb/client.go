package reverb

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Builder collects everything needed to connect. It is not connected and can
// be adjusted freely until Build.
type Builder struct {
	config      *Config
	bot         Bot
	httpClient  *http.Client
	dialer      *websocket.Dialer
	logger      *Logger
	gatewayOpts []GatewayOption
}

// NewBuilder starts from cfg, or from NewConfig() when cfg is nil.
func NewBuilder(cfg *Config) *Builder {
	if cfg == nil {
		cfg = NewConfig()
	}
	return &Builder{config: cfg}
}

// WithBot sets the host that receives every event.
func (b *Builder) WithBot(bot Bot) *Builder {
	b.bot = bot
	return b
}

// WithHTTPClient shares an HTTP client for REST calls.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithDialer shares a WebSocket dialer for the gateway.
func (b *Builder) WithDialer(d *websocket.Dialer) *Builder {
	b.dialer = d
	return b
}

func (b *Builder) WithLogger(l *Logger) *Builder {
	b.logger = l
	return b
}

func (b *Builder) WithDecodeErrorHandler(h DecodeErrorHandler) *Builder {
	b.gatewayOpts = append(b.gatewayOpts, WithDecodeErrorHandler(h))
	return b
}

// Build validates the configuration, fetches the server version and then
// connects the gateway. On return the client is dispatching events. ctx
// bounds the version request and the handshake only.
func (b *Builder) Build(ctx context.Context) (*Client, error) {
	if err := b.config.validationError(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = GetGlobalLogger()
	}

	rest := NewRESTClient(b.config, b.httpClient, logger)
	version, err := rest.GetVersion(ctx)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch server version")
		return nil, err
	}

	opts := append([]GatewayOption{WithDialer(b.dialer), WithLogger(logger)}, b.gatewayOpts...)
	gateway := NewGateway(b.config, b.bot, opts...)
	if err := gateway.Connect(ctx); err != nil {
		return nil, err
	}

	logger.WithField("server_version", version).Info("Connected to server")

	return &Client{
		config:  b.config,
		rest:    rest,
		gateway: gateway,
		version: version,
		logger:  logger,
	}, nil
}

// Client is a connected gateway plus the REST client for the same node.
type Client struct {
	config  *Config
	rest    *RESTClient
	gateway *Gateway
	version string
	logger  *Logger

	closeOnce sync.Once
	closeErr  error
}

// Connect is shorthand for NewBuilder(cfg).WithBot(bot).Build(ctx).
func Connect(ctx context.Context, cfg *Config, bot Bot) (*Client, error) {
	return NewBuilder(cfg).WithBot(bot).Build(ctx)
}

// ServerVersion is the version string fetched before the gateway connected.
func (c *Client) ServerVersion() string {
	return c.version
}

func (c *Client) Gateway() *Gateway {
	return c.gateway
}

func (c *Client) REST() *RESTClient {
	return c.rest
}

func (c *Client) Config() *Config {
	return c.config
}

func (c *Client) ConnectionState() ConnectionState {
	return c.gateway.State()
}

// Done is closed when the gateway stops dispatching.
func (c *Client) Done() <-chan struct{} {
	return c.gateway.Done()
}

// Err reports why dispatching stopped, if it stopped abnormally.
func (c *Client) Err() error {
	return c.gateway.Err()
}

// Close shuts the gateway down and waits for the dispatch goroutine.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.gateway.Close()
		c.logger.Info("Client closed")
	})
	return c.closeErr
}
