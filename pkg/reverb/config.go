package reverb

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// Version is the library version sent in the Client-Name header.
	Version = "0.1.0"

	DefaultPassword   = "youshallnotpass"
	DefaultPort       = 2333
	DefaultAPIVersion = 3
)

type Config struct {
	Host             string        `json:"host"`
	Port             int           `json:"port"`
	Password         string        `json:"-"`
	ApplicationID    uint64        `json:"application_id"`
	Secure           bool          `json:"secure"`
	APIVersion       int           `json:"api_version"`
	ClientName       string        `json:"client_name"`
	ConnectAttempts  int           `json:"connect_attempts"`
	RetryMaxDelay    time.Duration `json:"retry_max_delay"`
	HandshakeTimeout time.Duration `json:"handshake_timeout"`
	RequestTimeout   time.Duration `json:"request_timeout"`
	DebugLevel       string        `json:"debug_level"`
	DebugGateway     bool          `json:"debug_gateway"`
}

// NewConfig returns defaults overlaid with REVERB_* variables from the
// environment and an optional .env file.
func NewConfig() *Config {
	c := &Config{
		Host:             "localhost",
		Port:             DefaultPort,
		Password:         DefaultPassword,
		APIVersion:       DefaultAPIVersion,
		ClientName:       "reverb/" + Version,
		ConnectAttempts:  1,
		RetryMaxDelay:    10 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		RequestTimeout:   10 * time.Second,
		DebugLevel:       "INFO",
	}

	c.loadFromEnv()

	return c
}

func (c *Config) loadFromEnv() {
	// Load .env if exists
	_ = godotenv.Load()

	if host := os.Getenv("REVERB_HOST"); host != "" {
		c.Host = host
	}
	if port := os.Getenv("REVERB_PORT"); port != "" {
		if val, err := strconv.Atoi(port); err == nil {
			c.Port = val
		}
	}
	if password := os.Getenv("REVERB_PASSWORD"); password != "" {
		c.Password = password
	}
	if appID := os.Getenv("REVERB_APPLICATION_ID"); appID != "" {
		if val, err := strconv.ParseUint(appID, 10, 64); err == nil {
			c.ApplicationID = val
		}
	}

	c.Secure = os.Getenv("REVERB_SECURE") == "true"

	if version := os.Getenv("REVERB_API_VERSION"); version != "" {
		if val, err := strconv.Atoi(version); err == nil {
			c.APIVersion = val
		}
	}
	if attempts := os.Getenv("REVERB_CONNECT_ATTEMPTS"); attempts != "" {
		if val, err := strconv.Atoi(attempts); err == nil {
			c.ConnectAttempts = val
		}
	}
	if delay := os.Getenv("REVERB_RETRY_MAX_DELAY"); delay != "" {
		if val, err := time.ParseDuration(delay); err == nil {
			c.RetryMaxDelay = val
		}
	}
	if timeout := os.Getenv("REVERB_HANDSHAKE_TIMEOUT"); timeout != "" {
		if val, err := time.ParseDuration(timeout); err == nil {
			c.HandshakeTimeout = val
		}
	}
	if timeout := os.Getenv("REVERB_REQUEST_TIMEOUT"); timeout != "" {
		if val, err := time.ParseDuration(timeout); err == nil {
			c.RequestTimeout = val
		}
	}
	if level := os.Getenv("REVERB_DEBUG_LEVEL"); level != "" {
		c.DebugLevel = level
	}

	c.DebugGateway = os.Getenv("REVERB_DEBUG_GATEWAY") == "true"
}

// Validate returns list of issues
func (c *Config) Validate() []string {
	issues := []string{}

	if c.Host == "" {
		issues = append(issues, "host is required")
	} else if _, err := c.baseURL("http"); err != nil {
		issues = append(issues, fmt.Sprintf("invalid host %q: %v", c.Host, err))
	}
	if c.Port <= 0 || c.Port > 65535 {
		issues = append(issues, fmt.Sprintf("invalid port: %d", c.Port))
	}
	if c.Password == "" {
		issues = append(issues, "password must not be empty")
	}
	if c.ApplicationID == 0 {
		issues = append(issues, "application id is required")
	}
	if c.APIVersion < 1 {
		issues = append(issues, fmt.Sprintf("invalid api version: %d", c.APIVersion))
	}
	if c.ConnectAttempts < 1 {
		issues = append(issues, "connect attempts must be at least 1")
	}
	if _, ok := ParseLogLevel(c.DebugLevel); !ok {
		issues = append(issues, fmt.Sprintf("Invalid debug level: %s", c.DebugLevel))
	}

	return issues
}

func (c *Config) validationError() error {
	issues := c.Validate()
	if len(issues) == 0 {
		return nil
	}
	return NewConfigError(strings.Join(issues, "; ")).AddDetail("issues", issues)
}

// baseURL builds scheme://host:port from Host. A scheme on Host (http, https,
// ws, wss) selects TLS; otherwise Secure does.
func (c *Config) baseURL(plain string) (*url.URL, error) {
	host := c.Host
	secure := c.Secure
	if i := strings.Index(host, "://"); i >= 0 {
		switch strings.ToLower(host[:i]) {
		case "https", "wss":
			secure = true
		case "http", "ws":
		default:
			return nil, fmt.Errorf("unsupported scheme %q", host[:i])
		}
		host = host[i+3:]
	}
	host = strings.TrimSuffix(host, "/")
	if host == "" || strings.ContainsAny(host, "/?#") {
		return nil, fmt.Errorf("host must be a bare hostname")
	}

	scheme := plain
	if secure {
		scheme += "s"
	}
	return &url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", host, c.Port)}, nil
}

// GatewayURL is the WebSocket endpoint, e.g. ws://localhost:2333/v3/websocket.
func (c *Config) GatewayURL() (string, error) {
	u, err := c.baseURL("ws")
	if err != nil {
		return "", NewConfigError(err.Error())
	}
	u.Path = fmt.Sprintf("/v%d/websocket", c.APIVersion)
	return u.String(), nil
}

// RESTURL is the HTTP base URL, e.g. http://localhost:2333.
func (c *Config) RESTURL() (string, error) {
	u, err := c.baseURL("http")
	if err != nil {
		return "", NewConfigError(err.Error())
	}
	return u.String(), nil
}

func (c *Config) PrintConfig() {
	fmt.Println("Reverb Configuration")
	fmt.Println("==================================================")

	if gw, err := c.GatewayURL(); err == nil {
		fmt.Printf("Gateway: %s\n", gw)
	} else {
		fmt.Printf("Gateway: invalid (%v)\n", err)
	}
	if c.Password == DefaultPassword {
		fmt.Println("Password: default")
	} else {
		fmt.Println("Password: set")
	}
	fmt.Printf("Application ID: %d\n", c.ApplicationID)
	fmt.Printf("Client Name: %s\n", c.ClientName)
	fmt.Printf("Connect Attempts: %d\n", c.ConnectAttempts)
	fmt.Printf("Retry Max Delay: %s\n", c.RetryMaxDelay)
	fmt.Printf("Handshake Timeout: %s\n", c.HandshakeTimeout)
	fmt.Printf("Request Timeout: %s\n", c.RequestTimeout)
	fmt.Printf("Debug Level: %s\n", c.DebugLevel)
	fmt.Printf("Debug Gateway: %t\n", c.DebugGateway)
}
