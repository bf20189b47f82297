package reverb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
)

const maxErrorBody = 512

// Route is a REST endpoint. Versioned paths are prefixed with /v<APIVersion>.
type Route struct {
	Method    string
	Path      string
	Versioned bool
}

var (
	RouteVersion = Route{Method: http.MethodGet, Path: "/version"}
	RouteInfo    = Route{Method: http.MethodGet, Path: "/info", Versioned: true}
	RouteStats   = Route{Method: http.MethodGet, Path: "/stats", Versioned: true}
)

// ServerInfo is the body of GET /v3/info.
type ServerInfo struct {
	Version        ServerVersion `json:"version"`
	BuildTime      int64         `json:"buildTime"`
	Git            GitInfo       `json:"git"`
	JVM            string        `json:"jvm"`
	Lavaplayer     string        `json:"lavaplayer"`
	SourceManagers []string      `json:"sourceManagers"`
	Filters        []string      `json:"filters"`
	Plugins        []Plugin      `json:"plugins"`
}

type ServerVersion struct {
	Semver     string  `json:"semver"`
	Major      int     `json:"major"`
	Minor      int     `json:"minor"`
	Patch      int     `json:"patch"`
	PreRelease *string `json:"preRelease"`
}

type GitInfo struct {
	Branch     string `json:"branch"`
	Commit     string `json:"commit"`
	CommitTime int64  `json:"commitTime"`
}

type Plugin struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// RESTClient talks to the node's HTTP API. Requests share one circuit
// breaker so a dead node fails fast instead of stacking up timeouts.
type RESTClient struct {
	config     *Config
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *Logger
}

func NewRESTClient(config *Config, httpClient *http.Client, logger *Logger) *RESTClient {
	if config == nil {
		config = NewConfig()
	}
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.RequestTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 2,
			},
		}
	}
	if logger == nil {
		logger = GetGlobalLogger()
	}
	logger = logger.WithComponent("rest")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "reverb-rest",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			// Only transport failures and 5xx count against the node.
			if err == nil {
				return true
			}
			var rErr *Error
			if errors.As(err, &rErr) {
				if status, ok := rErr.GetDetail("status_code"); ok {
					if code, ok := status.(int); ok && code < 500 {
						return true
					}
				}
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithField("breaker", name).
				WithField("from", from.String()).
				WithField("to", to.String()).
				Warn("Circuit breaker state changed")
		},
	})

	return &RESTClient{
		config:     config,
		httpClient: httpClient,
		breaker:    breaker,
		logger:     logger,
	}
}

// URL resolves route against the configured node.
func (rc *RESTClient) URL(route Route) (string, error) {
	base, err := rc.config.RESTURL()
	if err != nil {
		return "", err
	}
	if route.Versioned {
		return fmt.Sprintf("%s/v%d%s", base, rc.config.APIVersion, route.Path), nil
	}
	return base + route.Path, nil
}

// Do performs route and returns the body of a 2xx response. Any other status
// is a RequestError carrying status_code; the body is never returned.
func (rc *RESTClient) Do(ctx context.Context, route Route, body interface{}) ([]byte, error) {
	endpoint, err := rc.URL(route)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, WrapError(err, ErrCodeRequestFailed, "marshal request body")
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	out, err := rc.breaker.Execute(func() (interface{}, error) {
		return rc.send(ctx, route, endpoint, reqBody, body != nil)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			cErr := NewError("node is unavailable", ErrCodeCircuitOpen).AddDetail("url", endpoint)
			cErr.err = err
			return nil, cErr
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (rc *RESTClient) send(ctx context.Context, route Route, endpoint string, body io.Reader, hasBody bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, route.Method, endpoint, body)
	if err != nil {
		return nil, NewConfigError(err.Error()).AddDetail("url", endpoint)
	}

	req.Header.Set("Authorization", rc.config.Password)
	req.Header.Set("User-Agent", rc.config.ClientName)
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := rc.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, WrapError(ctx.Err(), ErrCodeTimeout, "request aborted").AddDetail("url", endpoint)
		}
		rErr := NewError("request failed", ErrCodeRequestFailed).AddDetail("url", endpoint)
		rErr.err = err
		return nil, rErr
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		rErr := NewError("read response body", ErrCodeRequestFailed).AddDetail("url", endpoint)
		rErr.err = err
		return nil, rErr
	}

	rc.logger.WithFields(map[string]interface{}{
		"method":      route.Method,
		"url":         endpoint,
		"status_code": resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("REST request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errMsg := strings.TrimSpace(string(respBody))
		if len(errMsg) > maxErrorBody {
			errMsg = errMsg[:maxErrorBody]
		}
		if errMsg == "" {
			errMsg = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, NewAuthError(errMsg, resp.StatusCode).AddDetail("url", endpoint)
		}
		return nil, NewRequestError(errMsg, resp.StatusCode).AddDetail("url", endpoint)
	}

	return respBody, nil
}

// GetVersion returns the node's version string exactly as sent.
func (rc *RESTClient) GetVersion(ctx context.Context) (string, error) {
	resp, err := rc.Do(ctx, RouteVersion, nil)
	if err != nil {
		return "", err
	}
	return string(resp), nil
}

func (rc *RESTClient) GetInfo(ctx context.Context) (*ServerInfo, error) {
	resp, err := rc.Do(ctx, RouteInfo, nil)
	if err != nil {
		return nil, err
	}

	var info ServerInfo
	if err := json.Unmarshal(resp, &info); err != nil {
		return nil, NewDecodeError("invalid info body: " + err.Error())
	}
	return &info, nil
}

// GetStats fetches node load through the same decoder as the gateway stats op.
func (rc *RESTClient) GetStats(ctx context.Context) (Stats, error) {
	resp, err := rc.Do(ctx, RouteStats, nil)
	if err != nil {
		return Stats{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(resp))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return Stats{}, NewDecodeError("invalid stats body: " + err.Error())
	}
	if payload == nil {
		return Stats{}, NewDecodeError("stats body is not an object")
	}
	return DecodeStats(payload)
}
