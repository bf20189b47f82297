package reverb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"REVERB_HOST", "REVERB_PORT", "REVERB_PASSWORD", "REVERB_APPLICATION_ID",
		"REVERB_SECURE", "REVERB_CONNECT_ATTEMPTS", "REVERB_DEBUG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	c := NewConfig()
	assert.Equal(t, "localhost", c.Host)
	assert.Equal(t, DefaultPort, c.Port)
	assert.Equal(t, DefaultPassword, c.Password)
	assert.Equal(t, DefaultAPIVersion, c.APIVersion)
	assert.Equal(t, "reverb/"+Version, c.ClientName)
	assert.Equal(t, 1, c.ConnectAttempts)
	assert.False(t, c.Secure)

	// Only the application id is missing.
	assert.Equal(t, []string{"application id is required"}, c.Validate())
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("REVERB_HOST", "lavalink.internal")
	t.Setenv("REVERB_PORT", "443")
	t.Setenv("REVERB_PASSWORD", "secret")
	t.Setenv("REVERB_APPLICATION_ID", "964195658468835358")
	t.Setenv("REVERB_SECURE", "true")
	t.Setenv("REVERB_CONNECT_ATTEMPTS", "3")
	t.Setenv("REVERB_RETRY_MAX_DELAY", "2s")
	t.Setenv("REVERB_REQUEST_TIMEOUT", "500ms")
	t.Setenv("REVERB_DEBUG_LEVEL", "debug")
	t.Setenv("REVERB_DEBUG_GATEWAY", "true")

	c := NewConfig()
	assert.Equal(t, "lavalink.internal", c.Host)
	assert.Equal(t, 443, c.Port)
	assert.Equal(t, "secret", c.Password)
	assert.Equal(t, uint64(964195658468835358), c.ApplicationID)
	assert.True(t, c.Secure)
	assert.Equal(t, 3, c.ConnectAttempts)
	assert.Equal(t, 2*time.Second, c.RetryMaxDelay)
	assert.Equal(t, 500*time.Millisecond, c.RequestTimeout)
	assert.True(t, c.DebugGateway)
	assert.Empty(t, c.Validate())

	u, err := c.GatewayURL()
	assert.NoError(t, err)
	assert.Equal(t, "wss://lavalink.internal:443/v3/websocket", u)
}

func TestNewConfigIgnoresMalformedEnv(t *testing.T) {
	t.Setenv("REVERB_PORT", "not-a-port")
	t.Setenv("REVERB_APPLICATION_ID", "-5")
	t.Setenv("REVERB_RETRY_MAX_DELAY", "soon")

	c := NewConfig()
	assert.Equal(t, DefaultPort, c.Port)
	assert.Equal(t, uint64(0), c.ApplicationID)
	assert.Equal(t, 10*time.Second, c.RetryMaxDelay)
}

func TestConfigValidateHost(t *testing.T) {
	c := &Config{
		Host: "ftp://node", Port: 2333, Password: "x", ApplicationID: 1,
		APIVersion: 3, ConnectAttempts: 1, DebugLevel: "INFO",
	}
	assert.Len(t, c.Validate(), 1)

	c.Host = "node/path"
	assert.Len(t, c.Validate(), 1)

	c.Host = "wss://node/"
	assert.Empty(t, c.Validate())

	_, err := (&Config{Host: "ftp://node"}).GatewayURL()
	assert.ErrorIs(t, err, ErrConfig)
}
