package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, TransportPolling, cfg.Transport.Kind)
	assert.Equal(t, time.Second, cfg.Polling.Interval)
	assert.Equal(t, 60, cfg.Polling.MaxPolls)
	assert.Equal(t, 3, cfg.Polling.MaxPollErrors)
	assert.Equal(t, []string{"None", "null"}, cfg.Stream.Sentinels)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GO_ENV", "production")
	t.Setenv("CHAT_TRANSPORT", "websocket")
	t.Setenv("CHAT_BACKEND_URL", "http://backend:9000/")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("POLL_MAX_POLLS", "not-a-number")
	t.Setenv("STREAM_SENTINELS", " None , ,END")
	t.Setenv("CHAT_DELETE_ON_RESET", "true")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, TransportWebsocket, cfg.Transport.Kind)
	assert.Equal(t, "http://backend:9000", cfg.Polling.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Polling.Interval)
	assert.Equal(t, 60, cfg.Polling.MaxPolls)
	assert.Equal(t, []string{"None", "END"}, cfg.Stream.Sentinels)
	assert.True(t, cfg.Chat.DeleteOnReset)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport.Kind = "carrier-pigeon" }, wantErr: true},
		{name: "zero interval", mutate: func(c *Config) { c.Polling.Interval = 0 }, wantErr: true},
		{name: "bad backend url", mutate: func(c *Config) { c.Polling.BaseURL = "not a url" }, wantErr: true},
		{name: "nats without url", mutate: func(c *Config) {
			c.Transport.Kind = TransportNats
			c.Broker.NatsURL = ""
		}, wantErr: true},
		{name: "redis without url", mutate: func(c *Config) {
			c.Transport.Kind = TransportRedis
			c.Broker.RedisURL = ""
		}, wantErr: true},
		{name: "non numeric port", mutate: func(c *Config) { c.Simulator.Port = "http" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
