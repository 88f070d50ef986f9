package backend

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"

	"gateway/internal/config"
)

func TestBuildURL_Plain(t *testing.T) {
	cfg := config.Default()
	cfg.RedisHost = "127.0.0.1"
	cfg.RedisPort = 6379
	cfg.Database = 2
	assert.Equal(t, "redis://127.0.0.1:6379/2", BuildURL(&cfg))
}

func TestBuildURL_TLS(t *testing.T) {
	cfg := config.Default()
	cfg.SSL = &config.SSLConfig{Enabled: true}
	assert.Contains(t, BuildURL(&cfg), "rediss://")
}

func TestIsConnectionError_NetError(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	assert.True(t, isConnectionError(err))
}

func TestIsConnectionError_PlainError(t *testing.T) {
	assert.False(t, isConnectionError(errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")))
}
