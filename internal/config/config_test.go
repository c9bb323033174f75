package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"PORT", "SOCKET_PORT", "JWT_SECRET", "DB_DRIVER", "CHAT_REPLAY_WINDOW", "CHAT_ANNOUNCE_LEAVE"} {
		t.Setenv(key, "")
	}
}

func TestFromViper_Defaults(t *testing.T) {
	clearEnv(t)
	v := viper.New()
	v.Set("auth.jwt_secret", "s3cret")

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.WebSocket.PongWait)
	assert.Equal(t, int64(8192), cfg.WebSocket.MaxMessageSize)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "collab_chat", cfg.Database.DBName)
	assert.Equal(t, 50, cfg.Chat.ReplayWindow)
	assert.False(t, cfg.Chat.AnnounceLeave)
	assert.Equal(t, 2000, cfg.Chat.MaxMessageLength)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "chat-messages", cfg.Kafka.Topic)
}

func TestFromViper_RequiresSecret(t *testing.T) {
	clearEnv(t)

	_, err := FromViper(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt_secret")
}

func TestFromViper_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("CHAT_REPLAY_WINDOW", "20")
	t.Setenv("CHAT_ANNOUNCE_LEAVE", "true")
	t.Setenv("DB_DRIVER", "memory")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, 20, cfg.Chat.ReplayWindow)
	assert.True(t, cfg.Chat.AnnounceLeave)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestFromViper_RejectsPingAfterPong(t *testing.T) {
	clearEnv(t)
	v := viper.New()
	v.Set("auth.jwt_secret", "s3cret")
	v.Set("websocket.ping_interval", "90s")

	_, err := FromViper(v)
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "chat.yaml")
	content := []byte(`
server:
  port: 6001
auth:
  jwt_secret: file-secret
chat:
  replay_window: 10
  announce_leave: true
websocket:
  ping_interval: 5s
  pong_wait: 15s
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 6001, cfg.Server.Port)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 10, cfg.Chat.ReplayWindow)
	assert.True(t, cfg.Chat.AnnounceLeave)
	assert.Equal(t, 5*time.Second, cfg.WebSocket.PingInterval)
	assert.Equal(t, 15*time.Second, cfg.WebSocket.PongWait)
}
