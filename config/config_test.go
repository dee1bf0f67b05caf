package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
http: {addr: ":8080"}
grpc: {addr: ":9090"}
auth: {publicKeyPath: /k.pem}
storage: {messages: memory, tokens: memory, users: memory}
`))
	require.NoError(t, err)

	assert.Equal(t, "log", cfg.Push.Backend)
	assert.True(t, cfg.Push.Evict())
	assert.Equal(t, 30*time.Second, cfg.Push.CallTTL)
	assert.Equal(t, 4000, cfg.Chat.MaxBodyLength)
	assert.Equal(t, 64, cfg.WS.SendBuffer)
	assert.Equal(t, "comms-service", cfg.Logging.Service)
	assert.False(t, cfg.UsesPostgres())
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"missing http":     `grpc: {addr: ":9090"}`,
		"pg without dsn":   "http: {addr: ':1'}\ngrpc: {addr: ':2'}\nauth: {publicKeyPath: k}\n",
		"bad tokens store": "http: {addr: ':1'}\ngrpc: {addr: ':2'}\nauth: {publicKeyPath: k}\nstorage: {messages: memory, users: memory, tokens: etcd}\n",
		"redis no addr":    "http: {addr: ':1'}\ngrpc: {addr: ':2'}\nauth: {publicKeyPath: k}\nstorage: {messages: memory, users: memory, tokens: redis}\n",
		"amqp no url":      "http: {addr: ':1'}\ngrpc: {addr: ':2'}\nauth: {publicKeyPath: k}\nstorage: {messages: memory, users: memory, tokens: memory}\npush: {backend: amqp}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_EvictCanBeDisabled(t *testing.T) {
	cfg, err := Parse([]byte("http: {addr: ':1'}\ngrpc: {addr: ':2'}\nauth: {publicKeyPath: k}\nstorage: {messages: memory, users: memory, tokens: memory}\npush: {evictOnPermanentError: false}\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Push.Evict())
}

func TestLoadConfig_SampleFile(t *testing.T) {
	data, err := os.ReadFile("config.yaml")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "redis", cfg.Storage.Tokens)
	assert.Equal(t, "vetclinic.push", cfg.Push.AMQP.Exchange)
	assert.Equal(t, 15*time.Second, cfg.WS.PingEvery)
}
