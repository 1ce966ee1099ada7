package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDefaultConfig(t *testing.T) {
	config := GetDefaultConfig()

	require.NotNil(t, config.Network)
	require.NotNil(t, config.Network.Indexer)
	assert.Equal(t, "ghostnet", config.Network.Name)
	assert.Equal(t, 30*time.Second, config.Network.Indexer.Timeout)

	require.NotNil(t, config.Wallet)
	assert.Equal(t, "http://localhost:8765", config.Wallet.BridgeURL)

	require.NotNil(t, config.IPFS)
	assert.Equal(t, "localhost:5001", config.IPFS.Endpoint)
	assert.True(t, config.IPFS.Pin)

	require.NotNil(t, config.Session)
	assert.Equal(t, 1, config.Session.ConfirmationCount)

	require.NotNil(t, config.API)
	assert.Equal(t, 8080, config.API.Port)

	require.NotNil(t, config.Events)
	assert.Equal(t, "jsonl", config.Events.Format)

	require.NotNil(t, config.Logging)
	assert.Equal(t, "info", config.Logging.Level)
}

func TestLoadConfigFromFile(t *testing.T) {
	yaml := `
network:
  name: mainnet
  indexer:
    indexer_url: https://indexer.example.com
    timeout: 15s
wallet:
  bridge_url: http://localhost:9000
  timeout: 2m
ipfs:
  endpoint: ipfs.example.com:5001
  pin: false
session:
  store_path: /var/lib/minidao/session.db
  confirmation_count: 2
api:
  host: 127.0.0.1
  port: 9090
events:
  format: kafka
  brokers:
    - kafka1:9092
    - kafka2:9092
  topic: dao_events
logging:
  level: debug
  format: text
  output: stdout
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "mainnet", config.Network.Name)
	assert.Equal(t, "https://indexer.example.com", config.Network.Indexer.IndexerURL)
	assert.Equal(t, 15*time.Second, config.Network.Indexer.Timeout)

	assert.Equal(t, "http://localhost:9000", config.Wallet.BridgeURL)
	assert.Equal(t, 2*time.Minute, config.Wallet.Timeout)

	assert.Equal(t, "ipfs.example.com:5001", config.IPFS.Endpoint)
	assert.False(t, config.IPFS.Pin)

	assert.Equal(t, "/var/lib/minidao/session.db", config.Session.StorePath)
	assert.Equal(t, 2, config.Session.ConfirmationCount)

	assert.Equal(t, "127.0.0.1", config.API.Host)
	assert.Equal(t, 9090, config.API.Port)

	assert.Equal(t, "kafka", config.Events.Format)
	assert.Equal(t, []string{"kafka1:9092", "kafka2:9092"}, config.Events.Brokers)
	assert.Equal(t, "dao_events", config.Events.Topic)

	assert.Equal(t, "debug", config.Logging.Level)
}

func TestLoadConfigFromFilePartial(t *testing.T) {
	// 缺失的段落由默认值补齐
	yaml := `
network:
  name: sandbox
  indexer:
    indexer_url: http://localhost:5000
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	config, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "sandbox", config.Network.Name)
	require.NotNil(t, config.Wallet)
	assert.Equal(t, "http://localhost:8765", config.Wallet.BridgeURL)
	require.NotNil(t, config.Session)
	require.NotNil(t, config.Events)
	require.NotNil(t, config.Logging)
}

func TestLoadConfigFromFileMissing(t *testing.T) {
	_, err := LoadConfigFromFile("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "完整配置通过",
			mutate:  func(c *Config) { c.Network.Indexer.IndexerURL = "https://indexer.example.com" },
			wantErr: false,
		},
		{
			name:    "缺失索引器URL",
			mutate:  func(c *Config) {},
			wantErr: true,
		},
		{
			name: "缺失钱包桥接URL",
			mutate: func(c *Config) {
				c.Network.Indexer.IndexerURL = "https://indexer.example.com"
				c.Wallet.BridgeURL = ""
			},
			wantErr: true,
		},
		{
			name: "端口越界",
			mutate: func(c *Config) {
				c.Network.Indexer.IndexerURL = "https://indexer.example.com"
				c.API.Port = 70000
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := GetDefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigTable(t *testing.T) {
	for _, typ := range []string{"session", "events", "system"} {
		table, err := configTable(typ)
		require.NoError(t, err)
		assert.NotEmpty(t, table)
	}

	_, err := configTable("unknown")
	assert.Error(t, err)
}
