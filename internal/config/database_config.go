package config

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"minidao/internal/chain"
	"minidao/internal/events"
	"minidao/internal/ipfs"
	"minidao/internal/wallet"
)

// DatabaseConfig 数据库配置管理器
//
// 集中部署时多个实例共享同一份配置，按key/value表存储。
type DatabaseConfig struct {
	DB     *sql.DB
	logger *logrus.Logger
}

// NewDatabaseConfig 创建数据库配置管理器
func NewDatabaseConfig(dsn string, logger *logrus.Logger) (*DatabaseConfig, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 测试连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	return &DatabaseConfig{
		DB:     db,
		logger: logger,
	}, nil
}

// LoadConfig 从数据库加载完整配置
func (dc *DatabaseConfig) LoadConfig() (*Config, error) {
	config := GetDefaultConfig()

	networkConfig, err := dc.loadNetworkConfig()
	if err != nil {
		return nil, fmt.Errorf("加载网络配置失败: %w", err)
	}
	config.Network = networkConfig

	sessionConfig, walletConfig, ipfsConfig, err := dc.loadSessionConfig()
	if err != nil {
		return nil, fmt.Errorf("加载会话配置失败: %w", err)
	}
	config.Session = sessionConfig
	config.Wallet = walletConfig
	config.IPFS = ipfsConfig

	eventsConfig, err := dc.loadEventsConfig()
	if err != nil {
		return nil, fmt.Errorf("加载事件输出配置失败: %w", err)
	}
	config.Events = eventsConfig

	return config, nil
}

// loadNetworkConfig 加载网络配置
func (dc *DatabaseConfig) loadNetworkConfig() (*NetworkConfig, error) {
	query := `SELECT name, indexer_url, timeout_seconds FROM dao_networks WHERE is_active = true ORDER BY priority LIMIT 1`

	config := &NetworkConfig{
		Name:    "ghostnet",
		Indexer: &chain.ClientConfig{Timeout: 30 * time.Second},
	}

	var timeoutSeconds int
	err := dc.DB.QueryRow(query).Scan(&config.Name, &config.Indexer.IndexerURL, &timeoutSeconds)
	if err != nil {
		return nil, err
	}
	if timeoutSeconds > 0 {
		config.Indexer.Timeout = time.Duration(timeoutSeconds) * time.Second
	}

	return config, nil
}

// loadSessionConfig 加载会话相关配置
func (dc *DatabaseConfig) loadSessionConfig() (*SessionConfig, *wallet.ClientConfig, *ipfs.Config, error) {
	query := `SELECT config_key, config_value FROM session_config WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()

	defaults := GetDefaultConfig()
	session := defaults.Session
	walletCfg := defaults.Wallet
	ipfsCfg := defaults.IPFS

	for rows.Next() {
		var key, value string
		err := rows.Scan(&key, &value)
		if err != nil {
			return nil, nil, nil, err
		}

		switch key {
		case "store_path":
			session.StorePath = value
		case "confirmation_count":
			if v, err := strconv.Atoi(value); err == nil {
				session.ConfirmationCount = v
			}
		case "wallet_bridge_url":
			walletCfg.BridgeURL = value
		case "wallet_timeout":
			if d, err := time.ParseDuration(value); err == nil {
				walletCfg.Timeout = d
			}
		case "ipfs_endpoint":
			ipfsCfg.Endpoint = value
		case "ipfs_pin":
			ipfsCfg.Pin = strings.ToLower(value) == "true"
		}
	}

	return session, walletCfg, ipfsCfg, nil
}

// loadEventsConfig 加载事件输出配置
func (dc *DatabaseConfig) loadEventsConfig() (*events.Config, error) {
	query := `SELECT config_key, config_value FROM events_config WHERE is_active = true`
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	config := &events.Config{
		Format:    "jsonl",
		OutputDir: "./data/events",
		Topic:     events.DefaultTopic,
	}

	for rows.Next() {
		var key, value string
		err := rows.Scan(&key, &value)
		if err != nil {
			return nil, err
		}

		switch key {
		case "format":
			config.Format = value
		case "output_dir":
			config.OutputDir = value
		case "topic":
			config.Topic = value
		case "kafka_brokers":
			var brokers []string
			if err := json.Unmarshal([]byte(value), &brokers); err == nil {
				config.Brokers = brokers
			}
		}
	}

	return config, nil
}

// UpdateConfig 更新配置
func (dc *DatabaseConfig) UpdateConfig(configType, key, value string) error {
	tableName, err := configTable(configType)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (config_key, config_value, updated_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (config_key)
		DO UPDATE SET config_value = $2, updated_at = CURRENT_TIMESTAMP
	`, tableName)

	_, err = dc.DB.Exec(query, key, value)
	return err
}

// GetConfig 获取配置值
func (dc *DatabaseConfig) GetConfig(configType, key string) (string, error) {
	tableName, err := configTable(configType)
	if err != nil {
		return "", err
	}

	query := fmt.Sprintf(`SELECT config_value FROM %s WHERE config_key = $1 AND is_active = true`, tableName)
	var value string
	err = dc.DB.QueryRow(query, key).Scan(&value)
	return value, err
}

// ListConfigs 列出所有配置
func (dc *DatabaseConfig) ListConfigs(configType string) (map[string]string, error) {
	tableName, err := configTable(configType)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT config_key, config_value FROM %s WHERE is_active = true`, tableName)
	rows, err := dc.DB.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make(map[string]string)
	for rows.Next() {
		var key, value string
		err := rows.Scan(&key, &value)
		if err != nil {
			return nil, err
		}
		configs[key] = value
	}

	return configs, nil
}

// configTable 配置类型到表名映射
func configTable(configType string) (string, error) {
	switch configType {
	case "session":
		return "session_config", nil
	case "events":
		return "events_config", nil
	case "system":
		return "system_config", nil
	default:
		return "", fmt.Errorf("不支持的配置类型: %s", configType)
	}
}

// Close 关闭数据库连接
func (dc *DatabaseConfig) Close() error {
	if dc.DB != nil {
		return dc.DB.Close()
	}
	return nil
}
