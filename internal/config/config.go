package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"minidao/internal/chain"
	"minidao/internal/events"
	"minidao/internal/ipfs"
	"minidao/internal/logging"
	"minidao/internal/wallet"
)

// Config 主配置
type Config struct {
	Network *NetworkConfig       `mapstructure:"network"`
	Wallet  *wallet.ClientConfig `mapstructure:"wallet"`
	IPFS    *ipfs.Config         `mapstructure:"ipfs"`
	Session *SessionConfig       `mapstructure:"session"`
	API     *APIConfig           `mapstructure:"api"`
	Events  *events.Config       `mapstructure:"events"`
	Logging *logging.LogConfig   `mapstructure:"logging"`
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	Name    string              `mapstructure:"name"` // mainnet / ghostnet / sandbox
	Indexer *chain.ClientConfig `mapstructure:"indexer"`
}

// SessionConfig 会话配置
type SessionConfig struct {
	StorePath         string `mapstructure:"store_path"`
	ConfirmationCount int    `mapstructure:"confirmation_count"`
}

// APIConfig API服务配置
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LoadConfig 加载配置（自动检测配置源）
func LoadConfig(configPath string) (*Config, error) {
	// 首先尝试从环境变量获取数据库配置
	dbDSN := os.Getenv("MINIDAO_DB_DSN")
	if dbDSN != "" {
		logger := logrus.New()
		dbConfig, err := NewDatabaseConfig(dbDSN, logger)
		if err != nil {
			return nil, fmt.Errorf("连接数据库失败: %w", err)
		}
		defer dbConfig.Close()

		config, err := dbConfig.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("从数据库加载配置失败: %w", err)
		}

		logger.Info("已从数据库加载配置")
		return config, nil
	}

	// 检查是否存在数据库配置文件
	dbConfigFile := "configs/database.yaml"
	if _, err := os.Stat(dbConfigFile); err == nil {
		dbViper := viper.New()
		dbViper.SetConfigFile(dbConfigFile)
		dbViper.SetConfigType("yaml")

		if err := dbViper.ReadInConfig(); err == nil {
			dbDSN := dbViper.GetString("database.dsn")
			if dbDSN != "" {
				logger := logrus.New()
				dbConfig, err := NewDatabaseConfig(dbDSN, logger)
				if err == nil {
					defer dbConfig.Close()

					config, err := dbConfig.LoadConfig()
					if err == nil {
						logger.Info("已从数据库加载配置")
						return config, nil
					}
				}
			}
		}
	}

	// 如果数据库配置不可用，回退到YAML文件
	return LoadConfigFromFile(configPath)
}

// LoadConfigFromFile 从文件加载配置
func LoadConfigFromFile(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	applyDefaults(&config)
	return &config, nil
}

// applyDefaults 填充缺失的配置段
func applyDefaults(config *Config) {
	defaults := GetDefaultConfig()

	if config.Network == nil {
		config.Network = defaults.Network
	}
	if config.Wallet == nil {
		config.Wallet = defaults.Wallet
	}
	if config.IPFS == nil {
		config.IPFS = defaults.IPFS
	}
	if config.Session == nil {
		config.Session = defaults.Session
	}
	if config.API == nil {
		config.API = defaults.API
	}
	if config.Events == nil {
		config.Events = defaults.Events
	}
	if config.Logging == nil {
		config.Logging = defaults.Logging
	}
}

// GetDefaultConfig 获取默认配置
func GetDefaultConfig() *Config {
	return &Config{
		Network: &NetworkConfig{
			Name: "ghostnet",
			Indexer: &chain.ClientConfig{
				IndexerURL: "", // 需要在YAML配置或数据库中指定
				Timeout:    30 * time.Second,
			},
		},
		Wallet: &wallet.ClientConfig{
			BridgeURL: "http://localhost:8765",
			Timeout:   60 * time.Second,
		},
		IPFS: &ipfs.Config{
			Endpoint: "localhost:5001",
			Pin:      true,
		},
		Session: &SessionConfig{
			StorePath:         "./data/session.db",
			ConfirmationCount: 1,
		},
		API: &APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Events: &events.Config{
			Format:    "jsonl",
			OutputDir: "./data/events",
			Brokers:   []string{"localhost:9092"},
			Topic:     events.DefaultTopic,
		},
		Logging: &logging.LogConfig{
			Level:    "info",
			Format:   "json",
			Output:   "stdout",
			Rotation: false,
			MaxSize:  100,
			MaxAge:   30,
		},
	}
}

// Validate 校验配置完整性
func (c *Config) Validate() error {
	if c.Network == nil || c.Network.Indexer == nil || c.Network.Indexer.IndexerURL == "" {
		return fmt.Errorf("索引器URL未配置")
	}
	if c.Wallet == nil || c.Wallet.BridgeURL == "" {
		return fmt.Errorf("钱包桥接服务URL未配置")
	}
	if c.API != nil && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("API端口无效: %d", c.API.Port)
	}
	return nil
}
