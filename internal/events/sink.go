package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"minidao/pkg/models"
)

// Sink 会话事件输出接口
//
// 会话事件是审计流：合约选择、钱包连接、提案提交/投票/执行、
// 部署与上传。事件发布失败只记录，不影响会话操作本身。
type Sink interface {
	Publish(event *models.SessionEvent) error
	Close() error
}

// Config 事件输出配置
type Config struct {
	Format    string   `mapstructure:"format"` // none / jsonl / kafka / kafka_async
	OutputDir string   `mapstructure:"output_dir"`
	Brokers   []string `mapstructure:"brokers"`
	Topic     string   `mapstructure:"topic"`
}

// NewSink 按配置创建事件输出器
func NewSink(cfg *Config, logger *logrus.Logger) (Sink, error) {
	if cfg == nil {
		return &NoopSink{}, nil
	}

	switch cfg.Format {
	case "", "none":
		return &NoopSink{}, nil
	case "jsonl":
		return NewFileSink(cfg.OutputDir, logger)
	case "kafka":
		return NewKafkaSink(cfg.Brokers, cfg.Topic, logger)
	case "kafka_async":
		return NewAsyncKafkaSink(cfg.Brokers, cfg.Topic, logger)
	default:
		return nil, fmt.Errorf("不支持的事件输出格式: %s", cfg.Format)
	}
}

// NoopSink 丢弃所有事件
type NoopSink struct{}

func (s *NoopSink) Publish(event *models.SessionEvent) error { return nil }
func (s *NoopSink) Close() error                             { return nil }

// FileSink JSONL文件事件输出器
type FileSink struct {
	file   *os.File
	logger *logrus.Logger
}

// NewFileSink 创建文件事件输出器
func NewFileSink(outputDir string, logger *logrus.Logger) (*FileSink, error) {
	if outputDir == "" {
		outputDir = "./data/events"
	}

	// 确保输出目录存在
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("创建事件目录失败: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(outputDir, fmt.Sprintf("events_%s.jsonl", timestamp))

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("创建事件文件失败: %w", err)
	}

	logger.Infof("事件文件输出器已初始化: %s", path)
	return &FileSink{file: file, logger: logger}, nil
}

// Publish 追加一行事件
func (s *FileSink) Publish(event *models.SessionEvent) error {
	if event == nil {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	data = append(data, '\n')

	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("写入事件文件失败: %w", err)
	}

	// 强制刷新到磁盘
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("刷新事件文件失败: %w", err)
	}

	return nil
}

// Close 关闭事件文件
func (s *FileSink) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
