package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"minidao/pkg/models"
)

// AsyncKafkaSink 异步Kafka事件输出器
type AsyncKafkaSink struct {
	logger      *logrus.Logger
	topic       string
	producer    sarama.AsyncProducer
	successChan <-chan *sarama.ProducerMessage
	errorChan   <-chan *sarama.ProducerError
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	// 统计信息
	sentCount  int64
	errorCount int64
	mu         sync.RWMutex
}

// NewAsyncKafkaSink 创建异步Kafka事件输出器
func NewAsyncKafkaSink(brokers []string, topic string, logger *logrus.Logger) (*AsyncKafkaSink, error) {
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}
	if topic == "" {
		topic = DefaultTopic
	}

	logger.Infof("初始化异步Kafka事件输出器，brokers: %v, topic: %s", brokers, topic)

	// 配置异步Kafka生产者
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Producer.Timeout = 3 * time.Second
	config.Version = sarama.V2_8_0_0

	// 批量发送配置（事件流量小，保守即可）
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Flush.Messages = 100
	config.Producer.Compression = sarama.CompressionSnappy
	config.ChannelBufferSize = 1000

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("创建异步Kafka生产者失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sink := &AsyncKafkaSink{
		logger:      logger,
		topic:       topic,
		producer:    producer,
		successChan: producer.Successes(),
		errorChan:   producer.Errors(),
		ctx:         ctx,
		cancel:      cancel,
	}

	sink.startBackgroundHandlers()

	logger.Info("异步Kafka生产者已创建并启动")
	return sink, nil
}

// startBackgroundHandlers 启动后台处理程序
func (k *AsyncKafkaSink) startBackgroundHandlers() {
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		k.handleSuccesses()
	}()

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		k.handleErrors()
	}()
}

// handleSuccesses 处理成功发送的消息
func (k *AsyncKafkaSink) handleSuccesses() {
	for {
		select {
		case success := <-k.successChan:
			if success != nil {
				k.mu.Lock()
				k.sentCount++
				k.mu.Unlock()

				k.logger.Debugf("事件成功发送到 topic %s, partition %d, offset %d",
					success.Topic, success.Partition, success.Offset)
			}
		case <-k.ctx.Done():
			k.logger.Debug("成功消息处理器停止")
			return
		}
	}
}

// handleErrors 处理发送失败的消息
func (k *AsyncKafkaSink) handleErrors() {
	for {
		select {
		case err := <-k.errorChan:
			if err != nil {
				k.mu.Lock()
				k.errorCount++
				k.mu.Unlock()

				k.logger.Errorf("Kafka事件发送失败: topic=%s, error=%v",
					err.Msg.Topic, err.Err)
			}
		case <-k.ctx.Done():
			k.logger.Debug("错误消息处理器停止")
			return
		}
	}
}

// Publish 异步发送事件
func (k *AsyncKafkaSink) Publish(event *models.SessionEvent) error {
	if event == nil {
		return nil
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(event.Contract),
		Value: sarama.StringEncoder(jsonData),
	}

	select {
	case k.producer.Input() <- msg:
		return nil
	case <-k.ctx.Done():
		return fmt.Errorf("Kafka生产者已关闭")
	default:
		return fmt.Errorf("Kafka生产者输入通道已满")
	}
}

// GetStats 获取统计信息
func (k *AsyncKafkaSink) GetStats() (int64, int64) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.sentCount, k.errorCount
}

// Close 关闭异步Kafka连接
func (k *AsyncKafkaSink) Close() error {
	k.logger.Info("关闭异步Kafka生产者...")

	// 等待缓冲的事件发出
	time.Sleep(500 * time.Millisecond)

	k.cancel()

	if err := k.producer.Close(); err != nil {
		k.logger.Errorf("关闭Kafka生产者失败: %v", err)
		return err
	}

	k.wg.Wait()

	sent, errors := k.GetStats()
	k.logger.Infof("异步Kafka生产者已关闭，总计发送: %d，错误: %d", sent, errors)

	return nil
}
