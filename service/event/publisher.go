/*
 * @module service/event/publisher
 * @description 领域事件发布器，将应答和聚合事件写入Kafka
 * @architecture 适配器模式 - 封装第三方Kafka客户端，提供统一的发布接口
 * @documentReference dev_docs/event_flow.md
 * @stateFlow 事件构建 -> JSON序列化 -> 写入Kafka -> 失败记录日志
 * @rules 事件发布失败不阻断业务流程，仅记录日志
 * @dependencies github.com/segmentio/kafka-go, github.com/google/uuid, encoding/json
 * @refs service/response/submission_service.go, service/analytics/period_aggregator.go
 */

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// 事件类型定义
const (
	EventTypeResponseCreated      = "response.created"
	EventTypeResponseCompleted    = "response.completed"
	EventTypeAggregationCompleted = "aggregation.completed"
)

// DomainEvent 领域事件
type DomainEvent struct {
	EventID         string                 `json:"event_id"`
	EventType       string                 `json:"event_type"`
	QuestionnaireID string                 `json:"questionnaire_id"`
	OccurredAt      time.Time              `json:"occurred_at"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
}

// Publisher 领域事件发布接口
type Publisher interface {
	Publish(ctx context.Context, event *DomainEvent) error
	Close() error
}

// KafkaPublisher 基于Kafka的事件发布实现
type KafkaPublisher struct {
	writer      *kafka.Writer
	logger      *slog.Logger
	mutex       sync.RWMutex
	isConnected bool
}

// KafkaPublisherConfig Kafka发布器配置
type KafkaPublisherConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// NewKafkaPublisher 创建Kafka事件发布器
func NewKafkaPublisher(config *KafkaPublisherConfig, logger *slog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	if config.BatchTimeout > 0 {
		writer.BatchTimeout = config.BatchTimeout
	}
	if config.WriteTimeout > 0 {
		writer.WriteTimeout = config.WriteTimeout
	}

	logger.Info("Kafka事件发布器已初始化",
		"brokers", config.Brokers,
		"topic", config.Topic)

	return &KafkaPublisher{
		writer:      writer,
		logger:      logger,
		isConnected: true,
	}
}

// Publish 发布领域事件
// 按问卷ID作为消息key，保证同一问卷的事件顺序
func (p *KafkaPublisher) Publish(ctx context.Context, event *DomainEvent) error {
	p.mutex.RLock()
	connected := p.isConnected
	p.mutex.RUnlock()

	if !connected {
		return fmt.Errorf("事件发布器已关闭")
	}

	if event.EventID == "" {
		event.EventID = uuid.New().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	valueBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %v", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.QuestionnaireID),
		Value: valueBytes,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送事件失败: %v", err)
	}

	p.logger.Debug("事件已发布",
		"event_type", event.EventType,
		"questionnaire_id", event.QuestionnaireID)
	return nil
}

// Close 关闭发布器
func (p *KafkaPublisher) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if !p.isConnected {
		return nil
	}

	p.isConnected = false
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("关闭Kafka生产者失败: %v", err)
	}
	p.logger.Info("Kafka事件发布器已关闭")
	return nil
}

// NoopPublisher 空实现，用于未配置Kafka的环境和测试
type NoopPublisher struct{}

// NewNoopPublisher 创建空事件发布器
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

// Publish 丢弃事件
func (p *NoopPublisher) Publish(ctx context.Context, event *DomainEvent) error {
	return nil
}

// Close 无资源需要释放
func (p *NoopPublisher) Close() error {
	return nil
}
