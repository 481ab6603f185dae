package event

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestPublisher() *KafkaPublisher {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return NewKafkaPublisher(&KafkaPublisherConfig{
		Brokers: []string{"127.0.0.1:1"},
		Topic:   "test.events",
	}, logger)
}

// TestPublishFillsEventIdentity 测试发布时补全事件ID和发生时间
func TestPublishFillsEventIdentity(t *testing.T) {
	publisher := newTestPublisher()
	defer publisher.Close()

	// 取消的上下文让写入立即失败，事件字段仍应在写入前补全
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	event := &DomainEvent{
		EventType:       EventTypeResponseCompleted,
		QuestionnaireID: "q-1",
	}
	_ = publisher.Publish(ctx, event)

	assert.NotEmpty(t, event.EventID)
	assert.False(t, event.OccurredAt.IsZero())
}

// TestPublishKeepsPresetEventID 测试已有事件ID不被覆盖
func TestPublishKeepsPresetEventID(t *testing.T) {
	publisher := newTestPublisher()
	defer publisher.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	event := &DomainEvent{
		EventID:         "preset-id",
		EventType:       EventTypeResponseCreated,
		QuestionnaireID: "q-1",
	}
	_ = publisher.Publish(ctx, event)

	assert.Equal(t, "preset-id", event.EventID)
}

// TestPublishAfterClose 测试关闭后的发布被拒绝
func TestPublishAfterClose(t *testing.T) {
	publisher := newTestPublisher()
	assert.NoError(t, publisher.Close())

	err := publisher.Publish(context.Background(), &DomainEvent{
		EventType: EventTypeAggregationCompleted,
	})
	assert.Error(t, err)
}
