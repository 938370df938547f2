// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"medifusion-go/internal/config"
	"medifusion-go/pkg/log"
	"medifusion-go/pkg/tasks"

	"github.com/segmentio/kafka-go"
)

// messageWriter 是 *kafka.Writer 中被用到的部分，便于测试替换。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher 把分析事件写入 Kafka。
type Publisher struct {
	writer messageWriter
	topic  string
}

// NewPublisher 初始化 Kafka 生产者。Brokers 以逗号分隔；为空时返回 nil，
// 调用方应改用 NopPublisher。
func NewPublisher(cfg config.KafkaConfig) *Publisher {
	brokers := splitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	log.Infof("Kafka 生产者初始化成功, brokers=%v, topic=%s", brokers, cfg.Topic)
	return &Publisher{writer: w, topic: cfg.Topic}
}

// PublishAnalysis 发送一个分析事件到 Kafka。
func (p *Publisher) PublishAnalysis(ctx context.Context, ev tasks.AnalysisEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal analysis event: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: ev.Key(), Value: payload}); err != nil {
		return fmt.Errorf("write analysis event to %s: %w", p.topic, err)
	}
	return nil
}

// Close 刷新并关闭生产者。
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// NopPublisher 在未配置 Kafka 时丢弃所有事件。
type NopPublisher struct{}

func (NopPublisher) PublishAnalysis(context.Context, tasks.AnalysisEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

func splitBrokers(s string) []string {
	var out []string
	for _, b := range strings.Split(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
