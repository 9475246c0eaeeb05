// Package kafka publishes change events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"github.com/turbolytics/activerecord/pkg/changes"
)

type Option func(*Publisher)

func WithLogger(l *zap.Logger) Option {
	return func(p *Publisher) {
		p.logger = l
	}
}

// Publisher produces one message per change event and waits for the
// broker to acknowledge it.
type Publisher struct {
	producer *kafka.Producer
	topic    string
	logger   *zap.Logger
}

// ParseURI reads kafka://broker1:9092,broker2:9092/topic?acks=all into a
// topic and a producer config. Query parameters are passed through as
// librdkafka settings.
func ParseURI(uri string) (string, kafka.ConfigMap, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", nil, fmt.Errorf("kafka: parse uri: %w", err)
	}
	if u.Scheme != "kafka" {
		return "", nil, fmt.Errorf("kafka: unsupported scheme %q", u.Scheme)
	}
	topic := strings.TrimPrefix(u.Path, "/")
	if topic == "" {
		return "", nil, fmt.Errorf("kafka: no topic in %q", uri)
	}

	config := kafka.ConfigMap{
		"client.id":        "activerecord",
		"acks":             "all",
		"linger.ms":        "5",
		"compression.type": "snappy",
	}
	if u.Host != "" {
		config["bootstrap.servers"] = u.Host
	}
	for key, values := range u.Query() {
		if len(values) > 0 {
			config[key] = values[0]
		}
	}
	if _, ok := config["bootstrap.servers"]; !ok {
		if _, mock := config["test.mock.num.brokers"]; !mock {
			return "", nil, fmt.Errorf("kafka: no brokers in %q", uri)
		}
	}
	return topic, config, nil
}

// New opens a producer for topic.
func New(topic string, config kafka.ConfigMap, opts ...Option) (*Publisher, error) {
	p := &Publisher{
		topic:  topic,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	producer, err := kafka.NewProducer(&config)
	if err != nil {
		return nil, fmt.Errorf("kafka: producer: %w", err)
	}
	p.producer = producer

	go func() {
		for e := range producer.Events() {
			if ev, ok := e.(kafka.Error); ok {
				p.logger.Error("producer error", zap.Error(ev))
			}
		}
	}()

	p.logger.Info("kafka publisher connected", zap.String("topic", topic))
	return p, nil
}

func (p *Publisher) Publish(ctx context.Context, event changes.Event) error {
	msg, err := message(p.topic, event)
	if err != nil {
		return err
	}

	delivery := make(chan kafka.Event, 1)
	if err := p.producer.Produce(msg, delivery); err != nil {
		return fmt.Errorf("kafka: produce: %w", err)
	}

	select {
	case e := <-delivery:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("kafka: unexpected delivery report %v", e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("kafka: delivery to %s: %w", p.topic, m.TopicPartition.Error)
		}
		p.logger.Debug("event delivered",
			zap.String("topic", p.topic),
			zap.Int32("partition", m.TopicPartition.Partition),
			zap.Int64("offset", int64(m.TopicPartition.Offset)),
		)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes outstanding messages and closes the producer.
func (p *Publisher) Close(ctx context.Context) error {
	timeout := 5000
	if deadline, ok := ctx.Deadline(); ok {
		timeout = int(time.Until(deadline).Milliseconds())
	}
	if timeout < 0 {
		timeout = 0
	}
	remaining := p.producer.Flush(timeout)
	p.producer.Close()
	if remaining > 0 {
		return fmt.Errorf("kafka: %d events not delivered", remaining)
	}
	return nil
}

// message keys events by table and primary key so changes to one row stay
// in one partition.
func message(topic string, event changes.Event) (*kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("kafka: encode event: %w", err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(event.Payload.Source.Table + ":" + strconv.FormatInt(event.Key, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "op", Value: []byte(event.Payload.Op)},
			{Key: "table", Value: []byte(event.Payload.Source.Table)},
		},
	}, nil
}
