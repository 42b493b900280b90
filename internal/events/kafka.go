package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// KafkaPublisher пишет события в один топик, ключ - id заказа,
// так что события одного заказа попадают в одну партицию по порядку
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *slog.Logger
}

func NewKafkaPublisher(log *slog.Logger, brokers []string, topic string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("events.NewKafkaPublisher: %w", err)
	}

	return NewKafkaPublisherWithProducer(log, producer, topic), nil
}

func NewKafkaPublisherWithProducer(log *slog.Logger, producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		log:      log.With(slog.String("component", "events/kafka")),
	}
}

func (p *KafkaPublisher) Publish(_ context.Context, evt OrderEvent) error {
	const op = "events.KafkaPublisher.Publish"

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", op, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(evt.OrderID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(evt.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.log.Info("event published to kafka",
		slog.String("topic", p.topic),
		slog.String("type", evt.Type),
		slog.Int("partition", int(partition)),
		slog.Int64("offset", offset),
		slog.String("order_id", evt.OrderID),
	)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
