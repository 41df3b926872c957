package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/6529-Collections/netflow/internal/network"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrTransportNotStarted = errors.New("kafka transport not started")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaTransport publishes synchronously so a returned nil means the brokers
// acknowledged the message.
type KafkaTransport struct {
	mu      sync.Mutex
	brokers []string
	writer  messageWriter
	started bool
}

var newWriter = func(brokers []string) messageWriter {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		Async:                  false,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaTransport(brokers []string) network.NetworkTransport {
	return &KafkaTransport{brokers: brokers}
}

func (k *KafkaTransport) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		return nil
	}
	if len(k.brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	k.writer = newWriter(k.brokers)
	k.started = true
	zap.L().Info("Kafka transport started", zap.Strings("brokers", k.brokers))
	return nil
}

func (k *KafkaTransport) Stop() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.started {
		return nil
	}
	k.started = false
	return k.writer.Close()
}

func (k *KafkaTransport) Publish(ctx context.Context, topic string, key []byte, data []byte) error {
	k.mu.Lock()
	writer, started := k.writer, k.started
	k.mu.Unlock()
	if !started {
		return ErrTransportNotStarted
	}
	return writer.WriteMessages(ctx, kafkago.Message{
		Topic: topic,
		Key:   key,
		Value: data,
	})
}
