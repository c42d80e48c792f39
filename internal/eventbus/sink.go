package eventbus

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
)

// Sink delivers an encoded event. Key groups related messages where the
// transport supports it (the session id).
type Sink interface {
	Publish(ctx context.Context, subject string, key string, data []byte) error
	Close() error
}

// Connect dials NATS with reconnects, logging connection changes.
func Connect(natsURL string, name string, logger *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("reconnected to NATS", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("connected to NATS", "url", natsURL, "name", name)
	return conn, nil
}

// NATSSink publishes on the event's own subject.
type NATSSink struct {
	conn *nats.Conn
}

func NewNATSSink(conn *nats.Conn) *NATSSink {
	return &NATSSink{conn: conn}
}

func (s *NATSSink) Publish(_ context.Context, subject string, _ string, data []byte) error {
	return s.conn.Publish(subject, data)
}

// Close flushes pending publishes. The connection itself belongs to the caller.
func (s *NATSSink) Close() error {
	return s.conn.Flush()
}

func (s *NATSSink) IsConnected() bool {
	return s.conn != nil && s.conn.IsConnected()
}

// KafkaSink writes every event to one topic, keyed by session id so a
// session's events stay ordered within a partition. The NATS subject travels
// as a header.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			RequiredAcks:           kafka.RequireAll,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

func (s *KafkaSink) Publish(ctx context.Context, subject string, key string, data []byte) error {
	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafka.Header{
			{Key: "subject", Value: []byte(subject)},
		},
		Time: time.Now(),
	})
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
