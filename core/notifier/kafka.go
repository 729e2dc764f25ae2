// Package notifier publishes record notifications to external systems.
package notifier

import (
	"context"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/relabs-tech/autorest/core"
	"github.com/relabs-tech/autorest/core/logger"
)

// Header keys set on every published message
const (
	HeaderResource  = "resource"
	HeaderOperation = "operation"
)

// messageWriter is the part of kafka.Writer the notifier uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka is a core.Notifier which publishes every notification as a message on a kafka
// topic. The message key is the record's resource name, the value the record's JSON.
// Writes are asynchronous: Notify only enqueues, failed batches are logged when the
// writer completes them.
type Kafka struct {
	writer messageWriter
}

// KafkaBuilder configures a Kafka notifier
type KafkaBuilder struct {
	// Brokers is the list of kafka broker addresses
	Brokers []string
	// Topic receives all notifications
	Topic string
	// Timeout limits each batch write. Defaults to 10 seconds.
	Timeout time.Duration
}

// NewKafka returns a notifier writing to the topic on the given brokers
func NewKafka(kb KafkaBuilder) *Kafka {
	timeout := kb.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(kb.Brokers...),
		Topic:                  kb.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Async:                  true,
		BatchTimeout:           10 * time.Millisecond,
		WriteTimeout:           timeout,
		Completion:             completed,
	}
	return newKafka(w)
}

func newKafka(w messageWriter) *Kafka {
	return &Kafka{writer: w}
}

// completed logs every message of a failed batch
func completed(messages []kafka.Message, err error) {
	if err == nil {
		return
	}
	rlog := logger.Default()
	for _, m := range messages {
		rlog.WithError(err).Errorf("Error 4801: cannot publish %s %s notification",
			header(m, HeaderOperation), header(m, HeaderResource))
	}
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// ParseBrokers splits a comma separated broker list, dropping empty entries
func ParseBrokers(brokers string) []string {
	var result []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			result = append(result, b)
		}
	}
	return result
}

// Message builds the kafka message for a notification
func Message(resource string, operation core.Operation, payload []byte) kafka.Message {
	return kafka.Message{
		Key:   []byte(resource),
		Value: payload,
		Headers: []kafka.Header{
			{Key: HeaderResource, Value: []byte(resource)},
			{Key: HeaderOperation, Value: []byte(operation)},
		},
	}
}

// Notify implements core.Notifier. It does not wait for the broker; write failures
// are logged, the request which caused the notification is never failed by them.
func (k *Kafka) Notify(ctx context.Context, resource string, operation core.Operation, payload []byte) {
	rlog := logger.FromContext(ctx)
	if err := k.writer.WriteMessages(context.WithoutCancel(ctx), Message(resource, operation, payload)); err != nil {
		rlog.WithError(err).Errorf("Error 4801: cannot publish %s %s notification", operation, resource)
		return
	}
	rlog.Debugf("queued %s %s notification", operation, resource)
}

// Close flushes pending messages and closes the writer
func (k *Kafka) Close() error {
	return k.writer.Close()
}
