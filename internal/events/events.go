// Package events publishes batch lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

// Publisher announces finished batches.
type Publisher interface {
	PublishBatch(ctx context.Context, b *model.BatchResult) error
	Close() error
}

// BatchCompleted is the message body written for each finished batch.
type BatchCompleted struct {
	BatchID        string    `json:"batch_id"`
	CreatedAt      time.Time `json:"created_at"`
	Mode           string    `json:"mode,omitempty"`
	TotalProcessed int       `json:"total_processed"`
	Succeeded      int       `json:"succeeded"`
	Failed         int       `json:"failed"`
	ProcessingTime float64   `json:"processing_time"`
	CostUSD        float64   `json:"cost_usd"`
	FailedIndexes  []int     `json:"failed_indexes,omitempty"`
}

// NewBatchCompleted summarizes b.
func NewBatchCompleted(b *model.BatchResult) BatchCompleted {
	ev := BatchCompleted{
		BatchID:        b.ID,
		CreatedAt:      b.CreatedAt,
		Mode:           string(b.Mode),
		TotalProcessed: b.TotalProcessed,
		Succeeded:      b.Succeeded,
		Failed:         b.Failed,
		ProcessingTime: b.ProcessingTimeSeconds,
		CostUSD:        b.CostUSD,
	}
	for i, r := range b.Results {
		if r.Error != nil {
			ev.FailedIndexes = append(ev.FailedIndexes, i)
		}
	}
	return ev
}

// Nop discards events.
type Nop struct{}

// PublishBatch implements Publisher.
func (Nop) PublishBatch(context.Context, *model.BatchResult) error { return nil }

// Close implements Publisher.
func (Nop) Close() error { return nil }

// Kafka writes one message per batch, keyed by batch ID.
type Kafka struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafka wraps an existing producer.
func NewKafka(producer sarama.SyncProducer, topic string) *Kafka {
	return &Kafka{producer: producer, topic: topic}
}

// PublishBatch implements Publisher.
func (k *Kafka) PublishBatch(ctx context.Context, b *model.BatchResult) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "events: publish batch")
	}
	body, err := json.Marshal(NewBatchCompleted(b))
	if err != nil {
		return eris.Wrap(err, "events: marshal batch event")
	}
	partition, offset, err := k.producer.SendMessage(&sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(b.ID),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return eris.Wrapf(err, "events: send batch %s", b.ID)
	}
	zap.L().Debug("events: batch published",
		zap.String("batch_id", b.ID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close implements Publisher.
func (k *Kafka) Close() error {
	return eris.Wrap(k.producer.Close(), "events: close producer")
}

// New returns a Kafka publisher when brokers are configured, otherwise Nop.
func New(cfg config.KafkaConfig) (Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return Nop{}, nil
	}
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_6_0_0
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, eris.Wrap(err, "events: connect kafka")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "outreach.batch.completed"
	}
	return NewKafka(producer, topic), nil
}
