package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/capacity-forecast-etl/internal/config"
	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
	"github.com/couchcryptid/capacity-forecast-etl/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes every joined record of a run to a Kafka topic, one message
// per date. It implements pipeline.Loader.
type Writer struct {
	writer    messageWriter
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, batchSize: cfg.BatchSize, logger: logger, metrics: metrics}
}

// RecordMessage is the JSON value of one published message.
type RecordMessage struct {
	Date     string             `json:"date"`
	Forecast map[string]float64 `json:"forecast"`
	Status   map[string]bool    `json:"status"`
	RunID    string             `json:"run_id"`
}

// Load serializes the joined dataset and publishes it in chunks of the
// configured batch size.
func (w *Writer) Load(ctx context.Context, rec domain.Reconciliation) error {
	records := rec.Joined.Records
	if len(records) == 0 {
		return nil
	}
	generatedAt := rec.Summary.FinishedAt
	if generatedAt.IsZero() {
		generatedAt = rec.Summary.StartedAt
	}

	batch := w.batchSize
	if batch <= 0 {
		batch = len(records)
	}
	for start := 0; start < len(records); start += batch {
		end := min(start+batch, len(records))
		msgs := make([]kafkago.Message, 0, end-start)
		for i := start; i < end; i++ {
			msg, err := serializeToMessage(records[i], rec.Summary.RunID, generatedAt)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("publish records %d-%d: %w", start, end-1, err)
		}
		w.metrics.RecordsPublished.Add(float64(len(msgs)))
	}
	w.logger.Info("records published", "count", len(records), "run_id", rec.Summary.RunID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals one joined record into a Kafka message keyed by
// date, so republished dates land on the same partition.
func serializeToMessage(r domain.Record, runID string, generatedAt time.Time) (kafkago.Message, error) {
	date := domain.FormatDate(r.Date)
	data, err := json.Marshal(RecordMessage{
		Date:     date,
		Forecast: r.Forecast,
		Status:   r.Status,
		RunID:    runID,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize record %s: %w", date, err)
	}
	return kafkago.Message{
		Key:   []byte(date),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "run_id", Value: []byte(runID)},
			{Key: "generated_at", Value: []byte(generatedAt.UTC().Format(time.RFC3339))},
		},
	}, nil
}
