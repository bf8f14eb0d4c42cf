//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/capacity-forecast-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/capacity-forecast-etl/internal/adapter/filestore"
	"github.com/couchcryptid/capacity-forecast-etl/internal/adapter/kafka"
	"github.com/couchcryptid/capacity-forecast-etl/internal/config"
	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
	"github.com/couchcryptid/capacity-forecast-etl/internal/observability"
	"github.com/couchcryptid/capacity-forecast-etl/internal/pipeline"
	"github.com/couchcryptid/capacity-forecast-etl/internal/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSinkTopic = "test-capacity-sink"

// TestKafkaWriter verifies the writer publishes one keyed message per joined
// record with run headers.
func TestKafkaWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaSinkTopic: testSinkTopic, BatchSize: 2}
	metrics := observability.NewMetricsForTesting()
	writer := kafka.NewWriter(cfg, discardLogger(), metrics)
	t.Cleanup(func() { _ = writer.Close() })

	day := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := domain.Reconciliation{
		Joined: domain.Dataset{
			ForecastColumns: []string{"PPL_1"},
			StatusColumns:   []string{domain.AbnormalColumn},
			Records: []domain.Record{
				{Date: day, Forecast: map[string]float64{"PPL_1": 10}, Status: map[string]bool{domain.AbnormalColumn: false}},
				{Date: day.AddDate(0, 0, 1), Forecast: map[string]float64{"PPL_1": 21}, Status: map[string]bool{domain.AbnormalColumn: true}},
				{Date: day.AddDate(0, 0, 2), Forecast: map[string]float64{"PPL_1": 31}, Status: map[string]bool{domain.AbnormalColumn: false}},
			},
		},
		Summary: domain.RunSummary{RunID: "run-it", FinishedAt: time.Date(2022, 1, 9, 6, 0, 0, 0, time.UTC)},
	}
	require.NoError(t, writer.Load(ctx, rec))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.RecordsPublished))

	msgs := readMessages(ctx, t, broker, testSinkTopic, 3)
	assert.Equal(t, "2022-01-01", string(msgs[0].Key))
	assert.Equal(t, "2022-01-03", string(msgs[2].Key))

	h := headers(msgs[1])
	assert.Equal(t, "run-it", h["run_id"])
	assert.Equal(t, "2022-01-09T06:00:00Z", h["generated_at"])

	var body kafka.RecordMessage
	require.NoError(t, json.Unmarshal(msgs[1].Value, &body))
	assert.Equal(t, "2022-01-02", body.Date)
	assert.Equal(t, 21.0, body.Forecast["PPL_1"])
	assert.True(t, body.Status[domain.AbnormalColumn])
}

// TestPipelineEndToEnd reconciles file fixtures through every sink: CSV,
// Parquet, the SQLite run ledger, and Kafka.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	reportsDir, statusesDir := writeFixtures(t)
	outDir := filepath.Join(t.TempDir(), "out")
	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaSinkTopic: testSinkTopic, BatchSize: 50}

	metrics := observability.NewMetricsForTesting()
	logger := discardLogger()

	ledger, err := store.NewLedger(filepath.Join(outDir, "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ledger.Close() })
	writer := kafka.NewWriter(cfg, logger, metrics)
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(
		filestore.NewReportStore(reportsDir),
		filestore.NewIncidentStore(statusesDir, nil, logger),
		pipeline.NewCachedTransformer(pipeline.NewTransformer(logger), 16, metrics),
		pipeline.MultiLoader{
			csvfile.NewWriter(outDir, logger),
			store.NewParquetStore(filepath.Join(outDir, "parquet"), logger),
			ledger,
			writer,
		},
		logger, metrics,
		pipeline.Options{Workers: 2, Incidents: domain.IncidentOptions{ExpandSpans: true}},
	)

	rec, err := p.RunOnce(ctx)
	require.NoError(t, err)

	// Three reconciled reports cover 2022-01-01 through 2022-01-09.
	require.Equal(t, 9, rec.Forecast.Len())
	v, ok := rec.Forecast.Value(time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC), "PPL_2")
	require.True(t, ok)
	assert.Equal(t, 22.0, v, "latest version of the 2022-01-02 report wins")
	assert.Equal(t, 3, rec.Summary.Count(domain.OutcomeReconciled))
	assert.Equal(t, 1, rec.Summary.Count(domain.OutcomeSuperseded))
	assert.Equal(t, 1, rec.Summary.Count(domain.OutcomeOmitted))

	// Kafka: one message per joined date, tagged with the run id.
	msgs := readMessages(ctx, t, broker, testSinkTopic, len(rec.Joined.Records))
	flagged := 0
	for _, m := range msgs {
		assert.Equal(t, rec.Summary.RunID, headers(m)["run_id"])
		var body kafka.RecordMessage
		require.NoError(t, json.Unmarshal(m.Value, &body))
		if body.Status["OP41"] {
			flagged++
		}
	}
	assert.Equal(t, 2, flagged, "incident spans 2022-01-02 and 2022-01-03")

	// CSV outputs.
	for _, name := range []string{csvfile.ForecastsFile, csvfile.StatusesFile, csvfile.JoinedFile} {
		_, err := os.Stat(filepath.Join(outDir, name))
		assert.NoError(t, err, name)
	}

	// Parquet output.
	values, err := store.NewParquetStore(filepath.Join(outDir, "parquet"), logger).ReadForecasts(ctx)
	require.NoError(t, err)
	assert.Len(t, values, 21)

	// Ledger.
	latest, ok, err := ledger.LatestRun(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Summary.RunID, latest.RunID)
	assert.Len(t, latest.Outcomes, 5)
}
