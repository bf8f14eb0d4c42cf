//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node KRaft broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cconn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cconn.Close()

	require.NoError(t, cconn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// readMessages reads n messages from the start of topic.
func readMessages(ctx context.Context, t *testing.T, broker, topic string, n int) []kafkago.Message {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	out := make([]kafkago.Message, 0, n)
	for len(out) < n {
		readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		cancel()
		require.NoError(t, err, "read message %d of %d from %s", len(out)+1, n, topic)
		out = append(out, msg)
	}
	return out
}

func headers(msg kafkago.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

// writeFixtures lays out three overlapping PPL reports, a superseded version,
// a document with no data block, and one incident export.
func writeFixtures(t *testing.T) (reportsDir, statusesDir string) {
	t.Helper()
	root := t.TempDir()
	reportsDir = filepath.Join(root, "reports")
	statusesDir = filepath.Join(root, "statuses")

	day := func(d int) time.Time { return time.Date(2022, 1, d, 0, 0, 0, 0, time.UTC) }
	files := map[string]string{
		"2022/20220101_20220101090000000.txt": report(day(1), "10,11,12,13,14,15,16"),
		"2022/20220102_20220102080000000.txt": report(day(2), "0,0,0,0,0,0,0"),
		"2022/20220102_20220102103000000.txt": report(day(2), "21,22,23,24,25,26,27"),
		"2022/20220103.txt":                   report(day(3), "31,32,33,34,35,36,37"),
		"2022/20220104.txt":                   `"C","Report unavailable"` + "\n",
	}
	for name, content := range files {
		writeFile(t, filepath.Join(reportsDir, filepath.FromSlash(name)), content)
	}
	writeFile(t, filepath.Join(statusesDir, "2022.csv"),
		"Time In,System Condition,Time Out\n"+
			"2022-01-02 07:00,\"OP4 Action 1, Power Caution\",2022-01-03 02:00\n")
	return reportsDir, statusesDir
}

func report(reportDate time.Time, ppl string) string {
	var b strings.Builder
	b.WriteString(`"C","Seven-Day Capacity Forecast"` + "\n")
	b.WriteString(`"D","Date"`)
	for k := 0; k < 7; k++ {
		b.WriteString(`,"` + reportDate.AddDate(0, 0, k).Format("01/02/2006") + `"`)
	}
	b.WriteString("\n")
	b.WriteString(`"D","Projected Peak Load",` + ppl + "\n")
	b.WriteString(`"T","EOF"` + "\n")
	return b.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
