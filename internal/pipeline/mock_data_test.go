package pipeline_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
)

// metricRow is one labelled row of a mock report.
type metricRow struct {
	label  string
	values [domain.OffsetCount]string
}

func numbers(vs ...float64) [domain.OffsetCount]string {
	var out [domain.OffsetCount]string
	for i, v := range vs {
		out[i] = fmt.Sprintf("%g", v)
	}
	return out
}

// renderReport builds a report in the operator's seven-day forecast layout.
func renderReport(reportDate time.Time, rows ...metricRow) []byte {
	var b strings.Builder
	b.WriteString(`"C","Seven-Day Capacity Forecast"` + "\n")
	b.WriteString(`"H","Date","Day 1","Day 2","Day 3","Day 4","Day 5","Day 6","Day 7"` + "\n")
	b.WriteString(`"D","Date"`)
	for i := 0; i < domain.OffsetCount; i++ {
		b.WriteString(`,"` + reportDate.AddDate(0, 0, i).Format("01/02/2006") + `"`)
	}
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(`"D","` + r.label + `"`)
		for _, v := range r.values {
			b.WriteString("," + v)
		}
		b.WriteString("\n")
	}
	b.WriteString(`"T","EOF"` + "\n")
	return []byte(b.String())
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// threeDayReports is the standard overlap scenario: PPL published on three
// consecutive days.
func threeDayReports() map[string][]byte {
	return map[string][]byte{
		"20220101.txt": renderReport(date(2022, 1, 1),
			metricRow{"Projected Peak Load", numbers(10, 11, 12, 13, 14, 15, 16)},
			metricRow{"Power Watch", [domain.OffsetCount]string{"N", "N", "N", "N", "N", "N", "N"}},
		),
		"20220102.txt": renderReport(date(2022, 1, 2),
			metricRow{"Projected Peak Load", numbers(21, 22, 23, 24, 25, 26, 27)},
		),
		"20220103.txt": renderReport(date(2022, 1, 3),
			metricRow{"Projected Peak Load", numbers(31, 32, 33, 34, 35, 36, 37)},
		),
	}
}

// --- mocks ---

type memSource struct {
	docs    map[string][]byte
	extra   []string // listed identifiers with no content
	listErr error
	readErr map[string]error
}

func (m *memSource) ListReports(_ context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]string, 0, len(m.docs)+len(m.extra))
	for id := range m.docs {
		ids = append(ids, id)
	}
	return append(ids, m.extra...), nil
}

func (m *memSource) ReadReport(_ context.Context, ref domain.ReportRef) (domain.RawReportDocument, error) {
	if err := m.readErr[ref.ID]; err != nil {
		return domain.RawReportDocument{}, err
	}
	content, ok := m.docs[ref.ID]
	if !ok {
		return domain.RawReportDocument{}, fmt.Errorf("%s: not found", ref.ID)
	}
	return domain.RawReportDocument{Ref: ref, Content: content}, nil
}

type memIncidents struct {
	rows []domain.IncidentRow
	err  error
}

func (m *memIncidents) ReadIncidents(_ context.Context) ([]domain.IncidentRow, error) {
	return m.rows, m.err
}

type captureLoader struct {
	mu    sync.Mutex
	loads []domain.Reconciliation
	err   error
}

func (c *captureLoader) Load(_ context.Context, rec domain.Reconciliation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.loads = append(c.loads, rec)
	return nil
}

func (c *captureLoader) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.loads)
}

func (c *captureLoader) last(t *testing.T) domain.Reconciliation {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.loads) == 0 {
		t.Fatal("nothing was loaded")
	}
	return c.loads[len(c.loads)-1]
}
