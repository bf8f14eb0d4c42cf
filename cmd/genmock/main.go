// Command genmock writes a deterministic fixture set of seven-day capacity
// forecast reports and yearly incident exports, then reconciles the reports
// in-process with the domain package and prints the figures the integration
// tests assert on.
//
// The fixture includes the cases the pipeline must tolerate: republished
// reports with two versions, a report with no data block, a report with a
// non-numeric flag row, an unparseable identifier, and an excluded year.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -start 2022-01-01 -days 10
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// publishHour is when the operator posts the morning report.
const publishHour = 9

type options struct {
	outDir string
	start  time.Time
	days   int
	seed   uint64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "data/mock", "output directory; reports/ and statuses/ are created under it")
	start := flag.String("start", "2022-01-01", "first report date (YYYY-MM-DD)")
	days := flag.Int("days", 10, "number of consecutive report dates")
	seed := flag.Uint64("seed", 42, "random seed for metric values")
	flag.Parse()

	startDate, err := time.Parse("2006-01-02", *start)
	if err != nil {
		return fmt.Errorf("invalid -start: %w", err)
	}
	if *days < 3 {
		return fmt.Errorf("-days must be at least 3, got %d", *days)
	}
	opts := options{outDir: *outDir, start: startDate, days: *days, seed: *seed}

	reports, err := writeReports(opts)
	if err != nil {
		return fmt.Errorf("writing reports: %w", err)
	}
	log.Printf("wrote %d report documents", len(reports))

	incidents, err := writeIncidents(opts)
	if err != nil {
		return fmt.Errorf("writing incidents: %w", err)
	}
	log.Printf("wrote %d incident rows", incidents)

	return printStats(reports)
}

// writeReports writes the report fixtures and returns their contents by id.
func writeReports(opts options) (map[string][]byte, error) {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed))
	// Fixed clock so version timestamps are reproducible.
	clock := clockwork.NewFakeClockAt(opts.start.Add(publishHour * time.Hour))

	docs := make(map[string][]byte)
	for i := 0; i < opts.days; i++ {
		reportDate := opts.start.AddDate(0, 0, i)
		year := reportDate.Format("2006")

		id := filepath.ToSlash(filepath.Join(year, reportDate.Format("20060102")+"_"+version(clock.Now())+".txt"))
		docs[id] = renderReport(reportDate, forecastRows(rng, i == 1))

		// Every third day the operator republishes the report later that morning.
		if i%3 == 2 {
			later := clock.Now().Add(90 * time.Minute)
			id := filepath.ToSlash(filepath.Join(year, reportDate.Format("20060102")+"_"+version(later)+".txt"))
			docs[id] = renderReport(reportDate, forecastRows(rng, false))
		}
		clock.Advance(24 * time.Hour)
	}

	// A document with no data block and an identifier with no report date.
	blank := opts.start.AddDate(0, 0, opts.days)
	docs[blank.Format("20060102")+".txt"] = []byte(`"C","Report unavailable"` + "\n")
	docs["README.txt"] = []byte("fixture notes\n")

	for id, content := range docs {
		path := filepath.Join(opts.outDir, "reports", filepath.FromSlash(id))
		if err := writeFile(path, content); err != nil {
			return nil, err
		}
	}
	return docs, nil
}

// version renders a 17-digit publication timestamp.
func version(t time.Time) string {
	return strings.Replace(t.UTC().Format("20060102150405.000"), ".", "", 1)
}

type row struct {
	label  string
	values [domain.OffsetCount]string
}

// forecastRows generates one row per known metric label. Flag metrics carry
// "N" in every cell, like the operator's watch and warning rows. When
// withUnknown is set an extra unmapped metric row is appended.
func forecastRows(rng *rand.Rand, withUnknown bool) []row {
	labels := domain.MetricLabels()
	rows := make([]row, 0, len(labels)+1)
	for _, label := range labels {
		var r row
		r.label = label
		for k := range r.values {
			r.values[k] = metricValue(rng, label)
		}
		rows = append(rows, r)
	}
	if withUnknown {
		var r row
		r.label = "Net Interchange Forecast"
		for k := range r.values {
			r.values[k] = fmt.Sprintf("%d", 800+rng.IntN(400))
		}
		rows = append(rows, r)
	}
	return rows
}

func metricValue(rng *rand.Rand, label string) string {
	switch {
	case strings.HasPrefix(label, "High Temperature"):
		return fmt.Sprintf("%d", 20+rng.IntN(30))
	case strings.HasPrefix(label, "Dew Point"):
		return fmt.Sprintf("%d", rng.IntN(25))
	case strings.Contains(label, "Watch"), strings.Contains(label, "Warning"), strings.Contains(label, "Event"):
		return "N"
	case strings.HasPrefix(label, "Projected Surplus"):
		v := rng.IntN(4000) - 1000
		if v < 0 {
			return fmt.Sprintf("(%d)", -v)
		}
		return fmt.Sprintf("%d", v)
	default:
		return fmt.Sprintf("%d", 1000+rng.IntN(20000))
	}
}

func renderReport(reportDate time.Time, rows []row) []byte {
	var b strings.Builder
	b.WriteString(`"C","Seven-Day Capacity Forecast"` + "\n")
	b.WriteString(`"C","Report date: ` + reportDate.Format("01/02/2006") + `"` + "\n")
	b.WriteString(`"H","Date","Day 1","Day 2","Day 3","Day 4","Day 5","Day 6","Day 7"` + "\n")
	b.WriteString(`"D","Date"`)
	for k := 0; k < domain.OffsetCount; k++ {
		b.WriteString(`,"` + reportDate.AddDate(0, 0, k).Format("01/02/2006") + `"`)
	}
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString(`"D","` + r.label + `"`)
		for _, v := range r.values {
			b.WriteString(`,"` + v + `"`)
		}
		b.WriteString("\n")
	}
	b.WriteString(`"T","EOF"` + "\n")
	return []byte(b.String())
}

// writeIncidents writes one export for the fixture year and one for the
// year before, which the default configuration excludes.
func writeIncidents(opts options) (int, error) {
	labels := domain.StatusLabels()
	day := func(offset int, hour int) string {
		return opts.start.AddDate(0, 0, offset).Add(time.Duration(hour) * time.Hour).Format("2006-01-02 15:04")
	}

	var b strings.Builder
	b.WriteString("Time In,System Condition,Time Out\n")
	rows := [][3]string{
		{day(1, 7), labels[2], day(1, 11)}, // OP4 Action 1, same day
		{day(1, 8), labels[2], day(1, 9)},  // duplicate day, collapses
		{day(3, 22), labels[1], day(4, 3)}, // Min Gen across midnight
		{day(5, 14), "Conservation Appeal", day(5, 16)},
		{"not a time", labels[0], day(6, 1)}, // unparseable, dropped
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "%s,%q,%s\n", r[0], r[1], r[2])
	}
	year := opts.start.Format("2006")
	if err := writeFile(filepath.Join(opts.outDir, "statuses", year+".csv"), []byte(b.String())); err != nil {
		return 0, err
	}

	prior := opts.start.AddDate(-1, 0, 0)
	old := "Time In,System Condition,Time Out\n" +
		prior.Format("2006-01-02 15:04") + ",\"" + labels[4] + "\"," + prior.Add(time.Hour).Format("2006-01-02 15:04") + "\n"
	if err := writeFile(filepath.Join(opts.outDir, "statuses", prior.Format("2006")+".csv"), []byte(old)); err != nil {
		return 0, err
	}
	return len(rows) + 1, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// printStats reconciles the fixture with the domain package alone.
func printStats(docs map[string][]byte) error {
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	res := domain.ResolveReports(ids)

	var windows []domain.ReportWindow
	var omitted, dropped, unmapped int
	for _, ref := range res.Selected {
		block, err := domain.ExtractBlock(docs[ref.ID])
		if err != nil {
			omitted++
			continue
		}
		w := domain.PivotBlock(ref, block)
		dropped += len(w.Dropped)
		unmapped += len(w.Unmapped)
		windows = append(windows, w)
	}
	table := domain.MergeWindows(windows)
	dates := table.Dates()
	if len(dates) == 0 {
		return fmt.Errorf("fixture reconciled to an empty table")
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Listed: %d\n", len(ids))
	fmt.Printf("Selected: %d, superseded: %d, unparseable ids: %d, no data block: %d\n",
		len(res.Selected), len(res.Superseded), len(res.Failures), omitted)
	fmt.Printf("Rows dropped: %d, unmapped rows: %d\n", dropped, unmapped)
	fmt.Printf("Dates: %d (%s .. %s)\n", len(dates), domain.FormatDate(dates[0]), domain.FormatDate(dates[len(dates)-1]))
	fmt.Printf("Forecast columns: %d\n", len(table.Columns()))
	if c, offset, ok := table.Freshest(dates[len(dates)-1], "PPL"); ok {
		fmt.Printf("Last date PPL: %g (offset %d, report %s)\n", c.Value, offset, domain.FormatDate(c.Source.ReportDate))
	}
	return nil
}
