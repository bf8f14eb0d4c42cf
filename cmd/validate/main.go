// Command validate checks the outputs of a reconciliation run against the
// output contract: the forecast table is date-indexed, ascending, unique and
// gap-free with "<code>_<1..7>" columns; status flags are boolean with an
// Abnormal aggregate; the joined dataset agrees with both; and, when present,
// the Parquet export carries exactly the forecast CSV's values.
//
// Usage:
//
//	go run ./cmd/validate -output-dir data/output
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/capacity-forecast-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
	"github.com/couchcryptid/capacity-forecast-etl/internal/store"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	outputDir := flag.String("output-dir", "data/output", "directory holding the CSV outputs of a run")
	parquetDir := flag.String("parquet-dir", "", "directory holding the Parquet outputs; defaults to <output-dir>/parquet")
	flag.Parse()

	if *parquetDir == "" {
		*parquetDir = filepath.Join(*outputDir, "parquet")
	}
	os.Exit(run(*outputDir, *parquetDir))
}

func run(outputDir, parquetDir string) int {
	fmt.Println("=== Capacity Forecast Output Validation ===")
	fmt.Println()

	forecast, err := loadDataset(filepath.Join(outputDir, csvfile.ForecastsFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load forecasts: %v\n", err)
		return 1
	}
	statuses, err := loadDataset(filepath.Join(outputDir, csvfile.StatusesFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load statuses: %v\n", err)
		return 1
	}
	joined, err := loadDataset(filepath.Join(outputDir, csvfile.JoinedFile))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load joined dataset: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateForecastTable(forecast),
		validateStatusTable(statuses),
		validateJoined(joined, forecast, statuses),
	}
	if p, ok := validateParquet(parquetDir, forecast, statuses); ok {
		phases = append(phases, p)
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Rows: %d forecast, %d status, %d joined\n",
		len(forecast.Records), len(statuses.Records), len(joined.Records))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadDataset(path string) (domain.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Dataset{}, err
	}
	defer f.Close()
	return csvfile.ReadDataset(f)
}

// ── Phases ──

func validateForecastTable(ds domain.Dataset) *phase {
	p := &phase{name: "Forecast table contract"}
	if len(ds.Records) == 0 {
		p.errorf("forecast table is empty")
		return p
	}
	if len(ds.StatusColumns) > 0 {
		p.errorf("unexpected non-forecast columns: %v", ds.StatusColumns)
	}
	checkDateIndex(p, ds, true)
	for _, col := range ds.ForecastColumns {
		if _, offset, ok := domain.SplitColumnName(col); !ok || offset < 1 || offset > domain.OffsetCount {
			p.errorf("column %q is not <code>_<1..%d>", col, domain.OffsetCount)
		}
	}
	// Uncovered days inside the range are empty rows; the range itself must
	// start and end on covered days.
	boundary := []domain.Record{ds.Records[0]}
	if len(ds.Records) > 1 {
		boundary = append(boundary, ds.Records[len(ds.Records)-1])
	}
	for _, rec := range boundary {
		if len(rec.Forecast) == 0 {
			p.errorf("%s: boundary row has no values", domain.FormatDate(rec.Date))
		}
	}
	return p
}

func validateStatusTable(ds domain.Dataset) *phase {
	p := &phase{name: "Status table contract"}
	if len(ds.ForecastColumns) > 0 {
		p.errorf("unexpected forecast columns: %v", ds.ForecastColumns)
	}
	checkDateIndex(p, ds, false)
	checkAbnormal(p, ds)
	return p
}

func validateJoined(joined, forecast, statuses domain.Dataset) *phase {
	p := &phase{name: "Joined dataset consistency"}
	checkDateIndex(p, joined, true)
	checkAbnormal(p, joined)

	forecastByDate := indexByDate(forecast)
	statusByDate := indexByDate(statuses)
	for _, rec := range joined.Records {
		day := domain.FormatDate(rec.Date)
		src, ok := forecastByDate[rec.Date]
		if !ok {
			p.errorf("%s: date not in forecast table", day)
			continue
		}
		for col, v := range rec.Forecast {
			if want, ok := src.Forecast[col]; !ok || want != v {
				p.errorf("%s %s: joined %g, forecast table %g (present=%t)", day, col, v, want, ok)
			}
		}
		st := statusByDate[rec.Date]
		for col, flag := range rec.Status {
			if flag != st.Status[col] {
				p.errorf("%s %s: joined %t, status table %t", day, col, flag, st.Status[col])
			}
		}
	}
	return p
}

// validateParquet compares the long-format Parquet forecast values and status
// flags with the CSV outputs. ok is false when no Parquet output exists.
func validateParquet(dir string, forecast, statuses domain.Dataset) (*phase, bool) {
	if _, err := os.Stat(filepath.Join(dir, store.ForecastsFile)); errors.Is(err, fs.ErrNotExist) {
		return nil, false
	}
	p := &phase{name: "Parquet parity"}
	ps := store.NewParquetStore(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	values, err := ps.ReadForecasts(context.Background())
	if err != nil {
		p.errorf("read parquet: %v", err)
		return p, true
	}

	byDate := indexByDate(forecast)
	cells := 0
	for _, rec := range forecast.Records {
		cells += len(rec.Forecast)
	}
	if len(values) != cells {
		p.errorf("parquet has %d values, forecast CSV has %d", len(values), cells)
	}
	for _, v := range values {
		date := store.DateOf(v.Date)
		col := domain.ColumnName(v.Metric, int(v.Offset))
		want, ok := byDate[date].Forecast[col]
		if !ok || want != v.Value {
			p.errorf("%s %s: parquet %g, csv %g (present=%t)", domain.FormatDate(date), col, v.Value, want, ok)
		}
		if !store.DateOf(v.ReportDate).Equal(date.AddDate(0, 0, 1-int(v.Offset))) {
			p.errorf("%s %s: value sourced from report %s", domain.FormatDate(date), col, domain.FormatDate(store.DateOf(v.ReportDate)))
		}
	}

	flags, err := ps.ReadStatuses(context.Background())
	if err != nil {
		p.errorf("read parquet statuses: %v", err)
		return p, true
	}
	if want := len(statuses.Records) * len(statuses.StatusColumns); len(flags) != want {
		p.errorf("parquet has %d status flags, status CSV has %d", len(flags), want)
	}
	statusByDate := indexByDate(statuses)
	for _, f := range flags {
		date := store.DateOf(f.Date)
		want, ok := statusByDate[date].Status[f.Status]
		if !ok || want != f.Active {
			p.errorf("%s %s: parquet %t, csv %t (present=%t)", domain.FormatDate(date), f.Status, f.Active, want, ok)
		}
	}
	return p, true
}

// ── Checks ──

// checkDateIndex verifies dates are strictly ascending; with gapFree set,
// consecutive dates must also be one day apart.
func checkDateIndex(p *phase, ds domain.Dataset, gapFree bool) {
	for i := 1; i < len(ds.Records); i++ {
		prev, cur := ds.Records[i-1].Date, ds.Records[i].Date
		switch {
		case !cur.After(prev):
			p.errorf("row %d: date %s not after %s", i+1, domain.FormatDate(cur), domain.FormatDate(prev))
		case gapFree && !cur.Equal(prev.AddDate(0, 0, 1)):
			p.errorf("row %d: gap between %s and %s", i+1, domain.FormatDate(prev), domain.FormatDate(cur))
		}
	}
}

// checkAbnormal verifies the Abnormal flag is the OR of the other flags.
func checkAbnormal(p *phase, ds domain.Dataset) {
	hasAbnormal := false
	for _, col := range ds.StatusColumns {
		if col == domain.AbnormalColumn {
			hasAbnormal = true
		}
	}
	if !hasAbnormal {
		p.errorf("missing %s column", domain.AbnormalColumn)
		return
	}
	for _, rec := range ds.Records {
		active := false
		for col, v := range rec.Status {
			if col != domain.AbnormalColumn && v {
				active = true
			}
		}
		if rec.Status[domain.AbnormalColumn] != active {
			p.errorf("%s: %s=%t but other flags say %t", domain.FormatDate(rec.Date), domain.AbnormalColumn, rec.Status[domain.AbnormalColumn], active)
		}
	}
}

func indexByDate(ds domain.Dataset) map[time.Time]domain.Record {
	out := make(map[time.Time]domain.Record, len(ds.Records))
	for _, rec := range ds.Records {
		out[rec.Date] = rec
	}
	return out
}
