package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
)

// Output file names.
const (
	ForecastsFile = "forecasts.parquet"
	StatusesFile  = "statuses.parquet"
)

// ParquetStore writes reconciled tables as long-format Parquet files. Long
// format keeps the schema fixed while the set of metric columns drifts.
// It implements pipeline.Loader.
type ParquetStore struct {
	DataDir string
	logger  *slog.Logger
}

// NewParquetStore creates a ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string, logger *slog.Logger) *ParquetStore {
	return &ParquetStore{DataDir: dataDir, logger: logger}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// ForecastValueRecord is one reconciled cell.
type ForecastValueRecord struct {
	Date          int64   `parquet:"date,timestamp(millisecond)"` // Unix ms, UTC midnight
	Metric        string  `parquet:"metric"`
	Offset        int32   `parquet:"offset"`
	Value         float64 `parquet:"value"`
	ReportDate    int64   `parquet:"report_date,timestamp(millisecond)"`
	ReportVersion string  `parquet:"report_version"`
}

// StatusRecord is one day's flags for one status code.
type StatusRecord struct {
	Date   int64  `parquet:"date,timestamp(millisecond)"`
	Status string `parquet:"status"`
	Active bool   `parquet:"active"`
}

// Load writes forecasts.parquet and statuses.parquet, replacing earlier runs.
func (s *ParquetStore) Load(_ context.Context, rec domain.Reconciliation) error {
	forecasts := forecastRecords(rec.Forecast)
	if err := writeParquetFile(filepath.Join(s.DataDir, ForecastsFile), forecasts); err != nil {
		return fmt.Errorf("writing forecasts parquet: %w", err)
	}
	statuses := statusRecords(rec.Status)
	if err := writeParquetFile(filepath.Join(s.DataDir, StatusesFile), statuses); err != nil {
		return fmt.Errorf("writing statuses parquet: %w", err)
	}
	s.logger.Info("parquet written", "dir", s.DataDir, "forecast_values", len(forecasts), "status_values", len(statuses))
	return nil
}

// ReadForecasts reads forecast values back in table order: date, then column.
func (s *ParquetStore) ReadForecasts(_ context.Context) ([]ForecastValueRecord, error) {
	return readParquetFile[ForecastValueRecord](filepath.Join(s.DataDir, ForecastsFile))
}

// ReadStatuses reads status flags back in table order.
func (s *ParquetStore) ReadStatuses(_ context.Context) ([]StatusRecord, error) {
	return readParquetFile[StatusRecord](filepath.Join(s.DataDir, StatusesFile))
}

func forecastRecords(t domain.ForecastTable) []ForecastValueRecord {
	var out []ForecastValueRecord
	cols := t.Columns()
	for _, d := range t.Dates() {
		for _, col := range cols {
			c, ok := t.Cell(d, col)
			if !ok {
				continue
			}
			code, offset, _ := domain.SplitColumnName(col)
			out = append(out, ForecastValueRecord{
				Date:          d.UnixMilli(),
				Metric:        code,
				Offset:        int32(offset),
				Value:         c.Value,
				ReportDate:    c.Source.ReportDate.UnixMilli(),
				ReportVersion: c.Source.Version,
			})
		}
	}
	return out
}

func statusRecords(t domain.StatusTable) []StatusRecord {
	var out []StatusRecord
	cols := t.Columns()
	for _, d := range t.Dates() {
		for _, col := range cols {
			out = append(out, StatusRecord{Date: d.UnixMilli(), Status: col, Active: t.Active(d, col)})
		}
	}
	return out
}

// DateOf converts a stored millisecond timestamp back to a calendar date.
func DateOf(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ---------------------------------------------------------------------------
// Parquet I/O helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
