// Package csvfile writes reconciled tables as date-indexed CSV files and reads
// them back for validation.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
)

// Output file names.
const (
	ForecastsFile = "forecasts.csv"
	StatusesFile  = "statuses.csv"
	JoinedFile    = "forecasts_and_statuses.csv"
)

// DateColumn is the header of the index column.
const DateColumn = "Date"

const dateLayout = "2006-01-02"

// Writer writes the three CSV outputs of a run into a directory.
// It implements pipeline.Loader.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a Writer for dir.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

// Load replaces forecasts.csv, statuses.csv and forecasts_and_statuses.csv.
// Each file is written to a temporary name and renamed into place.
func (w *Writer) Load(_ context.Context, rec domain.Reconciliation) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	outputs := []struct {
		name string
		ds   domain.Dataset
	}{
		{ForecastsFile, rec.Forecast.Dataset()},
		{StatusesFile, rec.Status.Dataset()},
		{JoinedFile, rec.Joined},
	}
	for _, o := range outputs {
		path := filepath.Join(w.dir, o.name)
		if err := writeAtomic(path, o.ds); err != nil {
			return fmt.Errorf("write %s: %w", o.name, err)
		}
		w.logger.Info("csv written", "path", path, "rows", len(o.ds.Records), "columns", len(o.ds.Columns()))
	}
	return nil
}

func writeAtomic(path string, ds domain.Dataset) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = WriteDataset(tmp, ds); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// WriteDataset writes ds with a leading date column. Missing forecast values
// are empty cells; status flags are "true" or "false".
func WriteDataset(out io.Writer, ds domain.Dataset) error {
	cw := csv.NewWriter(out)
	if err := cw.Write(append([]string{DateColumn}, ds.Columns()...)); err != nil {
		return err
	}

	row := make([]string, 1+len(ds.ForecastColumns)+len(ds.StatusColumns))
	for _, rec := range ds.Records {
		row[0] = rec.Date.Format(dateLayout)
		i := 1
		for _, col := range ds.ForecastColumns {
			row[i] = ""
			if v, ok := rec.Forecast[col]; ok {
				row[i] = strconv.FormatFloat(v, 'f', -1, 64)
			}
			i++
		}
		for _, col := range ds.StatusColumns {
			row[i] = strconv.FormatBool(rec.Status[col])
			i++
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadDataset parses a file written by WriteDataset. Columns named
// "<code>_<offset>" are forecast columns; every other column is a status flag.
func ReadDataset(in io.Reader) (domain.Dataset, error) {
	cr := csv.NewReader(in)
	header, err := cr.Read()
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 0 || header[0] != DateColumn {
		return domain.Dataset{}, fmt.Errorf("first column must be %q", DateColumn)
	}

	var ds domain.Dataset
	forecast := make([]bool, len(header))
	for i, col := range header[1:] {
		if _, _, ok := domain.SplitColumnName(col); ok {
			forecast[i+1] = true
			ds.ForecastColumns = append(ds.ForecastColumns, col)
			continue
		}
		ds.StatusColumns = append(ds.StatusColumns, col)
	}

	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return domain.Dataset{}, fmt.Errorf("line %d: %w", line, err)
		}

		d, err := time.Parse(dateLayout, record[0])
		if err != nil {
			return domain.Dataset{}, fmt.Errorf("line %d: invalid date %q", line, record[0])
		}
		rec := domain.Record{
			Date:     d,
			Forecast: make(map[string]float64, len(ds.ForecastColumns)),
			Status:   make(map[string]bool, len(ds.StatusColumns)),
		}
		for i := 1; i < len(record); i++ {
			cell := strings.TrimSpace(record[i])
			if forecast[i] {
				if cell == "" {
					continue
				}
				v, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return domain.Dataset{}, fmt.Errorf("line %d, column %s: invalid number %q", line, header[i], cell)
				}
				rec.Forecast[header[i]] = v
				continue
			}
			b, err := strconv.ParseBool(cell)
			if err != nil {
				return domain.Dataset{}, fmt.Errorf("line %d, column %s: invalid flag %q", line, header[i], cell)
			}
			rec.Status[header[i]] = b
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds, nil
}
