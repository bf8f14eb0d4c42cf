package filestore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
)

// Incident export column headers.
const (
	colTimeIn    = "time in"
	colCondition = "system condition"
	colTimeOut   = "time out"
)

// IncidentStore reads yearly incident CSV exports from a directory. Files whose
// names start with an excluded prefix (years with no usable data) are skipped.
// It implements pipeline.IncidentSource.
type IncidentStore struct {
	dir      string
	excluded []string
	logger   *slog.Logger
}

// NewIncidentStore creates an IncidentStore for dir.
func NewIncidentStore(dir string, excludedPrefixes []string, logger *slog.Logger) *IncidentStore {
	return &IncidentStore{dir: dir, excluded: excludedPrefixes, logger: logger}
}

// ReadIncidents concatenates the rows of every eligible *.csv file in name
// order. A missing directory yields no rows. Files without the expected
// columns are skipped with a warning.
func (s *IncidentStore) ReadIncidents(ctx context.Context) ([]domain.IncidentRow, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("incident directory missing, no statuses", "dir", s.dir)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list incidents in %s: %w", s.dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") || s.isExcluded(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var rows []domain.IncidentRow
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileRows, err := readIncidentFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("incident file skipped", "file", name, "error", err)
			continue
		}
		rows = append(rows, fileRows...)
	}
	return rows, nil
}

func (s *IncidentStore) isExcluded(name string) bool {
	for _, p := range s.excluded {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func readIncidentFile(path string) ([]domain.IncidentRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseIncidents(f)
}

// parseIncidents reads a header row and maps the three incident columns by
// name. Short or broken records are skipped.
func parseIncidents(r io.Reader) ([]domain.IncidentRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := map[string]int{colTimeIn: -1, colCondition: -1, colTimeOut: -1}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, ok := idx[key]; ok {
			idx[key] = i
		}
	}
	for col, i := range idx {
		if i < 0 {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}
	width := max(idx[colTimeIn], idx[colCondition], idx[colTimeOut]) + 1

	var rows []domain.IncidentRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				continue
			}
			return nil, err
		}
		if len(record) < width {
			continue
		}
		rows = append(rows, domain.IncidentRow{
			TimeIn:    record[idx[colTimeIn]],
			Condition: record[idx[colCondition]],
			TimeOut:   record[idx[colTimeOut]],
		})
	}
	return rows, nil
}
