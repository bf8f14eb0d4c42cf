package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cell is one reconciled value and the report that contributed it.
type Cell struct {
	Value  float64
	Source Source
}

// Merger folds report windows into a calendar-date accumulator. For every
// (date, column) it keeps the present value from the most recently published
// report; missing values never replace present ones. Add windows in ascending
// report-date order; out-of-order adds still resolve by publication.
type Merger struct {
	cells   map[time.Time]map[string]Cell
	columns map[string]struct{}
	first   time.Time
	last    time.Time
}

// NewMerger returns an empty accumulator.
func NewMerger() *Merger {
	return &Merger{
		cells:   make(map[time.Time]map[string]Cell),
		columns: make(map[string]struct{}),
	}
}

// Add merges one window. Adding the same window twice is a no-op.
func (m *Merger) Add(w ReportWindow) {
	src := w.Ref.Source()
	for _, row := range w.Rows {
		m.cover(row.Date)
		for code, v := range row.Values {
			m.put(row.Date, ColumnName(code, row.Offset), Cell{Value: v, Source: src})
		}
	}
}

// cover extends the table's date range to include day.
func (m *Merger) cover(day time.Time) {
	if m.first.IsZero() || day.Before(m.first) {
		m.first = day
	}
	if m.last.IsZero() || day.After(m.last) {
		m.last = day
	}
}

func (m *Merger) put(day time.Time, column string, incoming Cell) {
	m.columns[column] = struct{}{}
	row, ok := m.cells[day]
	if !ok {
		row = make(map[string]Cell)
		m.cells[day] = row
	}
	if existing, ok := row[column]; ok && incoming.Source.Before(existing.Source) {
		return
	}
	row[column] = incoming
}

// Table snapshots the accumulator. The snapshot does not share state with the
// merger, and its date index has no gaps between the first and last date.
func (m *Merger) Table() ForecastTable {
	t := ForecastTable{cells: make(map[time.Time]map[string]Cell, len(m.cells))}
	if m.first.IsZero() {
		return t
	}

	for day := m.first; !day.After(m.last); day = day.AddDate(0, 0, 1) {
		t.dates = append(t.dates, day)
	}
	for day, row := range m.cells {
		copied := make(map[string]Cell, len(row))
		for col, c := range row {
			copied[col] = c
		}
		t.cells[day] = copied
	}
	for col := range m.columns {
		t.columns = append(t.columns, col)
	}
	sortColumns(t.columns)
	return t
}

// MergeWindows folds windows in ascending publication order.
func MergeWindows(windows []ReportWindow) ForecastTable {
	ordered := append([]ReportWindow(nil), windows...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Ref.Source().Before(ordered[j].Ref.Source())
	})

	m := NewMerger()
	for _, w := range ordered {
		m.Add(w)
	}
	return m.Table()
}

// ForecastTable is the reconciled, calendar-date-indexed forecast.
type ForecastTable struct {
	dates   []time.Time
	columns []string
	cells   map[time.Time]map[string]Cell
}

// Dates returns every calendar date in the table, ascending and gap-free.
func (t ForecastTable) Dates() []time.Time { return append([]time.Time(nil), t.dates...) }

// Columns returns the union of "<code>_<offset>" columns in display order.
func (t ForecastTable) Columns() []string { return append([]string(nil), t.columns...) }

// Len returns the number of calendar dates.
func (t ForecastTable) Len() int { return len(t.dates) }

// Cell returns the reconciled cell for a date and column.
func (t ForecastTable) Cell(date time.Time, column string) (Cell, bool) {
	c, ok := t.cells[calendarDay(date)][column]
	return c, ok
}

// Value returns the reconciled value for a date and column.
func (t ForecastTable) Value(date time.Time, column string) (float64, bool) {
	c, ok := t.Cell(date, column)
	return c.Value, ok
}

// Freshest returns the shortest-horizon value of a metric on a date, i.e. the
// one from the report published closest to that date.
func (t ForecastTable) Freshest(date time.Time, code string) (c Cell, offset int, ok bool) {
	for k := 1; k <= OffsetCount; k++ {
		if c, ok := t.Cell(date, ColumnName(code, k)); ok {
			return c, k, true
		}
	}
	return Cell{}, 0, false
}

// Dataset flattens the table for output.
func (t ForecastTable) Dataset() Dataset {
	ds := Dataset{ForecastColumns: t.Columns()}
	for _, day := range t.dates {
		rec := Record{Date: day, Forecast: make(map[string]float64, len(t.cells[day]))}
		for col, c := range t.cells[day] {
			rec.Forecast[col] = c.Value
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds
}

// SplitColumnName splits "<code>_<offset>" into its parts.
func SplitColumnName(column string) (code string, offset int, ok bool) {
	i := strings.LastIndexByte(column, '_')
	if i <= 0 {
		return "", 0, false
	}
	offset, err := strconv.Atoi(column[i+1:])
	if err != nil || offset < 1 || offset > OffsetCount {
		return "", 0, false
	}
	return column[:i], offset, true
}

// sortColumns orders columns by canonical metric order, unknown metrics by
// name after the known ones, then by offset.
func sortColumns(cols []string) {
	sort.Slice(cols, func(i, j int) bool {
		ci, oi, _ := SplitColumnName(cols[i])
		cj, oj, _ := SplitColumnName(cols[j])
		if ci != cj {
			ri, knownI := metricRank[ci]
			rj, knownJ := metricRank[cj]
			switch {
			case knownI && knownJ:
				return ri < rj
			case knownI != knownJ:
				return knownI
			default:
				return ci < cj
			}
		}
		return oi < oj
	})
}
