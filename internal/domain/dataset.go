package domain

import (
	"strings"
	"time"
)

// Record is one output row keyed by calendar date. A forecast column absent
// from Forecast is missing; a status column absent from Status is false.
type Record struct {
	Date     time.Time
	Forecast map[string]float64
	Status   map[string]bool
}

// Dataset is a flat, date-keyed table ready for serialization.
type Dataset struct {
	ForecastColumns []string
	StatusColumns   []string
	Records         []Record
}

// Columns returns the full header after the date column.
func (d Dataset) Columns() []string {
	cols := make([]string, 0, len(d.ForecastColumns)+len(d.StatusColumns))
	cols = append(cols, d.ForecastColumns...)
	return append(cols, d.StatusColumns...)
}

// JoinStatuses left-joins status flags onto the forecast table by calendar
// date. Every forecast date is kept; dates with no status row get false flags.
func JoinStatuses(forecast ForecastTable, status StatusTable) Dataset {
	ds := forecast.Dataset()
	ds.StatusColumns = status.Columns()
	for i := range ds.Records {
		flags := make(map[string]bool, len(ds.StatusColumns))
		for _, code := range ds.StatusColumns {
			flags[code] = status.Active(ds.Records[i].Date, code)
		}
		ds.Records[i].Status = flags
	}
	return ds
}

// CleanOptions selects the columns and dates kept in the modeling dataset.
type CleanOptions struct {
	DropPrefixes []string  // forecast columns with any of these prefixes are removed
	Before       time.Time // keep only dates strictly before this; zero keeps all
}

// CleanDataset removes sparse or unwanted forecast columns and trims dates.
// The input is not modified.
func CleanDataset(ds Dataset, opts CleanOptions) Dataset {
	out := Dataset{StatusColumns: append([]string(nil), ds.StatusColumns...)}

	keep := make(map[string]bool, len(ds.ForecastColumns))
	for _, col := range ds.ForecastColumns {
		if hasAnyPrefix(col, opts.DropPrefixes) {
			continue
		}
		keep[col] = true
		out.ForecastColumns = append(out.ForecastColumns, col)
	}

	for _, rec := range ds.Records {
		if !opts.Before.IsZero() && !rec.Date.Before(calendarDay(opts.Before)) {
			continue
		}
		forecast := make(map[string]float64, len(rec.Forecast))
		for col, v := range rec.Forecast {
			if keep[col] {
				forecast[col] = v
			}
		}
		status := make(map[string]bool, len(rec.Status))
		for code, v := range rec.Status {
			status[code] = v
		}
		out.Records = append(out.Records, Record{Date: rec.Date, Forecast: forecast, Status: status})
	}
	return out
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
