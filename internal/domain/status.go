package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MaxIncidentSpanDays bounds how far an incident may run past its start day.
// Longer spans are almost always a mistyped end date.
const MaxIncidentSpanDays = 31

// incidentDateLayouts are the date formats seen in incident timestamps.
var incidentDateLayouts = []string{dateLayout, "01/02/2006", "1/2/2006", "2006/01/02"}

// IncidentRow is one raw incident as published: "date[ time]" timestamps and
// a free-text system condition.
type IncidentRow struct {
	TimeIn    string
	Condition string
	TimeOut   string
}

// IncidentRecord is an incident truncated to calendar days with a canonical
// status code.
type IncidentRecord struct {
	Start  time.Time
	Status string
	End    time.Time
}

// IncidentOptions controls how incidents become daily flags.
type IncidentOptions struct {
	// ExpandSpans flags every day from start to end inclusive. When false only
	// the start day is flagged.
	ExpandSpans bool
}

// IncidentReport lists what the transform kept and what it absorbed.
type IncidentReport struct {
	Records  []IncidentRecord // deduplicated, in input order
	Dropped  []RowMalformedError
	Unmapped []string // condition labels passed through without a canonical code
}

// NormalizeIncidents truncates timestamps to days, maps labels to canonical
// codes and collapses exact duplicate (start, status, end) triples.
func NormalizeIncidents(rows []IncidentRow) IncidentReport {
	var rep IncidentReport
	seen := make(map[IncidentRecord]struct{}, len(rows))
	unmapped := make(map[string]struct{})

	for i, row := range rows {
		start, ok := truncateTimestamp(row.TimeIn)
		if !ok {
			rep.Dropped = append(rep.Dropped, RowMalformedError{Line: i + 1, Metric: row.Condition, Reason: "unparseable start " + strconv.Quote(row.TimeIn)})
			continue
		}
		label := strings.TrimSpace(row.Condition)
		if label == "" {
			rep.Dropped = append(rep.Dropped, RowMalformedError{Line: i + 1, Reason: "empty system condition"})
			continue
		}
		end, ok := truncateTimestamp(row.TimeOut)
		if !ok || end.Before(start) {
			end = start
		}
		if end.After(start.AddDate(0, 0, MaxIncidentSpanDays)) {
			rep.Dropped = append(rep.Dropped, RowMalformedError{Line: i + 1, Metric: label,
				Reason: fmt.Sprintf("span %s to %s exceeds %d days", FormatDate(start), FormatDate(end), MaxIncidentSpanDays)})
			continue
		}

		code, known := CanonicalStatusCode(label)
		if !known {
			if _, dup := unmapped[label]; !dup {
				unmapped[label] = struct{}{}
				rep.Unmapped = append(rep.Unmapped, label)
			}
		}

		rec := IncidentRecord{Start: start, Status: code, End: end}
		if _, dup := seen[rec]; dup {
			continue
		}
		seen[rec] = struct{}{}
		rep.Records = append(rep.Records, rec)
	}
	return rep
}

// TransformIncidents normalizes incident rows and pivots them into a status table.
func TransformIncidents(rows []IncidentRow, opts IncidentOptions) (StatusTable, IncidentReport) {
	rep := NormalizeIncidents(rows)
	return BuildStatusTable(rep.Records, opts), rep
}

// BuildStatusTable pivots incident records into one boolean column per status
// code. The seven canonical codes are always present; unknown codes follow in
// name order.
func BuildStatusTable(records []IncidentRecord, opts IncidentOptions) StatusTable {
	t := StatusTable{flags: make(map[time.Time]map[string]bool)}

	extra := make(map[string]struct{})
	for _, rec := range records {
		if _, known := statusRank(rec.Status); !known {
			extra[rec.Status] = struct{}{}
		}
		last := rec.Start
		if opts.ExpandSpans {
			last = rec.End
		}
		for day := rec.Start; !day.After(last); day = day.AddDate(0, 0, 1) {
			row, ok := t.flags[day]
			if !ok {
				row = make(map[string]bool)
				t.flags[day] = row
			}
			row[rec.Status] = true
		}
	}

	t.codes = StatusCodes()
	unknown := make([]string, 0, len(extra))
	for code := range extra {
		unknown = append(unknown, code)
	}
	sort.Strings(unknown)
	t.codes = append(t.codes, unknown...)

	for day := range t.flags {
		t.dates = append(t.dates, day)
	}
	sort.Slice(t.dates, func(i, j int) bool { return t.dates[i].Before(t.dates[j]) })
	return t
}

// StatusTable holds per-day status flags for days with at least one incident.
type StatusTable struct {
	dates []time.Time
	codes []string
	flags map[time.Time]map[string]bool
}

// Dates returns the days with at least one active status, ascending.
func (t StatusTable) Dates() []time.Time { return append([]time.Time(nil), t.dates...) }

// Codes returns the status code columns, without the aggregate column.
func (t StatusTable) Codes() []string {
	if t.codes == nil {
		return StatusCodes()
	}
	return append([]string(nil), t.codes...)
}

// Columns returns the status code columns followed by the aggregate column.
func (t StatusTable) Columns() []string {
	return append(t.Codes(), AbnormalColumn)
}

// Active reports whether a status column is true on a date. The aggregate
// column is true when any status is active.
func (t StatusTable) Active(date time.Time, column string) bool {
	row := t.flags[calendarDay(date)]
	if column == AbnormalColumn {
		for _, v := range row {
			if v {
				return true
			}
		}
		return false
	}
	return row[column]
}

// Dataset flattens the table for output, one record per flagged day.
func (t StatusTable) Dataset() Dataset {
	ds := Dataset{StatusColumns: t.Columns()}
	for _, day := range t.dates {
		rec := Record{Date: day, Status: make(map[string]bool, len(ds.StatusColumns))}
		for _, col := range ds.StatusColumns {
			rec.Status[col] = t.Active(day, col)
		}
		ds.Records = append(ds.Records, rec)
	}
	return ds
}

func statusRank(code string) (int, bool) {
	for i, s := range statusCodes {
		if s.code == code {
			return i, true
		}
	}
	return 0, false
}

// truncateTimestamp keeps the date part of "date[ time]".
func truncateTimestamp(ts string) (time.Time, bool) {
	ts = strings.TrimSpace(ts)
	if ts == "" {
		return time.Time{}, false
	}
	datePart, _, _ := strings.Cut(ts, " ")
	if d, _, found := strings.Cut(datePart, "T"); found {
		datePart = d
	}
	return parseDay(datePart, incidentDateLayouts)
}
