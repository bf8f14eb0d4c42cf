package domain

import (
	"strconv"
	"time"
)

// OffsetCount is the number of forecast day offsets in every report window.
const OffsetCount = 7

// dateLayout is the canonical calendar-date layout used in identifiers and output.
const dateLayout = "2006-01-02"

// ReportRef identifies one published version of a forecast report.
type ReportRef struct {
	ID         string    // stable content-store identifier
	ReportDate time.Time // calendar day the 7-day window starts (UTC midnight)
	Version    string    // 17-digit publication timestamp, empty if not embedded
}

// Source returns the provenance used to order this report against others.
func (r ReportRef) Source() Source {
	return Source{ReportDate: r.ReportDate, Version: r.Version}
}

// RawReportDocument is the immutable content of one report version.
type RawReportDocument struct {
	Ref     ReportRef
	Content []byte
}

// MeasurementRow is one named metric over the seven forecast offsets.
// Missing values are NaN.
type MeasurementRow struct {
	Line   int
	Metric string
	Values [OffsetCount]float64
}

// MeasurementBlock is the ordered set of rows extracted from one document.
type MeasurementBlock struct {
	HeaderDates []time.Time // dates named in the header row; nil if unparseable
	Rows        []MeasurementRow
	Dropped     []RowMalformedError
}

// DatedRow holds the values one report contributes to a single calendar date.
// Values is keyed by canonical metric code.
type DatedRow struct {
	Date   time.Time
	Offset int
	Values map[string]float64
}

// ReportWindow is the pivoted form of one report: seven dated rows tagged with
// the originating report so the merge can apply precedence.
type ReportWindow struct {
	Ref      ReportRef
	Rows     [OffsetCount]DatedRow
	Metrics  []string // canonical codes present, in block order
	Unmapped []string // source labels with no canonical code
	Dropped  []RowMalformedError
}

// Wide returns the WideReportRow for this window: every "<code>_<offset>"
// column keyed by the report date.
func (w ReportWindow) Wide() map[string]float64 {
	out := make(map[string]float64, len(w.Metrics)*OffsetCount)
	for _, row := range w.Rows {
		for code, v := range row.Values {
			out[ColumnName(code, row.Offset)] = v
		}
	}
	return out
}

// ColumnName builds the forecast column name for a metric code and offset.
func ColumnName(code string, offset int) string {
	return code + "_" + strconv.Itoa(offset)
}

// Source orders cells by publication: later report date first, then later
// version for the same report date.
type Source struct {
	ReportDate time.Time
	Version    string
}

// Before reports whether s was published strictly before o.
func (s Source) Before(o Source) bool {
	if !s.ReportDate.Equal(o.ReportDate) {
		return s.ReportDate.Before(o.ReportDate)
	}
	return s.Version < o.Version
}

// calendarDay truncates t to midnight UTC of its calendar day.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar date in the output layout.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
