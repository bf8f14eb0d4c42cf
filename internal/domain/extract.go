package domain

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// blockStartPrefix marks the header row that opens the data block.
	blockStartPrefix = `"D","Date",`

	// blockEndPrefix marks the trailer row that closes the data block.
	blockEndPrefix = `"T"`

	// dataRowType is the row-type field of every data row.
	dataRowType = "D"

	// blockFields is row type + metric label + one value per offset.
	blockFields = 2 + OffsetCount
)

// headerDateLayouts are the date formats seen in block header rows.
var headerDateLayouts = []string{"01/02/2006", "1/2/2006", dateLayout, "01/02/2006 Mon", "Mon 01/02/2006"}

// ExtractBlock scans a report and returns the rows between the header sentinel
// and the trailer sentinel (or end of input). Malformed rows are dropped and
// recorded on the block; a missing header sentinel returns ErrNoData.
func ExtractBlock(content []byte) (MeasurementBlock, error) {
	var block MeasurementBlock
	started := false

	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimRight(scanner.Text(), "\r")

		if !started {
			if strings.HasPrefix(text, blockStartPrefix) {
				started = true
				block.HeaderDates = parseHeaderDates(text)
			}
			continue
		}
		if strings.HasPrefix(text, blockEndPrefix) {
			break
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		row, err := parseBlockRow(line, text)
		if err != nil {
			block.Dropped = append(block.Dropped, *err)
			continue
		}
		block.Rows = append(block.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return MeasurementBlock{}, fmt.Errorf("scan report: %w", err)
	}

	if !started {
		return MeasurementBlock{}, ErrNoData
	}
	return block, nil
}

// parseBlockRow parses one comma-separated data row.
func parseBlockRow(line int, text string) (MeasurementRow, *RowMalformedError) {
	fields, err := readCSVLine(text)
	if err != nil {
		return MeasurementRow{}, &RowMalformedError{Line: line, Reason: err.Error()}
	}
	if len(fields) != blockFields {
		return MeasurementRow{}, &RowMalformedError{
			Line:   line,
			Reason: fmt.Sprintf("expected %d fields, got %d", blockFields, len(fields)),
		}
	}

	metric := strings.TrimSpace(fields[1])
	if strings.TrimSpace(fields[0]) != dataRowType {
		return MeasurementRow{}, &RowMalformedError{Line: line, Metric: metric, Reason: fmt.Sprintf("unexpected row type %q", fields[0])}
	}
	if metric == "" {
		return MeasurementRow{}, &RowMalformedError{Line: line, Reason: "empty metric label"}
	}

	row := MeasurementRow{Line: line, Metric: metric}
	for i, raw := range fields[2:] {
		v, err := parseBlockValue(raw)
		if err != nil {
			return MeasurementRow{}, &RowMalformedError{Line: line, Metric: metric, Reason: fmt.Sprintf("offset %d: %v", i+1, err)}
		}
		row.Values[i] = v
	}
	return row, nil
}

func readCSVLine(text string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.Read()
}

// parseBlockValue parses a numeric cell. Empty cells are missing (NaN).
// Thousands separators and accounting negatives "(123)" are accepted.
func parseBlockValue(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return math.NaN(), nil
	}
	s = strings.ReplaceAll(s, ",", "")

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-numeric value %q", raw)
	}
	if negative {
		v = -v
	}
	return v, nil
}

// parseHeaderDates returns the seven dates named in the header row, or nil
// when the header does not carry seven parseable dates.
func parseHeaderDates(text string) []time.Time {
	fields, err := readCSVLine(text)
	if err != nil || len(fields) != blockFields {
		return nil
	}

	dates := make([]time.Time, 0, OffsetCount)
	for _, f := range fields[2:] {
		d, ok := parseDay(f, headerDateLayouts)
		if !ok {
			return nil
		}
		dates = append(dates, d)
	}
	return dates
}

func parseDay(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return calendarDay(t), true
		}
	}
	return time.Time{}, false
}
