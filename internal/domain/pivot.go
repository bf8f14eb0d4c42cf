package domain

import "math"

// PivotBlock turns one extracted block into seven dated rows. Rows with any
// missing value are dropped, labels are renamed to canonical codes (unknown
// labels pass through and are listed in Unmapped), and offset k is placed on
// calendar date ReportDate + (k-1) days.
func PivotBlock(ref ReportRef, block MeasurementBlock) ReportWindow {
	w := ReportWindow{
		Ref:     ref,
		Dropped: append([]RowMalformedError(nil), block.Dropped...),
	}

	type metricValues struct {
		code   string
		values [OffsetCount]float64
	}
	kept := make([]metricValues, 0, len(block.Rows))
	seen := make(map[string]struct{}, len(block.Rows))

	for _, row := range block.Rows {
		if hasMissing(row.Values) {
			w.Dropped = append(w.Dropped, RowMalformedError{Line: row.Line, Metric: row.Metric, Reason: "missing value"})
			continue
		}

		code, known := CanonicalMetricCode(row.Metric)
		if _, dup := seen[code]; dup {
			w.Dropped = append(w.Dropped, RowMalformedError{Line: row.Line, Metric: row.Metric, Reason: "duplicate metric"})
			continue
		}
		seen[code] = struct{}{}
		if !known {
			w.Unmapped = append(w.Unmapped, row.Metric)
		}

		kept = append(kept, metricValues{code: code, values: row.Values})
		w.Metrics = append(w.Metrics, code)
	}

	reportDate := calendarDay(ref.ReportDate)
	for i := 0; i < OffsetCount; i++ {
		offset := i + 1
		values := make(map[string]float64, len(kept))
		for _, m := range kept {
			values[m.code] = m.values[i]
		}
		w.Rows[i] = DatedRow{
			Date:   reportDate.AddDate(0, 0, offset-1),
			Offset: offset,
			Values: values,
		}
	}
	return w
}

func hasMissing(values [OffsetCount]float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
