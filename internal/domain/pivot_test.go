package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPivotBlock_Shape(t *testing.T) {
	ref := ReportRef{ID: "20220103.txt", ReportDate: day(2022, 1, 3)}
	block := MeasurementBlock{Rows: []MeasurementRow{
		{Line: 5, Metric: "Projected Peak Load", Values: [OffsetCount]float64{1, 2, 3, 4, 5, 6, 7}},
		{Line: 6, Metric: "Required Reserve", Values: [OffsetCount]float64{11, 12, 13, 14, 15, 16, 17}},
		{Line: 7, Metric: "Dew Point - Hartford", Values: [OffsetCount]float64{21, 22, 23, 24, 25, 26, 27}},
	}}

	w := PivotBlock(ref, block)

	assert.Equal(t, []string{"PPL", "RR", "DPH"}, w.Metrics)
	assert.Empty(t, w.Unmapped)
	require.Len(t, w.Rows, OffsetCount)
	for i, row := range w.Rows {
		assert.Equal(t, i+1, row.Offset)
		assert.Equal(t, day(2022, 1, 3).AddDate(0, 0, i), row.Date)
		assert.Len(t, row.Values, 3)
	}
	assert.Equal(t, 1.0, w.Rows[0].Values["PPL"])
	assert.Equal(t, 17.0, w.Rows[6].Values["RR"])
	assert.Equal(t, 24.0, w.Rows[3].Values["DPH"])
}

func TestPivotBlock_UnknownMetricPassesThrough(t *testing.T) {
	ref := ReportRef{ReportDate: day(2022, 1, 3)}
	block := MeasurementBlock{Rows: []MeasurementRow{
		{Metric: "Battery Storage Available", Values: [OffsetCount]float64{1, 1, 1, 1, 1, 1, 1}},
	}}

	w := PivotBlock(ref, block)

	assert.Equal(t, []string{"Battery Storage Available"}, w.Unmapped)
	assert.Equal(t, 1.0, w.Rows[0].Values["Battery Storage Available"])
}

func TestPivotBlock_DropsRowsWithMissingValues(t *testing.T) {
	ref := ReportRef{ReportDate: day(2022, 1, 3)}
	block := MeasurementBlock{
		Rows: []MeasurementRow{
			{Line: 5, Metric: "Projected Peak Load", Values: [OffsetCount]float64{1, 2, 3, 4, 5, 6, 7}},
			{Line: 6, Metric: "Required Reserve", Values: [OffsetCount]float64{1, math.NaN(), 3, 4, 5, 6, 7}},
		},
		Dropped: []RowMalformedError{{Line: 4, Reason: "expected 9 fields, got 3"}},
	}

	w := PivotBlock(ref, block)

	assert.Equal(t, []string{"PPL"}, w.Metrics)
	require.Len(t, w.Dropped, 2)
	assert.Equal(t, 4, w.Dropped[0].Line)
	assert.Equal(t, "missing value", w.Dropped[1].Reason)
	for _, row := range w.Rows {
		_, ok := row.Values["RR"]
		assert.False(t, ok)
	}
}

func TestPivotBlock_DuplicateMetricKeepsFirst(t *testing.T) {
	ref := ReportRef{ReportDate: day(2022, 1, 3)}
	block := MeasurementBlock{Rows: []MeasurementRow{
		{Metric: "Projected Peak Load", Values: [OffsetCount]float64{1, 2, 3, 4, 5, 6, 7}},
		{Metric: "Projected Peak Load", Values: [OffsetCount]float64{9, 9, 9, 9, 9, 9, 9}},
	}}

	w := PivotBlock(ref, block)

	assert.Equal(t, 1.0, w.Rows[0].Values["PPL"])
	require.Len(t, w.Dropped, 1)
	assert.Equal(t, "duplicate metric", w.Dropped[0].Reason)
}

func TestReportWindow_Wide(t *testing.T) {
	ref := ReportRef{ReportDate: day(2022, 1, 1)}
	block := MeasurementBlock{Rows: []MeasurementRow{
		{Metric: "Projected Peak Load", Values: [OffsetCount]float64{10, 11, 12, 13, 14, 15, 16}},
	}}

	wide := PivotBlock(ref, block).Wide()

	assert.Len(t, wide, OffsetCount)
	assert.Equal(t, 10.0, wide["PPL_1"])
	assert.Equal(t, 16.0, wide["PPL_7"])
}

func TestColumnNameRoundTrip(t *testing.T) {
	code, offset, ok := SplitColumnName(ColumnName("TLRR", 4))
	require.True(t, ok)
	assert.Equal(t, "TLRR", code)
	assert.Equal(t, 4, offset)

	_, _, ok = SplitColumnName("PPL_8")
	assert.False(t, ok)
	_, _, ok = SplitColumnName("Abnormal")
	assert.False(t, ok)
}
