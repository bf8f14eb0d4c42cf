package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/capacity-forecast-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/capacity-forecast-etl/internal/domain"
	"github.com/couchcryptid/capacity-forecast-etl/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2022, 1, d, 0, 0, 0, 0, time.UTC)
}

func forecastDataset(days ...int) domain.Dataset {
	ds := domain.Dataset{ForecastColumns: []string{"PPL_1"}}
	for _, d := range days {
		ds.Records = append(ds.Records, domain.Record{Date: day(d), Forecast: map[string]float64{"PPL_1": float64(d)}})
	}
	return ds
}

func TestValidateForecastTable(t *testing.T) {
	tests := []struct {
		name       string
		ds         domain.Dataset
		wantErrors int
	}{
		{"contiguous", forecastDataset(1, 2, 3), 0},
		{"gap", forecastDataset(1, 3), 1},
		{"duplicate date", forecastDataset(1, 1), 1},
		{"empty", domain.Dataset{}, 1},
		{"empty boundary row", domain.Dataset{
			ForecastColumns: []string{"PPL_1"},
			Records: []domain.Record{
				{Date: day(1), Forecast: map[string]float64{"PPL_1": 1}},
				{Date: day(2)},
			},
		}, 1},
		{"bad column", domain.Dataset{
			ForecastColumns: []string{"PPL_9"},
			Records:         []domain.Record{{Date: day(1), Forecast: map[string]float64{"PPL_9": 1}}},
		}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validateForecastTable(tt.ds)
			assert.Len(t, p.errors, tt.wantErrors, p.errors)
		})
	}
}

func TestValidateForecastTable_UncoveredDaysPass(t *testing.T) {
	pplWindow := func(reportDate time.Time) domain.ReportWindow {
		ref := domain.ReportRef{ID: domain.FormatDate(reportDate), ReportDate: reportDate}
		return domain.PivotBlock(ref, domain.MeasurementBlock{Rows: []domain.MeasurementRow{
			{Metric: "Projected Peak Load", Values: [domain.OffsetCount]float64{1, 2, 3, 4, 5, 6, 7}},
		}})
	}
	table := domain.MergeWindows([]domain.ReportWindow{pplWindow(day(1)), pplWindow(day(20))})

	var buf bytes.Buffer
	require.NoError(t, csvfile.WriteDataset(&buf, table.Dataset()))
	ds, err := csvfile.ReadDataset(&buf)
	require.NoError(t, err)

	// 2022-01-01 through 2022-01-26, with 2022-01-08..19 uncovered.
	require.Len(t, ds.Records, 26)
	assert.Empty(t, ds.Records[7].Forecast)

	p := validateForecastTable(ds)
	assert.True(t, p.passed(), p.errors)
}

func TestValidateStatusTable_AbnormalMustMatch(t *testing.T) {
	ds := domain.Dataset{
		StatusColumns: []string{"OP41", domain.AbnormalColumn},
		Records: []domain.Record{
			{Date: day(1), Status: map[string]bool{"OP41": true, domain.AbnormalColumn: true}},
			{Date: day(5), Status: map[string]bool{"OP41": true, domain.AbnormalColumn: false}},
		},
	}
	p := validateStatusTable(ds)
	assert.Len(t, p.errors, 1, "status dates may have gaps, but Abnormal must be the OR of the flags")
}

func TestValidateJoined(t *testing.T) {
	forecast := forecastDataset(1, 2)
	statuses := domain.Dataset{
		StatusColumns: []string{"OP41", domain.AbnormalColumn},
		Records:       []domain.Record{{Date: day(2), Status: map[string]bool{"OP41": true, domain.AbnormalColumn: true}}},
	}
	joined := domain.Dataset{
		ForecastColumns: []string{"PPL_1"},
		StatusColumns:   []string{"OP41", domain.AbnormalColumn},
		Records: []domain.Record{
			{Date: day(1), Forecast: map[string]float64{"PPL_1": 1}, Status: map[string]bool{"OP41": false, domain.AbnormalColumn: false}},
			{Date: day(2), Forecast: map[string]float64{"PPL_1": 2}, Status: map[string]bool{"OP41": true, domain.AbnormalColumn: true}},
		},
	}
	assert.True(t, validateJoined(joined, forecast, statuses).passed())

	joined.Records[0].Forecast["PPL_1"] = 99
	assert.False(t, validateJoined(joined, forecast, statuses).passed())
}

func TestValidateParquet(t *testing.T) {
	dir := t.TempDir()
	_, ok := validateParquet(dir, domain.Dataset{}, domain.Dataset{})
	assert.False(t, ok, "no parquet output skips the phase")

	ref := domain.ReportRef{ID: "20220101.txt", ReportDate: day(1)}
	forecast := domain.MergeWindows([]domain.ReportWindow{domain.PivotBlock(ref, domain.MeasurementBlock{Rows: []domain.MeasurementRow{
		{Metric: "Projected Peak Load", Values: [domain.OffsetCount]float64{1, 2, 3, 4, 5, 6, 7}},
	}})})
	status, _ := domain.TransformIncidents([]domain.IncidentRow{
		{TimeIn: "2022-01-03 08:00", Condition: "OP4 Action 1, Power Caution", TimeOut: "2022-01-03 09:00"},
	}, domain.IncidentOptions{})
	ps := store.NewParquetStore(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, ps.Load(context.Background(), domain.Reconciliation{Forecast: forecast, Status: status}))

	statuses := status.Dataset()
	p, ok := validateParquet(dir, forecast.Dataset(), statuses)
	require.True(t, ok)
	assert.True(t, p.passed(), p.errors)

	statuses.Records[0].Status["OP41"] = false
	p, _ = validateParquet(dir, forecast.Dataset(), statuses)
	assert.Len(t, p.errors, 1)
}
