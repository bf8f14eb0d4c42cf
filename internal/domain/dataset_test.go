package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinStatuses_LeftJoin(t *testing.T) {
	forecast := MergeWindows([]ReportWindow{
		pplWindow(day(2021, 3, 1), "", 1, 2, 3, 4, 5, 6, 7),
	})
	status, _ := TransformIncidents([]IncidentRow{
		{TimeIn: "2021-03-04 10:00", Condition: "OP4 Action 1, Power Caution", TimeOut: "2021-03-04 14:00"},
		{TimeIn: "2021-04-20 10:00", Condition: "OP4 Action 2", TimeOut: "2021-04-20 14:00"},
	}, IncidentOptions{})

	ds := JoinStatuses(forecast, status)

	require.Len(t, ds.Records, 7, "every forecast date kept, status-only dates ignored")
	assert.Equal(t, []string{"ACON", "MGEN", "OP41", "OP42", "OP43", "OP44", "OP45", "Abnormal"}, ds.StatusColumns)

	for _, rec := range ds.Records {
		assert.Len(t, rec.Status, len(ds.StatusColumns))
		if rec.Date.Equal(day(2021, 3, 4)) {
			assert.True(t, rec.Status["OP41"])
			assert.True(t, rec.Status[AbnormalColumn])
			continue
		}
		assert.False(t, rec.Status[AbnormalColumn])
	}
	assert.Equal(t, 4.0, ds.Records[3].Forecast["PPL_4"])
}

func TestCleanDataset(t *testing.T) {
	ds := Dataset{
		ForecastColumns: []string{"PPL_1", "AREG_1", "PWH_1"},
		StatusColumns:   []string{"OP41", AbnormalColumn},
		Records: []Record{
			{Date: day(2023, 12, 30), Forecast: map[string]float64{"PPL_1": 1, "AREG_1": 2, "PWH_1": 0}, Status: map[string]bool{"OP41": true, AbnormalColumn: true}},
			{Date: day(2023, 12, 31), Forecast: map[string]float64{"PPL_1": 3}, Status: map[string]bool{}},
			{Date: day(2024, 1, 1), Forecast: map[string]float64{"PPL_1": 5}, Status: map[string]bool{}},
		},
	}

	out := CleanDataset(ds, CleanOptions{
		DropPrefixes: []string{"AREG_", "PWH_"},
		Before:       day(2024, 1, 1),
	})

	assert.Equal(t, []string{"PPL_1"}, out.ForecastColumns)
	assert.Equal(t, ds.StatusColumns, out.StatusColumns)
	require.Len(t, out.Records, 2)
	assert.Equal(t, map[string]float64{"PPL_1": 1}, out.Records[0].Forecast)
	assert.True(t, out.Records[0].Status["OP41"])

	// The input is untouched.
	assert.Len(t, ds.Records[0].Forecast, 3)
	assert.Len(t, ds.Records, 3)
}

func TestCleanDataset_NoOptionsKeepsEverything(t *testing.T) {
	ds := Dataset{
		ForecastColumns: []string{"PPL_1"},
		Records:         []Record{{Date: day(2030, 1, 1), Forecast: map[string]float64{"PPL_1": 1}}},
	}

	out := CleanDataset(ds, CleanOptions{})
	assert.Equal(t, ds.ForecastColumns, out.ForecastColumns)
	assert.Len(t, out.Records, 1)
}
