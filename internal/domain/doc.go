// Package domain reconciles seven-day capacity forecast reports and system
// status incidents into one daily time series keyed by calendar date.
//
// # Data Source
//
// The grid operator republishes a seven-day capacity forecast every day, and
// sometimes several times a day. The upstream fetcher deposits every published
// version into a content store; identifiers carry the nominal report date and,
// for republished reports, a 17-digit version timestamp:
//
//	/transform/csv/sdf?start=20220103&version=20220103094512345
//	20220103_20220103094512345.txt
//
// # Report Layout
//
// A report is line-oriented text. Only the fixed data block matters:
//
//	"C","Seven-Day Capacity Forecast"          <- ignored
//	"D","Date","01/03/2022",...,"01/09/2022"   <- start sentinel (header)
//	"D","Projected Peak Load",15100,...,14900  <- one row per metric
//	"D","Power Watch","N",...                  <- non-numeric, dropped
//	"T","EOF"                                  <- terminator sentinel
//
// Each data row carries exactly seven values, one per forecast day offset.
// Offset 1 is the report date itself and offset 7 is report date + 6 days.
// Empty values are missing; short rows and non-numeric values are dropped.
//
// # Reconciliation
//
// Each report is pivoted into seven dated rows whose columns are named
// "<code>_<offset>", where code is the canonical short metric code (see
// [CanonicalMetricCode]). Rows are then merged into a calendar-date table:
//
//	report 2022-01-01 offset 3 -> 2022-01-03 PPL_3
//	report 2022-01-02 offset 2 -> 2022-01-03 PPL_2
//	report 2022-01-03 offset 1 -> 2022-01-03 PPL_1
//
// A present value from a later report replaces an earlier one for the same
// (date, column); a missing value never replaces a present one. See [Merger].
//
// # Status Incidents
//
// Incident rows ("Time In", "System Condition", "Time Out") are truncated to
// calendar days, mapped to seven canonical status codes, deduplicated and
// pivoted into boolean flags with an aggregate "Abnormal" column. The status
// table is left-joined onto the forecast table by calendar date.
package domain
