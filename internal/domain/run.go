package domain

import "time"

// OutcomeStatus classifies what a run did with one listed document.
type OutcomeStatus string

const (
	OutcomeReconciled OutcomeStatus = "reconciled"
	OutcomeSuperseded OutcomeStatus = "superseded"
	OutcomeOmitted    OutcomeStatus = "omitted"
)

// DocumentOutcome records the fate of one listed document in a run.
type DocumentOutcome struct {
	ID           string
	ReportDate   time.Time // zero when the identifier could not be parsed
	Version      string
	Status       OutcomeStatus
	Detail       string // reason for omission, or schema drift notes
	RowsKept     int
	RowsDropped  int
	UnmappedRows int
}

// RunSummary aggregates one reconciliation run.
type RunSummary struct {
	RunID            string
	StartedAt        time.Time
	FinishedAt       time.Time
	Outcomes         []DocumentOutcome
	IncidentsRead    int
	IncidentsDropped int
}

// Count returns the number of documents with the given outcome.
func (s RunSummary) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Reconciliation is everything a run produces, handed to loaders.
type Reconciliation struct {
	Forecast ForecastTable
	Status   StatusTable
	Joined   Dataset // forecast left-joined with status flags, then cleaned
	Summary  RunSummary
}
